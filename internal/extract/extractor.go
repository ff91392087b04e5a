// Package extract turns recognized documents into structured EOB
// records via the extraction model.
package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/opendental/eob-processor/internal/config"
	"github.com/opendental/eob-processor/internal/errors"
	"github.com/opendental/eob-processor/internal/llm"
	"github.com/opendental/eob-processor/internal/models"
)

const extractFunctionName = "extract_eob_fields"

// ChatClient is the slice of the LLM client the extractor needs.
type ChatClient interface {
	ChatCompletion(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// Extractor renders the fixed instruction template with each page's
// text and tables, carries the previous page's JSON as rolling context,
// and combines the per-page records into one result.
type Extractor struct {
	client    ChatClient
	cfg       config.ExtractionConfig
	maxTokens int
	logger    *zap.Logger
}

func New(client ChatClient, cfg config.ExtractionConfig, maxTokens int, logger *zap.Logger) *Extractor {
	return &Extractor{
		client:    client,
		cfg:       cfg,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Extract runs the per-page extraction loop. providerOverride, when
// set, is appended to the prompt context to bias the provider identity
// field; nothing else modifies the model output.
func (e *Extractor) Extract(ctx context.Context, doc *models.ExtractedDocument, providerOverride string) (*models.StructuredResult, error) {
	var (
		pages       []map[string]interface{}
		warnings    []string
		contextJSON string
		tokens      int
	)

	for _, page := range doc.Pages {
		payload := renderPage(page)
		if payload == "" {
			continue
		}
		tokens += llm.CountTokens(payload)

		e.logger.Info("Extracting page", zap.Int("page", page.Number))

		blob, err := e.extractPage(ctx, contextJSON, payload, providerOverride)
		if err != nil {
			return nil, err
		}
		if blob == "" {
			continue
		}

		fields, err := parseAgainstSchema(blob, e.cfg.RequiredKeys)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrSchemaValidation.Code,
				fmt.Sprintf("page %d response failed schema validation", page.Number))
		}

		pages = append(pages, fields)
		warnings = append(warnings, warningCodes(fields)...)
		contextJSON = blob
	}

	result := &models.StructuredResult{
		Records:      combineRecords(pages),
		WarningCodes: dedupe(warnings),
		TotalTokens:  tokens + e.cfg.TokenOverhead,
	}
	return result, nil
}

func (e *Extractor) extractPage(ctx context.Context, contextJSON, payload, providerOverride string) (string, error) {
	user := fmt.Sprintf("The json for reference is: \n%s\n\n The text and tables for current page is: \n%s",
		contextJSON, payload)
	if providerOverride != "" {
		user += fmt.Sprintf("\n\nThe insurance provider for this document is known to be %q; use it for the provider identity field.",
			providerOverride)
	}

	req := llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: e.cfg.Prompt},
			{Role: "user", Content: user},
		},
		Tools:      []llm.Tool{extractTool(e.cfg.RequiredKeys)},
		ToolChoice: llm.ForcedTool(extractFunctionName),
		MaxTokens:  e.maxTokens,
	}

	resp, err := e.client.ChatCompletion(ctx, req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrLlmService.Code, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(errors.ErrLlmService.Code, "no choices in model response")
	}

	message := resp.Choices[0].Message
	if len(message.ToolCalls) > 0 {
		return message.ToolCalls[0].Function.Arguments, nil
	}
	return message.Content, nil
}

func extractTool(required []string) llm.Tool {
	properties := map[string]interface{}{
		"Records": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "object"},
		},
		"WarningCodes": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
	}

	return llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        extractFunctionName,
			Description: "Extract structured EOB fields from the recognized page",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

// renderPage builds the page payload handed to the model.
func renderPage(page models.Page) string {
	segments := []string{"PAGE_NUMBER: " + strconv.Itoa(page.Number)}

	if text := strings.TrimSpace(page.Text); text != "" {
		segments = append(segments, "TEXT:\n"+text)
	}
	if len(page.Tables) > 0 {
		segments = append(segments, "TABLES:\n"+strings.Join(page.Tables, "\n\n"))
	}
	if len(segments) == 1 {
		return ""
	}
	return strings.Join(segments, "\n\n")
}

func warningCodes(fields map[string]interface{}) []string {
	raw, ok := fields["WarningCodes"].([]interface{})
	if !ok {
		return nil
	}
	codes := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			codes = append(codes, s)
		}
	}
	return codes
}

func dedupe(values []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
