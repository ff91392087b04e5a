package extract

import (
	"context"
	"fmt"
	"testing"

	"github.com/opendental/eob-processor/internal/config"
	"github.com/opendental/eob-processor/internal/errors"
	"github.com/opendental/eob-processor/internal/llm"
	"github.com/opendental/eob-processor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChat struct {
	responses []string
	err       error
	requests  []llm.ChatRequest
}

func (f *fakeChat) ChatCompletion(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}

	idx := len(f.requests) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}

	resp := &llm.ChatResponse{}
	resp.Choices = append(resp.Choices, struct {
		Index        int         `json:"index"`
		Message      llm.Message `json:"message"`
		FinishReason string      `json:"finish_reason"`
	}{})
	call := llm.ToolCall{ID: "call-1", Type: "function"}
	call.Function.Name = "extract_eob_fields"
	call.Function.Arguments = f.responses[idx]
	resp.Choices[0].Message = llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{call}}
	return resp, nil
}

func extractionConfig() config.ExtractionConfig {
	return config.ExtractionConfig{
		Prompt:        "Extract EOB fields.",
		RequiredKeys:  []string{"Records"},
		TokenOverhead: 4000,
	}
}

func twoPageDoc() *models.ExtractedDocument {
	return &models.ExtractedDocument{Pages: []models.Page{
		{Number: 1, Text: "Claim 100 for patient A"},
		{Number: 2, Text: "Claim 100 continued", Tables: []string{"Table 1 (rows=1, cols=1)\nD0120"}},
	}}
}

func TestExtractCombinesRecordsAcrossPages(t *testing.T) {
	chat := &fakeChat{responses: []string{
		`{"Records":[{"Claim":{"ClaimNum":{"value":"100"}},"Procs":[{"code":"D0120"}]}]}`,
		`{"Records":[{"Claim":{"ClaimNum":{"value":"100"}},"Procs":[{"code":"D1110"}]}],"WarningCodes":["LOW_CONFIDENCE"]}`,
	}}

	e := New(chat, extractionConfig(), 4096, zap.NewNop())
	result, err := e.Extract(context.Background(), twoPageDoc(), "")
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Len(t, result.Records[0]["Procs"], 2)
	assert.Equal(t, []string{"LOW_CONFIDENCE"}, result.WarningCodes)
	assert.Greater(t, result.TotalTokens, 4000)
}

func TestExtractCarriesRollingContext(t *testing.T) {
	first := `{"Records":[{"Claim":{"ClaimNum":{"value":"7"}}}]}`
	chat := &fakeChat{responses: []string{first, `{"Records":[]}`}}

	e := New(chat, extractionConfig(), 4096, zap.NewNop())
	_, err := e.Extract(context.Background(), twoPageDoc(), "")
	require.NoError(t, err)

	require.Len(t, chat.requests, 2)
	assert.NotContains(t, chat.requests[0].Messages[1].Content, first)
	assert.Contains(t, chat.requests[1].Messages[1].Content, first)
}

func TestExtractInjectsProviderOverride(t *testing.T) {
	chat := &fakeChat{responses: []string{`{"Records":[]}`}}

	e := New(chat, extractionConfig(), 4096, zap.NewNop())
	_, err := e.Extract(context.Background(), &models.ExtractedDocument{
		Pages: []models.Page{{Number: 1, Text: "text"}},
	}, "Mutual of Omaha")
	require.NoError(t, err)

	require.Len(t, chat.requests, 1)
	assert.Contains(t, chat.requests[0].Messages[1].Content, "Mutual of Omaha")
}

func TestExtractForcesTheExtractionFunction(t *testing.T) {
	chat := &fakeChat{responses: []string{`{"Records":[]}`}}

	e := New(chat, extractionConfig(), 4096, zap.NewNop())
	_, err := e.Extract(context.Background(), &models.ExtractedDocument{
		Pages: []models.Page{{Number: 1, Text: "text"}},
	}, "")
	require.NoError(t, err)

	req := chat.requests[0]
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "extract_eob_fields", req.Tools[0].Function.Name)
	assert.Contains(t, string(req.ToolChoice), "extract_eob_fields")
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "Extract EOB fields.", req.Messages[0].Content)
}

func TestExtractSchemaValidationFailure(t *testing.T) {
	for name, blob := range map[string]string{
		"not json":     `not json at all`,
		"missing keys": `{"Fields":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			chat := &fakeChat{responses: []string{blob}}
			e := New(chat, extractionConfig(), 4096, zap.NewNop())

			_, err := e.Extract(context.Background(), &models.ExtractedDocument{
				Pages: []models.Page{{Number: 1, Text: "text"}},
			}, "")
			require.Error(t, err)
			assert.Equal(t, errors.ErrSchemaValidation.Code, errors.GetCode(err))
		})
	}
}

func TestExtractServiceFailure(t *testing.T) {
	chat := &fakeChat{err: fmt.Errorf("connection reset")}
	e := New(chat, extractionConfig(), 4096, zap.NewNop())

	_, err := e.Extract(context.Background(), &models.ExtractedDocument{
		Pages: []models.Page{{Number: 1, Text: "text"}},
	}, "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrLlmService.Code, errors.GetCode(err))
}

func TestExtractSkipsEmptyPages(t *testing.T) {
	chat := &fakeChat{responses: []string{`{"Records":[]}`}}
	e := New(chat, extractionConfig(), 4096, zap.NewNop())

	result, err := e.Extract(context.Background(), &models.ExtractedDocument{
		Pages: []models.Page{{Number: 1}, {Number: 2}},
	}, "")
	require.NoError(t, err)
	assert.Empty(t, chat.requests)
	assert.Empty(t, result.Records)
}

func TestRenderPage(t *testing.T) {
	payload := renderPage(models.Page{
		Number: 3,
		Text:   "some text",
		Tables: []string{"Table 1", "Table 2"},
	})

	assert.Contains(t, payload, "PAGE_NUMBER: 3")
	assert.Contains(t, payload, "TEXT:\nsome text")
	assert.Contains(t, payload, "TABLES:\nTable 1\n\nTable 2")
}
