// Package ocr wraps the remote document-intelligence service.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/opendental/eob-processor/internal/config"
	"github.com/opendental/eob-processor/internal/errors"
	"github.com/opendental/eob-processor/internal/models"
)

// Client submits documents to the recognition service and polls the
// returned operation until it completes.
type Client struct {
	cfg     config.OCRConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*analyzeResult]
	logger  *zap.Logger
}

func NewClient(cfg config.OCRConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60
	}

	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker[*analyzeResult](gobreaker.Settings{
			Name:    "ocr",
			Timeout: 30 * time.Second,
		}),
		logger: logger,
	}
}

type analyzeResponse struct {
	Status        string         `json:"status"`
	AnalyzeResult *analyzeResult `json:"analyzeResult"`
	Error         *serviceError  `json:"error"`
}

type serviceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type analyzeResult struct {
	Pages  []analyzePage  `json:"pages"`
	Tables []analyzeTable `json:"tables"`
}

type analyzePage struct {
	PageNumber int    `json:"pageNumber"`
	Words      []word `json:"words"`
}

type word struct {
	Content string `json:"content"`
}

type analyzeTable struct {
	RowCount        int              `json:"rowCount"`
	ColumnCount     int              `json:"columnCount"`
	Cells           []tableCell      `json:"cells"`
	BoundingRegions []boundingRegion `json:"boundingRegions"`
}

type tableCell struct {
	RowIndex    int    `json:"rowIndex"`
	ColumnIndex int    `json:"columnIndex"`
	Content     string `json:"content"`
}

type boundingRegion struct {
	PageNumber int `json:"pageNumber"`
}

// Recognize runs layout analysis over the document bytes. Text keeps
// the service's native reading order; no local reordering is applied.
func (c *Client) Recognize(ctx context.Context, document []byte) (*models.ExtractedDocument, error) {
	result, err := c.breaker.Execute(func() (*analyzeResult, error) {
		return c.analyze(ctx, document)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrOcrService.Code, "layout analysis failed")
	}
	return assemble(result), nil
}

func (c *Client) analyze(ctx context.Context, document []byte) (*analyzeResult, error) {
	opLocation, err := c.submit(ctx, document)
	if err != nil {
		return nil, err
	}
	return c.poll(ctx, opLocation)
}

func (c *Client) submit(ctx context.Context, document []byte) (string, error) {
	url := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s",
		c.cfg.Endpoint, c.cfg.Model, c.cfg.APIVersion)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("analyze rejected (status %d): %s", resp.StatusCode, string(body))
	}

	opLocation := resp.Header.Get("Operation-Location")
	if opLocation == "" {
		return "", fmt.Errorf("analyze response missing Operation-Location")
	}
	return opLocation, nil
}

func (c *Client) poll(ctx context.Context, opLocation string) (*analyzeResult, error) {
	interval := time.Duration(c.cfg.PollInterval) * time.Second
	maxPolls := c.cfg.MaxPolls
	if maxPolls == 0 {
		maxPolls = 60
	}

	for attempt := 0; attempt < maxPolls; attempt++ {
		status, err := c.fetchOperation(ctx, opLocation)
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case "succeeded":
			if status.AnalyzeResult == nil {
				return nil, fmt.Errorf("operation succeeded without a result")
			}
			return status.AnalyzeResult, nil
		case "failed":
			if status.Error != nil {
				return nil, fmt.Errorf("analysis failed: %s: %s", status.Error.Code, status.Error.Message)
			}
			return nil, fmt.Errorf("analysis failed")
		}

		c.logger.Debug("Waiting for analysis", zap.String("status", status.Status), zap.Int("attempt", attempt))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	return nil, fmt.Errorf("analysis did not complete after %d polls", maxPolls)
}

func (c *Client) fetchOperation(ctx context.Context, opLocation string) (*analyzeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", opLocation, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to poll operation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("poll error (status %d): %s", resp.StatusCode, string(body))
	}

	var status analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode operation status: %w", err)
	}
	return &status, nil
}
