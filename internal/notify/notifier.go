// Package notify posts the run outcome to the downstream postprocess
// function.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opendental/eob-processor/internal/config"
	"github.com/opendental/eob-processor/internal/errors"
	"github.com/opendental/eob-processor/internal/models"
)

// Notifier invokes the downstream function by URL. Failures are
// non-fatal to the pipeline; callers log and count them.
type Notifier struct {
	cfg    config.NotifyConfig
	client *http.Client
}

func New(cfg config.NotifyConfig) *Notifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30
	}
	return &Notifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
}

// Enabled reports whether a downstream function is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.FunctionURL != ""
}

// Notify sends the event payload. A missing configuration is a no-op.
func (n *Notifier) Notify(ctx context.Context, payload models.EventPayload) error {
	if !n.Enabled() {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrNotifyFailed.Code, "failed to marshal event payload")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.cfg.FunctionURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.ErrNotifyFailed.Code, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrNotifyFailed.Code, "failed to invoke downstream function")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return errors.New(errors.ErrNotifyFailed.Code,
			fmt.Sprintf("downstream function returned status %d: %s", resp.StatusCode, string(respBody)))
	}
	return nil
}
