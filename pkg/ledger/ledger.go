// Package ledger archives accepted signals on an external durable store.
// Archival is best-effort: its outcome is appended to the reveal text and
// never gates the reveal itself.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/firstsignal/signalbot/pkg/config"
)

// Result is a single archive attempt's outcome. Skipped means no ledger is
// configured, which is distinct from a failed call.
type Result struct {
	Success   bool
	Skipped   bool
	Reference string
	Err       string
}

type Client struct {
	http    *resty.Client
	enabled bool
}

type storeRequest struct {
	SignalID string `json:"signal_id"`
	Message  string `json:"message"`
}

type storeResponse struct {
	Reference string `json:"reference"`
}

func NewClient(cfg config.LedgerConfig) *Client {
	if !cfg.Enabled {
		return &Client{enabled: false}
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	http := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(timeout)
	if cfg.APIKey != "" {
		http.SetAuthToken(cfg.APIKey)
	}

	return &Client{http: http, enabled: true}
}

// Store archives one message. Never returns an error: every failure mode is
// folded into the Result so callers cannot accidentally make it fatal.
func (c *Client) Store(ctx context.Context, signalID, message string) Result {
	if !c.enabled {
		return Result{Skipped: true}
	}

	var out storeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(storeRequest{SignalID: signalID, Message: message}).
		SetResult(&out).
		Post("/messages")
	if err != nil {
		return Result{Err: err.Error()}
	}
	if resp.IsError() {
		return Result{Err: fmt.Sprintf("ledger returned %s", resp.Status())}
	}

	return Result{Success: true, Reference: out.Reference}
}

// ShortRef abbreviates a reference for display.
func ShortRef(ref string) string {
	if len(ref) > 10 {
		return ref[:10] + "..."
	}
	return ref
}
