// Package invoice triggers the external invoice renderer for accepted
// purchases. Strictly best-effort: a failure here is logged by the caller and
// never rolls back or delays the ledger.
package invoice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/models"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
	"github.com/DanteArenas/iic2173-backend-grupo-9/pkg/retry"
)

type Generator interface {
	Generate(ctx context.Context, req *models.Request) (string, error)
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	retryOpts  retry.Options
}

func NewClient(endpoint string, retryOpts retry.Options) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retryOpts:  retryOpts,
	}
}

// Generate asks the renderer for an invoice and returns its URL.
func (c *Client) Generate(ctx context.Context, req *models.Request) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("%w: invoice endpoint not configured", pkgerrors.ErrUpstream)
	}

	body, err := json.Marshal(map[string]any{
		"request_id":   req.RequestID,
		"buy_order":    req.BuyOrder,
		"user_id":      req.UserID,
		"property_url": req.PropertyURL,
		"amount_clp":   req.AmountCLP,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal invoice request: %v", pkgerrors.ErrInternal, err)
	}

	var result struct {
		URL string `json:"url"`
	}

	opts := c.retryOpts
	opts.OnAttempt = func(a retry.Attempt) {
		slog.Warn("retrying invoice generation",
			"request_id", req.RequestID,
			"attempt", a.Number,
			"next_delay", a.Delay,
			"error", a.Err)
	}

	err = retry.Do(ctx, func(ctx context.Context, attempt int) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("invoice renderer responded %d: %s", resp.StatusCode, raw)
		}
		return json.Unmarshal(raw, &result)
	}, opts)
	if err != nil {
		return "", fmt.Errorf("%w: invoice renderer unreachable: %v", pkgerrors.ErrUpstream, err)
	}
	return result.URL, nil
}
