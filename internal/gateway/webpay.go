// Package gateway consumes the payment gateway as an opaque two-call
// service: create a transaction, then commit it with the token the gateway
// returns. Both calls are idempotent on retry.
package gateway

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

const transactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"

type CreateResult struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type CommitResult struct {
	Status       string `json:"status"`
	ResponseCode int    `json:"response_code"`
	BuyOrder     string `json:"buy_order"`
	SessionID    string `json:"session_id"`
	Amount       int64  `json:"amount"`
}

type Client interface {
	Create(ctx context.Context, buyOrder, sessionID string, amount int64, returnURL string) (*CreateResult, error)
	Commit(ctx context.Context, token string) (*CommitResult, error)
}

type WebpayClient struct {
	baseURL      string
	commerceCode string
	apiKey       string
	httpClient   *http.Client
	retryOpts    retry.Options
}

func NewWebpayClient(baseURL, commerceCode, apiKey string, retryOpts retry.Options) *WebpayClient {
	return &WebpayClient{
		baseURL:      baseURL,
		commerceCode: commerceCode,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		retryOpts:    retryOpts,
	}
}

func (c *WebpayClient) Create(ctx context.Context, buyOrder, sessionID string, amount int64, returnURL string) (*CreateResult, error) {
	if returnURL == "" {
		return nil, fmt.Errorf("%w: return URL is required", pkgerrors.ErrValidation)
	}

	body := map[string]any{
		"buy_order":  buyOrder,
		"session_id": sessionID,
		"amount":     amount,
		"return_url": returnURL,
	}

	var result CreateResult
	if err := c.do(ctx, http.MethodPost, transactionsPath, body, &result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, fmt.Errorf("%w: gateway returned no deposit token", pkgerrors.ErrUpstream)
	}

	slog.Info("gateway transaction created", "buy_order", buyOrder, "amount", amount)
	return &result, nil
}

func (c *WebpayClient) Commit(ctx context.Context, token string) (*CommitResult, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", pkgerrors.ErrValidation)
	}

	var result CommitResult
	if err := c.do(ctx, http.MethodPut, transactionsPath+"/"+token, nil, &result); err != nil {
		return nil, err
	}

	slog.Info("gateway transaction committed",
		"buy_order", result.BuyOrder,
		"status", result.Status,
		"response_code", result.ResponseCode)
	return &result, nil
}

func (c *WebpayClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshal gateway request: %v", pkgerrors.ErrInternal, err)
		}
	}

	opts := c.retryOpts
	opts.OnAttempt = func(a retry.Attempt) {
		slog.Warn("retrying gateway call",
			"method", method,
			"path", path,
			"attempt", a.Number,
			"next_delay", a.Delay,
			"error", a.Err)
	}

	var rejected error
	err := retry.Do(ctx, func(ctx context.Context, attempt int) error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Tbk-Api-Key-Id", c.commerceCode)
		req.Header.Set("Tbk-Api-Key-Secret", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("gateway responded %d: %s", resp.StatusCode, raw)
		}
		if resp.StatusCode >= 400 {
			// A 4xx repeats deterministically: record it and stop retrying.
			rejected = fmt.Errorf("gateway rejected request (%d): %s", resp.StatusCode, raw)
			return nil
		}
		return json.Unmarshal(raw, out)
	}, opts)
	if err != nil {
		return fmt.Errorf("%w: gateway unreachable: %v", pkgerrors.ErrUpstream, err)
	}
	if rejected != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrUpstream, rejected)
	}
	return nil
}

// MapStatus is the single place the gateway result is translated to a ledger
// state. Anything unrecognized is an ERROR, never silently accepted.
func MapStatus(result *CommitResult) models.RequestStatus {
	if result == nil {
		return models.RequestError
	}
	switch result.Status {
	case "AUTHORIZED":
		if result.ResponseCode == 0 {
			return models.RequestAccepted
		}
		return models.RequestRejected
	case "FAILED", "REVERSED":
		return models.RequestRejected
	case "ABORTED", "NULLIFIED":
		return models.RequestError
	default:
		return models.RequestError
	}
}

// Reason renders the human-readable reason recorded next to the mapped
// status.
func Reason(result *CommitResult) string {
	if result == nil {
		return "gateway returned no result"
	}
	if result.Status == "AUTHORIZED" && result.ResponseCode == 0 {
		return "Webpay payment approved"
	}
	return fmt.Sprintf("Webpay payment failed/rejected (Code: %d, Status: %s)", result.ResponseCode, result.Status)
}
