// Package fx holds the single canonical reservation-cost conversion. Every
// caller that needs a CLP amount goes through Converter.ToCLP; there are no
// per-handler copies with divergent rounding.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	stderrors "errors"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/redis"
	pkgerrors "github.com/DanteArenas/iic2173-backend-grupo-9/pkg/errors"
	"github.com/DanteArenas/iic2173-backend-grupo-9/pkg/retry"
)

const ufCacheTTL = 12 * time.Hour

// Converter turns listing prices into whole CLP amounts. UF month values are
// fetched from the indicator API and cached with a TTL in the injected cache;
// a stale cached month is better than no conversion when the API is down.
type Converter struct {
	apiURL     string
	cache      redis.Cache
	httpClient *http.Client
	retryOpts  retry.Options
}

func NewConverter(apiURL string, cache redis.Cache, retryOpts retry.Options) *Converter {
	return &Converter{
		apiURL:     apiURL,
		cache:      cache,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		retryOpts:  retryOpts,
	}
}

// ToCLP converts price in the given currency to whole pesos. CLP (and the
// bare "$" some feeds send) passes through rounded. UF uses the month value
// at the listing timestamp. Unknown currencies are not convertible.
func (c *Converter) ToCLP(ctx context.Context, price float64, currency, timestamp string) (int64, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, fmt.Errorf("%w: price must be a positive number", pkgerrors.ErrValidation)
	}

	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case "CLP", "$", "":
		return int64(math.Round(price)), nil
	case "UF":
		uf, err := c.ufValue(ctx, timestamp)
		if err != nil {
			return 0, err
		}
		return int64(math.Round(price * uf)), nil
	default:
		return 0, fmt.Errorf("%w: %q", pkgerrors.ErrUnknownCurrency, currency)
	}
}

func (c *Converter) ufValue(ctx context.Context, timestamp string) (float64, error) {
	key := "uf:" + monthKey(timestamp)

	if cached, err := c.cache.Get(ctx, key); err == nil {
		if v, err := strconv.ParseFloat(cached, 64); err == nil && v > 0 {
			return v, nil
		}
	} else if !stderrors.Is(err, redis.ErrKeyNotFound) {
		slog.Warn("UF cache read failed", "key", key, "error", err)
	}

	values, err := c.fetchIndicator(ctx)
	if err != nil {
		return 0, err
	}

	for month, value := range values {
		if err := c.cache.Set(ctx, "uf:"+month, strconv.FormatFloat(value, 'f', -1, 64), ufCacheTTL); err != nil {
			slog.Warn("UF cache write failed", "month", month, "error", err)
		}
	}

	if v, ok := values[monthKey(timestamp)]; ok {
		return v, nil
	}
	// The API serves a rolling window; fall back to the newest month rather
	// than failing the purchase.
	var latestMonth string
	var latest float64
	for month, value := range values {
		if month > latestMonth {
			latestMonth, latest = month, value
		}
	}
	if latest > 0 {
		return latest, nil
	}
	return 0, fmt.Errorf("%w: UF value unavailable", pkgerrors.ErrUpstream)
}

func (c *Converter) fetchIndicator(ctx context.Context) (map[string]float64, error) {
	var payload struct {
		Serie []struct {
			Fecha string  `json:"fecha"`
			Valor float64 `json:"valor"`
		} `json:"serie"`
	}

	opts := c.retryOpts
	opts.OnAttempt = func(a retry.Attempt) {
		slog.Warn("retrying UF indicator fetch", "attempt", a.Number, "next_delay", a.Delay, "error", a.Err)
	}

	err := retry.Do(ctx, func(ctx context.Context, attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("UF API responded with status %d", resp.StatusCode)
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &payload)
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: UF API unreachable: %v", pkgerrors.ErrUpstream, err)
	}

	values := make(map[string]float64)
	for _, entry := range payload.Serie {
		if entry.Valor <= 0 || entry.Fecha == "" {
			continue
		}
		month := monthKey(entry.Fecha)
		if _, seen := values[month]; !seen {
			values[month] = entry.Valor
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: UF API payload contained no usable entries", pkgerrors.ErrUpstream)
	}
	return values, nil
}

// monthKey renders YYYY-MM for the given timestamp, defaulting to the
// current month when the timestamp does not parse.
func monthKey(timestamp string) string {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		t = time.Now().UTC()
	}
	return t.UTC().Format("2006-01")
}
