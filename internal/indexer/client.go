// Package indexer fetches pool liquidity distributions from the indexer API.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/rewired-gh/liqoracle/internal/models"
)

// ErrPoolNotFound is returned when the indexer does not know a pool.
var ErrPoolNotFound = errors.New("pool not found")

// Options configures a Client.
type Options struct {
	Timeout           time.Duration
	MaxRetries        int
	RetryDelayBase    time.Duration
	RequestsPerSecond float64
	// BreakerFailures is the number of consecutive failed fetches that opens
	// the circuit. Zero means 5.
	BreakerFailures uint32
	// BreakerTimeout is how long the circuit stays open. Zero means one minute.
	BreakerTimeout time.Duration
}

// Client provides access to the indexer API
type Client struct {
	baseURL        string
	httpClient     *http.Client
	limiter        *rate.Limiter
	breaker        *gobreaker.CircuitBreaker
	maxRetries     int
	retryDelayBase time.Duration
}

// Snapshot is one fetched distribution together with its pool metadata.
type Snapshot struct {
	Pool        models.Pool
	Observation models.Observation
}

// distributionResponse is the wire form of GET /pools/{id}/distribution.
// Liquidity values are decimal strings; they routinely exceed 64 bits.
type distributionResponse struct {
	PoolID      string   `json:"pool_id"`
	BlockNumber int64    `json:"block_number"`
	CurrentTick int64    `json:"current_tick"`
	StartTick   int64    `json:"start_tick"`
	EndTick     int64    `json:"end_tick"`
	TickSpacing int64    `json:"tick_spacing"`
	Liquidity   []string `json:"liquidity"`
}

// NewClient creates a new indexer client
func NewClient(baseURL string, opts Options) *Client {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout == 0 {
		opts.BreakerTimeout = time.Minute
	}

	failures := opts.BreakerFailures
	st := gobreaker.Settings{Name: "indexer"}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= failures }
	st.Timeout = opts.BreakerTimeout
	st.IsSuccessful = func(err error) bool {
		// an unknown pool is a caller problem, not an indexer outage
		return err == nil || errors.Is(err, ErrPoolNotFound)
	}

	return &Client{
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: opts.Timeout},
		limiter:        rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		breaker:        gobreaker.NewCircuitBreaker(st),
		maxRetries:     opts.MaxRetries,
		retryDelayBase: opts.RetryDelayBase,
	}
}

// BreakerState reports the circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// FetchDistribution retrieves the current liquidity distribution of a pool.
func (c *Client) FetchDistribution(ctx context.Context, poolID string) (*Snapshot, error) {
	u, err := url.JoinPath(c.baseURL, "pools", poolID, "distribution")
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, u)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch distribution for %s: %w", poolID, err)
	}
	resp := out.(*distributionResponse)

	if resp.PoolID != "" && resp.PoolID != poolID {
		return nil, fmt.Errorf("indexer returned pool %s, requested %s", resp.PoolID, poolID)
	}
	return toSnapshot(poolID, resp)
}

func (c *Client) fetch(ctx context.Context, u string) (*distributionResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body distributionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode distribution: %w", err)
	}
	return &body, nil
}

func toSnapshot(poolID string, resp *distributionResponse) (*Snapshot, error) {
	liquidity := make([]*big.Int, len(resp.Liquidity))
	for i, s := range resp.Liquidity {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("%w: liquidity %q at index %d is not a decimal integer", models.ErrInputShape, s, i)
		}
		liquidity[i] = v
	}

	dist, err := models.FromRange(liquidity, resp.StartTick, resp.EndTick, resp.TickSpacing)
	if err != nil {
		return nil, fmt.Errorf("invalid distribution for %s: %w", poolID, err)
	}

	return &Snapshot{
		Pool: models.Pool{ID: poolID, TickSpacing: resp.TickSpacing},
		Observation: models.Observation{
			PoolID:       poolID,
			BlockNumber:  resp.BlockNumber,
			CurrentTick:  resp.CurrentTick,
			Distribution: dist,
			ObservedAt:   time.Now(),
		},
	}, nil
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * c.retryDelayBase):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode >= 500:
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		case resp.StatusCode == http.StatusNotFound:
			_ = resp.Body.Close()
			return nil, ErrPoolNotFound
		case resp.StatusCode >= 400:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			_ = resp.Body.Close()
			return nil, fmt.Errorf("client error: %d: %s", resp.StatusCode, msg)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
