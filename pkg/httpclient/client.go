// Package httpclient provides the HTTP transport shared by every pkg/llms
// provider adapter: retry with exponential backoff, rate-limit header
// parsing, and a uniform mapping of transport failures onto perrors.Kind.
// Grounded on hector/pkg/httpclient/client.go's strategy/backoff shape.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/penguin-run/penguin/pkg/perrors"
)

// Strategy classifies how a failed response should be retried.
type Strategy int

const (
	// NoRetry means the response/error is terminal.
	NoRetry Strategy = iota
	// ConservativeRetry applies a small fixed number of short, fixed delays.
	ConservativeRetry
	// SmartRetry honors rate-limit headers and falls back to exponential
	// backoff with jitter.
	SmartRetry
)

// RateLimitInfo is what a HeaderParser extracts from a provider's response
// headers to drive SmartRetry delay calculation.
type RateLimitInfo struct {
	RetryAfter time.Duration
	ResetUnix  int64
}

// HeaderParser extracts rate-limit info from provider-specific headers.
// See parsers.go for the Anthropic/OpenAI/Gemini implementations.
type HeaderParser func(http.Header) RateLimitInfo

// StrategyFunc maps an HTTP status code to a Strategy. DefaultStrategyFunc
// is used unless overridden.
type StrategyFunc func(statusCode int) Strategy

// Client wraps http.Client with the retry/backoff policy described in
// spec.md §5 ("Global outbound HTTP connection pool per provider").
type Client struct {
	http         *http.Client
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	headerParser HeaderParser
	strategyFunc StrategyFunc
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }
func WithMaxRetries(n int) Option          { return func(cl *Client) { cl.maxRetries = n } }
func WithBaseDelay(d time.Duration) Option { return func(cl *Client) { cl.baseDelay = d } }
func WithMaxDelay(d time.Duration) Option  { return func(cl *Client) { cl.maxDelay = d } }
func WithHeaderParser(p HeaderParser) Option {
	return func(cl *Client) { cl.headerParser = p }
}
func WithStrategyFunc(f StrategyFunc) Option { return func(cl *Client) { cl.strategyFunc = f } }
func WithLogger(l *slog.Logger) Option       { return func(cl *Client) { cl.logger = l } }

// New builds a Client. Defaults: 120s request timeout (spec.md §5 "Gateway
// default request timeout: 120s"), 3 retries, 1s base delay doubling, 30s cap.
func New(opts ...Option) *Client {
	c := &Client{
		http:         &http.Client{Timeout: 120 * time.Second},
		maxRetries:   3,
		baseDelay:    1 * time.Second,
		maxDelay:     30 * time.Second,
		strategyFunc: DefaultStrategyFunc,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultStrategyFunc classifies retryability by HTTP status code.
func DefaultStrategyFunc(statusCode int) Strategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// Do executes req with retry/backoff, reading and buffering the body so it
// can be replayed across attempts. On exhaustion it returns a classified
// *perrors.RateLimitError or *perrors.NetworkError so pkg/engine's retry
// policy (spec.md §4.10) can act on the Kind without inspecting status codes.
func (c *Client) Do(ctx context.Context, req *http.Request, component string) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, perrors.NewNetworkError(component, "reading request body", err)
		}
		req.Body.Close()
		bodyBytes = b
	}

	var lastResp *http.Response
	var lastErr error
	var lastStrategy Strategy
	var lastInfo RateLimitInfo

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, perrors.NewInterruptedError(component, "request cancelled")
		}
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := c.http.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			lastStrategy = ConservativeRetry
			lastInfo = RateLimitInfo{}
		} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		} else {
			lastResp = resp
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			lastStrategy = c.strategyFunc(resp.StatusCode)
			if c.headerParser != nil {
				lastInfo = c.headerParser(resp.Header)
			}
		}

		if lastStrategy == NoRetry {
			break
		}
		if attempt >= c.maxRetries {
			break
		}

		delay := c.delayFor(lastStrategy, attempt, lastInfo)
		if delay <= 0 {
			break
		}
		c.logger.Info("httpclient: retrying", "component", component, "attempt", attempt+1, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, perrors.NewInterruptedError(component, "request cancelled during backoff")
		case <-timer.C:
		}
	}

	if lastResp != nil && lastResp.StatusCode == http.StatusTooManyRequests {
		return lastResp, perrors.NewRateLimitError(component, lastErr.Error(), lastInfo.RetryAfter, lastErr)
	}
	return lastResp, perrors.NewNetworkError(component, "request failed after retries", lastErr)
}

func (c *Client) delayFor(strategy Strategy, attempt int, info RateLimitInfo) time.Duration {
	switch strategy {
	case SmartRetry:
		if info.RetryAfter > 0 {
			return info.RetryAfter
		}
		if info.ResetUnix > 0 {
			if d := time.Until(time.Unix(info.ResetUnix, 0)); d > 0 {
				return min(d, c.maxDelay)
			}
		}
		delay := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.2)
		return min(delay+jitter, c.maxDelay)
	case ConservativeRetry:
		if attempt >= 2 {
			return 0
		}
		return time.Duration(attempt+1) * c.baseDelay
	default:
		return 0
	}
}
