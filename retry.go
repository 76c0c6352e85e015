package mnemon

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

const (
	retryInitialDelay = time.Second
	retryBase         = 2.0
	retryMaxAttempts  = 20
)

// RetryProvider wraps a Provider with exponential backoff on rate-limit
// responses. Only HTTP 429 is retried; every other failure propagates
// immediately.
type RetryProvider struct {
	inner  Provider
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

var _ Provider = (*RetryProvider)(nil)

// NewRetryProvider wraps inner with 429 backoff.
func NewRetryProvider(inner Provider, logger *slog.Logger) *RetryProvider {
	if logger == nil {
		logger = nopLogger()
	}
	return &RetryProvider{inner: inner, logger: logger, sleep: sleepCtx}
}

func (r *RetryProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	delay := retryInitialDelay
	var lastErr error
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		resp, err := r.inner.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		var he *ErrHTTP
		if !errors.As(err, &he) || he.Status != http.StatusTooManyRequests {
			return ChatResponse{}, err
		}
		lastErr = err
		// Full jitter over the current window.
		wait := delay + time.Duration(rand.Int63n(int64(delay)))
		r.logger.Warn("rate limited, backing off",
			"attempt", attempt+1, "wait", wait)
		if err := r.sleep(ctx, wait); err != nil {
			return ChatResponse{}, err
		}
		delay = time.Duration(float64(delay) * retryBase)
	}
	return ChatResponse{}, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
