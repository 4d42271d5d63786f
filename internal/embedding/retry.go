package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxAttempts is the number of tries before giving up.
	DefaultMaxAttempts = 3

	// DefaultBackoff is the initial delay between attempts; it doubles
	// after each failure.
	DefaultBackoff = 500 * time.Millisecond
)

// Retrying wraps a Provider with bounded exponential backoff. After the
// attempts are exhausted the last error is surfaced wrapped in
// ErrProviderUnavailable so callers can switch to degraded behavior.
type Retrying struct {
	inner       Provider
	maxAttempts int
	backoff     time.Duration
}

// RetryOption configures a Retrying provider.
type RetryOption func(*Retrying)

// WithMaxAttempts sets the number of tries per call.
func WithMaxAttempts(n int) RetryOption {
	return func(r *Retrying) {
		r.maxAttempts = n
	}
}

// WithBackoff sets the initial delay between attempts.
func WithBackoff(d time.Duration) RetryOption {
	return func(r *Retrying) {
		r.backoff = d
	}
}

// NewRetrying wraps a provider with retry behavior.
func NewRetrying(inner Provider, opts ...RetryOption) *Retrying {
	r := &Retrying{
		inner:       inner,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Embed generates an embedding, retrying transient failures.
func (r *Retrying) Embed(ctx context.Context, text string) (Embedding, error) {
	var emb Embedding
	err := r.retry(ctx, func() error {
		var inner error
		emb, inner = r.inner.Embed(ctx, text)
		return inner
	})
	return emb, err
}

// EmbedBatch generates embeddings, retrying the whole batch on failure.
// Order is preserved by the inner provider.
func (r *Retrying) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	var embs []Embedding
	err := r.retry(ctx, func() error {
		var inner error
		embs, inner = r.inner.EmbedBatch(ctx, texts)
		return inner
	})
	return embs, err
}

// ModelName returns the inner provider's model name.
func (r *Retrying) ModelName() string {
	return r.inner.ModelName()
}

// Dimensions returns the inner provider's vector dimensions.
func (r *Retrying) Dimensions() int {
	return r.inner.Dimensions()
}

// retry runs fn up to maxAttempts times with doubling backoff. Context
// cancellation aborts immediately and is returned as-is.
func (r *Retrying) retry(ctx context.Context, fn func() error) error {
	delay := r.backoff
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if attempt == r.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return fmt.Errorf("%w: %d attempts failed: %v", ErrProviderUnavailable, r.maxAttempts, lastErr)
}
