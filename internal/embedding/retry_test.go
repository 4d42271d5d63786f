package embedding

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakyProvider fails the first failures calls, then succeeds.
type flakyProvider struct {
	failures int
	calls    int
}

func (f *flakyProvider) Embed(ctx context.Context, text string) (Embedding, error) {
	f.calls++
	if f.calls <= f.failures {
		return Embedding{}, errors.New("connection refused")
	}
	return Embedding{Vector: []float32{1, 2, 3}}, nil
}

func (f *flakyProvider) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection refused")
	}
	out := make([]Embedding, len(texts))
	for i := range texts {
		out[i] = Embedding{Vector: []float32{float32(i)}}
	}
	return out, nil
}

func (f *flakyProvider) ModelName() string { return "flaky-model" }
func (f *flakyProvider) Dimensions() int   { return 3 }

func TestRetrying_SucceedsAfterFailures(t *testing.T) {
	inner := &flakyProvider{failures: 2}
	r := NewRetrying(inner, WithMaxAttempts(3), WithBackoff(time.Millisecond))

	emb, err := r.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed() failed: %v", err)
	}
	if emb.Dimensions() != 3 {
		t.Errorf("Dimensions() = %d, want 3", emb.Dimensions())
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls)
	}
}

func TestRetrying_ExhaustsAttempts(t *testing.T) {
	inner := &flakyProvider{failures: 10}
	r := NewRetrying(inner, WithMaxAttempts(3), WithBackoff(time.Millisecond))

	_, err := r.Embed(context.Background(), "text")
	if err == nil {
		t.Fatal("Embed() should fail after exhausting attempts")
	}
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("error should wrap ErrProviderUnavailable, got: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls)
	}
}

func TestRetrying_ContextCancellationStops(t *testing.T) {
	inner := &flakyProvider{failures: 10}
	r := NewRetrying(inner, WithMaxAttempts(5), WithBackoff(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Embed(ctx, "text")
	if err == nil {
		t.Fatal("Embed() should fail with canceled context")
	}
	if errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("cancellation should not be reported as provider unavailability: %v", err)
	}
	// One attempt runs, then the backoff select observes the cancellation.
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestRetrying_BatchDelegates(t *testing.T) {
	inner := &flakyProvider{failures: 1}
	r := NewRetrying(inner, WithMaxAttempts(2), WithBackoff(time.Millisecond))

	embs, err := r.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch() failed: %v", err)
	}
	if len(embs) != 2 {
		t.Fatalf("got %d embeddings, want 2", len(embs))
	}
	if embs[0].Vector[0] != 0 || embs[1].Vector[0] != 1 {
		t.Error("batch order not preserved through retry wrapper")
	}
}

func TestRetrying_PassesThroughMetadata(t *testing.T) {
	r := NewRetrying(&flakyProvider{})
	if r.ModelName() != "flaky-model" {
		t.Errorf("ModelName() = %q, want flaky-model", r.ModelName())
	}
	if r.Dimensions() != 3 {
		t.Errorf("Dimensions() = %d, want 3", r.Dimensions())
	}
}

func TestRetrying_ImplementsProvider(t *testing.T) {
	var _ Provider = (*Retrying)(nil)
}
