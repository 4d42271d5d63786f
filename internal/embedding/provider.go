package embedding

import (
	"context"
	"errors"
)

// ErrProviderUnavailable indicates the embedding backend could not be
// reached after retries. Callers should degrade (keyword-only search) or
// retry the whole operation rather than treat results as empty.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")

// Provider generates embeddings from text. A Provider instance is constructed
// once per project configuration and shared by the indexer and query engine;
// the same input always yields the same vector for a fixed configuration.
type Provider interface {
	// Embed generates an embedding for the given text.
	Embed(ctx context.Context, text string) (Embedding, error)

	// EmbedBatch generates embeddings for multiple texts. The result order
	// matches the input order exactly; batching exists purely for throughput.
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Dimensions returns the expected vector dimensions.
	Dimensions() int
}
