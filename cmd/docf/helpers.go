package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/docs"
	"github.com/docfoundry/docfoundry/internal/embedding"
	"github.com/docfoundry/docfoundry/internal/search"
	"github.com/docfoundry/docfoundry/internal/store"
)

// mustFindCorpus locates the corpus root or exits.
func mustFindCorpus() string {
	start, exitCode := getCorpusRoot()
	if exitCode != 0 {
		os.Exit(exitCode)
	}

	root, err := config.FindCorpus(start)
	if err != nil {
		exitWithError(ExitConfigError, "%v\n\nRun 'docf init <name>' to create a corpus.", err)
	}
	return root
}

// mustLoadConfig loads the project configuration or exits.
func mustLoadConfig(root string) *config.ProjectConfig {
	cfg, err := config.Load(root)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// mustOpenStore opens the corpus database or exits.
func mustOpenStore(root string) *store.Store {
	s, err := store.Open(config.DBPath(root))
	if err != nil {
		exitWithError(ExitError, "opening corpus database: %v", err)
	}
	return s
}

// newOllamaProvider builds the Ollama adapter for the configured model.
// DOCF_OLLAMA_URL overrides the default endpoint.
func newOllamaProvider(cfg *config.ProjectConfig) *embedding.OllamaProvider {
	opts := []embedding.OllamaOption{
		embedding.WithModel(cfg.EmbeddingModel),
		embedding.WithDimensions(cfg.EmbeddingDimension),
	}
	if url := os.Getenv("DOCF_OLLAMA_URL"); url != "" {
		opts = append(opts, embedding.WithBaseURL(url))
	}
	return embedding.NewOllamaProvider(opts...)
}

// mustProvider checks Ollama and the configured model, then wraps the
// adapter with retries. Exits when the backend is unusable.
func mustProvider(ctx context.Context, cfg *config.ProjectConfig) embedding.Provider {
	ollama := newOllamaProvider(cfg)
	if err := ollama.IsAvailable(ctx); err != nil {
		exitWithError(ExitOllamaError, "Ollama is not running\n\nStart Ollama with 'ollama serve' or install from https://ollama.ai")
	}
	hasModel, err := ollama.HasModel(ctx)
	if err != nil {
		exitWithError(ExitError, "checking model availability: %v", err)
	}
	if !hasModel {
		exitWithError(ExitModelNotFound, "Embedding model '%s' not found\n\nRun 'ollama pull %s' to download it.", cfg.EmbeddingModel, cfg.EmbeddingModel)
	}
	return embedding.NewRetrying(ollama)
}

// searchProvider returns the embedding provider for query commands. When
// Ollama is unreachable it hands back a single-attempt provider anyway, so
// the engine can degrade to keyword-only search instead of failing.
func searchProvider(ctx context.Context, cfg *config.ProjectConfig) embedding.Provider {
	ollama := newOllamaProvider(cfg)
	if err := ollama.IsAvailable(ctx); err != nil {
		if humanOutput {
			fmt.Fprintln(os.Stderr, "warning: Ollama unreachable, falling back to keyword search")
		}
		return embedding.NewRetrying(ollama, embedding.WithMaxAttempts(1))
	}
	return embedding.NewRetrying(ollama)
}

// mustService wires the store, query engine and retrieval facade for a
// corpus. The caller closes the returned store.
func mustService(ctx context.Context, root string) (*docs.Service, *store.Store, *config.ProjectConfig) {
	cfg := mustLoadConfig(root)
	s := mustOpenStore(root)

	engine, err := search.New(s, searchProvider(ctx, cfg), cfg)
	if err != nil {
		s.Close()
		exitOnStoreError(err)
	}
	return docs.New(s, engine, cfg), s, cfg
}

// mustReadOnlyService wires the store and facade without an embedding
// provider, for commands that never embed (load, list, status).
func mustReadOnlyService(root string) (*docs.Service, *store.Store, *config.ProjectConfig) {
	cfg := mustLoadConfig(root)
	s := mustOpenStore(root)
	return docs.New(s, nil, cfg), s, cfg
}

// exitOnStoreError maps store errors to exit codes and exits.
func exitOnStoreError(err error) {
	var mismatch *store.ConfigMismatchError
	switch {
	case errors.As(err, &mismatch):
		exitWithError(ExitConfigMismatch, "%v", err)
	case errors.Is(err, store.ErrProjectNotFound):
		exitWithError(ExitConfigError, "%v\n\nRun 'docf index' to populate the corpus.", err)
	default:
		exitWithError(ExitError, "%v", err)
	}
}
