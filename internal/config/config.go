// Package config handles corpus configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfig describes a documentation corpus and the embedding
// configuration it was indexed with. Model and dimension are fixed for the
// lifetime of a project; changing them requires a full re-index.
type ProjectConfig struct {
	Name               string `yaml:"name"`
	RootURL            string `yaml:"root_url,omitempty"`
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingDimension int    `yaml:"embedding_dimension"`

	// SimilarityThreshold is the minimum score a search match must reach.
	// Matches below it feed category suggestions instead of results.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// HybridAlpha weights vector similarity against keyword overlap:
	// score = alpha*vector + (1-alpha)*keyword. 1.0 disables keyword blending.
	HybridAlpha float64 `yaml:"hybrid_alpha"`

	// DedupThreshold is the shingle-overlap ratio above which two sections
	// of the same document are considered restatements and merged.
	DedupThreshold float64 `yaml:"dedup_threshold"`

	// MaxSectionSize is the target maximum section length in characters.
	// A section holding an unsplittable code fence may exceed it.
	MaxSectionSize int `yaml:"max_section_size"`

	// MaxSectionMatches is the number of supporting section matches
	// attached to each document in search results.
	MaxSectionMatches int `yaml:"max_section_matches"`
}

const (
	FoundryDir = ".docfoundry"
	ConfigFile = "config.yml"
	DBFile     = "corpus.db"

	DefaultEmbeddingModel     = "all-minilm:l6-v2"
	DefaultEmbeddingDimension = 384

	DefaultSimilarityThreshold = 0.35
	DefaultHybridAlpha         = 0.7
	DefaultDedupThreshold      = 0.82
	DefaultMaxSectionSize      = 2000
	DefaultMaxSectionMatches   = 3
)

// Default returns a ProjectConfig with documented defaults for the
// given project name.
func Default(name string) *ProjectConfig {
	return &ProjectConfig{
		Name:                name,
		EmbeddingModel:      DefaultEmbeddingModel,
		EmbeddingDimension:  DefaultEmbeddingDimension,
		SimilarityThreshold: DefaultSimilarityThreshold,
		HybridAlpha:         DefaultHybridAlpha,
		DedupThreshold:      DefaultDedupThreshold,
		MaxSectionSize:      DefaultMaxSectionSize,
		MaxSectionMatches:   DefaultMaxSectionMatches,
	}
}

// Validate checks that the configuration is internally consistent.
func (c *ProjectConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("project name is required")
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("embedding_model is required")
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("embedding_dimension must be positive, got %d", c.EmbeddingDimension)
	}
	if c.HybridAlpha < 0 || c.HybridAlpha > 1 {
		return fmt.Errorf("hybrid_alpha must be in [0,1], got %g", c.HybridAlpha)
	}
	if c.DedupThreshold <= 0 || c.DedupThreshold > 1 {
		return fmt.Errorf("dedup_threshold must be in (0,1], got %g", c.DedupThreshold)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %g", c.SimilarityThreshold)
	}
	if c.MaxSectionSize <= 0 {
		return fmt.Errorf("max_section_size must be positive, got %d", c.MaxSectionSize)
	}
	return nil
}

// FoundryPath returns the path to the .docfoundry directory from a root path.
func FoundryPath(root string) string {
	return filepath.Join(root, FoundryDir)
}

// ConfigPath returns the path to config.yml from a root path.
func ConfigPath(root string) string {
	return filepath.Join(root, FoundryDir, ConfigFile)
}

// DBPath returns the path to the corpus database from a root path.
func DBPath(root string) string {
	return filepath.Join(root, FoundryDir, DBFile)
}

// IsCorpus checks if the given path contains a docfoundry corpus.
func IsCorpus(root string) bool {
	info, err := os.Stat(FoundryPath(root))
	return err == nil && info.IsDir()
}

// FindCorpus walks up from the given path to find a docfoundry corpus.
// Returns the corpus root path or an error if not found.
func FindCorpus(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if IsCorpus(abs) {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("not in a docfoundry corpus (no %s directory found)", FoundryDir)
		}
		abs = parent
	}
}

// Load reads the project configuration from the corpus at the given root.
func Load(root string) (*ProjectConfig, error) {
	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes the project configuration to the corpus at the given root.
func (c *ProjectConfig) Save(root string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(FoundryPath(root), 0755); err != nil {
		return fmt.Errorf("creating corpus directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}
