package domain

import (
	"context"
	"time"
)

// CacheError represents an error originating from the cache.
type CacheError string

func (e CacheError) Error() string {
	return string(e)
}

// ErrCacheMiss is returned when a key is not found in the cache.
const ErrCacheMiss = CacheError("cache: key not found")

// Cache defines the interface (port) for caching operations.
// Implementations of this interface are the adapters (e.g., RedisCacheAdapter).
type Cache interface {
	// Get retrieves an item from the cache.
	// It returns ErrCacheMiss if the key is not found.
	Get(ctx context.Context, key string) (string, error)

	// Set adds an item to the cache, overwriting an existing item if one exists.
	// If expiration is 0, the item is cached indefinitely (if supported by the adapter).
	Set(ctx context.Context, key string, value string, expiration time.Duration) error

	// Delete removes an item from the cache.
	// It should not return an error if the key is not found.
	Delete(ctx context.Context, key string) error

	// Ping checks the health of the cache service.
	Ping(ctx context.Context) error
}

// EmbeddingService defines the interface for generating text embeddings.
type EmbeddingService interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// KBCandidate is one passage returned by a knowledge base search, with its
// raw semantic similarity score in [0,1].
type KBCandidate struct {
	SourceID string
	Text     string
	Score    float64
}

// KnowledgeBaseIndex is the queryable reference corpus collaborator.
// Ingestion and embedding of the corpus happen elsewhere.
type KnowledgeBaseIndex interface {
	Search(ctx context.Context, query string, subject string, limit int) ([]KBCandidate, error)
}

// ScoringEngine is the opaque text-completion collaborator. The reply is
// free-form text expected to contain a JSON object; no schema is enforced
// upstream, so validation is the caller's job.
type ScoringEngine interface {
	Score(ctx context.Context, prompt string) (string, error)
}
