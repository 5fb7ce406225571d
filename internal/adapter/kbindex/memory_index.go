package kbindex

import (
	"context"
	"sort"

	"papergrade/internal/domain"
	"papergrade/internal/util"

	"go.uber.org/zap"
)

// Passage is one pre-embedded reference chunk of the knowledge base.
// Ingestion produces these elsewhere; this adapter only queries them.
type Passage struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// MemoryIndex implements domain.KnowledgeBaseIndex over an in-memory
// snapshot of embedded passages, using cosine nearest-neighbour search with
// a subject filter.
type MemoryIndex struct {
	embedder domain.EmbeddingService
	passages []Passage
	logger   *zap.Logger
}

// NewMemoryIndex creates a new MemoryIndex over the given snapshot.
func NewMemoryIndex(embedder domain.EmbeddingService, passages []Passage, logger *zap.Logger) *MemoryIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryIndex{
		embedder: embedder,
		passages: passages,
		logger:   logger,
	}
}

// Search implements domain.KnowledgeBaseIndex. Scores are cosine
// similarities clamped to [0,1].
func (ix *MemoryIndex) Search(ctx context.Context, query string, subject string, limit int) ([]domain.KBCandidate, error) {
	if limit <= 0 {
		return nil, domain.NewInvalidInputError("search limit must be positive")
	}
	// An empty index has nothing to rank; skip the query embedding so a
	// deployment without a snapshot (and without an embedder) still serves
	// searches.
	if len(ix.passages) == 0 || ix.embedder == nil {
		return nil, nil
	}

	queryEmbedding, err := ix.embedder.Generate(ctx, query)
	if err != nil {
		return nil, domain.NewEmbeddingServiceError(err)
	}

	candidates := make([]domain.KBCandidate, 0, limit)
	for _, p := range ix.passages {
		if subject != "" && p.Subject != subject {
			continue
		}
		similarity, err := util.CosineSimilarity(queryEmbedding, p.Embedding)
		if err != nil {
			ix.logger.Warn("Skipping passage with incompatible embedding",
				zap.String("passage_id", p.ID),
				zap.Error(err))
			continue
		}
		candidates = append(candidates, domain.KBCandidate{
			SourceID: p.ID,
			Text:     p.Text,
			Score:    util.Clamp01(similarity),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	ix.logger.Debug("Knowledge base search completed",
		zap.String("subject", subject),
		zap.Int("returned", len(candidates)))
	return candidates, nil
}
