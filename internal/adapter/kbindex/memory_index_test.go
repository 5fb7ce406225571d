package kbindex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"papergrade/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns a fixed vector, or an error when configured to fail.
type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func testPassages() []Passage {
	return []Passage{
		{ID: "kb-1", Subject: "biology", Text: "Osmosis notes", Embedding: []float32{1, 0}},
		{ID: "kb-2", Subject: "biology", Text: "Photosynthesis notes", Embedding: []float32{0, 1}},
		{ID: "kb-3", Subject: "physics", Text: "Newton's laws", Embedding: []float32{1, 0}},
	}
}

func TestMemoryIndexSearchRanksBySimilarity(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0.2}}
	ix := NewMemoryIndex(embedder, testPassages(), nil)

	candidates, err := ix.Search(context.Background(), "osmosis", "biology", 5)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	// kb-1 aligns with the query vector; kb-3 is filtered out by subject.
	assert.Equal(t, "kb-1", candidates[0].SourceID)
	assert.Equal(t, "kb-2", candidates[1].SourceID)
	assert.Greater(t, candidates[0].Score, candidates[1].Score)
	assert.LessOrEqual(t, candidates[0].Score, 1.0)
}

func TestMemoryIndexSearchLimit(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	ix := NewMemoryIndex(embedder, testPassages(), nil)

	candidates, err := ix.Search(context.Background(), "anything", "", 1)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestMemoryIndexSearchEmbedderFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("service down")}
	ix := NewMemoryIndex(embedder, testPassages(), nil)

	_, err := ix.Search(context.Background(), "anything", "", 5)
	require.Error(t, err)

	var dErr *domain.DomainError
	require.True(t, errors.As(err, &dErr))
	assert.Equal(t, domain.ErrEmbeddingService, dErr.Code)
}

func TestMemoryIndexSearchEmptyIndex(t *testing.T) {
	// No snapshot wired: no embedder, no passages. Search must serve an
	// empty result, not dereference the missing embedder.
	ix := NewMemoryIndex(nil, nil, nil)

	candidates, err := ix.Search(context.Background(), "what is photosynthesis", "science", 10)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestMemoryIndexSearchInvalidLimit(t *testing.T) {
	ix := NewMemoryIndex(&fakeEmbedder{vector: []float32{1}}, nil, nil)

	_, err := ix.Search(context.Background(), "anything", "", 0)
	assert.Error(t, err)
}

func TestMemoryIndexSkipsIncompatibleEmbeddings(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	passages := []Passage{
		{ID: "kb-1", Text: "good", Embedding: []float32{1, 0}},
		{ID: "kb-2", Text: "bad dimensions", Embedding: []float32{1, 0, 0}},
	}
	ix := NewMemoryIndex(embedder, passages, nil)

	candidates, err := ix.Search(context.Background(), "anything", "", 5)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "kb-1", candidates[0].SourceID)
}

func TestLoadSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	content := `[{"id":"kb-1","subject":"biology","text":"Osmosis","embedding":[0.1,0.2]}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	passages, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "kb-1", passages[0].ID)
	assert.Equal(t, []float32{0.1, 0.2}, passages[0].Embedding)
}

func TestLoadSnapshotValidation(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSnapshot(filepath.Join(dir, "nope.json"))
		assert.Error(t, err)
	})

	t.Run("missing id", func(t *testing.T) {
		path := filepath.Join(dir, "noid.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"text":"x","embedding":[1]}]`), 0o644))
		_, err := LoadSnapshot(path)
		assert.Error(t, err)
	})

	t.Run("missing embedding", func(t *testing.T) {
		path := filepath.Join(dir, "noemb.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"id":"kb-1","text":"x"}]`), 0o644))
		_, err := LoadSnapshot(path)
		assert.Error(t, err)
	})
}
