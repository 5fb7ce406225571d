package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"papergrade/internal/config"
	"papergrade/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockKBIndex struct {
	mock.Mock
}

func (m *mockKBIndex) Search(ctx context.Context, query, subject string, limit int) ([]domain.KBCandidate, error) {
	args := m.Called(ctx, query, subject, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.KBCandidate), args.Error(1)
}

func testRetrieverConfig() config.RetrieverConfig {
	return config.RetrieverConfig{
		TopK:             2,
		ContextCharLimit: 2000,
		MinKeywordLength: 3,
		KeywordBoostCap:  5,
		KeywordBoostStep: 0.1,
	}
}

func TestExtractKeywords(t *testing.T) {
	r := NewHybridRetriever(nil, testRetrieverConfig(), nil)

	keywords := r.ExtractKeywords("Explain the process of photosynthesis in a green plant")

	assert.Equal(t, []string{"process", "photosynthesis", "green", "plant"}, keywords)
}

func TestExtractKeywordsDeduplicates(t *testing.T) {
	r := NewHybridRetriever(nil, testRetrieverConfig(), nil)

	keywords := r.ExtractKeywords("Osmosis osmosis OSMOSIS")

	assert.Equal(t, []string{"osmosis"}, keywords)
}

func TestRetrieveBoostsKeywordMatches(t *testing.T) {
	index := new(mockKBIndex)
	r := NewHybridRetriever(index, testRetrieverConfig(), nil)

	candidates := []domain.KBCandidate{
		{SourceID: "kb-1", Text: "Unrelated facts about geology", Score: 0.80},
		{SourceID: "kb-2", Text: "Photosynthesis converts light energy in the plant", Score: 0.70},
		{SourceID: "kb-3", Text: "Weather patterns of the monsoon", Score: 0.60},
	}
	index.On("Search", mock.Anything, "Explain photosynthesis in a plant", "biology", 4).
		Return(candidates, nil)

	passages, err := r.Retrieve(context.Background(), "Explain photosynthesis in a plant", "biology")
	require.NoError(t, err)
	require.Len(t, passages, 2)

	// kb-2 mentions two query keywords: 0.70 + 2*0.1 outranks 0.80.
	assert.Equal(t, "kb-2", passages[0].SourceID)
	assert.Equal(t, "kb-1", passages[1].SourceID)
	assert.InDelta(t, 0.90, passages[0].BoostedScore(), 1e-9)
	index.AssertExpectations(t)
}

func TestRetrieveKnowledgeBaseFailureIsNotFatal(t *testing.T) {
	index := new(mockKBIndex)
	r := NewHybridRetriever(index, testRetrieverConfig(), nil)

	index.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("index offline"))

	passages, err := r.Retrieve(context.Background(), "any question", "math")
	assert.NoError(t, err)
	assert.Empty(t, passages)
}

func TestRetrieveEmptyQuery(t *testing.T) {
	r := NewHybridRetriever(nil, testRetrieverConfig(), nil)

	passages, err := r.Retrieve(context.Background(), "   ", "math")
	assert.NoError(t, err)
	assert.Empty(t, passages)
}

func TestKeywordBoostIsCapped(t *testing.T) {
	cfg := testRetrieverConfig()
	cfg.KeywordBoostCap = 2
	r := NewHybridRetriever(nil, cfg, nil)

	boost := r.keywordBoost(
		"cell membrane nucleus mitochondria ribosome",
		[]string{"cell", "membrane", "nucleus", "mitochondria", "ribosome"},
	)
	assert.InDelta(t, 0.2, boost, 1e-9)
}

func TestFormatContext(t *testing.T) {
	r := NewHybridRetriever(nil, testRetrieverConfig(), nil)

	passages := []domain.RetrievedPassage{
		{Text: "First passage.", SemanticScore: 0.91},
		{Text: "Second passage.", SemanticScore: 0.72},
	}

	out := r.FormatContext(passages)
	assert.Contains(t, out, "Source 1 (relevance: 0.91):\nFirst passage.")
	assert.Contains(t, out, "Source 2 (relevance: 0.72):\nSecond passage.")
}

func TestFormatContextHonorsCharBudget(t *testing.T) {
	cfg := testRetrieverConfig()
	cfg.ContextCharLimit = 60
	r := NewHybridRetriever(nil, cfg, nil)

	passages := []domain.RetrievedPassage{
		{Text: "A short first passage.", SemanticScore: 0.9},
		{Text: strings.Repeat("long second passage ", 10), SemanticScore: 0.8},
	}

	out := r.FormatContext(passages)
	assert.LessOrEqual(t, len(out), 60)
	assert.Contains(t, out, "A short first passage.")
	// The overflowing passage is dropped whole, never half-written.
	assert.True(t, strings.HasPrefix(out, "Source 1"))
	assert.NotContains(t, out, "Source 2")
	assert.NotContains(t, out, "long second passage")
}

func TestFormatContextEmpty(t *testing.T) {
	r := NewHybridRetriever(nil, testRetrieverConfig(), nil)
	assert.Equal(t, "", r.FormatContext(nil))
}
