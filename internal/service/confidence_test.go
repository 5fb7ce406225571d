package service

import (
	"strings"
	"testing"

	"papergrade/internal/config"
	"papergrade/internal/domain"

	"github.com/stretchr/testify/assert"
)

func testConfidenceWeights() config.ConfidenceConfig {
	return config.ConfidenceConfig{
		RelevanceWeight:   0.4,
		LengthWeight:      0.2,
		KeywordWeight:     0.2,
		ConsistencyWeight: 0.2,
	}
}

func TestComputeConfidenceIsDeterministic(t *testing.T) {
	in := ConfidenceInput{
		Answer:               "Osmosis moves water across a membrane toward higher solute concentration.",
		Score:                4,
		MaxScore:             5,
		Passages:             []domain.RetrievedPassage{{SemanticScore: 0.8}},
		CorrectPoints:        3,
		ErrorCount:           1,
		ExpectedCharsPerMark: 40,
	}

	first := ComputeConfidence(in, testConfidenceWeights())
	second := ComputeConfidence(in, testConfidenceWeights())
	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first, 0.0)
	assert.LessOrEqual(t, first, 1.0)
}

func TestComputeConfidenceFullAgreement(t *testing.T) {
	// Perfect retrieval, generous length, all keywords present, and a
	// score that matches the correct/error tally exactly.
	scheme := &domain.MarkingScheme{RequiredKeywords: []string{"osmosis", "membrane"}}
	in := ConfidenceInput{
		Answer:               "Osmosis through the membrane. " + strings.Repeat("More detail. ", 20),
		Score:                5,
		MaxScore:             5,
		Passages:             []domain.RetrievedPassage{{SemanticScore: 1.0}},
		Scheme:               scheme,
		CorrectPoints:        4,
		ErrorCount:           0,
		ExpectedCharsPerMark: 40,
	}

	confidence := ComputeConfidence(in, testConfidenceWeights())
	assert.InDelta(t, 1.0, confidence, 1e-9)
}

func TestComputeConfidenceNoRetrieval(t *testing.T) {
	in := ConfidenceInput{
		Answer:               strings.Repeat("text ", 50),
		Score:                2,
		MaxScore:             4,
		CorrectPoints:        1,
		ErrorCount:           1,
		ExpectedCharsPerMark: 40,
	}

	// relevance 0, length 1, keywords neutral 0.5, consistency 1.
	confidence := ComputeConfidence(in, testConfidenceWeights())
	assert.InDelta(t, 0.4*0+0.2*1+0.2*0.5+0.2*1, confidence, 1e-9)
}

func TestLengthTermSaturates(t *testing.T) {
	assert.InDelta(t, 1.0, lengthTerm(strings.Repeat("x", 500), 2, 40), 1e-9)
	assert.InDelta(t, 0.5, lengthTerm(strings.Repeat("x", 40), 2, 40), 1e-9)
	assert.InDelta(t, 0.0, lengthTerm("", 2, 40), 1e-9)
}

func TestKeywordTermNeutralWithoutScheme(t *testing.T) {
	assert.Equal(t, 0.5, keywordTerm("anything", nil))
	assert.Equal(t, 0.5, keywordTerm("anything", &domain.MarkingScheme{}))
}

func TestKeywordTermFraction(t *testing.T) {
	scheme := &domain.MarkingScheme{RequiredKeywords: []string{"Force", "Mass", "Acceleration", "Inertia"}}
	got := keywordTerm("force equals mass times acceleration", scheme)
	assert.InDelta(t, 0.75, got, 1e-9)
}

func TestConsistencyTerm(t *testing.T) {
	// Awarded fraction 0.8 against observed 0.8: full agreement.
	assert.InDelta(t, 1.0, consistencyTerm(4, 5, 4, 1), 1e-9)
	// Awarded 1.0 against observed 0: maximal disagreement.
	assert.InDelta(t, 0.0, consistencyTerm(5, 5, 0, 3), 1e-9)
	// Nothing observed: neutral.
	assert.Equal(t, 0.5, consistencyTerm(3, 5, 0, 0))
}
