package service

import (
	"strings"

	"papergrade/internal/config"
	"papergrade/internal/domain"
	"papergrade/internal/util"
)

// ConfidenceInput carries everything the confidence function looks at.
// The function is pure: same input, same confidence.
type ConfidenceInput struct {
	Answer               string
	Score                float64
	MaxScore             int
	Passages             []domain.RetrievedPassage
	Scheme               *domain.MarkingScheme
	CorrectPoints        int
	ErrorCount           int
	ExpectedCharsPerMark int
}

// ComputeConfidence estimates how much to trust an evaluation result as a
// weighted sum of four terms: retrieval relevance, answer length against
// the marks on offer, marking-scheme keyword coverage, and consistency
// between the numeric score and the correct/error tally.
func ComputeConfidence(in ConfidenceInput, weights config.ConfidenceConfig) float64 {
	relevance := relevanceTerm(in.Passages)
	length := lengthTerm(in.Answer, in.MaxScore, in.ExpectedCharsPerMark)
	keywords := keywordTerm(in.Answer, in.Scheme)
	consistency := consistencyTerm(in.Score, in.MaxScore, in.CorrectPoints, in.ErrorCount)

	confidence := weights.RelevanceWeight*relevance +
		weights.LengthWeight*length +
		weights.KeywordWeight*keywords +
		weights.ConsistencyWeight*consistency
	return util.Clamp01(confidence)
}

// relevanceTerm is the mean semantic score of the retrieved passages, 0
// when nothing was retrieved.
func relevanceTerm(passages []domain.RetrievedPassage) float64 {
	if len(passages) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range passages {
		sum += util.Clamp01(p.SemanticScore)
	}
	return sum / float64(len(passages))
}

// lengthTerm compares the answer length to the length a full-mark answer
// is expected to have, saturating at 1.
func lengthTerm(answer string, maxScore, expectedCharsPerMark int) float64 {
	if expectedCharsPerMark <= 0 {
		expectedCharsPerMark = 40
	}
	expected := expectedCharsPerMark * maxScore
	if expected <= 0 {
		return 0
	}
	ratio := float64(len(strings.TrimSpace(answer))) / float64(expected)
	if ratio > 1 {
		return 1
	}
	return ratio
}

// keywordTerm is the fraction of the marking scheme's required keywords
// present in the answer, or neutral 0.5 when the scheme specifies none.
func keywordTerm(answer string, scheme *domain.MarkingScheme) float64 {
	if scheme == nil || len(scheme.RequiredKeywords) == 0 {
		return 0.5
	}
	lower := strings.ToLower(answer)
	hits := 0
	for _, kw := range scheme.RequiredKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			hits++
		}
	}
	return float64(hits) / float64(len(scheme.RequiredKeywords))
}

// consistencyTerm checks that the awarded fraction of marks agrees with
// the ratio of correct points to total observations. Neutral 0.5 when the
// scoring engine reported neither correct points nor errors.
func consistencyTerm(score float64, maxScore, correctPoints, errorCount int) float64 {
	if maxScore <= 0 {
		return 0.5
	}
	total := correctPoints + errorCount
	if total == 0 {
		return 0.5
	}
	awarded := score / float64(maxScore)
	observed := float64(correctPoints) / float64(total)
	diff := awarded - observed
	if diff < 0 {
		diff = -diff
	}
	return util.Clamp01(1 - diff)
}
