package domain

// RetrievedPassage is one reference passage returned by the hybrid
// retriever. SemanticScore is the unboosted similarity from the knowledge
// base index; KeywordBoost is the lexical overlap bonus added for ranking.
// Ephemeral, never persisted.
type RetrievedPassage struct {
	Text          string
	SourceID      string
	SemanticScore float64
	KeywordBoost  float64
}

// BoostedScore is the ranking score: semantic similarity plus keyword boost.
func (p RetrievedPassage) BoostedScore() float64 {
	return p.SemanticScore + p.KeywordBoost
}

// EvaluationError describes one mistake found in a student answer.
type EvaluationError struct {
	What   string `json:"what"`
	Why    string `json:"why"`
	Impact string `json:"impact"`
}

// ImprovementGuidance is one actionable study suggestion.
type ImprovementGuidance struct {
	Suggestion string `json:"suggestion"`
	Resource   string `json:"resource"`
	Practice   string `json:"practice"`
}

// EvaluationResult is the scored outcome of one (submission, question)
// pair. Degraded marks results produced by the deterministic fallback
// rather than a validated scoring-engine reply; callers must not treat a
// degraded result as a regular success.
type EvaluationResult struct {
	QuestionNumber  int
	Score           float64
	MaxScore        int
	Confidence      float64
	CorrectPoints   []string
	Errors          []EvaluationError
	MissingConcepts []string
	ShouldInclude   []string
	Guidance        []ImprovementGuidance
	OverallFeedback string
	Degraded        bool
}

// PerformanceLevel buckets a submission percentage for the report summary.
type PerformanceLevel string

const (
	PerformanceExcellent        PerformanceLevel = "Excellent"
	PerformanceGood             PerformanceLevel = "Good"
	PerformanceNeedsImprovement PerformanceLevel = "Needs Improvement"
	PerformanceNeedsWork        PerformanceLevel = "Needs Significant Improvement"
)

// LevelForPercentage maps a 0-100 percentage to a performance level.
func LevelForPercentage(pct float64) PerformanceLevel {
	switch {
	case pct >= 80:
		return PerformanceExcellent
	case pct >= 60:
		return PerformanceGood
	case pct >= 40:
		return PerformanceNeedsImprovement
	default:
		return PerformanceNeedsWork
	}
}

// SubmissionSummary aggregates per-question feedback for a whole submission.
type SubmissionSummary struct {
	PerformanceLevel PerformanceLevel
	OverallMessage   string
	Strengths        []string
	ImprovementAreas []string
}

// SubmissionReport is the aggregated outcome of evaluating every question
// of one submission. TotalScore is written only by the final aggregation
// step, after all per-question evaluations are done.
type SubmissionReport struct {
	ID            string
	Subject       string
	Results       []EvaluationResult
	TotalScore    float64
	MaxTotalScore int
	Percentage    float64
	DegradedCount int
	Orphaned      []AnswerFragment
	Unmatched     []UnmatchedFragment
	Summary       SubmissionSummary
}
