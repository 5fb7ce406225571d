package dto

import "papergrade/internal/domain"

// EvaluationResultResponse is the JSON shape of one graded question.
type EvaluationResultResponse struct {
	QuestionNumber  int                          `json:"question_number"`
	Score           float64                      `json:"score"`
	MaxScore        int                          `json:"max_score"`
	Confidence      float64                      `json:"confidence"`
	CorrectPoints   []string                     `json:"correct_points,omitempty"`
	Errors          []domain.EvaluationError     `json:"errors,omitempty"`
	MissingConcepts []string                     `json:"missing_concepts,omitempty"`
	ShouldInclude   []string                     `json:"correct_answer_should_include,omitempty"`
	Guidance        []domain.ImprovementGuidance `json:"improvement_guidance,omitempty"`
	OverallFeedback string                       `json:"overall_feedback"`
	Degraded        bool                         `json:"degraded"`
}

// OrphanedAnswerResponse is an answer whose question number does not
// exist on the paper.
type OrphanedAnswerResponse struct {
	QuestionNumber int    `json:"question_number"`
	Text           string `json:"text"`
}

// UnmatchedFragmentResponse is a transcript line no recognizer claimed.
type UnmatchedFragmentResponse struct {
	PageIndex int    `json:"page_index"`
	Text      string `json:"text"`
}

// SummaryResponse is the submission-level digest.
type SummaryResponse struct {
	PerformanceLevel string   `json:"performance_level"`
	OverallMessage   string   `json:"overall_message"`
	Strengths        []string `json:"strengths,omitempty"`
	ImprovementAreas []string `json:"improvement_areas,omitempty"`
}

// SubmissionReportResponse is the full grading report returned to callers.
type SubmissionReportResponse struct {
	ID            string                      `json:"id"`
	Subject       string                      `json:"subject"`
	Results       []EvaluationResultResponse  `json:"results"`
	TotalScore    float64                     `json:"total_score"`
	MaxTotalScore int                         `json:"max_total_score"`
	Percentage    float64                     `json:"percentage"`
	DegradedCount int                         `json:"degraded_count"`
	Orphaned      []OrphanedAnswerResponse    `json:"orphaned_answers,omitempty"`
	Unmatched     []UnmatchedFragmentResponse `json:"unmatched_fragments,omitempty"`
	Summary       SummaryResponse             `json:"summary"`
}

// NewSubmissionReportResponse maps a domain report to its response shape.
func NewSubmissionReportResponse(report *domain.SubmissionReport) *SubmissionReportResponse {
	resp := &SubmissionReportResponse{
		ID:            report.ID,
		Subject:       report.Subject,
		TotalScore:    report.TotalScore,
		MaxTotalScore: report.MaxTotalScore,
		Percentage:    report.Percentage,
		DegradedCount: report.DegradedCount,
		Summary: SummaryResponse{
			PerformanceLevel: string(report.Summary.PerformanceLevel),
			OverallMessage:   report.Summary.OverallMessage,
			Strengths:        report.Summary.Strengths,
			ImprovementAreas: report.Summary.ImprovementAreas,
		},
	}
	for _, r := range report.Results {
		resp.Results = append(resp.Results, EvaluationResultResponse{
			QuestionNumber:  r.QuestionNumber,
			Score:           r.Score,
			MaxScore:        r.MaxScore,
			Confidence:      r.Confidence,
			CorrectPoints:   r.CorrectPoints,
			Errors:          r.Errors,
			MissingConcepts: r.MissingConcepts,
			ShouldInclude:   r.ShouldInclude,
			Guidance:        r.Guidance,
			OverallFeedback: r.OverallFeedback,
			Degraded:        r.Degraded,
		})
	}
	for _, o := range report.Orphaned {
		resp.Orphaned = append(resp.Orphaned, OrphanedAnswerResponse{
			QuestionNumber: o.QuestionNumber,
			Text:           o.RawText,
		})
	}
	for _, u := range report.Unmatched {
		resp.Unmatched = append(resp.Unmatched, UnmatchedFragmentResponse{
			PageIndex: u.PageIndex,
			Text:      u.RawText,
		})
	}
	return resp
}
