package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"papergrade/internal/config"
	"papergrade/internal/domain"
	"papergrade/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// scoreReply is the JSON contract the scoring engine must honor.
type scoreReply struct {
	Score               *float64                     `json:"score"`
	CorrectPoints       []string                     `json:"correct_points"`
	Errors              []domain.EvaluationError     `json:"errors"`
	MissingConcepts     []string                     `json:"missing_concepts"`
	ShouldInclude       []string                     `json:"correct_answer_should_include"`
	ImprovementGuidance []domain.ImprovementGuidance `json:"improvement_guidance"`
	OverallFeedback     string                       `json:"overall_feedback"`
}

var (
	thinkBlockRe  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	mcqLetterRe   = regexp.MustCompile(`(?i)^[\[(]?\s*([A-D])\s*[\]).]?$`)
	mcqPhraseRe   = regexp.MustCompile(`(?i)(?:answer\s+is|option)\s*[:\-]?\s*[\[(]?([A-D])[\])]?\b`)
	mcqDigitRe    = regexp.MustCompile(`^\(?([1-4])\)?$`)
	digitToLetter = map[string]string{"1": "A", "2": "B", "3": "C", "4": "D"}
)

// EvaluationService orchestrates grading: direct comparison for MCQs,
// retrieval plus scoring-engine calls with validation, one retry and a
// deterministic fallback for everything else.
type EvaluationService struct {
	retriever *HybridRetriever
	engine    domain.ScoringEngine
	cfg       *config.Config
	logger    *zap.Logger
}

// NewEvaluationService creates a new EvaluationService.
func NewEvaluationService(retriever *HybridRetriever, engine domain.ScoringEngine, cfg *config.Config, logger *zap.Logger) *EvaluationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationService{retriever: retriever, engine: engine, cfg: cfg, logger: logger}
}

// EvaluateQuestion grades one answer against one question. It never
// returns an error for scoring-engine trouble; those produce a degraded
// result instead. Only context cancellation propagates as an error.
func (s *EvaluationService) EvaluateQuestion(ctx context.Context, question domain.Question, answer string, subject string) (domain.EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EvaluationResult{}, domain.NewEvaluationCancelledError(err)
	}

	// MCQs are compared directly against the key; an MCQ without a
	// usable key goes through the scored pipeline like any other answer.
	if question.Type == domain.QuestionTypeMCQ {
		if key, ok := canonicalMCQLetter(question.CorrectAnswer); ok {
			return s.evaluateMCQ(question, answer, key), nil
		}
	}
	return s.evaluateScored(ctx, question, answer, subject)
}

// evaluateMCQ compares the student's letter directly against the key.
// No scoring engine round trip is involved.
func (s *EvaluationService) evaluateMCQ(question domain.Question, answer, key string) domain.EvaluationResult {
	result := domain.EvaluationResult{
		QuestionNumber: question.Number,
		MaxScore:       question.Marks,
		Confidence:     1.0,
	}

	letter, ok := canonicalMCQLetter(answer)
	if !ok {
		result.Score = 0
		result.OverallFeedback = "Could not read a clear option choice from the answer."
		result.MissingConcepts = []string{"A single option letter (A-D)"}
		return result
	}

	if letter == key {
		result.Score = float64(question.Marks)
		result.CorrectPoints = []string{"Selected the correct option " + key}
		result.OverallFeedback = "Correct."
	} else {
		result.Score = 0
		result.Errors = []domain.EvaluationError{{
			What:   "Selected option " + letter,
			Why:    "The correct option is " + key,
			Impact: "No marks awarded",
		}}
		result.OverallFeedback = "Incorrect option selected."
	}
	return result
}

// canonicalMCQLetter extracts a single uppercase option letter from the
// many ways students and keys write one: "A", "(a)", "b)", "[C]", "d.",
// "the answer is C", "option 2".
func canonicalMCQLetter(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if groups := mcqLetterRe.FindStringSubmatch(trimmed); groups != nil {
		return strings.ToUpper(groups[1]), true
	}
	if groups := mcqDigitRe.FindStringSubmatch(trimmed); groups != nil {
		return digitToLetter[groups[1]], true
	}
	if groups := mcqPhraseRe.FindStringSubmatch(trimmed); groups != nil {
		return strings.ToUpper(groups[1]), true
	}
	return "", false
}

// evaluateScored runs the full retrieve / score / validate pipeline with
// one retry; a second failure produces the deterministic fallback.
func (s *EvaluationService) evaluateScored(ctx context.Context, question domain.Question, answer, subject string) (domain.EvaluationResult, error) {
	if strings.TrimSpace(answer) == "" {
		return domain.EvaluationResult{
			QuestionNumber:  question.Number,
			MaxScore:        question.Marks,
			Confidence:      1.0,
			OverallFeedback: "No answer provided.",
		}, nil
	}

	passages, err := s.retriever.Retrieve(ctx, question.Text, subject)
	if err != nil {
		return domain.EvaluationResult{}, err
	}

	prompt := s.buildScoreRequest(question, answer, passages)

	var reply *scoreReply
	var clamped bool
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.EvaluationResult{}, domain.NewEvaluationCancelledError(err)
		}

		raw, callErr := s.engine.Score(ctx, prompt)
		if callErr != nil {
			s.logger.Warn("Scoring engine call failed",
				zap.Int("question", question.Number),
				zap.Int("attempt", attempt+1),
				zap.Error(callErr))
			continue
		}

		parsed, parseErr := parseScoreReply(raw)
		if parseErr != nil {
			s.logger.Warn("Scoring engine reply rejected",
				zap.Int("question", question.Number),
				zap.Int("attempt", attempt+1),
				zap.Error(parseErr))
			continue
		}

		if *parsed.Score < 0 || *parsed.Score > float64(question.Marks) {
			if attempt == 0 {
				s.logger.Warn("Score out of range, retrying",
					zap.Int("question", question.Number),
					zap.Float64("score", *parsed.Score),
					zap.Int("max", question.Marks))
				continue
			}
			// Second reply is still out of range but otherwise well
			// formed: clamp instead of discarding the feedback.
			clampedScore := util.Clamp01(*parsed.Score/float64(question.Marks)) * float64(question.Marks)
			parsed.Score = &clampedScore
			clamped = true
		}
		reply = parsed
		break
	}

	if reply == nil {
		return s.fallbackResult(question), nil
	}

	result := domain.EvaluationResult{
		QuestionNumber:  question.Number,
		Score:           *reply.Score,
		MaxScore:        question.Marks,
		CorrectPoints:   reply.CorrectPoints,
		Errors:          reply.Errors,
		MissingConcepts: reply.MissingConcepts,
		ShouldInclude:   reply.ShouldInclude,
		Guidance:        reply.ImprovementGuidance,
		OverallFeedback: reply.OverallFeedback,
	}
	result.Confidence = ComputeConfidence(ConfidenceInput{
		Answer:               answer,
		Score:                result.Score,
		MaxScore:             question.Marks,
		Passages:             passages,
		Scheme:               question.MarkingScheme,
		CorrectPoints:        len(result.CorrectPoints),
		ErrorCount:           len(result.Errors),
		ExpectedCharsPerMark: s.cfg.Evaluation.ExpectedCharsPerMark,
	}, s.cfg.Confidence)
	if clamped && result.Confidence > s.cfg.Evaluation.FallbackConfidence {
		result.Confidence = s.cfg.Evaluation.FallbackConfidence
	}
	return result, nil
}

// fallbackResult is the deterministic degraded outcome after both scoring
// attempts failed: half marks, low confidence, flagged for review.
func (s *EvaluationService) fallbackResult(question domain.Question) domain.EvaluationResult {
	s.logger.Error("Falling back to deterministic score",
		zap.Int("question", question.Number),
		zap.Int("max", question.Marks))
	return domain.EvaluationResult{
		QuestionNumber:  question.Number,
		Score:           float64(question.Marks) / 2,
		MaxScore:        question.Marks,
		Confidence:      s.cfg.Evaluation.FallbackConfidence,
		OverallFeedback: "Automatic scoring was unavailable for this answer; a provisional half score was assigned. Please review manually.",
		Degraded:        true,
	}
}

// buildScoreRequest assembles the grading prompt: question, marking
// scheme, retrieved reference context, the student's answer, and the
// strict JSON reply contract.
func (s *EvaluationService) buildScoreRequest(question domain.Question, answer string, passages []domain.RetrievedPassage) string {
	var b strings.Builder

	b.WriteString("You are an experienced school examiner grading one answer.\n\n")
	fmt.Fprintf(&b, "Question %d (%d marks):\n%s\n\n", question.Number, question.Marks, question.Text)

	if question.MarkingScheme != nil {
		b.WriteString("Marking scheme:\n")
		for i, criterion := range question.MarkingScheme.Criteria {
			fmt.Fprintf(&b, "%d. %s (%d marks)\n", i+1, criterion.Description, criterion.Points)
		}
		if len(question.MarkingScheme.RequiredKeywords) > 0 {
			fmt.Fprintf(&b, "Required concepts: %s\n", strings.Join(question.MarkingScheme.RequiredKeywords, ", "))
		}
		b.WriteString("\n")
	}

	if refs := s.retriever.FormatContext(passages); refs != "" {
		b.WriteString("Reference material:\n")
		b.WriteString(refs)
		b.WriteString("\n\n")
	}

	b.WriteString("Student's answer:\n")
	b.WriteString(strings.TrimSpace(answer))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, `Grade the answer out of %d marks. Weigh factual correctness at 50%%, coverage of the required concepts at 30%%, and clarity of expression at 20%%.

Respond with ONLY a JSON object in exactly this shape:
{
  "score": <number between 0 and %d>,
  "correct_points": ["<things the student got right>"],
  "errors": [{"what": "<the mistake>", "why": "<why it is wrong>", "impact": "<marks lost>"}],
  "missing_concepts": ["<concepts the answer should have covered>"],
  "correct_answer_should_include": ["<key elements of a full-mark answer>"],
  "improvement_guidance": [{"suggestion": "<what to study>", "resource": "<where>", "practice": "<how to practice>"}],
  "overall_feedback": "<two or three sentences for the student>"
}`, question.Marks, question.Marks)

	return b.String()
}

// requiredReplyKeys must all be present in an engine reply; a missing key
// means the engine ignored the contract and the reply is rejected.
var requiredReplyKeys = []string{
	"score",
	"correct_points",
	"errors",
	"missing_concepts",
	"correct_answer_should_include",
	"improvement_guidance",
	"overall_feedback",
}

// parseScoreReply extracts and validates the JSON object from a raw
// engine reply, tolerating markdown fences and reasoning preambles.
func parseScoreReply(raw string) (*scoreReply, error) {
	cleaned := thinkBlockRe.ReplaceAllString(raw, "")
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, domain.NewMalformedScoreReplyError(fmt.Errorf("no JSON object in reply"))
	}
	payload := []byte(cleaned[start : end+1])

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(payload, &keys); err != nil {
		return nil, domain.NewMalformedScoreReplyError(err)
	}
	for _, key := range requiredReplyKeys {
		if _, present := keys[key]; !present {
			return nil, domain.NewMalformedScoreReplyError(fmt.Errorf("reply is missing the %s field", key))
		}
	}

	var reply scoreReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return nil, domain.NewMalformedScoreReplyError(err)
	}
	if reply.Score == nil {
		return nil, domain.NewMalformedScoreReplyError(fmt.Errorf("reply has a null score"))
	}
	if strings.TrimSpace(reply.OverallFeedback) == "" {
		return nil, domain.NewMalformedScoreReplyError(fmt.Errorf("reply has an empty overall_feedback"))
	}
	return &reply, nil
}

// EvaluateSubmission grades every question of one submission with a
// bounded worker pool, then aggregates totals, orphans and the summary in
// a single barrier step. TotalScore is only ever written there.
func (s *EvaluationService) EvaluateSubmission(ctx context.Context, subject string, questions []domain.Question, parsed *ParsedAnswers) (*domain.SubmissionReport, error) {
	workers := s.cfg.Evaluation.Workers
	if workers <= 0 {
		workers = 4
	}

	results := make([]domain.EvaluationResult, len(questions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	// Cancellation stops dispatching new questions, but tasks already in
	// flight run to completion on a detached context (their own retrieval
	// and scoring timeouts still apply); their results are discarded below.
	inflight := context.WithoutCancel(ctx)

	for i, question := range questions {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			result, err := s.EvaluateQuestion(inflight, question, parsed.Answers[question.Number], subject)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.NewEvaluationCancelledError(err)
	}

	report := &domain.SubmissionReport{
		ID:        util.NewULID(),
		Subject:   subject,
		Results:   results,
		Unmatched: parsed.Unmatched,
	}

	known := make(map[int]struct{}, len(questions))
	for _, q := range questions {
		report.MaxTotalScore += q.Marks
		known[q.Number] = struct{}{}
	}
	for _, r := range results {
		report.TotalScore += r.Score
		if r.Degraded {
			report.DegradedCount++
		}
	}
	if report.MaxTotalScore > 0 {
		report.Percentage = report.TotalScore / float64(report.MaxTotalScore) * 100
	}

	for number, text := range parsed.Answers {
		if _, ok := known[number]; !ok {
			report.Orphaned = append(report.Orphaned, domain.AnswerFragment{
				QuestionNumber: number,
				RawText:        text,
			})
		}
	}
	sort.Slice(report.Orphaned, func(i, j int) bool {
		return report.Orphaned[i].QuestionNumber < report.Orphaned[j].QuestionNumber
	})

	report.Summary = buildSummary(report)

	s.logger.Info("Submission evaluated",
		zap.String("report_id", report.ID),
		zap.String("subject", subject),
		zap.Float64("total", report.TotalScore),
		zap.Int("max_total", report.MaxTotalScore),
		zap.Int("degraded", report.DegradedCount))
	return report, nil
}

// buildSummary condenses per-question feedback into submission-level
// strengths and improvement areas.
func buildSummary(report *domain.SubmissionReport) domain.SubmissionSummary {
	summary := domain.SubmissionSummary{
		PerformanceLevel: domain.LevelForPercentage(report.Percentage),
	}

	switch summary.PerformanceLevel {
	case domain.PerformanceExcellent:
		summary.OverallMessage = "Excellent work. The answers show a strong grasp of the material."
	case domain.PerformanceGood:
		summary.OverallMessage = "Good effort overall, with room to sharpen a few topics."
	case domain.PerformanceNeedsImprovement:
		summary.OverallMessage = "Several answers missed key concepts; focused revision is recommended."
	default:
		summary.OverallMessage = "The answers show significant gaps; a thorough review of the syllabus is needed."
	}

	seenStrength := make(map[string]struct{})
	seenArea := make(map[string]struct{})
	for _, r := range report.Results {
		for _, point := range r.CorrectPoints {
			if len(summary.Strengths) >= 5 {
				break
			}
			if _, dup := seenStrength[point]; dup {
				continue
			}
			seenStrength[point] = struct{}{}
			summary.Strengths = append(summary.Strengths, point)
		}
		for _, concept := range r.MissingConcepts {
			if len(summary.ImprovementAreas) >= 5 {
				break
			}
			if _, dup := seenArea[concept]; dup {
				continue
			}
			seenArea[concept] = struct{}{}
			summary.ImprovementAreas = append(summary.ImprovementAreas, concept)
		}
	}
	return summary
}
