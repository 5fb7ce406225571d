package domain

// QuestionType tags a question with its answer format. Scoring logic
// branches on this tag explicitly.
type QuestionType string

const (
	QuestionTypeShort QuestionType = "short"
	QuestionTypeLong  QuestionType = "long"
	QuestionTypeMCQ   QuestionType = "mcq"
)

// InferQuestionType derives the type from the mark value for questions
// whose grammar did not already fix it.
func InferQuestionType(marks int) QuestionType {
	if marks <= 2 {
		return QuestionTypeShort
	}
	return QuestionTypeLong
}

// Question represents a single question recovered from a question paper.
// Numbers are contiguous from 1 within one paper regardless of the
// numbering printed on the source pages.
type Question struct {
	Number        int
	Text          string
	Marks         int
	Type          QuestionType
	Section       string            // section letter, empty when the paper has no sections
	Options       map[string]string // option letter -> option text, MCQ only
	CorrectAnswer string            // option letter, MCQ only, set externally
	HasOrOption   bool
	HasDiagram    bool
	MarkingScheme *MarkingScheme
}

// Validate validates the question
func (q *Question) Validate() error {
	if q.Number <= 0 {
		return NewValidationError("question number must be positive")
	}
	if q.Marks <= 0 {
		return NewValidationError("question marks must be positive")
	}
	return nil
}

// SchemeCriterion is one point-valued sub-criterion of a marking scheme.
type SchemeCriterion struct {
	Description string
	Points      int
}

// MarkingScheme is the rubric attached to a question: enumerated
// point-value sub-criteria plus required keywords or phrases.
type MarkingScheme struct {
	Criteria         []SchemeCriterion
	RequiredKeywords []string
}

// AnswerFragment is one answer body recovered from an answer sheet.
// QuestionNumber may reference a question absent from the paper; such
// orphans are reported as unanswered, never merged into another question.
type AnswerFragment struct {
	QuestionNumber int
	RawText        string
}

// UnmatchedFragment is a line of answer text no recognizer could attribute
// to a question number. Surfaced for human review, never dropped.
type UnmatchedFragment struct {
	PageIndex int
	RawText   string
}
