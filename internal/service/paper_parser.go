package service

import (
	"regexp"
	"strconv"
	"strings"

	"papergrade/internal/domain"

	"go.uber.org/zap"
)

// SectionHeader is the parsed form of a bulk-question declaration such as
// "SECTION A (16x1=16 marks)".
type SectionHeader struct {
	Letter    string
	Count     int
	MarksEach int
}

// QuestionStart is the parsed form of a line that opens a new question.
type QuestionStart struct {
	Number   int
	Text     string
	Marks    int
	HasMarks bool
}

// OptionLine is the parsed form of an MCQ option marker line.
type OptionLine struct {
	Marker  string
	Numeric bool
	Text    string
}

// sectionHeaderMatcher recognizes section headers declaring N questions of
// M marks each. Accepts x, X, ×, hyphen and en-dash separators, optional
// brackets and whitespace variance.
type sectionHeaderMatcher struct {
	full *regexp.Regexp
	bare *regexp.Regexp
}

func newSectionHeaderMatcher() *sectionHeaderMatcher {
	return &sectionHeaderMatcher{
		full: regexp.MustCompile(`(?i)^[\[(]?\s*SECTION\s+([A-Za-z])\s*[\])]?\s*[:\-]?\s*[(\[]?\s*(\d+)\s*[xX×\-–]\s*(\d+)\s*=\s*(\d+)\s*marks?\s*[)\]]?\s*$`),
		bare: regexp.MustCompile(`(?i)^[\[(]?\s*SECTION\s+([A-Za-z])\s*[\])]?\s*[:\-]?\s*$`),
	}
}

// Match recognizes a complete section header with a question-count and
// per-question mark declaration.
func (m *sectionHeaderMatcher) Match(line string) (SectionHeader, bool) {
	groups := m.full.FindStringSubmatch(line)
	if groups == nil {
		return SectionHeader{}, false
	}
	count, err1 := strconv.Atoi(groups[2])
	marksEach, err2 := strconv.Atoi(groups[3])
	if err1 != nil || err2 != nil || count <= 0 || marksEach <= 0 {
		return SectionHeader{}, false
	}
	return SectionHeader{
		Letter:    strings.ToUpper(groups[1]),
		Count:     count,
		MarksEach: marksEach,
	}, true
}

// MatchBare recognizes a section label with no mark declaration. Such a
// header only tags the following questions with the section letter; the
// per-line question grammar takes over for everything else.
func (m *sectionHeaderMatcher) MatchBare(line string) (string, bool) {
	groups := m.bare.FindStringSubmatch(line)
	if groups == nil {
		return "", false
	}
	return strings.ToUpper(groups[1]), true
}

// questionStartMatcher recognizes a numbered question opener with marks
// recoverable from any trailing annotation style.
type questionStartMatcher struct {
	start      *regexp.Regexp
	annotation []*regexp.Regexp
}

func newQuestionStartMatcher() *questionStartMatcher {
	return &questionStartMatcher{
		start: regexp.MustCompile(`(?i)^(?:Q\.?\s*|QUESTION\s+)?(\d+)\s*[.):]\s*(.*)$`),
		annotation: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\[\s*(\d+)\s*marks?\s*\]`),
			regexp.MustCompile(`(?i)\(\s*(\d+)\s*marks?\s*\)`),
			regexp.MustCompile(`(?i)\(\s*(\d+)\s*M\s*\)`),
			regexp.MustCompile(`(?i)(?:^|\s)(\d+)\s*marks?\s*$`),
		},
	}
}

// Match recognizes a question opener. HasMarks reports whether a marks
// annotation was found on the line; without one the fallback grammar
// applies and marks default to 1.
func (m *questionStartMatcher) Match(line string) (QuestionStart, bool) {
	groups := m.start.FindStringSubmatch(line)
	if groups == nil {
		return QuestionStart{}, false
	}
	number, err := strconv.Atoi(groups[1])
	if err != nil || number <= 0 {
		return QuestionStart{}, false
	}
	start := QuestionStart{Number: number, Text: strings.TrimSpace(groups[2]), Marks: 1}
	if marks, cleaned, ok := m.ExtractMarks(start.Text); ok {
		start.Marks = marks
		start.HasMarks = true
		start.Text = cleaned
	}
	return start, true
}

// ExtractMarks scans text for a marks annotation and returns the text with
// the annotation removed.
func (m *questionStartMatcher) ExtractMarks(text string) (int, string, bool) {
	for _, re := range m.annotation {
		groups := re.FindStringSubmatchIndex(text)
		if groups == nil {
			continue
		}
		marks, err := strconv.Atoi(text[groups[2]:groups[3]])
		if err != nil || marks <= 0 {
			continue
		}
		cleaned := strings.TrimSpace(text[:groups[0]] + text[groups[1]:])
		return marks, cleaned, true
	}
	return 0, text, false
}

// optionLineMatcher recognizes MCQ option markers: "A) text", "(b) text",
// "C. text" or numeric "1) text" through "4) text".
type optionLineMatcher struct {
	letter  *regexp.Regexp
	numeric *regexp.Regexp
}

func newOptionLineMatcher() *optionLineMatcher {
	return &optionLineMatcher{
		letter:  regexp.MustCompile(`^\(?([A-Da-d])[.)]\s+(.+)$`),
		numeric: regexp.MustCompile(`^\(?([1-4])\)\s+(.+)$`),
	}
}

func (m *optionLineMatcher) Match(line string) (OptionLine, bool) {
	if groups := m.letter.FindStringSubmatch(line); groups != nil {
		return OptionLine{Marker: strings.ToUpper(groups[1]), Text: strings.TrimSpace(groups[2])}, true
	}
	if groups := m.numeric.FindStringSubmatch(line); groups != nil {
		return OptionLine{Marker: groups[1], Numeric: true, Text: strings.TrimSpace(groups[2])}, true
	}
	return OptionLine{}, false
}

var orOptionRe = regexp.MustCompile(`(?i)(^|\s)OR(\s|$)|\bEither\b.*\bor\b|\(OR\)|\[OR\]`)

// diagram markers embedded by the OCR collaborator
var diagramMarkerRe = regexp.MustCompile(`(?i)\[(?:DIAGRAM|FIGURE|SHAPE)[^\]]*\]`)

// PaperParser recovers an ordered question list from a normalized
// question-paper transcript. It is a pure, synchronous text transform; the
// recognizers are tried per line in priority order, first match wins.
type PaperParser struct {
	sections  *sectionHeaderMatcher
	questions *questionStartMatcher
	options   *optionLineMatcher
	logger    *zap.Logger
}

// NewPaperParser creates a new PaperParser.
func NewPaperParser(logger *zap.Logger) *PaperParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperParser{
		sections:  newSectionHeaderMatcher(),
		questions: newQuestionStartMatcher(),
		options:   newOptionLineMatcher(),
		logger:    logger,
	}
}

// buildingQuestion accumulates one question during the scan.
type buildingQuestion struct {
	number      int
	lines       []string
	marks       int
	marksFixed  bool // marks came from a section header or explicit annotation
	section     string
	options     map[string]string
	optionOrder []string
	hasDiagram  bool
	numericOpts bool
}

// Parse recovers the paper's questions, numbered contiguously from 1.
func (p *PaperParser) Parse(raw string) []domain.Question {
	questions, _ := p.ParseFrom(raw, 1)
	return questions
}

// ParseFrom parses with an explicit running question counter, so multi-page
// papers can be parsed page by page without shared state. It returns the
// questions and the next unused number.
func (p *PaperParser) ParseFrom(raw string, nextNumber int) ([]domain.Question, int) {
	var built []*buildingQuestion
	var current *buildingQuestion
	var slots []*buildingQuestion
	fillIdx := 0
	currentSection := ""
	counter := nextNumber

	for _, rawLine := range strings.Split(raw, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		if header, ok := p.sections.Match(line); ok {
			current = nil
			currentSection = header.Letter
			slots = make([]*buildingQuestion, 0, header.Count)
			for i := 0; i < header.Count; i++ {
				q := &buildingQuestion{
					number:     counter,
					marks:      header.MarksEach,
					marksFixed: true,
					section:    header.Letter,
				}
				counter++
				slots = append(slots, q)
				built = append(built, q)
			}
			fillIdx = 0
			p.logger.Debug("Section header recognized",
				zap.String("section", header.Letter),
				zap.Int("count", header.Count),
				zap.Int("marks_each", header.MarksEach))
			continue
		}

		if letter, ok := p.sections.MatchBare(line); ok {
			// Malformed or markless header: no bulk questions, just tag
			// the following per-line questions with the letter.
			current = nil
			slots = nil
			currentSection = letter
			continue
		}

		if opt, ok := p.options.Match(line); ok && current != nil && p.acceptOption(current, opt, counter) {
			if current.options == nil {
				current.options = make(map[string]string)
			}
			if opt.Numeric {
				current.numericOpts = true
			}
			if _, seen := current.options[opt.Marker]; !seen {
				current.optionOrder = append(current.optionOrder, opt.Marker)
			}
			current.options[opt.Marker] = opt.Text
			continue
		}

		if start, ok := p.questions.Match(line); ok {
			if slots != nil && fillIdx < len(slots) {
				current = slots[fillIdx]
				fillIdx++
				current.lines = append(current.lines, start.Text)
				continue
			}
			slots = nil
			current = &buildingQuestion{
				number:     counter,
				lines:      []string{start.Text},
				marks:      start.Marks,
				marksFixed: start.HasMarks,
				section:    currentSection,
			}
			counter++
			built = append(built, current)
			continue
		}

		if current != nil {
			if diagramMarkerRe.MatchString(line) {
				current.hasDiagram = true
				cleaned := strings.TrimSpace(diagramMarkerRe.ReplaceAllString(line, ""))
				if cleaned != "" {
					current.lines = append(current.lines, cleaned)
				}
				continue
			}
			current.lines = append(current.lines, line)
			continue
		}

		// Preamble or instructions before the first question.
		p.logger.Debug("Ignoring unattached paper line", zap.String("line", line))
	}

	questions := make([]domain.Question, 0, len(built))
	for _, b := range built {
		questions = append(questions, p.finalize(b))
	}
	return questions, counter
}

// acceptOption guards the ambiguous numeric markers: "1)" could open source
// question 1 or option 1. A numeric marker is treated as an option only
// when it continues an option run already in progress, or opens one while
// the same number could not be the next source question.
func (p *PaperParser) acceptOption(current *buildingQuestion, opt OptionLine, counter int) bool {
	if !opt.Numeric {
		return true
	}
	if len(current.optionOrder) > 0 {
		return true
	}
	n, _ := strconv.Atoi(opt.Marker)
	return n == 1 && len(current.lines) > 0 && counter != 1
}

func (p *PaperParser) finalize(b *buildingQuestion) domain.Question {
	text := strings.TrimSpace(strings.Join(b.lines, " "))

	marks := b.marks
	if !b.marksFixed {
		if extracted, cleaned, ok := p.questions.ExtractMarks(text); ok {
			marks = extracted
			text = cleaned
		}
	}
	if marks <= 0 {
		marks = 1
	}

	q := domain.Question{
		Number:      b.number,
		Text:        text,
		Marks:       marks,
		Section:     b.section,
		HasOrOption: orOptionRe.MatchString(text),
		HasDiagram:  b.hasDiagram,
	}

	if len(b.options) >= 2 {
		q.Type = domain.QuestionTypeMCQ
		q.Options = canonicalizeOptions(b)
	} else {
		q.Type = domain.InferQuestionType(marks)
	}
	return q
}

// canonicalizeOptions maps numeric markers 1-4 to letters A-D in the order
// they were encountered; letter markers pass through unchanged.
func canonicalizeOptions(b *buildingQuestion) map[string]string {
	options := make(map[string]string, len(b.options))
	if !b.numericOpts {
		for marker, text := range b.options {
			options[marker] = text
		}
		return options
	}
	for i, marker := range b.optionOrder {
		letter := marker
		if marker >= "1" && marker <= "4" {
			letter = string(rune('A' + i))
		}
		options[letter] = b.options[marker]
	}
	return options
}
