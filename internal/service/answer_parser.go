package service

import (
	"regexp"
	"strconv"
	"strings"

	"papergrade/internal/config"
	"papergrade/internal/domain"

	"go.uber.org/zap"
)

// answerStart is a recognized numbering marker opening a new answer body.
type answerStart struct {
	number int
	text   string
}

// plainNumberMatcher recognizes "1." / "12)" markers.
type plainNumberMatcher struct{ re *regexp.Regexp }

func newPlainNumberMatcher() *plainNumberMatcher {
	return &plainNumberMatcher{re: regexp.MustCompile(`^(\d{1,3})[.)]\s*(.*)$`)}
}

func (m *plainNumberMatcher) Match(line string) (answerStart, bool) {
	groups := m.re.FindStringSubmatch(line)
	if groups == nil {
		return answerStart{}, false
	}
	n, err := strconv.Atoi(groups[1])
	if err != nil || n <= 0 {
		return answerStart{}, false
	}
	return answerStart{number: n, text: groups[2]}, true
}

// prefixedNumberMatcher recognizes "Q1.", "Question 3:", "Ans 2)" and
// similar prefixed markers students write.
type prefixedNumberMatcher struct{ re *regexp.Regexp }

func newPrefixedNumberMatcher() *prefixedNumberMatcher {
	return &prefixedNumberMatcher{
		re: regexp.MustCompile(`(?i)^(?:Q(?:ues(?:tion)?)?|Ans(?:wer)?|Sol(?:ution)?)[.\-\s]*(\d{1,3})\s*[.):]?\s*(.*)$`),
	}
}

func (m *prefixedNumberMatcher) Match(line string) (answerStart, bool) {
	groups := m.re.FindStringSubmatch(line)
	if groups == nil {
		return answerStart{}, false
	}
	n, err := strconv.Atoi(groups[1])
	if err != nil || n <= 0 {
		return answerStart{}, false
	}
	return answerStart{number: n, text: groups[2]}, true
}

// subPartMatcher recognizes "1(a)", "2 (iii)" markers. The sub-part label
// is kept inside the body so multiple parts accumulate under the main
// question number.
type subPartMatcher struct{ re *regexp.Regexp }

func newSubPartMatcher() *subPartMatcher {
	return &subPartMatcher{re: regexp.MustCompile(`^(\d{1,3})\s*\(\s*([a-zA-Z]{1,4})\s*\)\s*(.*)$`)}
}

func (m *subPartMatcher) Match(line string) (answerStart, bool) {
	groups := m.re.FindStringSubmatch(line)
	if groups == nil {
		return answerStart{}, false
	}
	n, err := strconv.Atoi(groups[1])
	if err != nil || n <= 0 {
		return answerStart{}, false
	}
	return answerStart{number: n, text: "(" + strings.ToLower(groups[2]) + ") " + groups[3]}, true
}

// bracketedNumberMatcher recognizes "(1)" markers.
type bracketedNumberMatcher struct{ re *regexp.Regexp }

func newBracketedNumberMatcher() *bracketedNumberMatcher {
	return &bracketedNumberMatcher{re: regexp.MustCompile(`^\((\d{1,3})\)\s*(.*)$`)}
}

func (m *bracketedNumberMatcher) Match(line string) (answerStart, bool) {
	groups := m.re.FindStringSubmatch(line)
	if groups == nil {
		return answerStart{}, false
	}
	n, err := strconv.Atoi(groups[1])
	if err != nil || n <= 0 {
		return answerStart{}, false
	}
	return answerStart{number: n, text: groups[2]}, true
}

// romanNumberMatcher recognizes "i.", "ii)", "(iv)" markers. Numerals are
// only mapped through a table built from the numerals observed in this
// document, so an incidental line like "I. Newton" in a sheet with no
// roman numbering never becomes an answer marker.
type romanNumberMatcher struct{ re *regexp.Regexp }

func newRomanNumberMatcher() *romanNumberMatcher {
	return &romanNumberMatcher{
		re: regexp.MustCompile(`(?i)^(?:\(([ivxl]{1,7})\)|([ivxl]{1,7})[.)])\s*(.*)$`),
	}
}

func (m *romanNumberMatcher) token(line string) (string, string, bool) {
	groups := m.re.FindStringSubmatch(line)
	if groups == nil {
		return "", "", false
	}
	token := groups[1]
	if token == "" {
		token = groups[2]
	}
	return strings.ToLower(token), groups[3], true
}

// Match resolves the numeral against the observed-ordinal table.
func (m *romanNumberMatcher) Match(line string, table map[string]int) (answerStart, bool) {
	token, text, ok := m.token(line)
	if !ok {
		return answerStart{}, false
	}
	n, known := table[token]
	if !known {
		return answerStart{}, false
	}
	return answerStart{number: n, text: text}, true
}

var romanValues = map[byte]int{'i': 1, 'v': 5, 'x': 10, 'l': 50}

func romanToInt(numeral string) int {
	total := 0
	for i := 0; i < len(numeral); i++ {
		v := romanValues[numeral[i]]
		if v == 0 {
			return 0
		}
		if i+1 < len(numeral) && romanValues[numeral[i+1]] > v {
			total -= v
		} else {
			total += v
		}
	}
	return total
}

var (
	answerPrefixRe = regexp.MustCompile(`(?i)^(?:Answer|Ans|Sol(?:ution)?)\s*[:\-]\s*`)
	blankRunsRe    = regexp.MustCompile(`\n{3,}`)
	standaloneMCQ  = regexp.MustCompile(`(?i)^\(?([A-D])\)?$`)
	bareDigitRe    = regexp.MustCompile(`^[1-4]$`)
)

// ParsedAnswers is the output of the answer transcript parser: an answer
// body per recognized question number plus the lines nothing could claim.
type ParsedAnswers struct {
	Answers   map[int]string
	Unmatched []domain.UnmatchedFragment

	shortFragments int
}

// AnswerParser recovers a question-number to answer-text mapping from a
// normalized handwritten answer-sheet transcript. Like the paper parser it
// is a pure, synchronous transform; recognizers run in fixed priority
// order per line.
type AnswerParser struct {
	cfg       config.AnswerParserConfig
	plain     *plainNumberMatcher
	prefixed  *prefixedNumberMatcher
	subPart   *subPartMatcher
	bracketed *bracketedNumberMatcher
	roman     *romanNumberMatcher
	logger    *zap.Logger
}

// NewAnswerParser creates a new AnswerParser.
func NewAnswerParser(cfg config.AnswerParserConfig, logger *zap.Logger) *AnswerParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MCQMinShortFragments <= 0 {
		cfg.MCQMinShortFragments = 10
	}
	if cfg.MCQMaxFragmentLength <= 0 {
		cfg.MCQMaxFragmentLength = 3
	}
	return &AnswerParser{
		cfg:       cfg,
		plain:     newPlainNumberMatcher(),
		prefixed:  newPrefixedNumberMatcher(),
		subPart:   newSubPartMatcher(),
		bracketed: newBracketedNumberMatcher(),
		roman:     newRomanNumberMatcher(),
		logger:    logger,
	}
}

// Parse scans the transcript line by line. Pages are separated by form
// feeds; the page index is carried into unmatched-fragment diagnostics.
func (p *AnswerParser) Parse(raw string) *ParsedAnswers {
	result := &ParsedAnswers{Answers: make(map[int]string)}
	if strings.TrimSpace(raw) == "" {
		p.logger.Warn("Empty answer transcript received")
		return result
	}

	if mcq := p.tryPureMCQSheet(raw); mcq != nil {
		result.Answers = mcq
		result.shortFragments = len(mcq)
		p.logger.Info("Detected pure MCQ sheet", zap.Int("answers", len(mcq)))
		return result
	}

	romanTable := p.buildRomanTable(raw)

	pageIdx := 0
	currentNumber := 0
	var currentBody []string

	closeBody := func() {
		if currentNumber == 0 {
			return
		}
		body := strings.Join(currentBody, "\n")
		if existing, ok := result.Answers[currentNumber]; ok && existing != "" {
			// Student reused a number (continuation on a later page);
			// never lose text.
			result.Answers[currentNumber] = existing + "\n" + body
		} else {
			result.Answers[currentNumber] = body
		}
		currentNumber = 0
		currentBody = nil
	}

	for _, rawLine := range strings.Split(raw, "\n") {
		if strings.Contains(rawLine, "\f") {
			pageIdx += strings.Count(rawLine, "\f")
			rawLine = strings.ReplaceAll(rawLine, "\f", "")
		}
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		if start, ok := p.matchStart(line, romanTable); ok {
			closeBody()
			currentNumber = start.number
			if text := strings.TrimSpace(start.text); text != "" {
				currentBody = append(currentBody, text)
			}
			continue
		}

		if currentNumber != 0 {
			currentBody = append(currentBody, line)
			continue
		}

		result.Unmatched = append(result.Unmatched, domain.UnmatchedFragment{
			PageIndex: pageIdx,
			RawText:   line,
		})
	}
	closeBody()

	for number, body := range result.Answers {
		cleaned := p.cleanBody(body)
		result.Answers[number] = cleaned
		if len(cleaned) <= p.cfg.MCQMaxFragmentLength {
			result.shortFragments++
		}
	}

	p.logger.Info("Answer transcript parsed",
		zap.Int("answers", len(result.Answers)),
		zap.Int("unmatched", len(result.Unmatched)))
	return result
}

// matchStart tries the numbering recognizers in fixed priority order.
func (p *AnswerParser) matchStart(line string, romanTable map[string]int) (answerStart, bool) {
	if start, ok := p.subPart.Match(line); ok {
		return start, true
	}
	if start, ok := p.plain.Match(line); ok {
		return start, true
	}
	if start, ok := p.prefixed.Match(line); ok {
		return start, true
	}
	if start, ok := p.bracketed.Match(line); ok {
		return start, true
	}
	if start, ok := p.roman.Match(line, romanTable); ok {
		return start, true
	}
	return answerStart{}, false
}

// buildRomanTable collects the roman numerals observed as line markers and
// accepts them as numbering only when they form a run starting at i with
// no gaps. Anything else is treated as incidental text.
func (p *AnswerParser) buildRomanTable(raw string) map[string]int {
	var observed []string
	for _, rawLine := range strings.Split(raw, "\n") {
		line := strings.TrimSpace(strings.ReplaceAll(rawLine, "\f", ""))
		if line == "" {
			continue
		}
		if _, ok := p.subPart.Match(line); ok {
			continue
		}
		if _, ok := p.plain.Match(line); ok {
			continue
		}
		if _, ok := p.bracketed.Match(line); ok {
			continue
		}
		if token, _, ok := p.roman.token(line); ok {
			observed = append(observed, token)
		}
	}
	if len(observed) == 0 {
		return nil
	}

	table := make(map[string]int, len(observed))
	prev := 0
	for _, token := range observed {
		value := romanToInt(token)
		if value <= 0 || value > prev+1 {
			p.logger.Debug("Rejecting roman numbering, sequence not contiguous",
				zap.String("token", token))
			return nil
		}
		if value > prev {
			prev = value
		}
		table[token] = value
	}
	if _, ok := table["i"]; !ok {
		return nil
	}
	return table
}

// tryPureMCQSheet detects sheets where nearly every line is a standalone
// option letter; answers are then assigned positionally.
func (p *AnswerParser) tryPureMCQSheet(raw string) map[int]string {
	var lines []string
	for _, rawLine := range strings.Split(raw, "\n") {
		line := strings.TrimSpace(strings.ReplaceAll(rawLine, "\f", ""))
		if line != "" {
			lines = append(lines, line)
		}
	}

	var letters []string
	for _, line := range lines {
		if groups := standaloneMCQ.FindStringSubmatch(line); groups != nil {
			letters = append(letters, strings.ToUpper(groups[1]))
		}
	}

	threshold := len(lines) * 7 / 10
	if threshold < 3 {
		threshold = 3
	}
	if len(letters) < threshold {
		return nil
	}

	answers := make(map[int]string, len(letters))
	for i, letter := range letters {
		answers[i+1] = letter
	}
	return answers
}

func (p *AnswerParser) cleanBody(body string) string {
	body = strings.TrimSpace(body)
	body = answerPrefixRe.ReplaceAllString(body, "")
	body = blankRunsRe.ReplaceAllString(body, "\n\n")
	return strings.TrimSpace(body)
}

// ReinterpretMCQDigits rewrites bare digits 1-4 as letters A-D for
// questions flagged MCQ, once the sheet looks like an MCQ sheet (enough
// short fragments). Fragments that are already alphabetic are untouched.
func (p *AnswerParser) ReinterpretMCQDigits(parsed *ParsedAnswers, isMCQ func(questionNumber int) bool) {
	if parsed.shortFragments < p.cfg.MCQMinShortFragments {
		return
	}
	digitToLetter := map[string]string{"1": "A", "2": "B", "3": "C", "4": "D"}
	for number, answer := range parsed.Answers {
		if !isMCQ(number) {
			continue
		}
		if !bareDigitRe.MatchString(strings.TrimSpace(answer)) {
			continue
		}
		parsed.Answers[number] = digitToLetter[strings.TrimSpace(answer)]
	}
}
