package service

import (
	"fmt"
	"strings"
	"testing"

	"papergrade/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnswerParser() *AnswerParser {
	return NewAnswerParser(config.AnswerParserConfig{
		MCQMinShortFragments: 10,
		MCQMaxFragmentLength: 3,
	}, nil)
}

func TestAnswerParserPlainNumbering(t *testing.T) {
	parser := newTestAnswerParser()

	parsed := parser.Parse(`1. Osmosis is the movement of water
across a semipermeable membrane.
2) Force equals mass times acceleration.`)

	require.Len(t, parsed.Answers, 2)
	assert.Equal(t, "Osmosis is the movement of water\nacross a semipermeable membrane.", parsed.Answers[1])
	assert.Equal(t, "Force equals mass times acceleration.", parsed.Answers[2])
	assert.Empty(t, parsed.Unmatched)
}

func TestAnswerParserPrefixedNumbering(t *testing.T) {
	parser := newTestAnswerParser()

	parsed := parser.Parse(`Q1. The mitochondria is the powerhouse of the cell.
Ans 2: Paris is the capital of France.
Question 3) Water boils at 100 degrees Celsius.`)

	require.Len(t, parsed.Answers, 3)
	assert.Contains(t, parsed.Answers[1], "mitochondria")
	assert.Contains(t, parsed.Answers[2], "Paris")
	assert.Contains(t, parsed.Answers[3], "100 degrees")
}

func TestAnswerParserSubPartsMergeUnderMainNumber(t *testing.T) {
	parser := newTestAnswerParser()

	parsed := parser.Parse(`1(a) The numerator is 3.
1(b) The denominator is 4.`)

	require.Len(t, parsed.Answers, 1)
	assert.Equal(t, "(a) The numerator is 3.\n(b) The denominator is 4.", parsed.Answers[1])
}

func TestAnswerParserBracketedNumbering(t *testing.T) {
	parser := newTestAnswerParser()

	parsed := parser.Parse(`(1) Hydrogen
(2) Helium`)

	require.Len(t, parsed.Answers, 2)
	assert.Equal(t, "Hydrogen", parsed.Answers[1])
	assert.Equal(t, "Helium", parsed.Answers[2])
}

func TestAnswerParserRomanNumbering(t *testing.T) {
	parser := newTestAnswerParser()

	parsed := parser.Parse(`i. The first law of motion.
ii. The second law of motion.
iii. The third law of motion.`)

	require.Len(t, parsed.Answers, 3)
	assert.Contains(t, parsed.Answers[1], "first law")
	assert.Contains(t, parsed.Answers[3], "third law")
}

func TestAnswerParserRejectsNonContiguousRomanNumerals(t *testing.T) {
	parser := newTestAnswerParser()

	// A stray numeral without a run starting at i is incidental text,
	// not numbering.
	parsed := parser.Parse(`iv. note in the margin
1. The real answer.`)

	require.Len(t, parsed.Answers, 1)
	assert.Equal(t, "The real answer.", parsed.Answers[1])
	require.Len(t, parsed.Unmatched, 1)
	assert.Equal(t, "iv. note in the margin", parsed.Unmatched[0].RawText)
}

func TestAnswerParserUnmatchedFragmentsCarryPageIndex(t *testing.T) {
	parser := newTestAnswerParser()

	parsed := parser.Parse("scribble on page one\n\f\nscribble on page two")

	require.Len(t, parsed.Unmatched, 2)
	assert.Equal(t, 0, parsed.Unmatched[0].PageIndex)
	assert.Equal(t, 1, parsed.Unmatched[1].PageIndex)
	assert.Empty(t, parsed.Answers)
}

func TestAnswerParserStripsAnswerPrefix(t *testing.T) {
	parser := newTestAnswerParser()

	parsed := parser.Parse(`1. Ans: Paris
2. Answer - The speed of light`)

	assert.Equal(t, "Paris", parsed.Answers[1])
	assert.Equal(t, "The speed of light", parsed.Answers[2])
}

func TestAnswerParserPureMCQSheet(t *testing.T) {
	parser := newTestAnswerParser()

	parsed := parser.Parse("A\nC\n(B)\nD")

	require.Len(t, parsed.Answers, 4)
	assert.Equal(t, "A", parsed.Answers[1])
	assert.Equal(t, "C", parsed.Answers[2])
	assert.Equal(t, "B", parsed.Answers[3])
	assert.Equal(t, "D", parsed.Answers[4])
	assert.Empty(t, parsed.Unmatched)
}

func TestAnswerParserReinterpretMCQDigits(t *testing.T) {
	parser := newTestAnswerParser()

	var b strings.Builder
	digits := []string{"1", "3", "2", "4", "1", "2", "3", "4", "2", "1"}
	for i, d := range digits {
		fmt.Fprintf(&b, "%d. %s\n", i+1, d)
	}
	parsed := parser.Parse(b.String())
	require.Len(t, parsed.Answers, 10)

	parser.ReinterpretMCQDigits(parsed, func(n int) bool { return n != 2 })

	assert.Equal(t, "A", parsed.Answers[1])
	// Question 2 is not an MCQ; its digit stays.
	assert.Equal(t, "3", parsed.Answers[2])
	assert.Equal(t, "B", parsed.Answers[3])
	assert.Equal(t, "D", parsed.Answers[4])
}

func TestAnswerParserReinterpretSkipsLongFormSheets(t *testing.T) {
	parser := newTestAnswerParser()

	parsed := parser.Parse(`1. 2
2. A full sentence answer that is clearly not an option pick.`)

	parser.ReinterpretMCQDigits(parsed, func(int) bool { return true })

	// Too few short fragments to look like an MCQ sheet.
	assert.Equal(t, "2", parsed.Answers[1])
}

func TestAnswerParserEmptyTranscript(t *testing.T) {
	parser := newTestAnswerParser()

	parsed := parser.Parse("   \n\n  ")
	assert.Empty(t, parsed.Answers)
	assert.Empty(t, parsed.Unmatched)
}

func TestRomanToInt(t *testing.T) {
	tests := []struct {
		numeral  string
		expected int
	}{
		{"i", 1}, {"ii", 2}, {"iv", 4}, {"ix", 9}, {"xl", 40}, {"q", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, romanToInt(tt.numeral), tt.numeral)
	}
}
