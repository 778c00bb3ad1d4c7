package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labmate/labmate/internal/parser"
)

func indices(res Result) []int {
	out := make([]int, len(res.Tasks))
	for i, t := range res.Tasks {
		out[i] = t.Index
	}
	return out
}

func TestExtractBasic(t *testing.T) {
	doc := parser.ParseText(strings.Join([]string{
		"Lab Assignment 4",                     // 0 preamble
		"B. Questions/Programs:",               // 1 section
		"1.Write a Python program to add",      // 2
		"two numbers and show the output.",     // 3
		"a = 1",                                // 4
		"b = 2",                                // 5
		"print(a + b)",                         // 6
		"Output:",                              // 7
		"2.Explain recursion with an example.", // 8
		"",                                     // 9
	}, "\n"))

	res := Extract(doc)
	require.Len(t, res.Tasks, 2)
	assert.False(t, res.NonSequential)

	first := res.Tasks[0]
	assert.Equal(t, 1, first.Index)
	assert.Equal(t, "B", first.Section)
	assert.Equal(t, "1.Write a Python program to add\ntwo numbers and show the output.", first.Question)
	assert.Equal(t, "a = 1\nb = 2\nprint(a + b)", first.Code)
	assert.True(t, first.RequiresScreenshot)
	assert.Equal(t, 2, first.Start)
	assert.Equal(t, 4, first.QuestionEnd)
	assert.Equal(t, 8, first.End)

	second := res.Tasks[1]
	assert.Equal(t, 2, second.Index)
	assert.Equal(t, "2.Explain recursion with an example.", second.Question)
	assert.Empty(t, second.Code)
	assert.False(t, second.RequiresScreenshot)
	assert.Equal(t, 9, second.QuestionEnd)
	assert.Equal(t, 10, second.End)
}

func TestExtractNormalisesNumbering(t *testing.T) {
	tests := []struct {
		name          string
		lines         []string
		nonSequential bool
	}{
		{
			name:  "sequential",
			lines: []string{"1.First", "2.Second", "3.Third"},
		},
		{
			name:          "starts at three",
			lines:         []string{"3.First", "4.Second"},
			nonSequential: true,
		},
		{
			name:          "repeated number",
			lines:         []string{"1.First", "1.Again", "2.Second"},
			nonSequential: true,
		},
		{
			name:          "out of order",
			lines:         []string{"2.First", "1.Second", "5.Third", "Question 9: Fourth"},
			nonSequential: true,
		},
		{
			name:  "keyword labels",
			lines: []string{"Question 1: Write a program", "Task 2: Demonstrate recursion"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Extract(parser.ParseText(strings.Join(tt.lines, "\n")))
			want := make([]int, len(res.Tasks))
			for i := range want {
				want[i] = i + 1
			}
			assert.Equal(t, want, indices(res), "indices must be contiguous from 1")
			assert.Equal(t, tt.nonSequential, res.NonSequential)
		})
	}
}

func TestExtractRawNumbersKept(t *testing.T) {
	res := Extract(parser.ParseText("7.Seven\n3.Three"))
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, 7, res.Tasks[0].RawNumber)
	assert.Equal(t, 3, res.Tasks[1].RawNumber)
	assert.Equal(t, []int{1, 2}, indices(res))
}

func TestExtractZeroBoundaries(t *testing.T) {
	text := "Write a function that reverses a string.\nShow the output.\ndef rev(s):\n    return s[::-1]\n"
	res := Extract(parser.ParseText(text))

	require.Len(t, res.Tasks, 1)
	task := res.Tasks[0]
	assert.Equal(t, 1, task.Index)
	assert.Equal(t, 0, task.Start)
	assert.Equal(t, 5, task.End)
	assert.Equal(t, "Write a function that reverses a string.\nShow the output.", task.Question)
	assert.Equal(t, "def rev(s):\n    return s[::-1]", task.Code)
	assert.True(t, task.RequiresScreenshot)
}

func TestExtractSectionsOnly(t *testing.T) {
	res := Extract(parser.ParseText("A. Aim\nLearn loops.\nB. Procedure\nUse for loops."))
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, 1, res.Tasks[0].Index)
	assert.Equal(t, 4, res.Tasks[0].End)
}

func TestExtractEmptyDocument(t *testing.T) {
	res := Extract(&parser.Document{})
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, 1, res.Tasks[0].Index)
	assert.Empty(t, res.Tasks[0].Question)
}

func TestExtractFormatCodeSpans(t *testing.T) {
	doc := &parser.Document{
		Lines: []string{
			"1.Print a numbered list",
			"  1. this line is inside a code block",
			"a. not a section either",
			"2.Next task",
		},
		PageStarts: []int{0},
		CodeSpans:  []parser.Span{{Start: 1, End: 3}},
	}

	res := Extract(doc)
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, "  1. this line is inside a code block\na. not a section either", res.Tasks[0].Code)
	assert.Equal(t, 1, res.Tasks[0].QuestionEnd)
}

func TestExtractTaskHeadingInFormatCodeSpan(t *testing.T) {
	doc := &parser.Document{
		Lines: []string{
			"1.Print the numbers",
			"2.Write a program using the range() function.",
			"for i in range(3):",
			"3.Explain range",
		},
		PageStarts: []int{0},
		CodeSpans:  []parser.Span{{Start: 1, End: 3}},
	}

	res := Extract(doc)
	require.Len(t, res.Tasks, 3)
	assert.False(t, res.NonSequential)
	assert.Empty(t, res.Tasks[0].Code)
	assert.Equal(t, 2, res.Tasks[1].RawNumber)
	assert.Equal(t, "2.Write a program using the range() function.", res.Tasks[1].Question)
	assert.Equal(t, "for i in range(3):", res.Tasks[1].Code)
	assert.Equal(t, 3, res.Tasks[2].RawNumber)
}

func TestExtractFencedCode(t *testing.T) {
	text := "Question 1: Sum a list\n```python\nnums = [1, 2]\nprint(sum(nums))\n```\nQuestion 2: Explain sum"
	res := Extract(parser.ParseText(text))
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, "nums = [1, 2]\nprint(sum(nums))", res.Tasks[0].Code)
	assert.Equal(t, 1, res.Tasks[0].QuestionEnd)
}

func TestExtractFencedCodeHidesBoundaries(t *testing.T) {
	text := "1.Print a list\n```\n2. not a task\nprint(2)\n```\n2.Explain it"
	res := Extract(parser.ParseText(text))
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, "2. not a task\nprint(2)", res.Tasks[0].Code)
	assert.False(t, res.NonSequential)
}

func TestExtractCustomDetector(t *testing.T) {
	ex := &Extractor{IsCode: func(line string) bool { return strings.HasPrefix(line, ">>> ") }}
	res := ex.Extract(parser.ParseText("1.Try the shell\n>>> 1 + 1\nx = 1"))
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, ">>> 1 + 1", res.Tasks[0].Code)
	assert.Equal(t, "1.Try the shell", res.Tasks[0].Question)
}
