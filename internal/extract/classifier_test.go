package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Boundary
		wantHit bool
	}{
		{
			name:    "numbered without space",
			line:    "1.Write a Python program to demonstrate the use of iterator and generator functions.",
			want:    Boundary{Kind: BoundaryNumbered, Number: 1},
			wantHit: true,
		},
		{
			name:    "numbered with space",
			line:    "12. Implement binary search",
			want:    Boundary{Kind: BoundaryNumbered, Number: 12},
			wantHit: true,
		},
		{
			name:    "section heading",
			line:    "B. Questions/Programs:",
			want:    Boundary{Kind: BoundarySection, Section: "B"},
			wantHit: true,
		},
		{
			name:    "lowercase section letter",
			line:    "c. Viva questions",
			want:    Boundary{Kind: BoundarySection, Section: "c"},
			wantHit: true,
		},
		{
			name:    "question label",
			line:    "Question 1: Write a program",
			want:    Boundary{Kind: BoundaryKeyword, Number: 1},
			wantHit: true,
		},
		{
			name:    "task label",
			line:    "Task 2: Demonstrate recursion",
			want:    Boundary{Kind: BoundaryKeyword, Number: 2},
			wantHit: true,
		},
		{
			name:    "exercise label",
			line:    "Exercise 4 - sorting",
			want:    Boundary{Kind: BoundaryKeyword, Number: 4},
			wantHit: true,
		},
		{name: "plain prose", line: "Write a program that prints the first ten primes."},
		{name: "decimal at line start", line: "3.14 is an approximation of pi"},
		{name: "decimal mid sentence", line: "The value 2.5 is rounded to 3."},
		{name: "leading whitespace before number", line: "  1. nested list item"},
		{name: "keyword labels are case-sensitive", line: "question 1: lowercase label"},
		{name: "keyword mid sentence", line: "See Task 3: for details"},
		{name: "abbreviation", line: "e.g. use a list comprehension"},
		{name: "empty line", line: ""},
		{name: "ellipsis", line: "1... and so on"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.line)
			assert.Equal(t, tt.wantHit, ok)
			if tt.wantHit {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestClassifyPriority(t *testing.T) {
	// numbered beats keyword even when the line also carries a label later on
	b, ok := Classify("3.Question 5: which number wins")
	assert.True(t, ok)
	assert.Equal(t, BoundaryNumbered, b.Kind)
	assert.Equal(t, 3, b.Number)

	section, ok := Classify("A. Task 1: setup")
	assert.True(t, ok)
	assert.Equal(t, BoundarySection, section.Kind)
	assert.False(t, section.IsTask())
	assert.Zero(t, section.Number)
}

func TestLooksLikeCode(t *testing.T) {
	code := []string{
		"def fib(n):",
		"    return n",
		"\tpass",
		"import itertools",
		"for i in range(10):",
		"print(i)",
		"x = [1, 2, 3]",
		"a, b = b, a + b",
		"total += 1",
		"# compute the sum",
		"if __name__ == \"__main__\":",
		"main()",
	}
	for _, line := range code {
		assert.True(t, LooksLikeCode(line), line)
	}

	prose := []string{
		"Write a program for adding two numbers.",
		"The result is shown below",
		"Explain the difference between a list and a tuple.",
		"",
		"If x == y the loop stops.",
	}
	for _, line := range prose {
		assert.False(t, LooksLikeCode(line), line)
	}
}

func TestMentionsScreenshot(t *testing.T) {
	assert.True(t, MentionsScreenshot("Attach a Screenshot of the result"))
	assert.True(t, MentionsScreenshot("Show OUTPUT for n = 5"))
	assert.True(t, MentionsScreenshot("Run this code and explain"))
	assert.False(t, MentionsScreenshot("Explain recursion"))
}
