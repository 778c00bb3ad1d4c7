// Package extract partitions extracted document lines into numbered tasks
package extract

import (
	"regexp"
	"strconv"
)

// BoundaryKind tells which pattern recognised a boundary
type BoundaryKind int

// Boundary kinds, in priority order
const (
	// BoundaryNumbered is a line starting with "N." such as "1.Write a program"
	BoundaryNumbered BoundaryKind = iota + 1
	// BoundarySection is a lettered section heading such as "B. Questions/Programs:"
	BoundarySection
	// BoundaryKeyword is a labelled item such as "Question 1:" or "Task 2:"
	BoundaryKeyword
)

func (k BoundaryKind) String() string {
	switch k {
	case BoundaryNumbered:
		return "numbered"
	case BoundarySection:
		return "section"
	case BoundaryKeyword:
		return "keyword"
	default:
		return "none"
	}
}

// Boundary is a line recognised as the start of a task or section
type Boundary struct {
	Kind BoundaryKind
	// Number is the task number found in the line; zero for sections
	Number int
	// Section is the section letter, set only for sections
	Section string
}

// IsTask reports whether the boundary opens a numbered task
func (b Boundary) IsTask() bool {
	return b.Kind == BoundaryNumbered || b.Kind == BoundaryKeyword
}

var (
	// "12." not followed by another digit, so "3.14 is pi" stays prose
	numberedPattern = regexp.MustCompile(`^(\d{1,3})\.(?:[^\d.]|$)`)
	// a single letter, a period and whitespace; "e.g." does not match
	sectionPattern = regexp.MustCompile(`(?i)^([a-z])\.(?:\s|$)`)
	keywordPattern = regexp.MustCompile(`^(?:Question|Task|Problem|Exercise)\s+(\d{1,3})\b\s*[:.)\-]?`)
)

// Classify decides whether line starts a new task or section. Patterns are
// anchored at the start of the raw line and tried in priority order:
// numbered, then section, then keyword. ok is false for continuation text.
func Classify(line string) (b Boundary, ok bool) {
	if m := numberedPattern.FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Boundary{Kind: BoundaryNumbered, Number: n}, true
	}
	if m := sectionPattern.FindStringSubmatch(line); m != nil {
		return Boundary{Kind: BoundarySection, Section: m[1]}, true
	}
	if m := keywordPattern.FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Boundary{Kind: BoundaryKeyword, Number: n}, true
	}
	return Boundary{}, false
}
