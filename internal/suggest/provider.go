// Package suggest proposes AI tasks, code, answers and captions for lab documents
package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/labmate/labmate/internal/types"
)

// TaskContext is one extracted task handed to the provider for analysis
type TaskContext struct {
	Index    int
	Section  string
	Question string
	Code     string
}

// AnalyzeRequest asks for task candidates covering a document
type AnalyzeRequest struct {
	Filename string
	Tasks    []TaskContext
}

// ConfidenceScale tells how a candidate's confidence was reported
type ConfidenceScale int

const (
	// ScaleAuto reads values in (0, 1] as fractions and larger values as
	// percentages, so 1 means fully confident
	ScaleAuto ConfidenceScale = iota
	// ScaleFraction is 0..1
	ScaleFraction
	// ScalePercent is 0..100
	ScalePercent
)

// ParseConfidenceScale converts "auto", "fraction" or "percent"
func ParseConfidenceScale(s string) (ConfidenceScale, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ScaleAuto, nil
	case "fraction":
		return ScaleFraction, nil
	case "percent":
		return ScalePercent, nil
	default:
		return ScaleAuto, fmt.Errorf("invalid confidence scale %q: expected auto, fraction or percent", s)
	}
}

// Candidate is a task proposed by the provider. Confidence is read on
// ConfidenceScale.
type Candidate struct {
	Key                string
	TaskIndex          int
	Type               types.TaskType
	Question           string
	SuggestedCode      string
	ExtractedCode      string
	Confidence         float64
	ConfidenceScale    ConfidenceScale
	SuggestedInsertion types.InsertionPoint
	Description        string
	FollowUp           string
}

// Request asks for code or an answer for a single task
type Request struct {
	Type           types.TaskType
	Question       string
	ExtractedCode  string
	FollowUpAnswer string
}

// Suggestion is the provider's proposal; Code is set for executable types,
// Answer for answer requests.
type Suggestion struct {
	Code   string
	Answer string
}

// CaptionRequest describes an execution or answer to caption
type CaptionRequest struct {
	Type           types.TaskType
	Code           string
	Output         string
	ExitCode       int
	Answer         string
	FollowUpAnswer string
}

// Provider is the suggestion collaborator. Failures are retryable provider errors.
type Provider interface {
	Analyze(ctx context.Context, req AnalyzeRequest) ([]Candidate, error)
	Suggest(ctx context.Context, req Request) (*Suggestion, error)
	Caption(ctx context.Context, req CaptionRequest) (string, error)
}

// DefaultCaption is used whenever no provider caption is available
func DefaultCaption(exitCode int) string {
	if exitCode == 0 {
		return fmt.Sprintf("Code execution successful with exit code %d", exitCode)
	}
	return fmt.Sprintf("Code execution failed with exit code %d", exitCode)
}

// NormalizeConfidence maps a score reported on scale onto 0..100
func NormalizeConfidence(c float64, scale ConfidenceScale) (float64, error) {
	switch scale {
	case ScaleFraction:
		if c < 0 || c > 1 {
			return 0, fmt.Errorf("%w: %v is not a fraction", types.ErrConfidence, c)
		}
		c *= 100
	case ScaleAuto:
		if c > 0 && c <= 1 {
			c *= 100
		}
	}
	if c < 0 || c > 100 {
		return 0, fmt.Errorf("%w: %v", types.ErrConfidence, c)
	}
	return c, nil
}

// StripFences removes a surrounding markdown code fence, if any
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimRight(s, " \n"), "```")
	return strings.TrimSpace(s)
}
