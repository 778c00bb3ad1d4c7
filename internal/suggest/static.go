package suggest

import (
	"context"
	"fmt"

	"github.com/labmate/labmate/internal/types"
)

// Static is an offline provider. It proposes one task per extracted task,
// never invents code and captions with DefaultCaption.
type Static struct{}

// NewStatic creates a Static provider
func NewStatic() *Static {
	return &Static{}
}

// Analyze maps every extracted task to a candidate; tasks with code run it
func (s *Static) Analyze(_ context.Context, req AnalyzeRequest) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(req.Tasks))
	for _, t := range req.Tasks {
		c := Candidate{
			Key:             fmt.Sprintf("task_%d", t.Index),
			TaskIndex:       t.Index,
			Type:            types.TaskTypeAnswerRequest,
			Question:        t.Question,
			ExtractedCode:   t.Code,
			Confidence:      100,
			ConfidenceScale: ScalePercent,
			Description:     "Answer the question",
		}
		if t.Code != "" {
			c.Type = types.TaskTypeCodeExecution
			c.Description = "Run the provided code"
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// Suggest returns an empty suggestion
func (s *Static) Suggest(_ context.Context, _ Request) (*Suggestion, error) {
	return &Suggestion{}, nil
}

// Caption returns the default caption
func (s *Static) Caption(_ context.Context, req CaptionRequest) (string, error) {
	if req.Type == types.TaskTypeAnswerRequest {
		return "Answer", nil
	}
	return DefaultCaption(req.ExitCode), nil
}
