package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/google/uuid"

	"github.com/labmate/labmate/internal/logger"
	"github.com/labmate/labmate/internal/types"
)

// Prompts
const (
	analyzeSystemPrompt = `You are an expert computer science teaching assistant analyzing programming assignments.
Identify tasks of three kinds: screenshot_request (code that should be run and its output captured), answer_request (questions that need a written answer) and code_execution (code blocks that must be run).
Output only a JSON object of the form {"candidates": [...]} where every candidate has the keys task_id, task_index, task_type, question_context, suggested_code, confidence (0.0-1.0), suggested_insertion (below_question or bottom_of_page), brief_description and follow_up.
task_index must be the number of the question the candidate belongs to. Use null for unknown optional values.`

	codeSystemPrompt = `You are an expert Python programmer. Generate clean, runnable Python code that solves the given problem.
Use only the standard library, print the results and keep the code concise. Return only the code, no explanations.`

	answerSystemPrompt = `You are an expert computer science tutor. Provide a clear, educational answer to the programming question in two to four short paragraphs.`

	captionSystemPrompt = `Write a brief, professional caption (one or two sentences) describing what the code or answer shows and whether it succeeded.`
)

const (
	defaultCandidateConfidence = 80
	defaultModel               = "gemini-2.0-flash"
	maxAnalyzeChars            = 8000
)

// generator is the part of *genai.GenerativeModel the provider uses
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexConfig configures the Vertex AI provider
type VertexConfig struct {
	Project string
	Region  string
	Model   string
	Timeout time.Duration
}

// Vertex is a Provider backed by Gemini models on Vertex AI
type Vertex struct {
	client    *genai.Client
	analyzer  generator
	coder     generator
	answerer  generator
	captioner generator
	timeout   time.Duration
}

// NewVertex creates the Vertex provider with one configured model per prompt
func NewVertex(ctx context.Context, cfg VertexConfig) (*Vertex, error) {
	if cfg.Project == "" || cfg.Region == "" {
		return nil, types.NewError(types.KindValidation, "new vertex provider", errors.New("project and region cannot be empty"))
	}

	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	client, err := genai.NewClient(ctx, cfg.Project, cfg.Region)
	if err != nil {
		return nil, types.NewRetryableError(types.KindProvider, "new vertex provider", fmt.Errorf("genai.NewClient: %w", err))
	}

	analyzer := newModel(client, cfg.Model, analyzeSystemPrompt, 0.2)
	analyzer.GenerationConfig.ResponseMIMEType = "application/json"

	return &Vertex{
		client:    client,
		analyzer:  analyzer,
		coder:     newModel(client, cfg.Model, codeSystemPrompt, 0.3),
		answerer:  newModel(client, cfg.Model, answerSystemPrompt, 0.7),
		captioner: newModel(client, cfg.Model, captionSystemPrompt, 0.5),
		timeout:   cfg.Timeout,
	}, nil
}

func newModel(client *genai.Client, name, system string, temperature float32) *genai.GenerativeModel {
	model := client.GenerativeModel(name)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](temperature),
	}
	return model
}

// Close releases the underlying client
func (v *Vertex) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

type rawCandidate struct {
	TaskID             string   `json:"task_id"`
	TaskIndex          int      `json:"task_index"`
	TaskType           string   `json:"task_type"`
	QuestionContext    string   `json:"question_context"`
	SuggestedCode      *string  `json:"suggested_code"`
	ExtractedCode      *string  `json:"extracted_code"`
	Confidence         *float64 `json:"confidence"`
	SuggestedInsertion string   `json:"suggested_insertion"`
	BriefDescription   string   `json:"brief_description"`
	Description        string   `json:"description"`
	FollowUp           *string  `json:"follow_up"`
}

// Analyze asks the model for task candidates
func (v *Vertex) Analyze(ctx context.Context, req AnalyzeRequest) ([]Candidate, error) {
	const op = "analyze document"

	text, err := v.generate(ctx, v.analyzer, op, analyzePrompt(req))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Candidates []rawCandidate `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(StripFences(text)), &payload); err != nil {
		return nil, types.NewRetryableError(types.KindProvider, op, fmt.Errorf("invalid JSON from model: %w", err))
	}

	byIndex := make(map[int]TaskContext, len(req.Tasks))
	for _, t := range req.Tasks {
		byIndex[t.Index] = t
	}

	candidates := make([]Candidate, 0, len(payload.Candidates))
	for _, raw := range payload.Candidates {
		c, err := raw.normalize(byIndex)
		if err != nil {
			logger.WarnWithFields("dropping candidate", map[string]interface{}{
				"task_id": raw.TaskID,
				"error":   err.Error(),
			})
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func (r rawCandidate) normalize(tasks map[int]TaskContext) (Candidate, error) {
	taskType, err := types.ParseTaskType(r.TaskType)
	if err != nil {
		return Candidate{}, err
	}
	task, ok := tasks[r.TaskIndex]
	if !ok {
		return Candidate{}, fmt.Errorf("unknown task index %d", r.TaskIndex)
	}

	confidence := float64(defaultCandidateConfidence)
	if r.Confidence != nil {
		if confidence, err = NormalizeConfidence(*r.Confidence, ScaleFraction); err != nil {
			return Candidate{}, err
		}
	}

	var insertion types.InsertionPoint
	if r.SuggestedInsertion != "" {
		if insertion, err = types.ParseInsertionPoint(r.SuggestedInsertion); err != nil {
			return Candidate{}, err
		}
	}

	description := r.BriefDescription
	if description == "" {
		description = r.Description
	}
	if description == "" {
		description = "Task: " + string(taskType)
	}

	key := r.TaskID
	if key == "" {
		key = uuid.NewString()
	}
	question := r.QuestionContext
	if question == "" {
		question = task.Question
	}
	extracted := task.Code
	if extracted == "" {
		extracted = deref(r.ExtractedCode)
	}

	return Candidate{
		Key:                key,
		TaskIndex:          r.TaskIndex,
		Type:               taskType,
		Question:           question,
		SuggestedCode:      StripFences(deref(r.SuggestedCode)),
		ExtractedCode:      extracted,
		Confidence:         confidence,
		ConfidenceScale:    ScalePercent,
		SuggestedInsertion: insertion,
		Description:        description,
		FollowUp:           deref(r.FollowUp),
	}, nil
}

// Suggest generates code for executable tasks and an answer otherwise
func (v *Vertex) Suggest(ctx context.Context, req Request) (*Suggestion, error) {
	var b strings.Builder
	if req.Type == types.TaskTypeAnswerRequest {
		fmt.Fprintf(&b, "Answer this programming question:\n\n%s", req.Question)
		if req.FollowUpAnswer != "" {
			fmt.Fprintf(&b, "\n\nAdditional context from user: %s", req.FollowUpAnswer)
		}
		text, err := v.generate(ctx, v.answerer, "suggest answer", b.String())
		if err != nil {
			return nil, err
		}
		return &Suggestion{Answer: strings.TrimSpace(text)}, nil
	}

	fmt.Fprintf(&b, "Generate Python code for this task:\n\n%s", req.Question)
	if req.ExtractedCode != "" {
		fmt.Fprintf(&b, "\n\nExisting code from document:\n%s", req.ExtractedCode)
	}
	if req.FollowUpAnswer != "" {
		fmt.Fprintf(&b, "\n\nUser clarification: %s", req.FollowUpAnswer)
	}
	text, err := v.generate(ctx, v.coder, "suggest code", b.String())
	if err != nil {
		return nil, err
	}
	return &Suggestion{Code: StripFences(text)}, nil
}

// Caption summarises an execution or answer
func (v *Vertex) Caption(ctx context.Context, req CaptionRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Task type: %s\n", req.Type)
	if req.Type == types.TaskTypeAnswerRequest {
		fmt.Fprintf(&b, "Answer:\n%s\n", req.Answer)
		if req.FollowUpAnswer != "" {
			fmt.Fprintf(&b, "User clarification: %s\n", req.FollowUpAnswer)
		}
	} else {
		fmt.Fprintf(&b, "Code executed:\n%s\n\nOutput:\n%s\n\nExit code: %d\n", req.Code, req.Output, req.ExitCode)
	}
	b.WriteString("\nGenerate a caption for this result.")

	text, err := v.generate(ctx, v.captioner, "caption", b.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (v *Vertex) generate(ctx context.Context, model generator, op, prompt string) (string, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", types.NewRetryableError(types.KindProvider, op, err)
	}
	text := responseText(resp)
	if text == "" {
		return "", types.NewRetryableError(types.KindProvider, op, errors.New("model returned an empty response"))
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

func analyzePrompt(req AnalyzeRequest) string {
	var b strings.Builder
	b.WriteString("Analyze this programming assignment and identify tasks:\n\n")
	for _, t := range req.Tasks {
		fmt.Fprintf(&b, "Question %d: %s\n", t.Index, t.Question)
		if t.Code != "" {
			fmt.Fprintf(&b, "Code:\n%s\n", t.Code)
		}
		b.WriteString("\n")
	}
	text := b.String()
	if len(text) > maxAnalyzeChars {
		text = text[:maxAnalyzeChars] + "\n\n[Document truncated...]"
	}
	return text
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
