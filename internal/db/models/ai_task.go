package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/labmate/labmate/internal/types"
)

// CodePayload is the type-specific part of screenshot_request and
// code_execution tasks
type CodePayload struct {
	Extracted      string `json:"extracted,omitempty"`
	Suggested      string `json:"suggested,omitempty"`
	User           string `json:"user,omitempty"`
	Executed       string `json:"executed,omitempty"`
	Stdout         string `json:"stdout,omitempty"`
	ExitCode       *int   `json:"exit_code,omitempty"`
	DurationMS     int64  `json:"duration_ms,omitempty"`
	ScreenshotPath string `json:"screenshot_path,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	Caption        string `json:"caption,omitempty"`
}

// Resolve returns the code to execute: user code, then the suggestion, then
// the code extracted from the document
func (p *CodePayload) Resolve() string {
	for _, code := range []string{p.User, p.Suggested, p.Extracted} {
		if strings.TrimSpace(code) != "" {
			return code
		}
	}
	return ""
}

func (p *CodePayload) hasArtifacts() bool {
	return p.Stdout != "" || p.ExitCode != nil || p.ScreenshotPath != "" || p.Caption != ""
}

// AnswerPayload is the type-specific part of answer_request tasks
type AnswerPayload struct {
	Text    string `json:"text,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// AITask is one enriched task within an AIJob. The envelope is shared by all
// task types; exactly one of Code and Answer is set, matching Type.
type AITask struct {
	gorm.Model
	AIJobID            uint                 `json:"ai_job_id" gorm:"not null;uniqueIndex:idx_ai_task_key_attempt"`
	Key                string               `json:"key" gorm:"not null;uniqueIndex:idx_ai_task_key_attempt"`
	Attempt            int                  `json:"attempt" gorm:"not null;default:1;uniqueIndex:idx_ai_task_key_attempt"`
	PreviousID         *uint                `json:"previous_id,omitempty"`
	TaskIndex          int                  `json:"task_index"`
	Type               types.TaskType       `json:"type" gorm:"not null"`
	Question           string               `json:"question" gorm:"type:text"`
	Status             Status               `json:"status" gorm:"not null;index"`
	Confidence         int                  `json:"confidence"`
	SuggestedInsertion types.InsertionPoint `json:"suggested_insertion,omitempty"`
	Description        string               `json:"description,omitempty" gorm:"type:text"`
	FollowUp           string               `json:"follow_up,omitempty" gorm:"type:text"`
	FollowUpAnswer     string               `json:"follow_up_answer,omitempty" gorm:"type:text"`
	Error              string               `json:"error,omitempty" gorm:"type:text"`
	Retryable          bool                 `json:"retryable"`
	Code               *CodePayload         `json:"code,omitempty" gorm:"serializer:json"`
	Answer             *AnswerPayload       `json:"answer,omitempty" gorm:"serializer:json"`
	CreatedAt          time.Time            `json:"created_at" gorm:"index"`
}

// NewAITask builds a pending task with the payload matching taskType
func NewAITask(key string, taskType types.TaskType, question, extractedCode string) AITask {
	task := AITask{
		Key:      key,
		Type:     taskType,
		Question: question,
		Status:   StatusPending,
	}
	if taskType.ExecutesCode() {
		task.Code = &CodePayload{Extracted: extractedCode}
	} else {
		task.Answer = &AnswerPayload{}
	}
	return task
}

// ResolveInsertion returns the task's own suggested insertion when set,
// otherwise the job-wide preference
func (t *AITask) ResolveInsertion(jobDefault types.InsertionPoint) types.InsertionPoint {
	if t.SuggestedInsertion != "" {
		return t.SuggestedInsertion
	}
	return jobDefault
}

// AwaitingFollowUp reports whether the task still needs the user's answer to
// a follow-up question before its caption can be final
func (t *AITask) AwaitingFollowUp() bool {
	return t.Type == types.TaskTypeAnswerRequest && t.FollowUp != "" && t.FollowUpAnswer == ""
}

// Settled reports whether the task may be observed by composition
func (t *AITask) Settled() bool {
	return t.Status.IsTerminal() && !t.AwaitingFollowUp()
}

// Screenshot returns the screenshot path or "" when the task has none
func (t *AITask) Screenshot() string {
	if t.Code == nil {
		return ""
	}
	return t.Code.ScreenshotPath
}

// Caption returns the caption for whichever payload the task carries
func (t *AITask) Caption() string {
	switch {
	case t.Code != nil:
		return t.Code.Caption
	case t.Answer != nil:
		return t.Answer.Caption
	default:
		return ""
	}
}

// Validate ensures that the task data is valid. A confidence outside [0, 100]
// is a data-integrity violation and is rejected here.
func (t *AITask) Validate() error {
	if t.Key == "" {
		return fmt.Errorf("ai task key cannot be empty")
	}
	if _, err := types.ParseTaskType(string(t.Type)); err != nil {
		return err
	}
	if _, err := ParseStatus(string(t.Status)); err != nil {
		return err
	}
	if t.Confidence < 0 || t.Confidence > 100 {
		return fmt.Errorf("%w: %d", types.ErrConfidence, t.Confidence)
	}
	if t.SuggestedInsertion != "" {
		if _, err := types.ParseInsertionPoint(string(t.SuggestedInsertion)); err != nil {
			return err
		}
	}
	if t.Type.ExecutesCode() {
		if t.Code == nil || t.Answer != nil {
			return fmt.Errorf("ai task %s: %s requires a code payload only", t.Key, t.Type)
		}
		if t.Status != StatusCompleted && t.Code.hasArtifacts() {
			return fmt.Errorf("ai task %s: execution artifacts require status completed, got %s", t.Key, t.Status)
		}
		return nil
	}
	if t.Answer == nil || t.Code != nil {
		return fmt.Errorf("ai task %s: %s requires an answer payload only", t.Key, t.Type)
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new AI task
func (t *AITask) BeforeCreate(_ *gorm.DB) error {
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Attempt == 0 {
		t.Attempt = 1
	}
	return t.Validate()
}
