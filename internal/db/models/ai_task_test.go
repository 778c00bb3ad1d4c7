package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labmate/labmate/internal/types"
)

func TestCodePayload_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		payload CodePayload
		want    string
	}{
		{
			name:    "user code wins",
			payload: CodePayload{User: "print('user')", Suggested: "print('ai')", Extracted: "print('doc')"},
			want:    "print('user')",
		},
		{
			name:    "suggestion over extracted",
			payload: CodePayload{Suggested: "print('ai')", Extracted: "print('doc')"},
			want:    "print('ai')",
		},
		{
			name:    "extracted fallback",
			payload: CodePayload{Extracted: "print('doc')"},
			want:    "print('doc')",
		},
		{
			name:    "blank user code is ignored",
			payload: CodePayload{User: "  \n", Suggested: "print('ai')"},
			want:    "print('ai')",
		},
		{
			name: "nothing to run",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.payload.Resolve())
		})
	}
}

func TestAITask_ResolveInsertion(t *testing.T) {
	task := NewAITask("q1", types.TaskTypeCodeExecution, "Write a loop", "")
	assert.Equal(t, types.InsertBottomOfPage, task.ResolveInsertion(types.InsertBottomOfPage))

	task.SuggestedInsertion = types.InsertBelowQuestion
	assert.Equal(t, types.InsertBelowQuestion, task.ResolveInsertion(types.InsertBottomOfPage))
}

func TestAITask_AwaitingFollowUp(t *testing.T) {
	task := NewAITask("q2", types.TaskTypeAnswerRequest, "Explain generators", "")
	task.Status = StatusCompleted
	assert.False(t, task.AwaitingFollowUp())
	assert.True(t, task.Settled())

	task.FollowUp = "Which Python version?"
	assert.True(t, task.AwaitingFollowUp())
	assert.False(t, task.Settled())

	task.FollowUpAnswer = "3.12"
	assert.False(t, task.AwaitingFollowUp())
	assert.True(t, task.Settled())

	code := NewAITask("q3", types.TaskTypeCodeExecution, "Run it", "print(1)")
	code.FollowUp = "ignored for code tasks"
	assert.False(t, code.AwaitingFollowUp())
}

func TestAITask_Validate(t *testing.T) {
	exit := 0
	tests := []struct {
		name    string
		mutate  func(*AITask)
		wantErr bool
		errIs   error
	}{
		{
			name:   "valid pending code task",
			mutate: func(*AITask) {},
		},
		{
			name:    "empty key",
			mutate:  func(t *AITask) { t.Key = "" },
			wantErr: true,
		},
		{
			name:    "confidence above range",
			mutate:  func(t *AITask) { t.Confidence = 101 },
			wantErr: true,
			errIs:   types.ErrConfidence,
		},
		{
			name:    "confidence below range",
			mutate:  func(t *AITask) { t.Confidence = -1 },
			wantErr: true,
			errIs:   types.ErrConfidence,
		},
		{
			name:    "answer payload on code task",
			mutate:  func(t *AITask) { t.Answer = &AnswerPayload{Text: "x"} },
			wantErr: true,
		},
		{
			name:    "missing code payload",
			mutate:  func(t *AITask) { t.Code = nil },
			wantErr: true,
		},
		{
			name: "screenshot on failed task",
			mutate: func(t *AITask) {
				t.Status = StatusFailed
				t.Code.ScreenshotPath = "shots/1.png"
			},
			wantErr: true,
		},
		{
			name: "artifacts on completed task",
			mutate: func(t *AITask) {
				t.Status = StatusCompleted
				t.Code.ScreenshotPath = "shots/1.png"
				t.Code.ExitCode = &exit
			},
		},
		{
			name:    "invalid insertion",
			mutate:  func(t *AITask) { t.SuggestedInsertion = "top_of_page" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := NewAITask("q1", types.TaskTypeScreenshotRequest, "Write a loop", "for i in range(3): print(i)")
			tt.mutate(&task)
			err := task.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			if tt.errIs != nil {
				assert.True(t, errors.Is(err, tt.errIs))
			}
		})
	}

	answer := NewAITask("q9", types.TaskTypeAnswerRequest, "Explain", "")
	assert.NoError(t, answer.Validate())
	answer.Code = &CodePayload{}
	assert.Error(t, answer.Validate())
}

func TestDeriveAIJobStatus(t *testing.T) {
	task := func(s Status) AITask { return AITask{Status: s} }

	tests := []struct {
		name  string
		tasks []AITask
		want  Status
	}{
		{"no tasks", nil, StatusCompleted},
		{"all pending", []AITask{task(StatusPending), task(StatusPending)}, StatusPending},
		{"one running", []AITask{task(StatusRunning), task(StatusPending)}, StatusRunning},
		{"partially terminal", []AITask{task(StatusCompleted), task(StatusPending)}, StatusPending},
		{"running beside terminal", []AITask{task(StatusFailed), task(StatusRunning)}, StatusRunning},
		{"failures do not fail the job", []AITask{task(StatusFailed), task(StatusFailed)}, StatusCompleted},
		{"mixed terminal", []AITask{task(StatusCompleted), task(StatusFailed)}, StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveAIJobStatus(tt.tasks))
		})
	}
}
