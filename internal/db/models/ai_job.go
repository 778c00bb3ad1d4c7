package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/labmate/labmate/internal/types"
)

// AIJob is a batch of AI-assisted tasks for one upload. It exclusively owns
// its tasks; deleting it removes them in the same transaction.
type AIJob struct {
	gorm.Model
	UploadID  uint                 `json:"upload_id" gorm:"not null;index"`
	Status    Status               `json:"status" gorm:"not null;index"`
	Theme     types.Theme          `json:"theme" gorm:"not null"`
	Insertion types.InsertionPoint `json:"insertion_preference" gorm:"not null"`
	Error     string               `json:"error,omitempty" gorm:"type:text"`
	Tasks     []AITask             `json:"tasks,omitempty" gorm:"foreignKey:AIJobID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time            `json:"created_at" gorm:"index"`
}

// Validate ensures that the AI job data is valid
func (j *AIJob) Validate() error {
	if j.UploadID == 0 {
		return fmt.Errorf("ai job upload_id cannot be empty")
	}
	if _, err := types.ParseTheme(string(j.Theme)); err != nil {
		return err
	}
	if _, err := types.ParseInsertionPoint(string(j.Insertion)); err != nil {
		return err
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new AI job
func (j *AIJob) BeforeCreate(_ *gorm.DB) error {
	if j.Status == "" {
		j.Status = StatusPending
	}
	if j.Theme == "" {
		j.Theme = types.ThemePlain
	}
	if j.Insertion == "" {
		j.Insertion = types.InsertBelowQuestion
	}
	return j.Validate()
}

// DeriveAIJobStatus computes the parent status from the latest attempt of
// each child task. A job is completed only once every task is terminal and
// running only while a task is executing; otherwise it waits as pending.
// Task failures never fail the parent.
func DeriveAIJobStatus(tasks []AITask) Status {
	terminal := 0
	for _, t := range tasks {
		switch {
		case t.Status == StatusRunning:
			return StatusRunning
		case t.Status.IsTerminal():
			terminal++
		}
	}
	if terminal == len(tasks) {
		return StatusCompleted
	}
	return StatusPending
}
