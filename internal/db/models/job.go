package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/labmate/labmate/internal/types"
)

// Job is one extracted task bound to an uploaded document. A re-run is stored
// as a new Job with a higher Attempt that points back at the previous one.
type Job struct {
	gorm.Model
	UploadID           uint                 `json:"upload_id" gorm:"not null;uniqueIndex:idx_job_task_attempt"`
	TaskIndex          int                  `json:"task_index" gorm:"not null;uniqueIndex:idx_job_task_attempt"`
	Attempt            int                  `json:"attempt" gorm:"not null;default:1;uniqueIndex:idx_job_task_attempt"`
	PreviousID         *uint                `json:"previous_id,omitempty"`
	RawNumber          int                  `json:"raw_number"`
	Section            string               `json:"section,omitempty"`
	Question           string               `json:"question" gorm:"type:text"`
	Code               string               `json:"code" gorm:"type:text"`
	RequiresScreenshot bool                 `json:"requires_screenshot"`
	Theme              types.Theme          `json:"theme" gorm:"not null"`
	Insertion          types.InsertionPoint `json:"insertion" gorm:"not null"`
	Status             Status               `json:"status" gorm:"not null;index"`
	Output             string               `json:"output,omitempty" gorm:"type:text"`
	ExitCode           *int                 `json:"exit_code,omitempty"`
	Error              string               `json:"error,omitempty" gorm:"type:text"`
	DurationMS         int64                `json:"duration_ms"`
	Screenshot         *Screenshot          `json:"screenshot,omitempty" gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time            `json:"created_at" gorm:"index"`
}

// Identifier returns the identifier recorded in a report's screenshot order
func (j *Job) Identifier() string {
	return fmt.Sprintf("%d", j.ID)
}

// Executable reports whether the job has code to run
func (j *Job) Executable() bool {
	return j.Code != ""
}

// Validate ensures that the job data is valid
func (j *Job) Validate() error {
	if j.UploadID == 0 {
		return fmt.Errorf("job upload_id cannot be empty")
	}
	if j.TaskIndex < 1 {
		return fmt.Errorf("job task index must start at 1, got %d", j.TaskIndex)
	}
	if _, err := ParseStatus(string(j.Status)); err != nil {
		return err
	}
	if j.Status != StatusCompleted && (j.Output != "" || j.ExitCode != nil || j.Screenshot != nil) {
		return fmt.Errorf("job %d: execution artifacts require status completed, got %s", j.TaskIndex, j.Status)
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new job
func (j *Job) BeforeCreate(_ *gorm.DB) error {
	if j.Status == "" {
		j.Status = StatusPending
	}
	if j.Attempt == 0 {
		j.Attempt = 1
	}
	if j.Theme == "" {
		j.Theme = types.ThemePlain
	}
	if j.Insertion == "" {
		j.Insertion = types.InsertBelowQuestion
	}
	return j.Validate()
}
