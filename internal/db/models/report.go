package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ReportSource names the records a report was composed from
type ReportSource string

// Report sources
const (
	// ReportSourceJobs is a report composed from an upload's Jobs
	ReportSourceJobs ReportSource = "jobs"
	// ReportSourceAIJob is a report composed from an AIJob's tasks
	ReportSourceAIJob ReportSource = "ai_job"
)

// Report is one composition run for an upload. ScreenshotOrder is the final
// linear order of the injected task identifiers.
type Report struct {
	gorm.Model
	UploadID        uint         `json:"upload_id" gorm:"not null;index"`
	AIJobID         *uint        `json:"ai_job_id,omitempty" gorm:"index"`
	Source          ReportSource `json:"source" gorm:"not null"`
	Filename        string       `json:"filename" gorm:"not null"`
	StoragePath     string       `json:"storage_path" gorm:"not null"`
	AppendixPath    string       `json:"appendix_path,omitempty"`
	Size            int64        `json:"size"`
	ScreenshotOrder []string     `json:"screenshot_order" gorm:"serializer:json"`
	CreatedAt       time.Time    `json:"created_at" gorm:"index"`
}

// Validate ensures that the report data is valid
func (r *Report) Validate() error {
	if r.UploadID == 0 {
		return fmt.Errorf("report upload_id cannot be empty")
	}
	if r.Filename == "" || r.StoragePath == "" {
		return fmt.Errorf("report filename and storage path cannot be empty")
	}
	seen := make(map[string]bool, len(r.ScreenshotOrder))
	for _, id := range r.ScreenshotOrder {
		if seen[id] {
			return fmt.Errorf("report screenshot order lists %q twice", id)
		}
		seen[id] = true
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new report
func (r *Report) BeforeCreate(_ *gorm.DB) error {
	if r.ScreenshotOrder == nil {
		r.ScreenshotOrder = []string{}
	}
	return r.Validate()
}
