package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Screenshot is the single image captured for a completed Job
type Screenshot struct {
	gorm.Model
	JobID       uint      `json:"job_id" gorm:"not null;uniqueIndex"`
	StoragePath string    `json:"storage_path" gorm:"not null"`
	Size        int64     `json:"size"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate ensures that the screenshot data is valid
func (s *Screenshot) Validate() error {
	if s.JobID == 0 {
		return fmt.Errorf("screenshot job_id cannot be empty")
	}
	if s.StoragePath == "" {
		return fmt.Errorf("screenshot storage path cannot be empty")
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("screenshot dimensions must be positive, got %dx%d", s.Width, s.Height)
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new screenshot
func (s *Screenshot) BeforeCreate(_ *gorm.DB) error {
	return s.Validate()
}
