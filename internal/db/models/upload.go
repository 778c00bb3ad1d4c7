package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/labmate/labmate/internal/types"
)

// Upload identifies a source document. It is immutable after creation
// except through deletion.
type Upload struct {
	gorm.Model
	Filename      string         `json:"filename" gorm:"not null"`
	StoragePath   string         `json:"storage_path" gorm:"not null"`
	FileType      types.FileType `json:"file_type" gorm:"not null;index"`
	Size          int64          `json:"size"`
	PageCount     int            `json:"page_count"`
	NonSequential bool           `json:"non_sequential"`
	Jobs          []Job          `json:"jobs,omitempty" gorm:"foreignKey:UploadID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time      `json:"created_at" gorm:"index"`
}

// Validate ensures that the upload data is valid
func (u *Upload) Validate() error {
	if u.Filename == "" {
		return fmt.Errorf("upload filename cannot be empty")
	}
	if u.StoragePath == "" {
		return fmt.Errorf("upload storage path cannot be empty")
	}
	switch u.FileType {
	case types.FileTypeDocx, types.FileTypePDF, types.FileTypeText:
	default:
		return fmt.Errorf("%w: %q", types.ErrUnsupportedFile, u.FileType)
	}
	if u.Size < 0 {
		return fmt.Errorf("upload size cannot be negative")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new upload
func (u *Upload) BeforeCreate(_ *gorm.DB) error {
	return u.Validate()
}
