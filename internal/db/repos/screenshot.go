package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/labmate/labmate/internal/db/models"
)

// ScreenshotRepository handles database operations for screenshots
type ScreenshotRepository struct {
	db *gorm.DB
}

// NewScreenshotRepository creates a new instance of ScreenshotRepository
func NewScreenshotRepository(db *gorm.DB) *ScreenshotRepository {
	return &ScreenshotRepository{db: db}
}

// GetByJob retrieves the screenshot captured for a job
func (r *ScreenshotRepository) GetByJob(ctx context.Context, jobID uint) (*models.Screenshot, error) {
	var shot models.Screenshot
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&shot).Error; err != nil {
		return nil, notFound(err, "screenshot for job", jobID)
	}
	return &shot, nil
}

// ListByUpload retrieves every screenshot captured for an upload's jobs
func (r *ScreenshotRepository) ListByUpload(ctx context.Context, uploadID uint) ([]models.Screenshot, error) {
	var shots []models.Screenshot
	err := r.db.WithContext(ctx).
		Joins("JOIN jobs ON jobs.id = screenshots.job_id").
		Where("jobs.upload_id = ?", uploadID).
		Order("screenshots.id ASC").
		Find(&shots).Error
	return shots, err
}
