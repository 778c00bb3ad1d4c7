package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/labmate/labmate/internal/db/models"
)

// ReportRepository handles database operations for composed reports
type ReportRepository struct {
	db *gorm.DB
}

// NewReportRepository creates a new instance of ReportRepository
func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create stores a new report version
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	return r.db.WithContext(ctx).Create(report).Error
}

// GetByID retrieves a report by ID
func (r *ReportRepository) GetByID(ctx context.Context, id uint) (*models.Report, error) {
	var report models.Report
	if err := r.db.WithContext(ctx).First(&report, id).Error; err != nil {
		return nil, notFound(err, "report", id)
	}
	return &report, nil
}

// ListByUpload retrieves all report versions of an upload, oldest first
func (r *ReportRepository) ListByUpload(ctx context.Context, uploadID uint) ([]models.Report, error) {
	var reports []models.Report
	err := r.db.WithContext(ctx).
		Where("upload_id = ?", uploadID).
		Order("id ASC").
		Find(&reports).Error
	return reports, err
}
