package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/labmate/labmate/internal/db/models"
)

// UploadRepository handles database operations for uploaded documents
type UploadRepository struct {
	db *gorm.DB
}

// NewUploadRepository creates a new instance of UploadRepository
func NewUploadRepository(db *gorm.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create stores the upload together with any Jobs attached to it in one transaction
func (r *UploadRepository) Create(ctx context.Context, upload *models.Upload) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(upload).Error
	})
}

// GetByID retrieves an upload by ID
func (r *UploadRepository) GetByID(ctx context.Context, id uint) (*models.Upload, error) {
	var upload models.Upload
	if err := r.db.WithContext(ctx).First(&upload, id).Error; err != nil {
		return nil, notFound(err, "upload", id)
	}
	return &upload, nil
}

// List retrieves uploads, newest first
func (r *UploadRepository) List(ctx context.Context, opts *models.ListOptions) ([]models.Upload, error) {
	var uploads []models.Upload
	query := r.db.WithContext(ctx).Order(models.CreatedAtField + " DESC")
	if opts != nil {
		query = query.Limit(opts.Limit).Offset(opts.Offset)
	}
	err := query.Find(&uploads).Error
	return uploads, err
}

// Delete removes an upload and everything it owns
func (r *UploadRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var jobIDs []uint
		if err := tx.Model(&models.Job{}).Where("upload_id = ?", id).Pluck("id", &jobIDs).Error; err != nil {
			return err
		}
		if len(jobIDs) > 0 {
			if err := tx.Unscoped().Where("job_id IN ?", jobIDs).Delete(&models.Screenshot{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Unscoped().Where("upload_id = ?", id).Delete(&models.Job{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("upload_id = ?", id).Delete(&models.Report{}).Error; err != nil {
			return err
		}
		var aiJobIDs []uint
		if err := tx.Model(&models.AIJob{}).Where("upload_id = ?", id).Pluck("id", &aiJobIDs).Error; err != nil {
			return err
		}
		for _, aiJobID := range aiJobIDs {
			if err := deleteAIJob(tx, aiJobID); err != nil {
				return err
			}
		}
		res := tx.Unscoped().Delete(&models.Upload{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound(gorm.ErrRecordNotFound, "upload", id)
		}
		return nil
	})
}
