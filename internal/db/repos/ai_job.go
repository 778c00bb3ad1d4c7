package repos

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/labmate/labmate/internal/db/models"
)

// AIJobRepository handles database operations for AI jobs and the tasks they own
type AIJobRepository struct {
	db *gorm.DB
}

// NewAIJobRepository creates a new instance of AIJobRepository
func NewAIJobRepository(db *gorm.DB) *AIJobRepository {
	return &AIJobRepository{db: db}
}

// Create stores the AI job together with its tasks in one transaction
func (r *AIJobRepository) Create(ctx context.Context, job *models.AIJob) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(job).Error
	})
}

// GetByID retrieves an AI job without its tasks
func (r *AIJobRepository) GetByID(ctx context.Context, id uint) (*models.AIJob, error) {
	var job models.AIJob
	if err := r.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return nil, notFound(err, "ai job", id)
	}
	return &job, nil
}

// ListByStatus retrieves AI jobs in the given status, oldest first
func (r *AIJobRepository) ListByStatus(ctx context.Context, status models.Status, limit int) ([]models.AIJob, error) {
	var jobs []models.AIJob
	err := r.db.WithContext(ctx).
		Where(models.StatusField+" = ?", status).
		Order("id ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// UpdateStatus sets the derived status of an AI job
func (r *AIJobRepository) UpdateStatus(ctx context.Context, id uint, status models.Status, errMsg string) error {
	return r.db.WithContext(ctx).Model(&models.AIJob{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			models.StatusField:    status,
			"error":               errMsg,
			models.UpdatedAtField: time.Now(),
		}).Error
}

// Delete removes the AI job and every task it owns atomically
func (r *AIJobRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteAIJob(tx, id)
	})
}

func deleteAIJob(tx *gorm.DB, id uint) error {
	if err := tx.Unscoped().Where("ai_job_id = ?", id).Delete(&models.AITask{}).Error; err != nil {
		return err
	}
	res := tx.Unscoped().Delete(&models.AIJob{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "ai job", id)
	}
	return nil
}
