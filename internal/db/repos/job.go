package repos

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/labmate/labmate/internal/db/models"
)

// JobRepository provides access to job-related database operations
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new job repository instance
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create creates a new job in the database
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID with its screenshot
func (r *JobRepository) GetByID(ctx context.Context, id uint) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Preload("Screenshot").First(&job, id).Error; err != nil {
		return nil, notFound(err, "job", id)
	}
	return &job, nil
}

// ListByUpload retrieves the latest attempt of every job of an upload ordered by task index
func (r *JobRepository) ListByUpload(ctx context.Context, uploadID uint) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.WithContext(ctx).
		Preload("Screenshot").
		Where("upload_id = ?", uploadID).
		Order("task_index ASC, attempt ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	latest := make([]models.Job, 0, len(jobs))
	for _, job := range jobs {
		if n := len(latest); n > 0 && latest[n-1].TaskIndex == job.TaskIndex {
			latest[n-1] = job
			continue
		}
		latest = append(latest, job)
	}
	return latest, nil
}

// Transition persists job with its new status only if the stored status is still from
func (r *JobRepository) Transition(ctx context.Context, job *models.Job, from models.Status) error {
	return transitionJob(r.db.WithContext(ctx), job, from)
}

// CompleteWithScreenshot marks a running job completed and stores its
// screenshot in the same transaction
func (r *JobRepository) CompleteWithScreenshot(ctx context.Context, job *models.Job, shot *models.Screenshot) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := transitionJob(tx, job, models.StatusRunning); err != nil {
			return err
		}
		shot.JobID = job.ID
		if err := tx.Create(shot).Error; err != nil {
			return err
		}
		job.Screenshot = shot
		return nil
	})
}

func transitionJob(db *gorm.DB, job *models.Job, from models.Status) error {
	if err := models.ValidateTransition(from, job.Status); err != nil {
		return err
	}
	if err := job.Validate(); err != nil {
		return err
	}
	job.UpdatedAt = time.Now()
	res := db.Model(job).
		Where(models.StatusField+" = ?", from).
		Select("*").
		Omit(clause.Associations).
		Updates(job)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return staleStatus("transition job")
	}
	return nil
}
