package repos

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/labmate/labmate/internal/db/models"
)

// AITaskRepository handles database operations for AI tasks
type AITaskRepository struct {
	db *gorm.DB
}

// NewAITaskRepository creates a new instance of AITaskRepository
func NewAITaskRepository(db *gorm.DB) *AITaskRepository {
	return &AITaskRepository{db: db}
}

// Create stores a new task, typically a fresh attempt of an existing key
func (r *AITaskRepository) Create(ctx context.Context, task *models.AITask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// GetByID retrieves a task by ID
func (r *AITaskRepository) GetByID(ctx context.Context, id uint) (*models.AITask, error) {
	var task models.AITask
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, notFound(err, "ai task", id)
	}
	return &task, nil
}

// GetByKey retrieves the latest attempt of a task by its key within an AI job
func (r *AITaskRepository) GetByKey(ctx context.Context, aiJobID uint, key string) (*models.AITask, error) {
	var task models.AITask
	err := r.db.WithContext(ctx).
		Where("ai_job_id = ? AND key = ?", aiJobID, key).
		Order(models.AttemptField + " DESC").
		First(&task).Error
	if err != nil {
		return nil, notFound(err, "ai task", key)
	}
	return &task, nil
}

// ListByAIJob retrieves the latest attempt of every task of an AI job,
// ordered by task index then key
func (r *AITaskRepository) ListByAIJob(ctx context.Context, aiJobID uint) ([]models.AITask, error) {
	var tasks []models.AITask
	err := r.db.WithContext(ctx).
		Where("ai_job_id = ?", aiJobID).
		Order("task_index ASC, key ASC, attempt ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	latest := make([]models.AITask, 0, len(tasks))
	for _, task := range tasks {
		if n := len(latest); n > 0 && latest[n-1].Key == task.Key {
			latest[n-1] = task
			continue
		}
		latest = append(latest, task)
	}
	return latest, nil
}

// ListHistory retrieves every attempt of a task key, oldest first
func (r *AITaskRepository) ListHistory(ctx context.Context, aiJobID uint, key string) ([]models.AITask, error) {
	var tasks []models.AITask
	err := r.db.WithContext(ctx).
		Where("ai_job_id = ? AND key = ?", aiJobID, key).
		Order(models.AttemptField + " ASC").
		Find(&tasks).Error
	return tasks, err
}

// Update persists non-status changes to a task. The stored status must still
// equal task.Status.
func (r *AITaskRepository) Update(ctx context.Context, task *models.AITask) error {
	return r.save(ctx, task, task.Status)
}

// Transition persists task with its new status only if the stored status is
// still from. Exactly one caller can win the pending -> running edge.
func (r *AITaskRepository) Transition(ctx context.Context, task *models.AITask, from models.Status) error {
	if err := models.ValidateTransition(from, task.Status); err != nil {
		return err
	}
	return r.save(ctx, task, from)
}

func (r *AITaskRepository) save(ctx context.Context, task *models.AITask, from models.Status) error {
	if err := task.Validate(); err != nil {
		return err
	}
	task.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).Model(task).
		Where(models.StatusField+" = ?", from).
		Select("*").
		Updates(task)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return staleStatus("update ai task")
	}
	return nil
}
