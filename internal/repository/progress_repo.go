package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/aula-lms/aula-api/internal/models"
)

// ProgressRepository defines data operations for per-item learner progress.
type ProgressRepository interface {
	GetOrCreate(ctx context.Context, userID, courseID, itemID uint) (models.UserProgress, error)
	ListByUserAndCourse(ctx context.Context, userID, courseID uint) ([]models.UserProgress, error)
	SetStarted(ctx context.Context, id uint, startedAt time.Time) (bool, error)
	SetCompleted(ctx context.Context, id uint, completedAt time.Time) (bool, error)
	AddTimeSpent(ctx context.Context, id uint, seconds int) error
}

type progressRepository struct {
	db *gorm.DB
}

// NewProgressRepository instantiates the repository.
func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) GetOrCreate(ctx context.Context, userID, courseID, itemID uint) (models.UserProgress, error) {
	var progress models.UserProgress
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		Where("item_id = ?", itemID).
		First(&progress).Error
	if err == nil {
		return progress, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.UserProgress{}, err
	}

	fresh := models.UserProgress{
		UserID:   userID,
		CourseID: courseID,
		ItemID:   itemID,
		Status:   models.ProgressNotStarted,
	}

	if err := r.db.WithContext(ctx).Create(&fresh).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return r.GetOrCreate(ctx, userID, courseID, itemID)
		}
		return models.UserProgress{}, err
	}

	return fresh, nil
}

func (r *progressRepository) ListByUserAndCourse(ctx context.Context, userID, courseID uint) ([]models.UserProgress, error) {
	var rows []models.UserProgress
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		Order("item_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	return rows, nil
}

// SetStarted moves a not_started row to in_progress. The status guard makes
// concurrent transitions race-safe: a row that already moved forward is left
// untouched and the call reports false.
func (r *progressRepository) SetStarted(ctx context.Context, id uint, startedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.UserProgress{}).
		Where("id = ?", id).
		Where("status = ?", models.ProgressNotStarted).
		Updates(map[string]interface{}{
			"status":     models.ProgressInProgress,
			"started_at": startedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// SetCompleted moves any non-completed row to completed. Completed rows are
// never written again, so the completion timestamp survives repeat calls.
func (r *progressRepository) SetCompleted(ctx context.Context, id uint, completedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.UserProgress{}).
		Where("id = ?", id).
		Where("status <> ?", models.ProgressCompleted).
		Updates(map[string]interface{}{
			"status":       models.ProgressCompleted,
			"completed_at": completedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// AddTimeSpent uses a database-level increment so concurrent time reports
// from multiple tabs never lose updates.
func (r *progressRepository) AddTimeSpent(ctx context.Context, id uint, seconds int) error {
	return r.db.WithContext(ctx).
		Model(&models.UserProgress{}).
		Where("id = ?", id).
		UpdateColumn("time_spent_seconds", gorm.Expr("time_spent_seconds + ?", seconds)).Error
}
