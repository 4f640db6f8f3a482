package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aula-lms/aula-api/internal/models"
)

// ErrAlreadyFinalized signals that a compare-and-set on the finished flag
// found the submission already finalized by a concurrent caller.
var ErrAlreadyFinalized = errors.New("submission already finalized")

// SubmissionRepository defines data operations for assessment submissions.
type SubmissionRepository interface {
	GetByUserAndAssessment(ctx context.Context, userID, assessmentID uint) (models.Submission, error)
	GetOrCreate(ctx context.Context, userID, courseID, assessmentID uint) (models.Submission, error)
	Finalize(ctx context.Context, id uint, answers datatypes.JSONMap, submittedAt time.Time, timeSpentSeconds *int) error
	SetGrade(ctx context.Context, id uint, score float64, gradedAt time.Time) error
	ListFinishedByAssessment(ctx context.Context, assessmentID uint) ([]models.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) GetByUserAndAssessment(ctx context.Context, userID, assessmentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("assessment_id = ?", assessmentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

// GetOrCreate returns the attempt row for (user, assessment), inserting an
// empty un-finished one when absent. The unique index on the pair makes
// concurrent first views converge on a single row.
func (r *submissionRepository) GetOrCreate(ctx context.Context, userID, courseID, assessmentID uint) (models.Submission, error) {
	submission, err := r.GetByUserAndAssessment(ctx, userID, assessmentID)
	if err == nil {
		return submission, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Submission{}, err
	}

	fresh := models.Submission{
		UserID:            userID,
		CourseID:          courseID,
		AssessmentID:      assessmentID,
		Answers:           datatypes.JSONMap{},
		Finished:          false,
		AutoGradingStatus: models.GradingStatusUngraded,
	}

	if err := r.db.WithContext(ctx).Create(&fresh).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the insert race; the winner's row is the attempt.
			return r.GetByUserAndAssessment(ctx, userID, assessmentID)
		}
		return models.Submission{}, err
	}

	return fresh, nil
}

// Finalize performs the one-way finished transition as an atomic
// compare-and-set: only a row still holding finished=false is updated.
func (r *submissionRepository) Finalize(ctx context.Context, id uint, answers datatypes.JSONMap, submittedAt time.Time, timeSpentSeconds *int) error {
	updates := map[string]interface{}{
		"answers":      answers,
		"finished":     true,
		"submitted_at": submittedAt,
	}
	if timeSpentSeconds != nil {
		updates["time_spent_seconds"] = *timeSpentSeconds
	}

	result := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Where("finished = ?", false).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyFinalized
	}

	return nil
}

func (r *submissionRepository) SetGrade(ctx context.Context, id uint, score float64, gradedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"score":               score,
			"auto_grading_status": models.GradingStatusGraded,
			"graded_at":           gradedAt,
		}).Error
}

func (r *submissionRepository) ListFinishedByAssessment(ctx context.Context, assessmentID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Where("finished = ?", true).
		Order("submitted_at ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}
