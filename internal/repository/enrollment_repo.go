package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/aula-lms/aula-api/internal/models"
)

// EnrollmentRepository defines data operations for course memberships.
type EnrollmentRepository interface {
	IsEnrolled(ctx context.Context, userID, courseID uint) (bool, error)
	Enroll(ctx context.Context, userID, courseID uint) error
	Unenroll(ctx context.Context, userID, courseID uint) error
	ListByCourse(ctx context.Context, courseID uint) ([]models.Enrollment, error)
}

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository instantiates the repository.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) IsEnrolled(ctx context.Context, userID, courseID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *enrollmentRepository) Enroll(ctx context.Context, userID, courseID uint) error {
	enrollment := models.Enrollment{UserID: userID, CourseID: courseID}
	if err := r.db.WithContext(ctx).Create(&enrollment).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return err
	}

	return nil
}

func (r *enrollmentRepository) Unenroll(ctx context.Context, userID, courseID uint) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		Delete(&models.Enrollment{}).Error
}

func (r *enrollmentRepository) ListByCourse(ctx context.Context, courseID uint) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	if err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("user_id ASC").
		Find(&enrollments).Error; err != nil {
		return nil, err
	}

	return enrollments, nil
}
