package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/aula-lms/aula-api/internal/dto"
	"github.com/aula-lms/aula-api/internal/repository"
)

// EnrollmentService manages course memberships in bulk. Individual failures
// never abort the batch; every learner gets an inspectable outcome.
type EnrollmentService interface {
	BulkEnroll(ctx context.Context, courseID uint, payload dto.BulkEnrollRequest) (dto.BulkEnrollResponse, error)
	BulkUnenroll(ctx context.Context, courseID uint, payload dto.BulkEnrollRequest) (dto.BulkEnrollResponse, error)
}

type enrollmentService struct {
	enrollments repository.EnrollmentRepository
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(enrollments repository.EnrollmentRepository, validate *validator.Validate, logger zerolog.Logger) EnrollmentService {
	return &enrollmentService{
		enrollments: enrollments,
		validator:   validate,
		logger:      logger.With().Str("component", "enrollment_service").Logger(),
	}
}

func (s *enrollmentService) BulkEnroll(ctx context.Context, courseID uint, payload dto.BulkEnrollRequest) (dto.BulkEnrollResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.BulkEnrollResponse{}, err
	}

	return s.apply(ctx, courseID, payload.UserIDs, s.enrollments.Enroll), nil
}

func (s *enrollmentService) BulkUnenroll(ctx context.Context, courseID uint, payload dto.BulkEnrollRequest) (dto.BulkEnrollResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.BulkEnrollResponse{}, err
	}

	return s.apply(ctx, courseID, payload.UserIDs, s.enrollments.Unenroll), nil
}

func (s *enrollmentService) apply(ctx context.Context, courseID uint, userIDs []uint, op func(context.Context, uint, uint) error) dto.BulkEnrollResponse {
	response := dto.BulkEnrollResponse{
		CourseID: courseID,
		Results:  make([]dto.EnrollmentResult, 0, len(userIDs)),
	}

	for _, userID := range userIDs {
		result := dto.EnrollmentResult{UserID: userID, OK: true}
		if err := op(ctx, userID, courseID); err != nil {
			result.OK = false
			result.Reason = err.Error()
			response.Failed++
			s.logger.Warn().Err(err).Uint("user_id", userID).Uint("course_id", courseID).Msg("enrollment operation failed")
		} else {
			response.Succeeded++
		}
		response.Results = append(response.Results, result)
	}

	return response
}
