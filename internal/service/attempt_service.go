package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/aula-lms/aula-api/internal/dto"
	"github.com/aula-lms/aula-api/internal/models"
	"github.com/aula-lms/aula-api/internal/observability"
	"github.com/aula-lms/aula-api/internal/repository"
)

// ErrAssessmentNotFound indicates the assessment does not exist.
var ErrAssessmentNotFound = errors.New("assessment not found")

// ErrAssessmentNotPublished indicates the assessment is still a draft.
var ErrAssessmentNotPublished = errors.New("assessment not published")

// ErrAssessmentUnavailable indicates the availability window is closed.
var ErrAssessmentUnavailable = errors.New("assessment not available")

// ErrNotEnrolled indicates the learner is not a member of the owning course.
var ErrNotEnrolled = errors.New("not enrolled in course")

// ErrAlreadyCompleted indicates a finished attempt exists; callers should
// route to results instead of opening a new attempt.
var ErrAlreadyCompleted = errors.New("assessment already completed")

// ErrSubmissionNotFound indicates submit was called without a prior begin.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrAlreadySubmitted indicates the one-shot finalize already happened.
var ErrAlreadySubmitted = errors.New("submission already submitted")

// ErrNotSubmitted indicates results were requested before any finalize.
var ErrNotSubmitted = errors.New("assessment not submitted")

// AttemptService owns the lifecycle of a learner's single attempt at an
// assessment: create on first view, finalize exactly once on submit, grade
// synchronously, and report results.
type AttemptService interface {
	Begin(ctx context.Context, userID, assessmentID uint) (dto.BeginAttemptResponse, error)
	Submit(ctx context.Context, userID, assessmentID uint, payload dto.SubmitAttemptRequest) (dto.SubmissionResponse, error)
	Results(ctx context.Context, userID, assessmentID uint) (dto.ResultsResponse, error)
}

type attemptService struct {
	submissions repository.SubmissionRepository
	assessments repository.AssessmentRepository
	questions   repository.QuestionRepository
	enrollments repository.EnrollmentRepository
	progress    ProgressService
	events      EventPublisher
	cache       *redis.Client
	cacheTTL    time.Duration
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	now         func() time.Time
}

// NewAttemptService constructs the attempt lifecycle service.
func NewAttemptService(
	submissions repository.SubmissionRepository,
	assessments repository.AssessmentRepository,
	questions repository.QuestionRepository,
	enrollments repository.EnrollmentRepository,
	progress ProgressService,
	events EventPublisher,
	cache *redis.Client,
	cacheTTL time.Duration,
	validate *validator.Validate,
	logger zerolog.Logger,
) AttemptService {
	return &attemptService{
		submissions: submissions,
		assessments: assessments,
		questions:   questions,
		enrollments: enrollments,
		progress:    progress,
		events:      events,
		cache:       cache,
		cacheTTL:    cacheTTL,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "attempt_service").Logger(),
		now:         time.Now,
	}
}

// Begin returns the learner's attempt for the assessment, creating it on the
// first view, together with the advisory remaining time for the client timer.
func (s *attemptService) Begin(ctx context.Context, userID, assessmentID uint) (dto.BeginAttemptResponse, error) {
	assessment, err := s.loadAssessment(ctx, assessmentID)
	if err != nil {
		return dto.BeginAttemptResponse{}, err
	}

	if err := s.checkAttemptable(assessment); err != nil {
		return dto.BeginAttemptResponse{}, err
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, userID, assessment.CourseID)
	if err != nil {
		return dto.BeginAttemptResponse{}, err
	}
	if !enrolled {
		return dto.BeginAttemptResponse{}, ErrNotEnrolled
	}

	existing, err := s.submissions.GetByUserAndAssessment(ctx, userID, assessmentID)
	if err == nil && existing.Finished {
		return dto.BeginAttemptResponse{}, ErrAlreadyCompleted
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.BeginAttemptResponse{}, err
	}

	submission, err := s.submissions.GetOrCreate(ctx, userID, assessment.CourseID, assessmentID)
	if err != nil {
		return dto.BeginAttemptResponse{}, err
	}

	// Safe to fire on every view; the ledger never regresses.
	if err := s.progress.MarkStarted(ctx, userID, assessment.CourseID, assessmentID); err != nil {
		s.logger.Warn().Err(err).Uint("user_id", userID).Uint("assessment_id", assessmentID).Msg("failed to mark progress started")
	}

	return dto.BeginAttemptResponse{
		Submission:           dto.NewSubmissionResponse(submission),
		TimeRemainingSeconds: s.timeRemaining(assessment, submission),
	}, nil
}

// Submit finalizes the attempt exactly once, grades it when the assessment
// carries auto-gradable questions, and updates the progress ledger. The
// finalize write is the durability boundary: grading or progress failures
// never roll it back.
func (s *attemptService) Submit(ctx context.Context, userID, assessmentID uint, payload dto.SubmitAttemptRequest) (dto.SubmissionResponse, error) {
	tracer := otel.Tracer("github.com/aula-lms/aula-api/internal/service/attempt")
	ctx, span := tracer.Start(ctx, "attempt.submit")
	span.SetAttributes(
		attribute.Int64("attempt.user_id", int64(userID)),
		attribute.Int64("attempt.assessment_id", int64(assessmentID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	assessment, err := s.loadAssessment(ctx, assessmentID)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByUserAndAssessment(ctx, userID, assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "submission_not_found")
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	if submission.Finished {
		span.SetStatus(codes.Error, "already_submitted")
		return dto.SubmissionResponse{}, ErrAlreadySubmitted
	}

	questions, err := s.questions.ListByAssessment(ctx, assessmentID)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	resolved, err := resolveAnswers(payload.Answers, questions, s.sanitizer)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	answers := answersJSON(resolved)
	submittedAt := s.now()

	if err := s.submissions.Finalize(ctx, submission.ID, answers, submittedAt, payload.TimeSpentSeconds); err != nil {
		if errors.Is(err, repository.ErrAlreadyFinalized) {
			// A concurrent submit won the compare-and-set.
			span.SetStatus(codes.Error, "already_submitted")
			return dto.SubmissionResponse{}, ErrAlreadySubmitted
		}
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	submission.Answers = answers
	submission.Finished = true
	submission.SubmittedAt = &submittedAt
	if payload.TimeSpentSeconds != nil {
		submission.TimeSpentSeconds = payload.TimeSpentSeconds
	}

	if s.events != nil {
		s.events.SubmissionFinalized(ctx, SubmissionEvent{
			SubmissionID: submission.ID,
			UserID:       userID,
			CourseID:     assessment.CourseID,
			AssessmentID: assessmentID,
			OccurredAt:   submittedAt,
		})
	}

	if autoGradable(questions) {
		if err := s.gradeAndRecord(ctx, &submission, questions); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "grading_failed")
			return dto.SubmissionResponse{}, err
		}
	}

	s.recordProgress(ctx, userID, assessment.CourseID, assessmentID, payload.TimeSpentSeconds)
	s.invalidateResults(ctx, userID, assessmentID)

	span.SetAttributes(attribute.Bool("attempt.graded", submission.IsGraded()))
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("user_id", userID).
		Uint("assessment_id", assessmentID).
		Bool("graded", submission.IsGraded()).
		Msg("submission finalized")

	return dto.NewSubmissionResponse(submission), nil
}

// Results returns the finished submission with its computed percentage, or a
// pending-manual indication when no automatic grade exists.
func (s *attemptService) Results(ctx context.Context, userID, assessmentID uint) (dto.ResultsResponse, error) {
	cacheKey := resultsCacheKey(userID, assessmentID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.ResultsResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read results cache")
		}
	}

	submission, err := s.submissions.GetByUserAndAssessment(ctx, userID, assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ResultsResponse{}, ErrNotSubmitted
		}
		return dto.ResultsResponse{}, err
	}

	if !submission.Finished {
		return dto.ResultsResponse{}, ErrNotSubmitted
	}

	assessment, err := s.loadAssessment(ctx, assessmentID)
	if err != nil {
		return dto.ResultsResponse{}, err
	}

	response := dto.ResultsResponse{
		Submission:           dto.NewSubmissionResponse(submission),
		MaxScore:             assessment.MaxScore,
		PendingManualGrading: !submission.IsGraded(),
	}

	if submission.IsGraded() && submission.Score != nil && assessment.MaxScore > 0 {
		percentage := *submission.Score / assessment.MaxScore * 100
		response.Percentage = &percentage
	}

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store results cache")
			}
		}
	}

	return response, nil
}

func (s *attemptService) gradeAndRecord(ctx context.Context, submission *models.Submission, questions []models.Question) error {
	start := s.now()
	outcome, err := gradeSubmission(submission.Answers, questions)
	observability.GradingDuration().Observe(time.Since(start).Seconds())
	if err != nil {
		// The submission stays finished and ungraded for a later retry.
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("grading data unavailable")
		return ErrGradingDataUnavailable
	}

	gradedAt := s.now()
	if err := s.submissions.SetGrade(ctx, submission.ID, outcome.Score, gradedAt); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to persist grade")
		return err
	}

	score := outcome.Score
	submission.Score = &score
	submission.AutoGradingStatus = models.GradingStatusGraded
	submission.GradedAt = &gradedAt

	if s.events != nil {
		s.events.SubmissionGraded(ctx, SubmissionEvent{
			SubmissionID: submission.ID,
			UserID:       submission.UserID,
			CourseID:     submission.CourseID,
			AssessmentID: submission.AssessmentID,
			Score:        &score,
			OccurredAt:   gradedAt,
		})
	}

	return nil
}

func (s *attemptService) recordProgress(ctx context.Context, userID, courseID, assessmentID uint, timeSpentSeconds *int) {
	if err := s.progress.MarkCompleted(ctx, userID, courseID, assessmentID); err != nil {
		s.logger.Warn().Err(err).Uint("user_id", userID).Uint("assessment_id", assessmentID).Msg("failed to mark progress completed")
	}

	if timeSpentSeconds != nil {
		if err := s.progress.AddTimeSpent(ctx, userID, courseID, assessmentID, *timeSpentSeconds); err != nil {
			s.logger.Warn().Err(err).Uint("user_id", userID).Uint("assessment_id", assessmentID).Msg("failed to add time spent")
		}
	}
}

func (s *attemptService) loadAssessment(ctx context.Context, assessmentID uint) (models.Assessment, error) {
	assessment, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, err
	}

	return assessment, nil
}

func (s *attemptService) checkAttemptable(assessment models.Assessment) error {
	if !assessment.IsPublished() {
		return ErrAssessmentNotPublished
	}

	now := s.now()
	if assessment.AvailableFrom != nil && now.Before(*assessment.AvailableFrom) {
		return ErrAssessmentUnavailable
	}
	if assessment.AvailableUntil != nil && now.After(*assessment.AvailableUntil) {
		return ErrAssessmentUnavailable
	}

	return nil
}

// timeRemaining computes the advisory countdown for the client timer. The
// server does not reject late submits; enforcement is a client concern.
func (s *attemptService) timeRemaining(assessment models.Assessment, submission models.Submission) *int {
	limit, bounded := assessment.TimeLimit()
	if !bounded {
		return nil
	}

	remaining := int((limit - submission.Elapsed(s.now())).Seconds())
	if remaining < 0 {
		remaining = 0
	}

	return &remaining
}

// resultsCacheKey is shared with the manual grading path, which must drop the
// cached payload whenever an instructor overrides the score.
func resultsCacheKey(userID, assessmentID uint) string {
	return fmt.Sprintf("results:user:%d:assessment:%d", userID, assessmentID)
}

func (s *attemptService) invalidateResults(ctx context.Context, userID, assessmentID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, resultsCacheKey(userID, assessmentID)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate results cache")
	}
}
