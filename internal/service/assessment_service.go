package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aula-lms/aula-api/internal/dto"
	"github.com/aula-lms/aula-api/internal/models"
	"github.com/aula-lms/aula-api/internal/repository"
)

// ErrInvalidQuestion indicates a question violates its grading invariants.
var ErrInvalidQuestion = errors.New("invalid question configuration")

// ErrScoreExceedsMax indicates a manual score surpasses the assessment max.
var ErrScoreExceedsMax = errors.New("score exceeds assessment max")

// AssessmentService encapsulates instructor-facing authoring and grading
// workflows: creating assessments, managing their question banks, listing
// results and applying manual scores.
type AssessmentService interface {
	Create(ctx context.Context, courseID uint, payload dto.AssessmentCreateRequest) (dto.AssessmentResponse, error)
	Update(ctx context.Context, id uint, payload dto.AssessmentUpdateRequest) (dto.AssessmentResponse, error)
	Publish(ctx context.Context, id uint) (dto.AssessmentResponse, error)
	AddQuestion(ctx context.Context, assessmentID uint, payload dto.QuestionCreateRequest) (dto.AssessmentResponse, error)
	ListByCourse(ctx context.Context, courseID uint) ([]dto.AssessmentResponse, error)
	Get(ctx context.Context, id uint, includeAnswers bool) (dto.AssessmentResponse, error)
	Results(ctx context.Context, assessmentID uint) (dto.AssessmentResultsResponse, error)
	ManualGrade(ctx context.Context, userID, assessmentID uint, payload dto.ManualGradeRequest) (dto.SubmissionResponse, error)
}

type assessmentService struct {
	assessments repository.AssessmentRepository
	questions   repository.QuestionRepository
	submissions repository.SubmissionRepository
	cache       *redis.Client
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

// NewAssessmentService constructs the authoring service.
func NewAssessmentService(
	assessments repository.AssessmentRepository,
	questions repository.QuestionRepository,
	submissions repository.SubmissionRepository,
	cache *redis.Client,
	validate *validator.Validate,
	logger zerolog.Logger,
) AssessmentService {
	return &assessmentService{
		assessments: assessments,
		questions:   questions,
		submissions: submissions,
		cache:       cache,
		validator:   validate,
		logger:      logger.With().Str("component", "assessment_service").Logger(),
		now:         time.Now,
	}
}

func (s *assessmentService) Create(ctx context.Context, courseID uint, payload dto.AssessmentCreateRequest) (dto.AssessmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, err
	}

	assessment := models.Assessment{
		CourseID:         courseID,
		Title:            payload.Title,
		Type:             payload.Type,
		MaxScore:         payload.MaxScore,
		Weight:           payload.Weight,
		TimeLimitMinutes: payload.TimeLimitMinutes,
		Visibility:       models.VisibilityDraft,
		AvailableFrom:    payload.AvailableFrom,
		AvailableUntil:   payload.AvailableUntil,
	}
	if payload.ShowResults != nil {
		assessment.ShowResults = *payload.ShowResults
	}

	if err := s.assessments.Create(ctx, &assessment); err != nil {
		return dto.AssessmentResponse{}, err
	}

	s.logger.Info().Uint("assessment_id", assessment.ID).Uint("course_id", courseID).Msg("assessment created")

	return dto.NewAssessmentResponse(assessment, true), nil
}

func (s *assessmentService) Update(ctx context.Context, id uint, payload dto.AssessmentUpdateRequest) (dto.AssessmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, err
	}

	assessment, err := s.load(ctx, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	if payload.Title != nil {
		assessment.Title = *payload.Title
	}
	if payload.Type != nil {
		assessment.Type = *payload.Type
	}
	if payload.Weight != nil {
		assessment.Weight = *payload.Weight
	}
	if payload.TimeLimitMinutes != nil {
		assessment.TimeLimitMinutes = payload.TimeLimitMinutes
	}
	if payload.AvailableFrom != nil {
		assessment.AvailableFrom = payload.AvailableFrom
	}
	if payload.AvailableUntil != nil {
		assessment.AvailableUntil = payload.AvailableUntil
	}
	if payload.ShowResults != nil {
		assessment.ShowResults = *payload.ShowResults
	}
	if payload.AllowResultSharing != nil {
		assessment.AllowResultSharing = *payload.AllowResultSharing
	}

	if err := s.assessments.Update(ctx, &assessment); err != nil {
		return dto.AssessmentResponse{}, err
	}

	s.logger.Info().Uint("assessment_id", assessment.ID).Msg("assessment updated")

	return dto.NewAssessmentResponse(assessment, true), nil
}

func (s *assessmentService) Publish(ctx context.Context, id uint) (dto.AssessmentResponse, error) {
	assessment, err := s.load(ctx, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	if assessment.IsPublished() {
		return dto.NewAssessmentResponse(assessment, true), nil
	}

	assessment.Visibility = models.VisibilityPublished
	if err := s.assessments.Update(ctx, &assessment); err != nil {
		return dto.AssessmentResponse{}, err
	}

	s.logger.Info().Uint("assessment_id", assessment.ID).Msg("assessment published")

	return dto.NewAssessmentResponse(assessment, true), nil
}

// AddQuestion appends a question and recomputes the assessment max score so
// it stays equal to the sum of its questions' points.
func (s *assessmentService) AddQuestion(ctx context.Context, assessmentID uint, payload dto.QuestionCreateRequest) (dto.AssessmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, err
	}

	assessment, err := s.load(ctx, assessmentID)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	question := models.Question{
		AssessmentID:   assessmentID,
		QuestionNumber: payload.QuestionNumber,
		Type:           payload.Type,
		QuestionText:   payload.QuestionText,
		Points:         payload.Points,
		Answer:         payload.Answer,
		AutoGraded:     payload.Type == models.QuestionTypeMCQ || payload.Type == models.QuestionTypeTrueFalse,
	}

	if len(payload.Choices) > 0 {
		choices := datatypes.JSONMap{}
		for key, text := range payload.Choices {
			choices[key] = text
		}
		question.Choices = choices
	}

	if err := validateQuestion(question); err != nil {
		return dto.AssessmentResponse{}, err
	}

	if err := s.questions.Create(ctx, &question); err != nil {
		return dto.AssessmentResponse{}, err
	}

	total, err := s.questions.SumPoints(ctx, assessmentID)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	assessment.MaxScore = total
	if err := s.assessments.Update(ctx, &assessment); err != nil {
		return dto.AssessmentResponse{}, err
	}

	return s.Get(ctx, assessmentID, true)
}

func (s *assessmentService) ListByCourse(ctx context.Context, courseID uint) ([]dto.AssessmentResponse, error) {
	assessments, err := s.assessments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.AssessmentResponse, 0, len(assessments))
	for _, assessment := range assessments {
		responses = append(responses, dto.NewAssessmentResponse(assessment, false))
	}

	return responses, nil
}

func (s *assessmentService) Get(ctx context.Context, id uint, includeAnswers bool) (dto.AssessmentResponse, error) {
	assessment, err := s.assessments.GetWithQuestions(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssessmentResponse{}, ErrAssessmentNotFound
		}
		return dto.AssessmentResponse{}, err
	}

	return dto.NewAssessmentResponse(assessment, includeAnswers), nil
}

func (s *assessmentService) Results(ctx context.Context, assessmentID uint) (dto.AssessmentResultsResponse, error) {
	assessment, err := s.load(ctx, assessmentID)
	if err != nil {
		return dto.AssessmentResultsResponse{}, err
	}

	submissions, err := s.submissions.ListFinishedByAssessment(ctx, assessmentID)
	if err != nil {
		return dto.AssessmentResultsResponse{}, err
	}

	response := dto.AssessmentResultsResponse{
		AssessmentID: assessmentID,
		MaxScore:     assessment.MaxScore,
		Rows:         make([]dto.AssessmentResultRow, 0, len(submissions)),
	}

	for _, submission := range submissions {
		row := dto.AssessmentResultRow{
			SubmissionID:      submission.ID,
			UserID:            submission.UserID,
			Score:             submission.Score,
			AutoGradingStatus: submission.AutoGradingStatus,
			SubmittedAt:       submission.SubmittedAt,
		}
		if submission.Score != nil && assessment.MaxScore > 0 {
			percentage := *submission.Score / assessment.MaxScore * 100
			row.Percentage = &percentage
		}
		if !submission.IsGraded() {
			response.PendingManual++
		}
		response.Rows = append(response.Rows, row)
	}

	return response, nil
}

// ManualGrade sets the instructor-decided final score on a finished
// submission, typically topping up free-text questions the automatic pass
// skipped. Re-applying an identical score is a no-op.
func (s *assessmentService) ManualGrade(ctx context.Context, userID, assessmentID uint, payload dto.ManualGradeRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	assessment, err := s.load(ctx, assessmentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByUserAndAssessment(ctx, userID, assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if !submission.Finished {
		return dto.SubmissionResponse{}, ErrNotSubmitted
	}

	if assessment.MaxScore > 0 && payload.Score > assessment.MaxScore+1e-9 {
		return dto.SubmissionResponse{}, ErrScoreExceedsMax
	}

	if submission.Score != nil && math.Abs(*submission.Score-payload.Score) < 1e-6 && submission.IsGraded() {
		return dto.NewSubmissionResponse(submission), nil
	}

	gradedAt := s.now()
	if err := s.submissions.SetGrade(ctx, submission.ID, payload.Score, gradedAt); err != nil {
		return dto.SubmissionResponse{}, err
	}

	score := payload.Score
	submission.Score = &score
	submission.AutoGradingStatus = models.GradingStatusGraded
	submission.GradedAt = &gradedAt

	// The learner's cached results payload predates the override and must
	// not be served until the TTL runs out.
	if s.cache != nil {
		if err := s.cache.Del(ctx, resultsCacheKey(userID, assessmentID)).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to invalidate results cache")
		}
	}

	s.logger.Info().Uint("submission_id", submission.ID).Float64("score", payload.Score).Msg("submission manually graded")

	return dto.NewSubmissionResponse(submission), nil
}

func (s *assessmentService) load(ctx context.Context, id uint) (models.Assessment, error) {
	assessment, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, err
	}

	return assessment, nil
}

// validateQuestion enforces the grading invariants: auto-graded questions
// need a canonical answer, and MCQ answers must reference an existing choice.
func validateQuestion(question models.Question) error {
	if !question.AutoGraded {
		return nil
	}

	if question.Answer == "" {
		return ErrInvalidQuestion
	}

	if question.Type == models.QuestionTypeMCQ {
		if _, ok := question.ChoiceText(question.Answer); !ok {
			return ErrInvalidQuestion
		}
	}

	return nil
}
