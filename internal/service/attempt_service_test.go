package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aula-lms/aula-api/internal/dto"
	"github.com/aula-lms/aula-api/internal/models"
	"github.com/aula-lms/aula-api/internal/repository"
)

type fakeSubmissionRepo struct {
	submissions map[[2]uint]models.Submission
	nextID      uint
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{submissions: map[[2]uint]models.Submission{}, nextID: 1}
}

func (f *fakeSubmissionRepo) key(userID, assessmentID uint) [2]uint {
	return [2]uint{userID, assessmentID}
}

func (f *fakeSubmissionRepo) GetByUserAndAssessment(ctx context.Context, userID, assessmentID uint) (models.Submission, error) {
	submission, ok := f.submissions[f.key(userID, assessmentID)]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return submission, nil
}

func (f *fakeSubmissionRepo) GetOrCreate(ctx context.Context, userID, courseID, assessmentID uint) (models.Submission, error) {
	if submission, ok := f.submissions[f.key(userID, assessmentID)]; ok {
		return submission, nil
	}
	submission := models.Submission{
		ID:                f.nextID,
		UserID:            userID,
		CourseID:          courseID,
		AssessmentID:      assessmentID,
		Answers:           datatypes.JSONMap{},
		AutoGradingStatus: models.GradingStatusUngraded,
		CreatedAt:         time.Now(),
	}
	f.nextID++
	f.submissions[f.key(userID, assessmentID)] = submission
	return submission, nil
}

func (f *fakeSubmissionRepo) Finalize(ctx context.Context, id uint, answers datatypes.JSONMap, submittedAt time.Time, timeSpentSeconds *int) error {
	for key, submission := range f.submissions {
		if submission.ID != id {
			continue
		}
		if submission.Finished {
			return repository.ErrAlreadyFinalized
		}
		submission.Answers = answers
		submission.Finished = true
		submission.SubmittedAt = &submittedAt
		if timeSpentSeconds != nil {
			submission.TimeSpentSeconds = timeSpentSeconds
		}
		f.submissions[key] = submission
		return nil
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeSubmissionRepo) SetGrade(ctx context.Context, id uint, score float64, gradedAt time.Time) error {
	for key, submission := range f.submissions {
		if submission.ID != id {
			continue
		}
		submission.Score = &score
		submission.AutoGradingStatus = models.GradingStatusGraded
		submission.GradedAt = &gradedAt
		f.submissions[key] = submission
		return nil
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeSubmissionRepo) ListFinishedByAssessment(ctx context.Context, assessmentID uint) ([]models.Submission, error) {
	var finished []models.Submission
	for _, submission := range f.submissions {
		if submission.AssessmentID == assessmentID && submission.Finished {
			finished = append(finished, submission)
		}
	}
	return finished, nil
}

type fakeAssessmentRepo struct {
	assessments map[uint]models.Assessment
}

func (f *fakeAssessmentRepo) ListByCourse(ctx context.Context, courseID uint) ([]models.Assessment, error) {
	var result []models.Assessment
	for _, assessment := range f.assessments {
		if assessment.CourseID == courseID {
			result = append(result, assessment)
		}
	}
	return result, nil
}

func (f *fakeAssessmentRepo) GetByID(ctx context.Context, id uint) (models.Assessment, error) {
	assessment, ok := f.assessments[id]
	if !ok {
		return models.Assessment{}, gorm.ErrRecordNotFound
	}
	return assessment, nil
}

func (f *fakeAssessmentRepo) GetWithQuestions(ctx context.Context, id uint) (models.Assessment, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeAssessmentRepo) Create(ctx context.Context, assessment *models.Assessment) error {
	if assessment.ID == 0 {
		assessment.ID = uint(len(f.assessments) + 1)
	}
	f.assessments[assessment.ID] = *assessment
	return nil
}

func (f *fakeAssessmentRepo) Update(ctx context.Context, assessment *models.Assessment) error {
	f.assessments[assessment.ID] = *assessment
	return nil
}

type fakeQuestionRepo struct {
	questions map[uint][]models.Question
}

func (f *fakeQuestionRepo) ListByAssessment(ctx context.Context, assessmentID uint) ([]models.Question, error) {
	return f.questions[assessmentID], nil
}

func (f *fakeQuestionRepo) Create(ctx context.Context, question *models.Question) error {
	if question.ID == 0 {
		question.ID = uint(len(f.questions[question.AssessmentID]) + 1)
	}
	f.questions[question.AssessmentID] = append(f.questions[question.AssessmentID], *question)
	return nil
}

func (f *fakeQuestionRepo) Update(ctx context.Context, question *models.Question) error {
	return nil
}

func (f *fakeQuestionRepo) SumPoints(ctx context.Context, assessmentID uint) (float64, error) {
	var total float64
	for _, question := range f.questions[assessmentID] {
		total += question.Points
	}
	return total, nil
}

type fakeEnrollmentRepo struct {
	enrolled map[[2]uint]bool
	failFor  map[uint]error
}

func (f *fakeEnrollmentRepo) IsEnrolled(ctx context.Context, userID, courseID uint) (bool, error) {
	return f.enrolled[[2]uint{userID, courseID}], nil
}

func (f *fakeEnrollmentRepo) Enroll(ctx context.Context, userID, courseID uint) error {
	if err := f.failFor[userID]; err != nil {
		return err
	}
	f.enrolled[[2]uint{userID, courseID}] = true
	return nil
}

func (f *fakeEnrollmentRepo) Unenroll(ctx context.Context, userID, courseID uint) error {
	if err := f.failFor[userID]; err != nil {
		return err
	}
	delete(f.enrolled, [2]uint{userID, courseID})
	return nil
}

func (f *fakeEnrollmentRepo) ListByCourse(ctx context.Context, courseID uint) ([]models.Enrollment, error) {
	return nil, nil
}

type fakeProgressLedger struct {
	started   int
	completed int
	seconds   int
}

func (f *fakeProgressLedger) MarkStarted(ctx context.Context, userID, courseID, itemID uint) error {
	f.started++
	return nil
}

func (f *fakeProgressLedger) MarkCompleted(ctx context.Context, userID, courseID, itemID uint) error {
	f.completed++
	return nil
}

func (f *fakeProgressLedger) AddTimeSpent(ctx context.Context, userID, courseID, itemID uint, seconds int) error {
	f.seconds += seconds
	return nil
}

func (f *fakeProgressLedger) CourseOverview(ctx context.Context, userID, courseID uint) (dto.CourseProgressResponse, error) {
	return dto.CourseProgressResponse{}, nil
}

type attemptFixture struct {
	svc         *attemptService
	submissions *fakeSubmissionRepo
	assessments *fakeAssessmentRepo
	questions   *fakeQuestionRepo
	enrollments *fakeEnrollmentRepo
	progress    *fakeProgressLedger
}

func newAttemptFixture(t *testing.T) attemptFixture {
	t.Helper()

	timeLimit := 30
	assessments := &fakeAssessmentRepo{assessments: map[uint]models.Assessment{
		1: {
			ID:               1,
			CourseID:         10,
			Title:            "Geography Quiz",
			Type:             models.AssessmentTypeQuiz,
			MaxScore:         100,
			TimeLimitMinutes: &timeLimit,
			Visibility:       models.VisibilityPublished,
		},
	}}
	questions := &fakeQuestionRepo{questions: map[uint][]models.Question{
		1: {
			{
				ID:           7,
				AssessmentID: 1,
				Type:         models.QuestionTypeMCQ,
				Points:       100,
				Answer:       "B",
				Choices:      datatypes.JSONMap{"A": "London", "B": "Paris"},
				AutoGraded:   true,
			},
		},
	}}
	enrollments := &fakeEnrollmentRepo{enrolled: map[[2]uint]bool{{5, 10}: true}}
	submissions := newFakeSubmissionRepo()
	progress := &fakeProgressLedger{}

	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewAttemptService(submissions, assessments, questions, enrollments, progress, nil, nil, time.Minute, validate, testLogger()).(*attemptService)

	return attemptFixture{
		svc:         svc,
		submissions: submissions,
		assessments: assessments,
		questions:   questions,
		enrollments: enrollments,
		progress:    progress,
	}
}

func TestBeginCreatesAttemptWithCountdown(t *testing.T) {
	fx := newAttemptFixture(t)

	attempt, err := fx.svc.Begin(context.Background(), 5, 1)
	require.NoError(t, err)
	require.False(t, attempt.Submission.Finished)
	require.NotNil(t, attempt.TimeRemainingSeconds)
	require.InDelta(t, 1800, *attempt.TimeRemainingSeconds, 2)
	require.Equal(t, 1, fx.progress.started)
}

func TestBeginIsIdempotent(t *testing.T) {
	fx := newAttemptFixture(t)

	first, err := fx.svc.Begin(context.Background(), 5, 1)
	require.NoError(t, err)
	second, err := fx.svc.Begin(context.Background(), 5, 1)
	require.NoError(t, err)
	require.Equal(t, first.Submission.ID, second.Submission.ID)
}

func TestBeginUnlimitedTime(t *testing.T) {
	fx := newAttemptFixture(t)
	assessment := fx.assessments.assessments[1]
	assessment.TimeLimitMinutes = nil
	fx.assessments.assessments[1] = assessment

	attempt, err := fx.svc.Begin(context.Background(), 5, 1)
	require.NoError(t, err)
	require.Nil(t, attempt.TimeRemainingSeconds)
}

func TestBeginRejectsDraftAssessment(t *testing.T) {
	fx := newAttemptFixture(t)
	assessment := fx.assessments.assessments[1]
	assessment.Visibility = models.VisibilityDraft
	fx.assessments.assessments[1] = assessment

	_, err := fx.svc.Begin(context.Background(), 5, 1)
	require.ErrorIs(t, err, ErrAssessmentNotPublished)
}

func TestBeginRejectsUnenrolledUser(t *testing.T) {
	fx := newAttemptFixture(t)

	_, err := fx.svc.Begin(context.Background(), 99, 1)
	require.ErrorIs(t, err, ErrNotEnrolled)
}

func TestBeginRejectsCompletedAttempt(t *testing.T) {
	fx := newAttemptFixture(t)

	_, err := fx.svc.Begin(context.Background(), 5, 1)
	require.NoError(t, err)
	_, err = fx.svc.Submit(context.Background(), 5, 1, dto.SubmitAttemptRequest{Answers: map[string]string{"7": "B"}})
	require.NoError(t, err)

	_, err = fx.svc.Begin(context.Background(), 5, 1)
	require.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestSubmitGradesCorrectAnswer(t *testing.T) {
	fx := newAttemptFixture(t)

	_, err := fx.svc.Begin(context.Background(), 5, 1)
	require.NoError(t, err)

	timeSpent := 300
	submission, err := fx.svc.Submit(context.Background(), 5, 1, dto.SubmitAttemptRequest{
		Answers:          map[string]string{"7": "B"},
		TimeSpentSeconds: &timeSpent,
	})
	require.NoError(t, err)
	require.True(t, submission.Finished)
	require.NotNil(t, submission.Score)
	require.Equal(t, 100.0, *submission.Score)
	require.Equal(t, models.GradingStatusGraded, submission.AutoGradingStatus)
	require.NotNil(t, submission.GradedAt)
	require.Equal(t, 1, fx.progress.completed)
	require.Equal(t, 300, fx.progress.seconds)
}

func TestSubmitGradesWrongAnswerZero(t *testing.T) {
	fx := newAttemptFixture(t)

	_, err := fx.svc.Begin(context.Background(), 5, 1)
	require.NoError(t, err)

	submission, err := fx.svc.Submit(context.Background(), 5, 1, dto.SubmitAttemptRequest{
		Answers: map[string]string{"7": "A"},
	})
	require.NoError(t, err)
	require.True(t, submission.Finished)
	require.NotNil(t, submission.Score)
	require.Zero(t, *submission.Score)
}

func TestSubmitRequiresPriorBegin(t *testing.T) {
	fx := newAttemptFixture(t)

	_, err := fx.svc.Submit(context.Background(), 5, 1, dto.SubmitAttemptRequest{
		Answers: map[string]string{"7": "B"},
	})
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestSubmitIsOneShot(t *testing.T) {
	fx := newAttemptFixture(t)

	_, err := fx.svc.Begin(context.Background(), 5, 1)
	require.NoError(t, err)

	first, err := fx.svc.Submit(context.Background(), 5, 1, dto.SubmitAttemptRequest{
		Answers: map[string]string{"7": "B"},
	})
	require.NoError(t, err)

	_, err = fx.svc.Submit(context.Background(), 5, 1, dto.SubmitAttemptRequest{
		Answers: map[string]string{"7": "A"},
	})
	require.ErrorIs(t, err, ErrAlreadySubmitted)

	// The stored attempt still reflects the first call.
	stored, err := fx.submissions.GetByUserAndAssessment(context.Background(), 5, 1)
	require.NoError(t, err)
	require.Equal(t, "B", stored.Answers["7"])
	require.Equal(t, *first.Score, *stored.Score)
}

func TestSubmitLateIsAccepted(t *testing.T) {
	fx := newAttemptFixture(t)

	_, err := fx.svc.Begin(context.Background(), 5, 1)
	require.NoError(t, err)

	// Move the clock past the 30 minute limit; the countdown is advisory
	// and the server still accepts the submission.
	fx.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	submission, err := fx.svc.Submit(context.Background(), 5, 1, dto.SubmitAttemptRequest{
		Answers: map[string]string{"7": "B"},
	})
	require.NoError(t, err)
	require.True(t, submission.Finished)
}

func TestSubmitMixedManualAndAutoQuestions(t *testing.T) {
	fx := newAttemptFixture(t)
	fx.questions.questions[1] = []models.Question{
		{
			ID:           7,
			AssessmentID: 1,
			Type:         models.QuestionTypeMCQ,
			Points:       50,
			Answer:       "B",
			Choices:      datatypes.JSONMap{"A": "London", "B": "Paris"},
			AutoGraded:   true,
		},
		{
			ID:           8,
			AssessmentID: 1,
			Type:         models.QuestionTypeEssay,
			Points:       50,
			QuestionText: "Describe the capital.",
		},
	}

	_, err := fx.svc.Begin(context.Background(), 5, 1)
	require.NoError(t, err)

	submission, err := fx.svc.Submit(context.Background(), 5, 1, dto.SubmitAttemptRequest{
		Answers: map[string]string{"7": "B", "8": "It is a large city."},
	})
	require.NoError(t, err)
	require.NotNil(t, submission.Score)
	require.Equal(t, 50.0, *submission.Score)
	require.Equal(t, models.GradingStatusGraded, submission.AutoGradingStatus)
}

func TestSubmitWithoutAutoGradableQuestionsStaysUngraded(t *testing.T) {
	fx := newAttemptFixture(t)
	fx.questions.questions[1] = []models.Question{
		{
			ID:           8,
			AssessmentID: 1,
			Type:         models.QuestionTypeEssay,
			Points:       100,
			QuestionText: "Describe the capital.",
		},
	}

	_, err := fx.svc.Begin(context.Background(), 5, 1)
	require.NoError(t, err)

	submission, err := fx.svc.Submit(context.Background(), 5, 1, dto.SubmitAttemptRequest{
		Answers: map[string]string{"8": "It is a large city."},
	})
	require.NoError(t, err)
	require.True(t, submission.Finished)
	require.Nil(t, submission.Score)
	require.Equal(t, models.GradingStatusUngraded, submission.AutoGradingStatus)
}

func TestResultsBeforeSubmit(t *testing.T) {
	fx := newAttemptFixture(t)

	_, err := fx.svc.Results(context.Background(), 5, 1)
	require.ErrorIs(t, err, ErrNotSubmitted)

	_, err = fx.svc.Begin(context.Background(), 5, 1)
	require.NoError(t, err)

	// An open attempt is still not a result.
	_, err = fx.svc.Results(context.Background(), 5, 1)
	require.ErrorIs(t, err, ErrNotSubmitted)
}

func TestResultsComputePercentage(t *testing.T) {
	fx := newAttemptFixture(t)

	_, err := fx.svc.Begin(context.Background(), 5, 1)
	require.NoError(t, err)
	_, err = fx.svc.Submit(context.Background(), 5, 1, dto.SubmitAttemptRequest{
		Answers: map[string]string{"7": "B"},
	})
	require.NoError(t, err)

	results, err := fx.svc.Results(context.Background(), 5, 1)
	require.NoError(t, err)
	require.False(t, results.PendingManualGrading)
	require.NotNil(t, results.Percentage)
	require.Equal(t, 100.0, *results.Percentage)
	require.Equal(t, 100.0, results.MaxScore)
}
