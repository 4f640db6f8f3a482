package dto

import (
	"time"

	"github.com/aula-lms/aula-api/internal/models"
)

// SubmitAttemptRequest carries the learner's answers for finalization.
type SubmitAttemptRequest struct {
	Answers          map[string]string `json:"answers" validate:"required"`
	TimeSpentSeconds *int              `json:"time_spent_seconds" validate:"omitempty,gte=0"`
}

// SubmissionResponse is the learner-facing view of an attempt.
type SubmissionResponse struct {
	ID                uint              `json:"id"`
	UserID            uint              `json:"user_id"`
	CourseID          uint              `json:"course_id"`
	AssessmentID      uint              `json:"assessment_id"`
	Answers           map[string]string `json:"answers"`
	Finished          bool              `json:"finished"`
	SubmittedAt       *time.Time        `json:"submitted_at"`
	Score             *float64          `json:"score"`
	AutoGradingStatus string            `json:"auto_grading_status"`
	GradedAt          *time.Time        `json:"graded_at"`
	TimeSpentSeconds  *int              `json:"time_spent_seconds"`
	CreatedAt         time.Time         `json:"created_at"`
}

// BeginAttemptResponse pairs the attempt with the advisory countdown.
type BeginAttemptResponse struct {
	Submission           SubmissionResponse `json:"submission"`
	TimeRemainingSeconds *int               `json:"time_remaining_seconds"`
}

// ResultsResponse is returned once a finished submission exists.
type ResultsResponse struct {
	Submission           SubmissionResponse `json:"submission"`
	MaxScore             float64            `json:"max_score"`
	Percentage           *float64           `json:"percentage"`
	PendingManualGrading bool               `json:"pending_manual_grading"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	answers := make(map[string]string, len(model.Answers))
	for key, value := range model.Answers {
		if text, ok := value.(string); ok {
			answers[key] = text
		}
	}

	return SubmissionResponse{
		ID:                model.ID,
		UserID:            model.UserID,
		CourseID:          model.CourseID,
		AssessmentID:      model.AssessmentID,
		Answers:           answers,
		Finished:          model.Finished,
		SubmittedAt:       model.SubmittedAt,
		Score:             model.Score,
		AutoGradingStatus: model.AutoGradingStatus,
		GradedAt:          model.GradedAt,
		TimeSpentSeconds:  model.TimeSpentSeconds,
		CreatedAt:         model.CreatedAt,
	}
}
