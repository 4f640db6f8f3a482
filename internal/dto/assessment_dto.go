package dto

import (
	"time"

	"github.com/aula-lms/aula-api/internal/models"
)

// AssessmentCreateRequest is the instructor payload for a new assessment.
type AssessmentCreateRequest struct {
	Title            string     `json:"title" validate:"required,min=3,max=255"`
	Type             string     `json:"type" validate:"required,oneof=quiz exam project"`
	MaxScore         float64    `json:"max_score" validate:"gte=0"`
	Weight           float64    `json:"weight" validate:"gte=0"`
	TimeLimitMinutes *int       `json:"time_limit_minutes" validate:"omitempty,gt=0"`
	AvailableFrom    *time.Time `json:"available_from"`
	AvailableUntil   *time.Time `json:"available_until"`
	ShowResults      *bool      `json:"show_results"`
}

// AssessmentUpdateRequest mutates editable assessment fields.
type AssessmentUpdateRequest struct {
	Title              *string    `json:"title" validate:"omitempty,min=3,max=255"`
	Type               *string    `json:"type" validate:"omitempty,oneof=quiz exam project"`
	Weight             *float64   `json:"weight" validate:"omitempty,gte=0"`
	TimeLimitMinutes   *int       `json:"time_limit_minutes" validate:"omitempty,gt=0"`
	AvailableFrom      *time.Time `json:"available_from"`
	AvailableUntil     *time.Time `json:"available_until"`
	ShowResults        *bool      `json:"show_results"`
	AllowResultSharing *bool      `json:"allow_result_sharing"`
}

// QuestionCreateRequest adds a question to an assessment.
type QuestionCreateRequest struct {
	QuestionNumber int               `json:"question_number" validate:"required,gt=0"`
	Type           string            `json:"type" validate:"required,oneof=mcq true_false short_answer essay"`
	QuestionText   string            `json:"question_text" validate:"required"`
	Points         float64           `json:"points" validate:"required,gt=0"`
	Choices        map[string]string `json:"choices"`
	Answer         string            `json:"answer"`
}

// ManualGradeRequest sets an instructor-decided final score.
type ManualGradeRequest struct {
	Score float64 `json:"score" validate:"gte=0"`
}

// AssessmentResponse is the shared read view of an assessment.
type AssessmentResponse struct {
	ID                 uint               `json:"id"`
	CourseID           uint               `json:"course_id"`
	Title              string             `json:"title"`
	Type               string             `json:"type"`
	MaxScore           float64            `json:"max_score"`
	Weight             float64            `json:"weight"`
	TimeLimitMinutes   *int               `json:"time_limit_minutes"`
	Visibility         string             `json:"visibility"`
	AvailableFrom      *time.Time         `json:"available_from"`
	AvailableUntil     *time.Time         `json:"available_until"`
	ShowResults        bool               `json:"show_results"`
	AllowResultSharing bool               `json:"allow_result_sharing"`
	Questions          []QuestionResponse `json:"questions,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

// QuestionResponse serializes a question. The canonical answer is only
// populated for instructor views.
type QuestionResponse struct {
	ID             uint              `json:"id"`
	QuestionNumber int               `json:"question_number"`
	Type           string            `json:"type"`
	QuestionText   string            `json:"question_text"`
	Points         float64           `json:"points"`
	Choices        map[string]string `json:"choices,omitempty"`
	Answer         string            `json:"answer,omitempty"`
	AutoGraded     bool              `json:"auto_graded"`
}

// AssessmentResultRow is one finished submission in the instructor listing.
type AssessmentResultRow struct {
	SubmissionID      uint       `json:"submission_id"`
	UserID            uint       `json:"user_id"`
	Score             *float64   `json:"score"`
	Percentage        *float64   `json:"percentage"`
	AutoGradingStatus string     `json:"auto_grading_status"`
	SubmittedAt       *time.Time `json:"submitted_at"`
}

// AssessmentResultsResponse lists finished submissions for one assessment.
type AssessmentResultsResponse struct {
	AssessmentID  uint                  `json:"assessment_id"`
	MaxScore      float64               `json:"max_score"`
	Rows          []AssessmentResultRow `json:"rows"`
	PendingManual int                   `json:"pending_manual"`
}

// NewAssessmentResponse converts an Assessment model into a DTO.
// includeAnswers controls whether canonical answers are exposed.
func NewAssessmentResponse(model models.Assessment, includeAnswers bool) AssessmentResponse {
	response := AssessmentResponse{
		ID:                 model.ID,
		CourseID:           model.CourseID,
		Title:              model.Title,
		Type:               model.Type,
		MaxScore:           model.MaxScore,
		Weight:             model.Weight,
		TimeLimitMinutes:   model.TimeLimitMinutes,
		Visibility:         model.Visibility,
		AvailableFrom:      model.AvailableFrom,
		AvailableUntil:     model.AvailableUntil,
		ShowResults:        model.ShowResults,
		AllowResultSharing: model.AllowResultSharing,
		CreatedAt:          model.CreatedAt,
	}

	if len(model.Questions) > 0 {
		response.Questions = make([]QuestionResponse, 0, len(model.Questions))
		for _, question := range model.Questions {
			response.Questions = append(response.Questions, NewQuestionResponse(question, includeAnswers))
		}
	}

	return response
}

// NewQuestionResponse converts a Question model into a DTO.
func NewQuestionResponse(model models.Question, includeAnswer bool) QuestionResponse {
	choices := make(map[string]string, len(model.Choices))
	for key, value := range model.Choices {
		if text, ok := value.(string); ok {
			choices[key] = text
		}
	}

	response := QuestionResponse{
		ID:             model.ID,
		QuestionNumber: model.QuestionNumber,
		Type:           model.Type,
		QuestionText:   model.QuestionText,
		Points:         model.Points,
		Choices:        choices,
		AutoGraded:     model.AutoGraded,
	}

	if includeAnswer {
		response.Answer = model.Answer
	}

	return response
}
