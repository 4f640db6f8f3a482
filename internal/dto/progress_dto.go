package dto

import (
	"time"

	"github.com/aula-lms/aula-api/internal/models"
)

// AddTimeSpentRequest reports client-measured seconds on one module item.
type AddTimeSpentRequest struct {
	Seconds int `json:"seconds" validate:"required"`
}

// ProgressResponse is the learner-facing view of one item's progress.
type ProgressResponse struct {
	ItemID           uint       `json:"item_id"`
	Status           string     `json:"status"`
	TimeSpentSeconds int        `json:"time_spent_seconds"`
	StartedAt        *time.Time `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
}

// CourseProgressResponse aggregates a learner's progress rows for a course.
type CourseProgressResponse struct {
	CourseID       uint               `json:"course_id"`
	Items          []ProgressResponse `json:"items"`
	CompletedItems int                `json:"completed_items"`
}

// NewProgressResponse converts a UserProgress model into a DTO.
func NewProgressResponse(model models.UserProgress) ProgressResponse {
	return ProgressResponse{
		ItemID:           model.ItemID,
		Status:           model.Status,
		TimeSpentSeconds: model.TimeSpentSeconds,
		StartedAt:        model.StartedAt,
		CompletedAt:      model.CompletedAt,
	}
}

// NewCourseProgressResponse aggregates progress rows for one course.
func NewCourseProgressResponse(courseID uint, rows []models.UserProgress) CourseProgressResponse {
	response := CourseProgressResponse{
		CourseID: courseID,
		Items:    make([]ProgressResponse, 0, len(rows)),
	}

	for _, row := range rows {
		response.Items = append(response.Items, NewProgressResponse(row))
		if row.IsCompleted() {
			response.CompletedItems++
		}
	}

	return response
}
