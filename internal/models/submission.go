package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission is a learner's single attempt at an assessment. There is at most
// one row per (user, assessment); the unique index backs get-or-create.
type Submission struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	UserID            uint              `gorm:"not null;uniqueIndex:idx_submission_user_assessment" json:"user_id"`
	CourseID          uint              `gorm:"not null;index" json:"course_id"`
	AssessmentID      uint              `gorm:"not null;uniqueIndex:idx_submission_user_assessment" json:"assessment_id"`
	Answers           datatypes.JSONMap `gorm:"type:json" json:"answers"`
	Finished          bool              `gorm:"not null;default:false" json:"finished"`
	SubmittedAt       *time.Time        `json:"submitted_at"`
	Score             *float64          `json:"score"`
	AutoGradingStatus string            `gorm:"size:32;not null;default:ungraded" json:"auto_grading_status"`
	GradedAt          *time.Time        `json:"graded_at"`
	TimeSpentSeconds  *int              `json:"time_spent_seconds"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	Assessment        Assessment        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assessment"`
}

const (
	// GradingStatusUngraded marks a submission awaiting automatic or manual grading.
	GradingStatusUngraded = "ungraded"
	// GradingStatusGraded marks a submission whose score is final for auto-gradable questions.
	GradingStatusGraded = "graded"
)

// IsGraded reports whether the automatic grading pass has run.
func (s Submission) IsGraded() bool {
	return s.AutoGradingStatus == GradingStatusGraded
}

// Elapsed returns the time since the attempt was opened.
func (s Submission) Elapsed(reference time.Time) time.Duration {
	return reference.Sub(s.CreatedAt)
}
