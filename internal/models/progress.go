package models

import "time"

// UserProgress tracks a learner's completion of one course module item,
// independent of grading correctness. Status only moves forward and
// time_spent_seconds only grows.
type UserProgress struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserID           uint       `gorm:"not null;uniqueIndex:idx_progress_user_course_item" json:"user_id"`
	CourseID         uint       `gorm:"not null;uniqueIndex:idx_progress_user_course_item" json:"course_id"`
	ItemID           uint       `gorm:"not null;uniqueIndex:idx_progress_user_course_item" json:"item_id"`
	Status           string     `gorm:"size:32;not null;default:not_started" json:"status"`
	TimeSpentSeconds int        `gorm:"not null;default:0" json:"time_spent_seconds"`
	StartedAt        *time.Time `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

const (
	// ProgressNotStarted is the initial status of a lazily created row.
	ProgressNotStarted = "not_started"
	// ProgressInProgress marks an item the learner has opened.
	ProgressInProgress = "in_progress"
	// ProgressCompleted is terminal; the status never regresses from it.
	ProgressCompleted = "completed"
)

// IsCompleted reports whether the item has reached the terminal status.
func (p UserProgress) IsCompleted() bool {
	return p.Status == ProgressCompleted
}
