package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Assessment is a gradeable unit belonging to a course: a quiz, exam or project.
type Assessment struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	CourseID           uint           `gorm:"not null;index" json:"course_id"`
	Title              string         `gorm:"size:255;not null" json:"title"`
	Type               string         `gorm:"size:32;not null" json:"type"`
	MaxScore           float64        `gorm:"not null" json:"max_score"`
	Weight             float64        `json:"weight"`
	TimeLimitMinutes   *int           `json:"time_limit_minutes"`
	Visibility         string         `gorm:"size:32;not null" json:"visibility"`
	AvailableFrom      *time.Time     `json:"available_from"`
	AvailableUntil     *time.Time     `json:"available_until"`
	ShowResults        bool           `json:"show_results"`
	AllowResultSharing bool           `json:"allow_result_sharing"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
	Course             Course         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"course"`
	Questions          []Question     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions"`
}

const (
	// AssessmentTypeQuiz is a short auto-gradable assessment.
	AssessmentTypeQuiz = "quiz"
	// AssessmentTypeExam is a time-boxed formal assessment.
	AssessmentTypeExam = "exam"
	// AssessmentTypeProject is a manually graded long-form assessment.
	AssessmentTypeProject = "project"

	// VisibilityDraft hides the assessment from learners.
	VisibilityDraft = "draft"
	// VisibilityPublished makes the assessment attemptable.
	VisibilityPublished = "published"
)

// IsPublished reports whether learners may attempt the assessment.
func (a Assessment) IsPublished() bool {
	return a.Visibility == VisibilityPublished
}

// TimeLimit returns the attempt duration, or false when unlimited.
func (a Assessment) TimeLimit() (time.Duration, bool) {
	if a.TimeLimitMinutes == nil {
		return 0, false
	}
	return time.Duration(*a.TimeLimitMinutes) * time.Minute, true
}

// Question belongs to exactly one assessment and carries its grading rule.
type Question struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	AssessmentID   uint              `gorm:"not null;uniqueIndex:idx_question_assessment_number" json:"assessment_id"`
	QuestionNumber int               `gorm:"not null;uniqueIndex:idx_question_assessment_number" json:"question_number"`
	Type           string            `gorm:"size:32;not null" json:"type"`
	QuestionText   string            `gorm:"type:text;not null" json:"question_text"`
	Points         float64           `gorm:"not null" json:"points"`
	Choices        datatypes.JSONMap `gorm:"type:json" json:"choices"`
	Answer         string            `gorm:"type:text" json:"answer"`
	AutoGraded     bool              `gorm:"not null" json:"auto_graded"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

const (
	// QuestionTypeMCQ is a multiple-choice question graded by choice key.
	QuestionTypeMCQ = "mcq"
	// QuestionTypeTrueFalse is a two-choice question graded like MCQ.
	QuestionTypeTrueFalse = "true_false"
	// QuestionTypeShortAnswer expects free text and manual grading.
	QuestionTypeShortAnswer = "short_answer"
	// QuestionTypeEssay expects long free text and manual grading.
	QuestionTypeEssay = "essay"
)

// IsChoiceBased reports whether the question resolves answers through its choices map.
func (q Question) IsChoiceBased() bool {
	return q.Type == QuestionTypeMCQ || q.Type == QuestionTypeTrueFalse
}

// ChoiceText resolves a submitted choice key to its display text.
func (q Question) ChoiceText(key string) (string, bool) {
	if q.Choices == nil {
		return "", false
	}
	value, ok := q.Choices[key]
	if !ok {
		return "", false
	}
	text, ok := value.(string)
	return text, ok
}
