package service

import (
	"errors"
	"strings"
	"unicode"

	"gorm.io/datatypes"

	"github.com/aula-lms/aula-api/internal/models"
)

// ErrGradingDataUnavailable indicates the question bank or submitted answers
// could not be read; the submission stays finished and ungraded for a retry.
var ErrGradingDataUnavailable = errors.New("grading data unavailable")

// GradeOutcome summarizes one automatic grading pass.
type GradeOutcome struct {
	Score    float64
	MaxScore float64
}

// autoGradable reports whether at least one question can be machine graded.
func autoGradable(questions []models.Question) bool {
	for _, question := range questions {
		if question.AutoGraded {
			return true
		}
	}
	return false
}

// gradeSubmission scores submitted answers against the question bank. It is a
// pure function of its inputs: re-running it on the same data yields the same
// score. Individual malformed answers degrade to zero points; the pass never
// aborts partway through the question list.
func gradeSubmission(answers datatypes.JSONMap, questions []models.Question) (GradeOutcome, error) {
	if answers == nil || questions == nil {
		return GradeOutcome{}, ErrGradingDataUnavailable
	}

	outcome := GradeOutcome{}
	for _, question := range questions {
		outcome.MaxScore += question.Points

		if !question.AutoGraded {
			continue
		}

		submitted, ok := submittedAnswer(answers, question.ID)
		if !ok {
			continue
		}

		if question.IsChoiceBased() {
			outcome.Score += gradeChoice(question, submitted)
		}
		// An auto_graded free-text type is a data configuration error;
		// it contributes zero rather than failing the pass.
	}

	return outcome, nil
}

// gradeChoice resolves the submitted choice key through the question's
// choices map and compares the resolved text with the canonical answer under
// normalization. The canonical answer may itself be stored as a choice key or
// as literal text; both forms resolve to the same comparison. Full points or
// nothing; there is no partial credit.
func gradeChoice(question models.Question, submittedKey string) float64 {
	text, ok := question.ChoiceText(submittedKey)
	if !ok {
		return 0
	}

	canonical := question.Answer
	if resolved, ok := question.ChoiceText(question.Answer); ok {
		canonical = resolved
	}

	if normalizeAnswerText(text) == normalizeAnswerText(canonical) {
		return question.Points
	}

	return 0
}

// submittedAnswer looks up the learner's value for a question id. Answers are
// keyed by the stringified question id in the persisted JSON map.
func submittedAnswer(answers datatypes.JSONMap, questionID uint) (string, bool) {
	value, ok := answers[questionIDKey(questionID)]
	if !ok || value == nil {
		return "", false
	}

	text, ok := value.(string)
	if !ok || text == "" {
		return "", false
	}

	return text, true
}

// normalizeAnswerText lowercases, trims and strips everything except
// alphanumerics and whitespace so that cosmetic differences never change a
// grade.
func normalizeAnswerText(text string) string {
	var builder strings.Builder
	builder.Grow(len(text))

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			builder.WriteRune(r)
		}
	}

	return strings.TrimSpace(builder.String())
}
