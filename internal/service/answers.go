package service

import (
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"gorm.io/datatypes"

	"github.com/aula-lms/aula-api/internal/models"
)

// AnswerKind distinguishes how a submitted value is interpreted.
type AnswerKind string

const (
	// AnswerKindChoice marks a value interpreted as a choice key.
	AnswerKindChoice AnswerKind = "choice"
	// AnswerKindText marks a value interpreted as free text.
	AnswerKindText AnswerKind = "text"
)

// Answer is a submitted value tagged with its interpretation, resolved from
// the question's declared type instead of guessed from the value itself.
type Answer struct {
	Kind  AnswerKind
	Value string
}

// resolveAnswers validates raw submitted values against the question bank and
// tags each one as a choice key or free text. Values for unknown question ids
// are dropped; free text is sanitized before persisting.
func resolveAnswers(raw map[string]string, questions []models.Question, sanitizer *bluemonday.Policy) (map[string]Answer, error) {
	byKey := make(map[string]models.Question, len(questions))
	for _, question := range questions {
		byKey[questionIDKey(question.ID)] = question
	}

	resolved := make(map[string]Answer, len(raw))
	for key, value := range raw {
		question, ok := byKey[key]
		if !ok {
			continue
		}

		if question.IsChoiceBased() {
			resolved[key] = Answer{Kind: AnswerKindChoice, Value: value}
			continue
		}

		text := value
		if sanitizer != nil {
			text = sanitizer.Sanitize(value)
		}
		resolved[key] = Answer{Kind: AnswerKindText, Value: text}
	}

	return resolved, nil
}

// answersJSON flattens tagged answers into the persisted JSON map form.
func answersJSON(answers map[string]Answer) datatypes.JSONMap {
	flattened := datatypes.JSONMap{}
	for key, answer := range answers {
		flattened[key] = answer.Value
	}

	return flattened
}

// questionIDKey is the canonical answers-map key for a question.
func questionIDKey(id uint) string {
	return fmt.Sprintf("%d", id)
}
