package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultMaxPoints is used when a generated question omits max_points.
const DefaultMaxPoints = 10

// GeneratedQuestion is one question as emitted by the assistant inside a
// <QUESTIONS> block.
type GeneratedQuestion struct {
	Text       string     `json:"text" validate:"required"`
	Difficulty Difficulty `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	Topic      string     `json:"topic,omitempty" validate:"max=200"`
	Options    []string   `json:"options,omitempty" validate:"omitempty,dive,required"`
	Answer     string     `json:"answer,omitempty"`
	Rubric     string     `json:"rubric,omitempty"`
	MaxPoints  int        `json:"max_points,omitempty" validate:"omitempty,min=1,max=100"`
}

// QuestionBatch is the payload shape of a <QUESTIONS> block: a JSON array of questions.
type QuestionBatch []GeneratedQuestion

// ErrEmptyBatch is returned by QuestionBatch.Validate for a batch with no questions.
var ErrEmptyBatch = errors.New("question batch is empty")

var validate = newValidator()

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every question in the batch structurally.
func (b QuestionBatch) Validate() error {
	if len(b) == 0 {
		return ErrEmptyBatch
	}
	for i := range b {
		if strings.TrimSpace(b[i].Text) == "" {
			return fmt.Errorf("question %d: text is blank", i)
		}
		if err := validate.Struct(b[i]); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}

// ToQuestion converts a generated question into a storable one for the given exam.
func (g GeneratedQuestion) ToQuestion(examID int64) Question {
	q := Question{
		ExamID:     examID,
		Text:       strings.TrimSpace(g.Text),
		Difficulty: g.Difficulty,
		Topic:      g.Topic,
		Options:    g.Options,
		Answer:     g.Answer,
		Rubric:     g.Rubric,
		MaxPoints:  g.MaxPoints,
	}
	if q.Difficulty == "" {
		q.Difficulty = DifficultyMedium
	}
	if q.MaxPoints == 0 {
		q.MaxPoints = DefaultMaxPoints
	}
	return q
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// FieldErrors flattens validator errors found anywhere in err's chain.
// It returns nil when err carries no validation errors.
func FieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}

// ValidateStruct runs struct-tag validation on request payloads.
func ValidateStruct(s any) error {
	return validate.Struct(s)
}
