package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/examhell/internal/message"
	"github.com/pavelanni/examhell/internal/model"
)

// ExportExam builds an export-ready view of an exam and its questions.
func (s *Store) ExportExam(examID int64) (model.ExamExport, error) {
	exam, err := s.GetExam(examID)
	if err != nil {
		return model.ExamExport{}, fmt.Errorf("get exam %d: %w", examID, err)
	}
	questions, err := s.ListQuestions(examID)
	if err != nil {
		return model.ExamExport{}, fmt.Errorf("list questions: %w", err)
	}

	export := model.ExamExport{
		ExamID:     exam.ID,
		Title:      exam.Title,
		ExportedAt: time.Now().UTC(),
		Questions:  make([]model.QuestionExport, 0, len(questions)),
	}
	for _, q := range questions {
		export.MaxPoints += q.MaxPoints
		export.Questions = append(export.Questions, model.QuestionExport{
			Position:   q.Position,
			Text:       q.Text,
			PlainText:  message.PlainText(q.Text),
			Difficulty: q.Difficulty,
			Topic:      q.Topic,
			Options:    q.Options,
			Answer:     q.Answer,
			Rubric:     q.Rubric,
			MaxPoints:  q.MaxPoints,
		})
	}
	return export, nil
}
