package model

import "time"

// ExamExport is the top-level JSON structure for exam export.
type ExamExport struct {
	ExamID     int64            `json:"exam_id"`
	Title      string           `json:"title"`
	ExportedAt time.Time        `json:"exported_at"`
	MaxPoints  int              `json:"max_points"`
	Questions  []QuestionExport `json:"questions"`
}

// QuestionExport holds per-question data for export. PlainText is the
// question with inline markup removed.
type QuestionExport struct {
	Position   int        `json:"position"`
	Text       string     `json:"text"`
	PlainText  string     `json:"plain_text"`
	Difficulty Difficulty `json:"difficulty"`
	Topic      string     `json:"topic"`
	Options    []string   `json:"options,omitempty"`
	Answer     string     `json:"answer"`
	Rubric     string     `json:"rubric"`
	MaxPoints  int        `json:"max_points"`
}
