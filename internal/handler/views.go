package handler

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/pavelanni/examhell/internal/message"
	"github.com/pavelanni/examhell/internal/model"
)

// MessageView is a chat message split into renderable segments.
type MessageView struct {
	model.ChatMessage
	Segments   []message.Segment[model.QuestionBatch] `json:"segments"`
	ParseError string                                 `json:"parse_error,omitempty"`
}

// QuestionView is a stored question with its inline spans.
type QuestionView struct {
	model.Question
	Spans []message.Span `json:"spans"`
}

// ExamView is an exam with all of its questions.
type ExamView struct {
	model.Exam
	Questions []QuestionView `json:"questions"`
}

// newMessageView parses assistant messages. A message whose block cannot be
// decoded is shown as raw text with the parse error attached.
func newMessageView(m model.ChatMessage) MessageView {
	v := MessageView{ChatMessage: m}
	if m.Role != model.RoleAssistant {
		if text := strings.TrimSpace(m.Content); text != "" {
			v.Segments = []message.Segment[model.QuestionBatch]{message.TextSegment[model.QuestionBatch](text)}
		}
		return v
	}

	segments, err := message.ParseMessage(m.Content)
	if err != nil {
		slog.Warn("assistant message did not parse", "message_id", m.ID, "error", err)
		v.ParseError = parseErrorKind(err)
		v.Segments = []message.Segment[model.QuestionBatch]{message.TextSegment[model.QuestionBatch](m.Content)}
		return v
	}
	v.Segments = segments
	return v
}

func parseErrorKind(err error) string {
	if errors.Is(err, message.ErrInvalidPayload) {
		return "invalid_payload"
	}
	return "malformed_payload"
}

func newQuestionView(q model.Question) QuestionView {
	return QuestionView{Question: q, Spans: message.SplitQuestion(q.Text)}
}
