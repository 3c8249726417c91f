package handler

import (
	"errors"
	"net/http"

	"github.com/pavelanni/examhell/internal/message"
	"github.com/pavelanni/examhell/internal/model"
)

type parseMessageRequest struct {
	Message string `json:"message"`
}

type parseMessageResponse struct {
	Segments []message.Segment[model.QuestionBatch] `json:"segments"`
}

type parseQuestionRequest struct {
	Question string `json:"question"`
}

type parseQuestionResponse struct {
	Spans     []message.Span `json:"spans"`
	PlainText string         `json:"plain_text"`
}

func (h *Handler) handleParseMessage(w http.ResponseWriter, r *http.Request) {
	var req parseMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	segments, err := message.ParseMessage(req.Message)
	switch {
	case errors.Is(err, message.ErrInvalidPayload):
		writeError(w, r, http.StatusUnprocessableEntity, "InvalidQuestions", model.FieldErrors(err)...)
		return
	case err != nil:
		writeError(w, r, http.StatusUnprocessableEntity, "MalformedQuestions")
		return
	}
	if segments == nil {
		segments = []message.Segment[model.QuestionBatch]{}
	}
	writeJSON(w, http.StatusOK, parseMessageResponse{Segments: segments})
}

func (h *Handler) handleParseQuestion(w http.ResponseWriter, r *http.Request) {
	var req parseQuestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	spans := message.SplitQuestion(req.Question)
	if spans == nil {
		spans = []message.Span{}
	}
	writeJSON(w, http.StatusOK, parseQuestionResponse{Spans: spans, PlainText: message.PlainText(req.Question)})
}
