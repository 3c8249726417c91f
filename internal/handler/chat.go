package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examhell/internal/i18n"
	"github.com/pavelanni/examhell/internal/message"
	"github.com/pavelanni/examhell/internal/model"
)

const defaultChatTitle = "New chat"

type createChatRequest struct {
	Title string `json:"title" validate:"max=200"`
}

type postMessageRequest struct {
	Content string `json:"content" validate:"required,max=20000"`
}

type acceptRequest struct {
	ExamID int64 `json:"exam_id" validate:"required,gt=0"`
}

type chatResponse struct {
	Chat     model.Chat    `json:"chat"`
	Messages []MessageView `json:"messages"`
}

type postMessageResponse struct {
	Message MessageView `json:"message"`
	Reply   MessageView `json:"reply"`
}

type acceptResponse struct {
	Imported    int     `json:"imported"`
	QuestionIDs []int64 `json:"question_ids"`
	Message     string  `json:"message"`
}

func (h *Handler) handleListChats(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	chats, err := h.store.ListChats(user.ID)
	if err != nil {
		writeStoreError(w, r, err, "list chats")
		return
	}
	if chats == nil {
		chats = []model.Chat{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *Handler) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Title == "" {
		req.Title = defaultChatTitle
	}
	user := model.UserFromContext(r.Context())

	id, err := h.store.CreateChat(user.ID, req.Title)
	if err != nil {
		writeStoreError(w, r, err, "create chat")
		return
	}
	chat, err := h.store.GetChat(id)
	if err != nil {
		writeStoreError(w, r, err, "get chat")
		return
	}
	writeJSON(w, http.StatusCreated, chatResponse{Chat: chat, Messages: []MessageView{}})
}

// loadChat fetches a chat the current user may access. On failure it writes
// the response and returns false.
func (h *Handler) loadChat(w http.ResponseWriter, r *http.Request) (model.Chat, bool) {
	chat, err := h.store.GetChat(chi.URLParam(r, "chatID"))
	if err != nil {
		writeStoreError(w, r, err, "get chat")
		return model.Chat{}, false
	}
	if !canAccess(model.UserFromContext(r.Context()), chat.OwnerID) {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return model.Chat{}, false
	}
	return chat, true
}

func (h *Handler) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.loadChat(w, r)
	if !ok {
		return
	}
	msgs, err := h.store.ListChatMessages(chat.ID)
	if err != nil {
		writeStoreError(w, r, err, "list chat messages")
		return
	}

	resp := chatResponse{Chat: chat, Messages: make([]MessageView, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, newMessageView(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.loadChat(w, r)
	if !ok {
		return
	}
	var req postMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userMsg := model.ChatMessage{ChatID: chat.ID, Role: model.RoleUser, Content: req.Content}
	id, err := h.store.AddChatMessage(userMsg)
	if err != nil {
		writeStoreError(w, r, err, "add chat message")
		return
	}
	userMsg, err = h.store.GetChatMessage(id)
	if err != nil {
		writeStoreError(w, r, err, "get chat message")
		return
	}

	history, err := h.store.ListChatMessages(chat.ID)
	if err != nil {
		writeStoreError(w, r, err, "list chat messages")
		return
	}
	if limit := h.config.HistoryLimit; limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	content, err := h.assistant.Reply(r.Context(), history)
	if err != nil {
		slog.Error("assistant reply failed", "chat_id", chat.ID, "error", err)
		writeError(w, r, http.StatusBadGateway, "AssistantUnavailable")
		return
	}

	replyID, err := h.store.AddChatMessage(model.ChatMessage{ChatID: chat.ID, Role: model.RoleAssistant, Content: content})
	if err != nil {
		writeStoreError(w, r, err, "add chat message")
		return
	}
	reply, err := h.store.GetChatMessage(replyID)
	if err != nil {
		writeStoreError(w, r, err, "get chat message")
		return
	}

	writeJSON(w, http.StatusCreated, postMessageResponse{
		Message: newMessageView(userMsg),
		Reply:   newMessageView(reply),
	})
}

// handleAcceptQuestions copies every question generated in an assistant
// message into an exam.
func (h *Handler) handleAcceptQuestions(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.loadChat(w, r)
	if !ok {
		return
	}
	messageID, ok := idParam(r, "messageID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "InvalidID")
		return
	}
	var req acceptRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.store.GetChatMessage(messageID)
	if err != nil {
		writeStoreError(w, r, err, "get chat message")
		return
	}
	if msg.ChatID != chat.ID {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return
	}
	if msg.Role != model.RoleAssistant {
		writeError(w, r, http.StatusUnprocessableEntity, "NoQuestionsInMessage")
		return
	}

	exam, err := h.store.GetExam(req.ExamID)
	if err != nil {
		writeStoreError(w, r, err, "get exam")
		return
	}
	if !canAccess(model.UserFromContext(r.Context()), exam.OwnerID) {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return
	}

	segments, err := message.ParseMessage(msg.Content)
	switch {
	case errors.Is(err, message.ErrInvalidPayload):
		writeError(w, r, http.StatusUnprocessableEntity, "InvalidQuestions", model.FieldErrors(err)...)
		return
	case err != nil:
		writeError(w, r, http.StatusUnprocessableEntity, "MalformedQuestions")
		return
	}
	generated := message.Questions(segments)
	if len(generated) == 0 {
		writeError(w, r, http.StatusUnprocessableEntity, "NoQuestionsInMessage")
		return
	}

	questions := make([]model.Question, 0, len(generated))
	for _, g := range generated {
		questions = append(questions, g.ToQuestion(exam.ID))
	}
	ids, err := h.store.InsertQuestions(exam.ID, questions)
	if err != nil {
		writeStoreError(w, r, err, "insert questions")
		return
	}

	slog.Info("accepted generated questions", "chat_id", chat.ID, "message_id", msg.ID, "exam_id", exam.ID, "count", len(ids))
	writeJSON(w, http.StatusCreated, acceptResponse{
		Imported:    len(ids),
		QuestionIDs: ids,
		Message:     i18n.Tp(r.Context(), "QuestionsImported", len(ids)),
	})
}
