package handler

import (
	"net/http"

	"github.com/pavelanni/examhell/internal/model"
)

type createExamRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	ownerID := user.ID
	if user.Role == model.UserRoleAdmin {
		ownerID = 0
	}
	exams, err := h.store.ListExams(ownerID)
	if err != nil {
		writeStoreError(w, r, err, "list exams")
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var req createExamRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := model.UserFromContext(r.Context())

	id, err := h.store.CreateExam(model.Exam{
		OwnerID:     user.ID,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		writeStoreError(w, r, err, "create exam")
		return
	}
	exam, err := h.store.GetExam(id)
	if err != nil {
		writeStoreError(w, r, err, "get exam")
		return
	}
	writeJSON(w, http.StatusCreated, ExamView{Exam: exam, Questions: []QuestionView{}})
}

// loadExam fetches an exam the current user may access. On failure it
// writes the response and returns false.
func (h *Handler) loadExam(w http.ResponseWriter, r *http.Request) (model.Exam, bool) {
	id, ok := idParam(r, "examID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "InvalidID")
		return model.Exam{}, false
	}
	exam, err := h.store.GetExam(id)
	if err != nil {
		writeStoreError(w, r, err, "get exam")
		return model.Exam{}, false
	}
	if !canAccess(model.UserFromContext(r.Context()), exam.OwnerID) {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return model.Exam{}, false
	}
	return exam, true
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	exam, ok := h.loadExam(w, r)
	if !ok {
		return
	}
	questions, err := h.store.ListQuestions(exam.ID)
	if err != nil {
		writeStoreError(w, r, err, "list questions")
		return
	}

	view := ExamView{Exam: exam, Questions: make([]QuestionView, 0, len(questions))}
	for _, q := range questions {
		view.Questions = append(view.Questions, newQuestionView(q))
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	exam, ok := h.loadExam(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteExam(exam.ID); err != nil {
		writeStoreError(w, r, err, "delete exam")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
