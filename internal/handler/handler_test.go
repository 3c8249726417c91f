package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examhell/internal/i18n"
	"github.com/pavelanni/examhell/internal/message"
	"github.com/pavelanni/examhell/internal/model"
	"github.com/pavelanni/examhell/internal/store"
)

// fakeAssistant replies with a fixed text and records the history it saw.
type fakeAssistant struct {
	reply   string
	err     error
	history []model.ChatMessage
}

func (f *fakeAssistant) Reply(_ context.Context, history []model.ChatMessage) (string, error) {
	f.history = history
	return f.reply, f.err
}

type testEnv struct {
	t         *testing.T
	store     *store.Store
	assistant *fakeAssistant
	srv       *httptest.Server
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	require.NoError(t, i18n.Init("en"))

	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	a := &fakeAssistant{}
	h := New(s, a, cfg)
	r := chi.NewRouter()
	r.Use(i18n.Middleware())
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{t: t, store: s, assistant: a, srv: srv}
}

func (e *testEnv) createUser(username, password string, role model.UserRole) int64 {
	e.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(e.t, err)
	id, err := e.store.CreateUser(model.User{
		Username: username, PasswordHash: string(hash), Role: role, Active: true,
	})
	require.NoError(e.t, err)
	return id
}

// login creates a user and returns a session token for it.
func (e *testEnv) login(username string, role model.UserRole) string {
	e.t.Helper()
	e.createUser(username, "password123", role)
	var resp loginResponse
	status := e.do(http.MethodPost, "/api/login", "", loginRequest{Username: username, Password: "password123"}, &resp)
	require.Equal(e.t, http.StatusOK, status)
	require.NotEmpty(e.t, resp.Token)
	return resp.Token
}

// do sends a JSON request and decodes the JSON response into out, if given.
func (e *testEnv) do(method, path, token string, body, out any) int {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.createUser("alice", "password123", model.UserRoleTeacher)

	var errResp errorResponse
	status := env.do(http.MethodPost, "/api/login", "", loginRequest{Username: "alice", Password: "wrong"}, &errResp)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Invalid username or password.", errResp.Error)

	status = env.do(http.MethodPost, "/api/login", "", loginRequest{Username: "nobody", Password: "x"}, &errResp)
	require.Equal(t, http.StatusUnauthorized, status)

	status = env.do(http.MethodPost, "/api/login", "", map[string]string{"username": "alice"}, &errResp)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, []model.FieldError{{Field: "password", Rule: "required"}}, errResp.Fields)

	var ok loginResponse
	status = env.do(http.MethodPost, "/api/login", "", loginRequest{Username: "alice", Password: "password123"}, &ok)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "alice", ok.User.Username)

	var me model.User
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/me", ok.Token, nil, &me))
	require.Equal(t, model.UserRoleTeacher, me.Role)

	require.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/api/logout", ok.Token, nil, nil))
	require.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/me", ok.Token, nil, &errResp))
}

func TestRoleChecks(t *testing.T) {
	env := newTestEnv(t, Config{})
	student := env.login("student", model.UserRoleStudent)
	teacher := env.login("teacher", model.UserRoleTeacher)

	var errResp errorResponse
	require.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/exams", "", nil, &errResp))
	require.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/exams", student, nil, &errResp))
	require.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/admin/users", teacher, nil, &errResp))

	var exams []model.Exam
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/exams", teacher, nil, &exams))
	require.Empty(t, exams)
}

func TestAdminUsers(t *testing.T) {
	env := newTestEnv(t, Config{})
	admin := env.login("admin", model.UserRoleAdmin)

	var created model.User
	status := env.do(http.MethodPost, "/api/admin/users", admin, createUserRequest{
		Username: "bob", Password: "longenough", Role: model.UserRoleTeacher,
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "bob", created.DisplayName)
	require.True(t, created.Active)

	var errResp errorResponse
	status = env.do(http.MethodPost, "/api/admin/users", admin, createUserRequest{
		Username: "bob", Password: "longenough", Role: model.UserRoleTeacher,
	}, &errResp)
	require.Equal(t, http.StatusConflict, status)

	status = env.do(http.MethodPost, "/api/admin/users", admin, createUserRequest{
		Username: "x", Password: "short", Role: "root",
	}, &errResp)
	require.Equal(t, http.StatusBadRequest, status)
	require.Len(t, errResp.Fields, 3)

	var toggled model.User
	status = env.do(http.MethodPost, fmt.Sprintf("/api/admin/users/%d/toggle", created.ID), admin, nil, &toggled)
	require.Equal(t, http.StatusOK, status)
	require.False(t, toggled.Active)

	require.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/api/admin/users/9999/toggle", admin, nil, &errResp))
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/admin/users/abc/toggle", admin, nil, &errResp))

	var users []model.User
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/admin/users", admin, nil, &users))
	require.Len(t, users, 2)
}

func TestExams(t *testing.T) {
	env := newTestEnv(t, Config{})
	alice := env.login("alice", model.UserRoleTeacher)
	bob := env.login("bob", model.UserRoleTeacher)

	var exam ExamView
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/exams", alice, createExamRequest{Title: "Algebra"}, &exam))
	require.Equal(t, "Algebra", exam.Title)

	_, err := env.store.InsertQuestion(model.Question{
		ExamID: exam.ID, Text: `Solve <SPECIAL_TAG type="latex">x+1=2</SPECIAL_TAG>`, MaxPoints: 5,
	})
	require.NoError(t, err)

	var got ExamView
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, fmt.Sprintf("/api/exams/%d", exam.ID), alice, nil, &got))
	require.Len(t, got.Questions, 1)
	require.Equal(t, []message.Span{
		{Kind: message.SpanText, Content: "Solve "},
		{Kind: message.SpanLatex, Content: "x+1=2"},
	}, got.Questions[0].Spans)

	var errResp errorResponse
	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, fmt.Sprintf("/api/exams/%d", exam.ID), bob, nil, &errResp))
	require.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, fmt.Sprintf("/api/exams/%d", exam.ID), bob, nil, &errResp))

	var bobExams []model.Exam
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/exams", bob, nil, &bobExams))
	require.Empty(t, bobExams)

	require.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, fmt.Sprintf("/api/exams/%d", exam.ID), alice, nil, nil))
	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, fmt.Sprintf("/api/exams/%d", exam.ID), alice, nil, &errResp))
}

const generatedReply = `Here you go:
<QUESTIONS>[
  {"text": "Solve <SPECIAL_TAG type=\"latex\">x^2=9</SPECIAL_TAG>", "difficulty": "easy", "max_points": 4},
  {"text": "Name a prime", "options": ["4", "5"], "answer": "5"}
]</QUESTIONS>
Anything else?`

func TestChatFlow(t *testing.T) {
	env := newTestEnv(t, Config{HistoryLimit: 2})
	alice := env.login("alice", model.UserRoleTeacher)

	var chat chatResponse
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/chats", alice, createChatRequest{}, &chat))
	require.Equal(t, defaultChatTitle, chat.Chat.Title)
	chatPath := "/api/chats/" + chat.Chat.ID

	env.assistant.reply = "What topic?"
	var first postMessageResponse
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, chatPath+"/messages", alice, postMessageRequest{Content: "Questions please"}, &first))
	require.Equal(t, model.RoleUser, first.Message.Role)
	require.Equal(t, []message.Segment[model.QuestionBatch]{message.TextSegment[model.QuestionBatch]("What topic?")}, first.Reply.Segments)

	env.assistant.reply = generatedReply
	var second postMessageResponse
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, chatPath+"/messages", alice, postMessageRequest{Content: "Algebra"}, &second))
	require.Len(t, env.assistant.history, 2, "history should be limited")
	require.Equal(t, "Algebra", env.assistant.history[1].Content)

	segs := second.Reply.Segments
	require.Len(t, segs, 3)
	require.Equal(t, message.SegmentText, segs[0].Kind)
	require.Equal(t, message.SegmentTag, segs[1].Kind)
	require.Len(t, segs[1].Payload, 2)
	require.Empty(t, second.Reply.ParseError)

	var history chatResponse
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, chatPath, alice, nil, &history))
	require.Len(t, history.Messages, 4)

	var chats []model.Chat
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/chats", alice, nil, &chats))
	require.Len(t, chats, 1)

	var exam ExamView
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/exams", alice, createExamRequest{Title: "Algebra"}, &exam))

	var accepted acceptResponse
	acceptPath := fmt.Sprintf("%s/messages/%d/accept", chatPath, second.Reply.ID)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, acceptPath, alice, acceptRequest{ExamID: exam.ID}, &accepted))
	require.Equal(t, 2, accepted.Imported)
	require.Equal(t, "2 questions added to the exam.", accepted.Message)

	var got ExamView
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, fmt.Sprintf("/api/exams/%d", exam.ID), alice, nil, &got))
	require.Len(t, got.Questions, 2)
	require.Equal(t, model.DifficultyEasy, got.Questions[0].Difficulty)
	require.Equal(t, 4, got.Questions[0].MaxPoints)
	require.Equal(t, model.DefaultMaxPoints, got.Questions[1].MaxPoints)
	require.Equal(t, message.SpanLatex, got.Questions[0].Spans[1].Kind)

	var errResp errorResponse
	userMsgPath := fmt.Sprintf("%s/messages/%d/accept", chatPath, second.Message.ID)
	require.Equal(t, http.StatusUnprocessableEntity, env.do(http.MethodPost, userMsgPath, alice, acceptRequest{ExamID: exam.ID}, &errResp))
	noQuestionsPath := fmt.Sprintf("%s/messages/%d/accept", chatPath, first.Reply.ID)
	require.Equal(t, http.StatusUnprocessableEntity, env.do(http.MethodPost, noQuestionsPath, alice, acceptRequest{ExamID: exam.ID}, &errResp))
	require.Equal(t, "This message does not contain any questions.", errResp.Error)
	require.Equal(t, http.StatusNotFound, env.do(http.MethodPost, acceptPath, alice, acceptRequest{ExamID: 9999}, &errResp))
}

func TestChatIsolation(t *testing.T) {
	env := newTestEnv(t, Config{})
	alice := env.login("alice", model.UserRoleTeacher)
	bob := env.login("bob", model.UserRoleTeacher)
	admin := env.login("admin", model.UserRoleAdmin)

	var chat chatResponse
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/chats", alice, createChatRequest{Title: "Mine"}, &chat))

	var errResp errorResponse
	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/chats/"+chat.Chat.ID, bob, nil, &errResp))
	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/chats/unknown", alice, nil, &errResp))

	var got chatResponse
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/chats/"+chat.Chat.ID, admin, nil, &got))
	require.Equal(t, "Mine", got.Chat.Title)
}

func TestChatDegradesOnBadPayload(t *testing.T) {
	env := newTestEnv(t, Config{})
	alice := env.login("alice", model.UserRoleTeacher)

	var chat chatResponse
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/chats", alice, createChatRequest{}, &chat))
	chatPath := "/api/chats/" + chat.Chat.ID

	broken := "Oops <QUESTIONS>[{\"text\": </QUESTIONS>"
	env.assistant.reply = broken
	var resp postMessageResponse
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, chatPath+"/messages", alice, postMessageRequest{Content: "go"}, &resp))
	require.Equal(t, "malformed_payload", resp.Reply.ParseError)
	require.Equal(t, []message.Segment[model.QuestionBatch]{message.TextSegment[model.QuestionBatch](broken)}, resp.Reply.Segments)

	var exam ExamView
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/exams", alice, createExamRequest{Title: "E"}, &exam))
	var errResp errorResponse
	acceptPath := fmt.Sprintf("%s/messages/%d/accept", chatPath, resp.Reply.ID)
	require.Equal(t, http.StatusUnprocessableEntity, env.do(http.MethodPost, acceptPath, alice, acceptRequest{ExamID: exam.ID}, &errResp))
	require.Equal(t, "The assistant produced questions that could not be read.", errResp.Error)

	env.assistant.reply = `<QUESTIONS>[{"text": "q", "difficulty": "impossible"}]</QUESTIONS>`
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, chatPath+"/messages", alice, postMessageRequest{Content: "again"}, &resp))
	require.Equal(t, "invalid_payload", resp.Reply.ParseError)
	acceptPath = fmt.Sprintf("%s/messages/%d/accept", chatPath, resp.Reply.ID)
	require.Equal(t, http.StatusUnprocessableEntity, env.do(http.MethodPost, acceptPath, alice, acceptRequest{ExamID: exam.ID}, &errResp))
	require.Equal(t, []model.FieldError{{Field: "difficulty", Rule: "oneof"}}, errResp.Fields)
}

func TestAssistantFailure(t *testing.T) {
	env := newTestEnv(t, Config{})
	alice := env.login("alice", model.UserRoleTeacher)

	var chat chatResponse
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/chats", alice, createChatRequest{}, &chat))

	env.assistant.err = errors.New("connection refused")
	var errResp errorResponse
	status := env.do(http.MethodPost, "/api/chats/"+chat.Chat.ID+"/messages", alice, postMessageRequest{Content: "hi"}, &errResp)
	require.Equal(t, http.StatusBadGateway, status)
	require.Equal(t, "The question assistant is unavailable right now.", errResp.Error)

	msgs, err := env.store.ListChatMessages(chat.Chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1, "user turn is kept when the assistant fails")
}

func TestParseEndpoints(t *testing.T) {
	env := newTestEnv(t, Config{})
	student := env.login("student", model.UserRoleStudent)

	var parsed parseMessageResponse
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/parse/message", student,
		parseMessageRequest{Message: `Hi <QUESTIONS>[{"text":"q"}]</QUESTIONS>`}, &parsed))
	require.Len(t, parsed.Segments, 2)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/parse/message", student, parseMessageRequest{}, &parsed))
	require.Empty(t, parsed.Segments)

	var errResp errorResponse
	require.Equal(t, http.StatusUnprocessableEntity, env.do(http.MethodPost, "/api/parse/message", student,
		parseMessageRequest{Message: "<QUESTIONS>not json</QUESTIONS>"}, &errResp))

	var spans parseQuestionResponse
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/parse/question", student,
		parseQuestionRequest{Question: `A <SPECIAL_TAG type="latex">x^2</SPECIAL_TAG> B`}, &spans))
	require.Equal(t, []message.Span{
		{Kind: message.SpanText, Content: "A "},
		{Kind: message.SpanLatex, Content: "x^2"},
		{Kind: message.SpanText, Content: " B"},
	}, spans.Spans)
	require.Equal(t, "A x^2 B", spans.PlainText)

	require.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/parse/question", student,
		map[string]string{"unknown": "field"}, &errResp))
}

func TestLocalizedErrors(t *testing.T) {
	env := newTestEnv(t, Config{})

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/exams", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Language", "ru")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var errResp errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Пожалуйста, войдите в систему.", errResp.Error)
}
