package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level (distinct from Role which is chat message roles).
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// IsValid reports whether r is one of the known user roles.
func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleStudent, UserRoleTeacher, UserRoleAdmin:
		return true
	}
	return false
}

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Role represents a chat message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Exam is a named collection of questions owned by a teacher.
type Exam struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Question is a persisted exam question. Text may carry inline
// <SPECIAL_TAG type="latex"> spans.
type Question struct {
	ID         int64      `json:"id"`
	ExamID     int64      `json:"exam_id"`
	Position   int        `json:"position"`
	Text       string     `json:"text"`
	Difficulty Difficulty `json:"difficulty"`
	Topic      string     `json:"topic"`
	Options    []string   `json:"options,omitempty"`
	Answer     string     `json:"answer"`
	Rubric     string     `json:"rubric"`
	MaxPoints  int        `json:"max_points"`
}

// Chat is a conversation between a teacher and the question assistant.
type Chat struct {
	ID        string    `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage is a single turn in a chat.
type ChatMessage struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
