package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examhell/internal/model"
)

// CreateChat starts a new chat and returns its generated ID.
func (s *Store) CreateChat(ownerID int64, title string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO chats (id, owner_id, title, created_at) VALUES (?, ?, ?, ?)`,
		id, ownerID, title, time.Now(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetChat returns a chat by ID.
func (s *Store) GetChat(id string) (model.Chat, error) {
	var c model.Chat
	err := s.db.QueryRow(
		`SELECT id, owner_id, title, created_at FROM chats WHERE id = ?`, id,
	).Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt)
	return c, notFound(err)
}

// ListChats returns the chats owned by ownerID, newest first.
func (s *Store) ListChats(ownerID int64) ([]model.Chat, error) {
	rows, err := s.db.Query(
		`SELECT id, owner_id, title, created_at FROM chats WHERE owner_id = ? ORDER BY rowid DESC`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chats []model.Chat
	for rows.Next() {
		var c model.Chat
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// AddChatMessage appends a message to a chat.
func (s *Store) AddChatMessage(msg model.ChatMessage) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO chat_messages (chat_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		msg.ChatID, msg.Role, msg.Content, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetChatMessage returns a message by ID.
func (s *Store) GetChatMessage(id int64) (model.ChatMessage, error) {
	var m model.ChatMessage
	err := s.db.QueryRow(
		`SELECT id, chat_id, role, content, created_at FROM chat_messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt)
	return m, notFound(err)
}

// ListChatMessages returns the history of a chat in order.
func (s *Store) ListChatMessages(chatID string) ([]model.ChatMessage, error) {
	rows, err := s.db.Query(
		`SELECT id, chat_id, role, content, created_at FROM chat_messages WHERE chat_id = ? ORDER BY id`, chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
