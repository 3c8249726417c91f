package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/examhell/internal/model"
)

// CreateExam creates an exam.
func (s *Store) CreateExam(e model.Exam) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO exams (owner_id, title, description, created_at) VALUES (?, ?, ?, ?)`,
		e.OwnerID, e.Title, e.Description, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(id int64) (model.Exam, error) {
	var e model.Exam
	err := s.db.QueryRow(
		`SELECT id, owner_id, title, description, created_at FROM exams WHERE id = ?`, id,
	).Scan(&e.ID, &e.OwnerID, &e.Title, &e.Description, &e.CreatedAt)
	return e, notFound(err)
}

// ListExams returns the exams owned by ownerID, newest first. An ownerID of 0 lists all exams.
func (s *Store) ListExams(ownerID int64) ([]model.Exam, error) {
	query := `SELECT id, owner_id, title, description, created_at FROM exams`
	var args []any
	if ownerID != 0 {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY id DESC`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// DeleteExam removes an exam and its questions.
func (s *Store) DeleteExam(id int64) error {
	res, err := s.db.Exec(`DELETE FROM exams WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertQuestion appends a question to the end of its exam.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	ids, err := s.InsertQuestions(q.ExamID, []model.Question{q})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// InsertQuestions appends questions to an exam in one transaction, keeping
// their order. The exam must exist.
func (s *Store) InsertQuestions(examID int64, questions []model.Question) ([]int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM exams WHERE id = ?`, examID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrNotFound
	}
	var next int
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(position), 0) + 1 FROM questions WHERE exam_id = ?`, examID,
	).Scan(&next)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(questions))
	for i, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return nil, fmt.Errorf("marshal options: %w", err)
		}
		res, err := tx.Exec(
			`INSERT INTO questions (exam_id, position, text, difficulty, topic, options, answer, rubric, max_points)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			examID, next+i, q.Text, q.Difficulty, q.Topic, string(options), q.Answer, q.Rubric, q.MaxPoints,
		)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, tx.Commit()
}

const questionColumns = `id, exam_id, position, text, difficulty, topic, options, answer, rubric, max_points`

func scanQuestion(row rowScanner) (model.Question, error) {
	var q model.Question
	var options string
	err := row.Scan(&q.ID, &q.ExamID, &q.Position, &q.Text, &q.Difficulty, &q.Topic, &options, &q.Answer, &q.Rubric, &q.MaxPoints)
	if err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return q, fmt.Errorf("question %d options: %w", q.ID, err)
	}
	return q, nil
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	q, err := scanQuestion(s.db.QueryRow(`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
	return q, notFound(err)
}

// ListQuestions returns the questions of an exam in position order.
func (s *Store) ListQuestions(examID int64) ([]model.Question, error) {
	rows, err := s.db.Query(`SELECT `+questionColumns+` FROM questions WHERE exam_id = ? ORDER BY position`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// QuestionCount returns the number of questions in an exam.
func (s *Store) QuestionCount(examID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions WHERE exam_id = ?`, examID).Scan(&count)
	return count, err
}
