package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rsharma/biopaper/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps writes serialized and makes :memory:
	// databases behave, since every sqlite connection gets its own one.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		school TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'teacher',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		class INTEGER NOT NULL,
		chapter TEXT NOT NULL,
		text TEXT NOT NULL,
		answer TEXT NOT NULL DEFAULT '',
		image_data TEXT NOT NULL DEFAULT '',
		marks INTEGER NOT NULL,
		difficulty TEXT NOT NULL,
		qtype TEXT NOT NULL DEFAULT 'short',
		keywords TEXT NOT NULL DEFAULT '',
		used_in TEXT NOT NULL DEFAULT '[]',
		created_by INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS papers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		public_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		class INTEGER NOT NULL,
		total_marks INTEGER NOT NULL,
		mode TEXT NOT NULL DEFAULT 'bank',
		status TEXT NOT NULL DEFAULT 'draft',
		created_by INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS paper_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paper_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		marks INTEGER NOT NULL,
		FOREIGN KEY (paper_id) REFERENCES papers(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const questionCols = `id, class, chapter, text, answer, image_data, marks, difficulty, qtype, keywords, used_in, created_by, created_at`

func scanQuestion(row interface{ Scan(...any) error }) (model.Question, error) {
	var q model.Question
	var usedIn string
	err := row.Scan(&q.ID, &q.Class, &q.Chapter, &q.Text, &q.Answer, &q.ImageData,
		&q.Marks, &q.Difficulty, &q.Type, &q.Keywords, &usedIn, &q.CreatedBy, &q.CreatedAt)
	if err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(usedIn), &q.UsedIn); err != nil {
		return q, fmt.Errorf("decode used_in for question %d: %w", q.ID, err)
	}
	return q, nil
}

func encodeUsedIn(usedIn []string) (string, error) {
	if usedIn == nil {
		usedIn = []string{}
	}
	data, err := json.Marshal(usedIn)
	if err != nil {
		return "", fmt.Errorf("encode used_in: %w", err)
	}
	return string(data), nil
}

// InsertQuestion stores a question.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	usedIn, err := encodeUsedIn(q.UsedIn)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO questions (class, chapter, text, answer, image_data, marks, difficulty, qtype, keywords, used_in, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.Class, q.Chapter, q.Text, q.Answer, q.ImageData, q.Marks, q.Difficulty, q.Type, q.Keywords, usedIn, q.CreatedBy, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateQuestion replaces the editable fields of a question.
func (s *Store) UpdateQuestion(q model.Question) error {
	_, err := s.db.Exec(
		`UPDATE questions SET class = ?, chapter = ?, text = ?, answer = ?, image_data = ?,
		 marks = ?, difficulty = ?, qtype = ?, keywords = ? WHERE id = ?`,
		q.Class, q.Chapter, q.Text, q.Answer, q.ImageData, q.Marks, q.Difficulty, q.Type, q.Keywords, q.ID,
	)
	return err
}

// DeleteQuestion removes a question from the bank.
func (s *Store) DeleteQuestion(id int64) error {
	_, err := s.db.Exec(`DELETE FROM questions WHERE id = ?`, id)
	return err
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	row := s.db.QueryRow(`SELECT `+questionCols+` FROM questions WHERE id = ?`, id)
	return scanQuestion(row)
}

// QuestionFilter narrows a question listing. Zero values mean no filtering
// on that field.
type QuestionFilter struct {
	Class      int
	Marks      int
	Chapter    string
	Difficulty string
	Type       string
	UnusedOnly bool
}

// ListQuestions returns questions matching the given filter.
func (s *Store) ListQuestions(f QuestionFilter) ([]model.Question, error) {
	query := `SELECT ` + questionCols + ` FROM questions WHERE 1=1`
	var args []any
	if f.Class != 0 {
		query += ` AND class = ?`
		args = append(args, f.Class)
	}
	if f.Marks != 0 {
		query += ` AND marks = ?`
		args = append(args, f.Marks)
	}
	if f.Chapter != "" {
		query += ` AND chapter = ?`
		args = append(args, f.Chapter)
	}
	if f.Difficulty != "" {
		query += ` AND difficulty = ?`
		args = append(args, f.Difficulty)
	}
	if f.Type != "" {
		query += ` AND qtype = ?`
		args = append(args, f.Type)
	}
	if f.UnusedOnly {
		query += ` AND used_in = '[]'`
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
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

// MarkQuestionsUsed appends the paper's public ID to used_in on every
// listed question, in one transaction.
func (s *Store) MarkQuestionsUsed(questionIDs []int64, paperPublicID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range questionIDs {
		var usedIn string
		if err := tx.QueryRow(`SELECT used_in FROM questions WHERE id = ?`, id).Scan(&usedIn); err != nil {
			return fmt.Errorf("load used_in for question %d: %w", id, err)
		}
		var list []string
		if err := json.Unmarshal([]byte(usedIn), &list); err != nil {
			return fmt.Errorf("decode used_in for question %d: %w", id, err)
		}
		list = append(list, paperPublicID)
		encoded, err := encodeUsedIn(list)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE questions SET used_in = ? WHERE id = ?`, encoded, id); err != nil {
			return fmt.Errorf("update used_in for question %d: %w", id, err)
		}
	}

	return tx.Commit()
}

// CreatePaper stores a paper together with its question placements.
func (s *Store) CreatePaper(p model.Paper, questions []model.Question) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO papers (public_id, title, class, total_marks, mode, status, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PublicID, p.Title, p.Class, p.TotalMarks, p.Mode, p.Status, p.CreatedBy, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	paperID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, q := range questions {
		_, err := tx.Exec(
			`INSERT INTO paper_questions (paper_id, question_id, position, marks) VALUES (?, ?, ?, ?)`,
			paperID, q.ID, i+1, q.Marks,
		)
		if err != nil {
			return 0, err
		}
	}

	return paperID, tx.Commit()
}

// GetPaper returns a paper by ID.
func (s *Store) GetPaper(id int64) (model.Paper, error) {
	var p model.Paper
	err := s.db.QueryRow(
		`SELECT id, public_id, title, class, total_marks, mode, status, created_by, created_at
		 FROM papers WHERE id = ?`, id,
	).Scan(&p.ID, &p.PublicID, &p.Title, &p.Class, &p.TotalMarks, &p.Mode, &p.Status, &p.CreatedBy, &p.CreatedAt)
	return p, err
}

// ListPapers returns all papers, newest first. A non-zero createdBy limits
// the listing to one user's papers.
func (s *Store) ListPapers(createdBy int64) ([]model.Paper, error) {
	query := `SELECT id, public_id, title, class, total_marks, mode, status, created_by, created_at FROM papers`
	var args []any
	if createdBy != 0 {
		query += ` WHERE created_by = ?`
		args = append(args, createdBy)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var papers []model.Paper
	for rows.Next() {
		var p model.Paper
		if err := rows.Scan(&p.ID, &p.PublicID, &p.Title, &p.Class, &p.TotalMarks, &p.Mode, &p.Status, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

// GetPaperView builds a full view of a paper with its questions in
// position order.
func (s *Store) GetPaperView(id int64) (*model.PaperView, error) {
	p, err := s.GetPaper(id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT q.id, q.class, q.chapter, q.text, q.answer, q.image_data, q.marks, q.difficulty, q.qtype, q.keywords, q.used_in, q.created_by, q.created_at
		 FROM paper_questions pq JOIN questions q ON q.id = pq.question_id
		 WHERE pq.paper_id = ? ORDER BY pq.position`, id,
	)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &model.PaperView{Paper: p, Questions: questions}, nil
}

// FinalizePaper flips a draft paper to final and records its public ID on
// every question it contains.
func (s *Store) FinalizePaper(id int64) error {
	p, err := s.GetPaper(id)
	if err != nil {
		return err
	}
	if p.Status == model.StatusFinal {
		return nil
	}

	view, err := s.GetPaperView(id)
	if err != nil {
		return err
	}
	questionIDs := make([]int64, 0, len(view.Questions))
	for _, q := range view.Questions {
		questionIDs = append(questionIDs, q.ID)
	}

	if err := s.MarkQuestionsUsed(questionIDs, p.PublicID); err != nil {
		return fmt.Errorf("mark questions used: %w", err)
	}
	_, err = s.db.Exec(`UPDATE papers SET status = ? WHERE id = ?`, model.StatusFinal, id)
	return err
}

// DeletePaper removes a draft paper and its placements. Finalized papers
// are kept as archive.
func (s *Store) DeletePaper(id int64) error {
	p, err := s.GetPaper(id)
	if err != nil {
		return err
	}
	if p.Status == model.StatusFinal {
		return fmt.Errorf("paper %d is finalized and cannot be deleted", id)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM paper_questions WHERE paper_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM papers WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// QuestionCount returns the number of questions in the bank.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// PaperCount returns the number of stored papers.
func (s *Store) PaperCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM papers`).Scan(&count)
	return count, err
}
