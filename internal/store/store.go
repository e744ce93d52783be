package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/answerforge/answerforge/internal/agent/core"
)

// Store persists documents, conversation history and cached facts in
// Postgres. It implements core.ContextStore.
type Store struct {
	DB *sql.DB
}

// New wraps an existing database handle
func New(db *sql.DB) *Store { return &Store{DB: db} }

// NewWithDSN opens a Postgres connection and verifies it
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

// ListDocuments returns every stored document
func (s *Store) ListDocuments(ctx context.Context) ([]core.Document, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, title, content, COALESCE(url,''), access_count, stored_at FROM documents ORDER BY stored_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []core.Document
	for rows.Next() {
		var d core.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.URL, &d.AccessCount, &d.StoredAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// UpsertDocument stores a document, updating content for an existing id.
// Returns true when the document was newly created.
func (s *Store) UpsertDocument(ctx context.Context, d core.Document) (bool, error) {
	var inserted bool
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO documents (id, title, content, url, access_count, stored_at)
VALUES ($1,$2,$3,$4,0,NOW())
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  content = EXCLUDED.content,
  url = EXCLUDED.url
RETURNING (xmax = 0)`, d.ID, d.Title, d.Content, d.URL).Scan(&inserted)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// IncrementAccess bumps the access counter for the given document ids
func (s *Store) IncrementAccess(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if _, err := s.DB.ExecContext(ctx,
			`UPDATE documents SET access_count = access_count + 1 WHERE id = $1`, id); err != nil {
			return err
		}
	}
	return nil
}

// RecentConversation returns the last limit turns in chronological order
func (s *Store) RecentConversation(ctx context.Context, limit int) ([]core.ConversationTurn, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT question, answer, method, created_at FROM (
  SELECT question, answer, method, created_at FROM conversation ORDER BY created_at DESC LIMIT $1
) recent ORDER BY created_at ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []core.ConversationTurn
	for rows.Next() {
		var t core.ConversationTurn
		var method string
		if err := rows.Scan(&t.Question, &t.Answer, &method, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Method = core.Method(method)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// SaveConversation appends one exchange to the history
func (s *Store) SaveConversation(ctx context.Context, turn core.ConversationTurn) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO conversation (question, answer, method, created_at) VALUES ($1,$2,$3,$4)`,
		turn.Question, turn.Answer, string(turn.Method), turn.CreatedAt)
	return err
}

// TrimConversation deletes all but the newest keep turns and reports how
// many rows were removed
func (s *Store) TrimConversation(ctx context.Context, keep int) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
DELETE FROM conversation WHERE id NOT IN (
  SELECT id FROM conversation ORDER BY created_at DESC LIMIT $1
)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListFacts returns every cached key-value fact
func (s *Store) ListFacts(ctx context.Context) ([]core.Fact, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT key, value, COALESCE(category,'general') FROM facts ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []core.Fact
	for rows.Next() {
		var f core.Fact
		if err := rows.Scan(&f.Key, &f.Value, &f.Category); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// UpsertFact stores one key-value fact
func (s *Store) UpsertFact(ctx context.Context, f core.Fact) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO facts (key, value, category, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (key) DO UPDATE SET
  value = EXCLUDED.value,
  category = EXCLUDED.category,
  updated_at = NOW()`, f.Key, f.Value, f.Category)
	return err
}

// GetFact looks up one fact by exact key
func (s *Store) GetFact(ctx context.Context, key string) (core.Fact, bool, error) {
	var f core.Fact
	err := s.DB.QueryRowContext(ctx,
		`SELECT key, value, COALESCE(category,'general') FROM facts WHERE key = $1`, key).
		Scan(&f.Key, &f.Value, &f.Category)
	if err == sql.ErrNoRows {
		return core.Fact{}, false, nil
	}
	if err != nil {
		return core.Fact{}, false, err
	}
	return f, true, nil
}

// Stats summarizes the stored state
type Stats struct {
	Documents          int       `json:"total_documents"`
	Facts              int       `json:"total_facts"`
	ConversationLength int       `json:"conversation_length"`
	MostAccessedID     string    `json:"most_accessed_id,omitempty"`
	MostAccessedTitle  string    `json:"most_accessed_title,omitempty"`
	MostAccessedCount  int       `json:"most_accessed_count,omitempty"`
	OldestDocument     time.Time `json:"oldest_document,omitempty"`
}

// GetStats reads counts and the most accessed document
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&st.Documents); err != nil {
		return Stats{}, err
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts`).Scan(&st.Facts); err != nil {
		return Stats{}, err
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversation`).Scan(&st.ConversationLength); err != nil {
		return Stats{}, err
	}
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, title, access_count FROM documents ORDER BY access_count DESC, stored_at ASC LIMIT 1`).
		Scan(&st.MostAccessedID, &st.MostAccessedTitle, &st.MostAccessedCount)
	if err != nil && err != sql.ErrNoRows {
		return Stats{}, err
	}
	return st, nil
}
