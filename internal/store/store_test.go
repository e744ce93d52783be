package store

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/answerforge/answerforge/internal/agent/core"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestListDocuments(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery("SELECT id, title, content, COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "content", "url", "access_count", "stored_at"}).
			AddRow("d1", "First", "body one", "https://example.com", 2, now).
			AddRow("d2", "Second", "body two", "", 0, now))

	docs, err := st.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "d1" || docs[0].AccessCount != 2 {
		t.Fatalf("unexpected documents %+v", docs)
	}
}

func TestUpsertDocument_ReportsCreation(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery("INSERT INTO documents").
		WithArgs("d1", "Title", "Content", "").
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectQuery("INSERT INTO documents").
		WithArgs("d1", "Title", "Updated", "").
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(false))

	created, err := st.UpsertDocument(context.Background(), core.Document{ID: "d1", Title: "Title", Content: "Content"})
	if err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if !created {
		t.Fatal("expected created=true on first insert")
	}

	created, err = st.UpsertDocument(context.Background(), core.Document{ID: "d1", Title: "Title", Content: "Updated"})
	if err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if created {
		t.Fatal("expected created=false on conflict update")
	}
}

func TestRecentConversation_ChronologicalOrder(t *testing.T) {
	st, mock := newMock(t)
	early := time.Now().Add(-time.Hour)
	late := time.Now()
	mock.ExpectQuery("SELECT question, answer, method, created_at FROM").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"question", "answer", "method", "created_at"}).
			AddRow("first q", "first a", "RAG", early).
			AddRow("second q", "second a", "MODEL_KNOWLEDGE", late))

	turns, err := st.RecentConversation(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentConversation: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Question != "first q" || turns[0].Method != core.MethodRAG {
		t.Fatalf("unexpected first turn %+v", turns[0])
	}
}

func TestTrimConversation_ReportsRemovedRows(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec("DELETE FROM conversation").
		WithArgs(50).
		WillReturnResult(sqlmock.NewResult(0, 12))

	removed, err := st.TrimConversation(context.Background(), 50)
	if err != nil {
		t.Fatalf("TrimConversation: %v", err)
	}
	if removed != 12 {
		t.Fatalf("expected 12 removed rows, got %d", removed)
	}
}

func TestGetFact_MissingKeyIsNotAnError(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery("SELECT key, value, COALESCE").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "category"}))

	_, found, err := st.GetFact(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetFact: %v", err)
	}
	if found {
		t.Fatal("expected found=false for a missing key")
	}
}

func TestGetStats_WithoutDocuments(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT id, title, access_count").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "access_count"}))

	stats, err := st.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Documents != 0 || stats.MostAccessedID != "" {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestSaveConversation(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now()
	mock.ExpectExec("INSERT INTO conversation").
		WithArgs("q", "a", "LIVE_SEARCH", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := st.SaveConversation(context.Background(), core.ConversationTurn{
		Question: "q", Answer: "a", Method: core.MethodLiveSearch, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
