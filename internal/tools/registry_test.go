package tools

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/answerforge/answerforge/internal/agent/core"
	"github.com/answerforge/answerforge/internal/store"
)

func newMockRegistry(t *testing.T) (*Registry, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRegistry(store.New(db), nil), mock
}

func TestExecute_UnknownToolRejected(t *testing.T) {
	r := NewRegistry(nil, nil)
	if _, err := r.Execute(context.Background(), "launch_rocket", nil); !errors.Is(err, core.ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestNames_ListsAllEightTools(t *testing.T) {
	r := NewRegistry(nil, nil)
	names := r.Names()
	if len(names) != 8 {
		t.Fatalf("expected 8 registered tools, got %d: %v", len(names), names)
	}
	if len(names) != len(core.RegisteredTools) {
		t.Fatalf("registry and catalog disagree: %d vs %d", len(names), len(core.RegisteredTools))
	}
}

func TestAnalyzeQuery_ClassifiesQueryTypes(t *testing.T) {
	r := NewRegistry(nil, nil)
	cases := []struct {
		query string
		want  string
	}{
		{"latest news today", core.QueryTemporal},
		{"how to bake sourdough bread", core.QueryProcedural},
		{"python vs golang performance", core.QueryComparative},
		{"which editor is best for golang", core.QueryOpinion},
		{"capital city of france", core.QueryFactual},
	}
	for _, tc := range cases {
		result, err := r.Execute(context.Background(), "analyze_query", map[string]interface{}{"query": tc.query})
		if err != nil {
			t.Fatalf("analyze_query(%q): %v", tc.query, err)
		}
		if result["query_type"] != tc.want {
			t.Fatalf("analyze_query(%q) = %v, want %s", tc.query, result["query_type"], tc.want)
		}
	}
}

func TestAnalyzeQuery_RequiresQuery(t *testing.T) {
	r := NewRegistry(nil, nil)
	if _, err := r.Execute(context.Background(), "analyze_query", map[string]interface{}{}); err == nil {
		t.Fatal("expected error for missing query")
	}
}

func TestVerifyAnswer_Scoring(t *testing.T) {
	r := NewRegistry(nil, nil)
	longAnswer := "The Kubernetes scheduler assigns pods to nodes based on resource requests, node affinity rules, " +
		"taints and tolerations, and topology spread constraints, then binds the chosen pod to the selected node."

	full, err := r.Execute(context.Background(), "verify_answer", map[string]interface{}{
		"answer":  longAnswer,
		"sources": []interface{}{"Kubernetes Scheduler Guide"},
	})
	if err != nil {
		t.Fatalf("verify_answer: %v", err)
	}
	if full["score"] != 100 || full["verified"] != true {
		t.Fatalf("expected 100/verified for a strong answer, got %v", full)
	}

	weak, err := r.Execute(context.Background(), "verify_answer", map[string]interface{}{
		"answer": "I think maybe yes.",
	})
	if err != nil {
		t.Fatalf("verify_answer: %v", err)
	}
	if weak["score"] != 0 || weak["verified"] != false {
		t.Fatalf("expected 0/unverified for a hedged fragment, got %v", weak)
	}

	citedOnly, err := r.Execute(context.Background(), "verify_answer", map[string]interface{}{
		"answer":  "Short.",
		"sources": []interface{}{"a"},
	})
	if err != nil {
		t.Fatalf("verify_answer: %v", err)
	}
	// citations 40 + no hedging 10
	if citedOnly["score"] != 50 {
		t.Fatalf("expected score 50, got %v", citedOnly["score"])
	}
}

func TestStoreDocument_DerivesContentHashID(t *testing.T) {
	r, mock := newMockRegistry(t)
	sum := md5.Sum([]byte("Go Modules" + "Modules are versioned units of code."))
	wantID := hex.EncodeToString(sum[:])

	mock.ExpectQuery("INSERT INTO documents").
		WithArgs(wantID, "Go Modules", "Modules are versioned units of code.", "").
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))

	result, err := r.Execute(context.Background(), "store_document", map[string]interface{}{
		"title":   "Go Modules",
		"content": "Modules are versioned units of code.",
	})
	if err != nil {
		t.Fatalf("store_document: %v", err)
	}
	if result["id"] != wantID {
		t.Fatalf("expected content-hash id %s, got %v", wantID, result["id"])
	}
	if result["created"] != true {
		t.Fatalf("expected created=true, got %v", result["created"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRetrieveDocuments_FiltersAndBumpsAccess(t *testing.T) {
	r, mock := newMockRegistry(t)
	now := time.Now()
	mock.ExpectQuery("SELECT id, title, content, COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "content", "url", "access_count", "stored_at"}).
			AddRow("d1", "Kubernetes Scheduler", "kubernetes scheduler internals", "", 0, now).
			AddRow("d2", "Sourdough Recipes", "flour and water", "", 0, now))
	mock.ExpectExec("UPDATE documents SET access_count").
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := r.Execute(context.Background(), "retrieve_documents", map[string]interface{}{
		"query": "kubernetes scheduler",
	})
	if err != nil {
		t.Fatalf("retrieve_documents: %v", err)
	}
	if result["count"] != 1 {
		t.Fatalf("expected 1 matching document, got %v", result["count"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStoreInMemory_DefaultsCategory(t *testing.T) {
	r, mock := newMockRegistry(t)
	mock.ExpectExec("INSERT INTO facts").
		WithArgs("timezone", "Europe/Berlin", "general").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := r.Execute(context.Background(), "store_in_memory", map[string]interface{}{
		"key":   "timezone",
		"value": "Europe/Berlin",
	})
	if err != nil {
		t.Fatalf("store_in_memory: %v", err)
	}
	if result["stored"] != true {
		t.Fatalf("expected stored=true, got %v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRetrieveFromMemory_ExactHit(t *testing.T) {
	r, mock := newMockRegistry(t)
	mock.ExpectQuery("SELECT key, value, COALESCE").
		WithArgs("timezone").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "category"}).
			AddRow("timezone", "Europe/Berlin", "profile"))

	result, err := r.Execute(context.Background(), "retrieve_from_memory", map[string]interface{}{"key": "timezone"})
	if err != nil {
		t.Fatalf("retrieve_from_memory: %v", err)
	}
	if result["found"] != true {
		t.Fatalf("expected exact hit, got %v", result)
	}
}

func TestRetrieveFromMemory_SubstringFallback(t *testing.T) {
	r, mock := newMockRegistry(t)
	mock.ExpectQuery("SELECT key, value, COALESCE").
		WithArgs("zone").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT key, value, COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "category"}).
			AddRow("timezone", "Europe/Berlin", "profile").
			AddRow("editor", "neovim", "profile"))

	result, err := r.Execute(context.Background(), "retrieve_from_memory", map[string]interface{}{"key": "zone"})
	if err != nil {
		t.Fatalf("retrieve_from_memory: %v", err)
	}
	if result["found"] != true {
		t.Fatalf("expected substring match, got %v", result)
	}
	facts, ok := result["facts"].([]map[string]interface{})
	if !ok || len(facts) != 1 || facts[0]["key"] != "timezone" {
		t.Fatalf("expected only the matching fact, got %v", result["facts"])
	}
}

func TestGetStatistics_ReportsCounts(t *testing.T) {
	r, mock := newMockRegistry(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(9))
	mock.ExpectQuery("SELECT id, title, access_count").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "access_count"}).
			AddRow("d1", "Kubernetes Scheduler", 7))

	result, err := r.Execute(context.Background(), "get_statistics", nil)
	if err != nil {
		t.Fatalf("get_statistics: %v", err)
	}
	if result["total_documents"] != 4 || result["total_facts"] != 2 {
		t.Fatalf("unexpected counts %v", result)
	}
	top, ok := result["most_accessed_document"].(map[string]interface{})
	if !ok || top["id"] != "d1" {
		t.Fatalf("expected most accessed document, got %v", result)
	}
}
