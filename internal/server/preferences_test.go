package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/answerforge/answerforge/internal/agent/core"
)

func TestPreferences_GetFallsBackToDefaults(t *testing.T) {
	h := &PreferencesHandler{Prefs: &stubPrefStore{}}

	c, rec := jsonContext(t, http.MethodGet, "/preferences", "")
	if err := h.get(c); err != nil {
		t.Fatalf("get: %v", err)
	}

	var prefs core.PreferenceProfile
	if err := json.Unmarshal(rec.Body.Bytes(), &prefs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if prefs.Expertise != "intermediate" || prefs.Style != "balanced" {
		t.Fatalf("expected default profile, got %+v", prefs)
	}
}

func TestPreferences_GetReturnsStoredProfile(t *testing.T) {
	h := &PreferencesHandler{Prefs: &stubPrefStore{
		stored:    core.PreferenceProfile{Expertise: "expert", Style: "concise", Depth: "deep", TimeSensitivity: "high"},
		hasStored: true,
	}}

	c, rec := jsonContext(t, http.MethodGet, "/preferences", "")
	if err := h.get(c); err != nil {
		t.Fatalf("get: %v", err)
	}
	var prefs core.PreferenceProfile
	if err := json.Unmarshal(rec.Body.Bytes(), &prefs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if prefs.Expertise != "expert" {
		t.Fatalf("expected stored profile, got %+v", prefs)
	}
}

func TestPreferences_SetNormalizesPartialProfile(t *testing.T) {
	ps := &stubPrefStore{}
	h := &PreferencesHandler{Prefs: ps}

	c, rec := jsonContext(t, http.MethodPost, "/preferences", `{"expertise_level": "expert"}`)
	if err := h.set(c); err != nil {
		t.Fatalf("set: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ps.stored.Expertise != "expert" {
		t.Fatalf("expected stored expertise, got %+v", ps.stored)
	}
	if ps.stored.Style != "balanced" || ps.stored.Depth != "moderate" {
		t.Fatalf("expected unset fields normalized to defaults, got %+v", ps.stored)
	}
}

func TestPreferences_SetRejectsInvalidEnum(t *testing.T) {
	ps := &stubPrefStore{}
	h := &PreferencesHandler{Prefs: ps}

	c, _ := jsonContext(t, http.MethodPost, "/preferences", `{"response_style": "florid"}`)
	err := h.set(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid enum, got %v", err)
	}
	if ps.hasStored {
		t.Fatal("invalid profile must not be persisted")
	}
}
