package server

import (
	"context"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/answerforge/answerforge/internal/agent/core"
	"github.com/answerforge/answerforge/internal/agent/trace"
)

// Asker runs the answering pipeline for one question
type Asker interface {
	Process(ctx context.Context, question string, prefs core.PreferenceProfile) (core.Answer, *trace.FlowTrace, error)
}

// PreferenceStore persists the default profile and request counters
type PreferenceStore interface {
	GetDefault(ctx context.Context) (core.PreferenceProfile, bool, error)
	SetDefault(ctx context.Context, prefs core.PreferenceProfile) error
	RecordQuery(ctx context.Context, successful bool) error
	QueryCounts(ctx context.Context) (int64, int64, error)
}

// AskHandler exposes the answering pipeline
type AskHandler struct {
	Pipeline Asker
	Prefs    PreferenceStore
	Logger   *log.Logger
}

func (h *AskHandler) Register(g *echo.Group) {
	g.POST("/ask", h.ask)
}

type askRequest struct {
	Question    string                  `json:"question"`
	Preferences *core.PreferenceProfile `json:"user_preferences,omitempty"`
}

type askResponse struct {
	Success            bool             `json:"success"`
	Answer             string           `json:"answer"`
	Confidence         int              `json:"confidence"`
	Method             core.Method      `json:"method"`
	Sources            []string         `json:"sources"`
	PreferencesApplied bool             `json:"user_preferences_applied"`
	ReasoningFlow      *trace.FlowTrace `json:"reasoning_flow"`
}

func (h *AskHandler) ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}

	ctx := c.Request().Context()
	var prefs core.PreferenceProfile
	if req.Preferences != nil {
		if err := req.Preferences.Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		prefs = *req.Preferences
	} else if stored, found, err := h.Prefs.GetDefault(ctx); err == nil && found {
		prefs = stored
	} else {
		prefs = core.DefaultPreferences()
	}

	answer, flowTrace, err := h.Pipeline.Process(ctx, req.Question, prefs)
	if err != nil {
		if recordErr := h.Prefs.RecordQuery(ctx, false); recordErr != nil {
			h.Logger.Printf("failed to record query counter: %v", recordErr)
		}
		if err == core.ErrEmptyQuestion {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		// The pipeline degrades internally; an error here means every
		// upstream dependency failed at once.
		return echo.NewHTTPError(http.StatusServiceUnavailable,
			"we could not answer right now: the answering services are unavailable")
	}
	if recordErr := h.Prefs.RecordQuery(ctx, true); recordErr != nil {
		h.Logger.Printf("failed to record query counter: %v", recordErr)
	}

	sources := answer.Sources
	if sources == nil {
		sources = []string{}
	}
	return c.JSON(http.StatusOK, askResponse{
		Success:            true,
		Answer:             answer.Text,
		Confidence:         answer.Confidence,
		Method:             answer.Method,
		Sources:            sources,
		PreferencesApplied: answer.PreferencesApplied,
		ReasoningFlow:      flowTrace,
	})
}
