package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/answerforge/answerforge/internal/store"
)

// StatsHandler reports request counters and stored-state totals
type StatsHandler struct {
	Store *store.Store
	Prefs PreferenceStore
}

func (h *StatsHandler) Register(g *echo.Group) {
	g.GET("/stats", h.stats)
}

func (h *StatsHandler) stats(c echo.Context) error {
	ctx := c.Request().Context()
	storeStats, err := h.Store.GetStats(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	total, successful, err := h.Prefs.QueryCounts(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	accuracy := 0.0
	if total > 0 {
		accuracy = float64(successful) / float64(total)
	}
	out := map[string]interface{}{
		"total_queries":       total,
		"successful_queries":  successful,
		"accuracy":            accuracy,
		"total_documents":     storeStats.Documents,
		"total_facts":         storeStats.Facts,
		"conversation_length": storeStats.ConversationLength,
	}
	if storeStats.MostAccessedID != "" {
		out["most_accessed_document"] = map[string]interface{}{
			"id":           storeStats.MostAccessedID,
			"title":        storeStats.MostAccessedTitle,
			"access_count": storeStats.MostAccessedCount,
		}
	}
	return c.JSON(http.StatusOK, out)
}
