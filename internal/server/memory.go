package server

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/answerforge/answerforge/internal/agent/core"
	"github.com/answerforge/answerforge/internal/store"
)

// MemoryHandler exposes the document and fact stores
type MemoryHandler struct {
	Store *store.Store
}

func (h *MemoryHandler) Register(g *echo.Group) {
	g.POST("/store", h.storeDocument)
	g.GET("/memory", h.memory)
}

type storeRequest struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func (h *MemoryHandler) storeDocument(c echo.Context) error {
	var req storeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Title == "" || req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title and content are required")
	}

	sum := md5.Sum([]byte(req.Title + req.Content))
	doc := core.Document{
		ID:      hex.EncodeToString(sum[:]),
		Title:   req.Title,
		Content: req.Content,
		URL:     req.URL,
	}
	created, err := h.Store.UpsertDocument(c.Request().Context(), doc)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	message := fmt.Sprintf("document %q stored", req.Title)
	if !created {
		message = fmt.Sprintf("document %q updated", req.Title)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
		"id":      doc.ID,
	})
}

func (h *MemoryHandler) memory(c echo.Context) error {
	ctx := c.Request().Context()
	stats, err := h.Store.GetStats(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	facts, err := h.Store.ListFacts(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	summary := fmt.Sprintf("%d documents, %d cached facts, %d conversation turns",
		stats.Documents, stats.Facts, stats.ConversationLength)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"summary": summary,
		"count":   stats.Documents + stats.Facts,
		"facts":   facts,
	})
}
