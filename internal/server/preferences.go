package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/answerforge/answerforge/internal/agent/core"
)

// PreferencesHandler reads and updates the default preference profile
type PreferencesHandler struct {
	Prefs PreferenceStore
}

func (h *PreferencesHandler) Register(g *echo.Group) {
	g.GET("/preferences", h.get)
	g.POST("/preferences", h.set)
}

func (h *PreferencesHandler) get(c echo.Context) error {
	prefs, found, err := h.Prefs.GetDefault(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		prefs = core.DefaultPreferences()
	}
	return c.JSON(http.StatusOK, prefs)
}

func (h *PreferencesHandler) set(c echo.Context) error {
	var prefs core.PreferenceProfile
	if err := c.Bind(&prefs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := prefs.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	prefs = prefs.Normalize()
	if err := h.Prefs.SetDefault(c.Request().Context(), prefs); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "preferences": prefs})
}
