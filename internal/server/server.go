package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorhill/cronexpr"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/answerforge/answerforge/config"
	"github.com/answerforge/answerforge/internal/agent/core"
	"github.com/answerforge/answerforge/internal/agent/telemetry"
	"github.com/answerforge/answerforge/internal/store"
	"github.com/answerforge/answerforge/provider"
	"github.com/answerforge/answerforge/repository/redis_repository"
	"github.com/answerforge/answerforge/internal/tools"
)

// Run wires the full service and starts the HTTP listener
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	dsn := cfg.Storage.Postgres.DSN()
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		baseLogger.Printf("migration warning: %v", err)
	}

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	rdb, err := redis_repository.Conn(ctx, cfg.Storage.Redis.Host, cfg.Storage.Redis.Port,
		cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.Timeout)
	if err != nil {
		return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
	}
	prefsRepo := &redis_repository.PreferencesRepo{Client: rdb}

	llmProvider, err := provider.New(cfg.LLM)
	if err != nil {
		return err
	}

	gateway, err := tools.NewGateway(cfg.Tools.Command, cfg.Tools.Timeout)
	if err != nil {
		return fmt.Errorf("tool server startup failed: %w", err)
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	orch := core.NewOrchestrator(cfg, llmProvider, gateway, st, tele)

	root := e.Group("")
	ah := &AskHandler{Pipeline: orch, Prefs: prefsRepo, Logger: baseLogger}
	ah.Register(root)
	mh := &MemoryHandler{Store: st}
	mh.Register(root)
	sh := &StatsHandler{Store: st, Prefs: prefsRepo}
	sh.Register(root)
	ph := &PreferencesHandler{Prefs: prefsRepo}
	ph.Register(root)

	if cfg.Retention.Enabled {
		expr, err := cronexpr.Parse(cfg.Retention.Cron)
		if err != nil {
			return fmt.Errorf("invalid retention cron %q: %w", cfg.Retention.Cron, err)
		}
		sched := &Scheduler{Store: st, Expr: expr, Keep: cfg.Retention.ConversationKeep, Stop: make(chan struct{})}
		sched.Start()
	}

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8000"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
