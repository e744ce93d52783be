package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/answerforge/answerforge/internal/store"
)

// Scheduler runs periodic retention maintenance: the conversation history
// is append-only during requests and trimmed here instead.
type Scheduler struct {
	Store *store.Store
	Expr  *cronexpr.Expression
	Keep  int
	Stop  chan struct{}

	logger *log.Logger
}

// Start launches the maintenance loop
func (s *Scheduler) Start() {
	s.logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	go s.loop()
}

func (s *Scheduler) loop() {
	for {
		next := s.Expr.Next(time.Now())
		if next.IsZero() {
			s.logger.Printf("cron expression yields no next run, stopping scheduler")
			return
		}
		select {
		case <-time.After(time.Until(next)):
			s.runOnce()
		case <-s.Stop:
			return
		}
	}
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.Store.TrimConversation(ctx, s.Keep)
	if err != nil {
		s.logger.Printf("conversation trim failed: %v", err)
		return
	}
	if removed > 0 {
		s.logger.Printf("trimmed %d conversation turns (keeping %d)", removed, s.Keep)
	}
}
