package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/answerforge/answerforge/config"
	"github.com/answerforge/answerforge/internal/agent/telemetry"
	"github.com/answerforge/answerforge/internal/agent/trace"
)

// Pipeline states. Control flow is strictly linear except for the bounded
// deciding/acting loop.
const (
	StateStart     = "START"
	StatePerceived = "PERCEIVED"
	StateRecalled  = "RECALLED"
	StateDeciding  = "DECIDING"
	StateActing    = "ACTING"
	StateDone      = "DONE"
)

// ErrEmptyQuestion rejects a request before the pipeline starts
var ErrEmptyQuestion = errors.New("question must not be empty")

// Orchestrator sequences perception, memory and the bounded decision/action
// loop for one request at a time. Each request owns its own accumulated
// context; the orchestrator itself is safe for concurrent use.
type Orchestrator struct {
	config    *config.Config
	logger    *log.Logger
	telemetry *telemetry.Telemetry
	perceiver *Perceiver
	recaller  *Recaller
	decider   *Decider
	actor     *Actor
	store     ContextStore
}

// NewOrchestrator wires the four stages together
func NewOrchestrator(cfg *config.Config, llmProvider LLMProvider, tools ToolRunner, store ContextStore, tele *telemetry.Telemetry) *Orchestrator {
	return &Orchestrator{
		config:    cfg,
		logger:    log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
		telemetry: tele,
		perceiver: NewPerceiver(cfg, llmProvider, tele),
		recaller:  NewRecaller(cfg, store, tele),
		decider:   NewDecider(cfg, llmProvider, tele),
		actor:     NewActor(cfg, llmProvider, tools, tele),
		store:     store,
	}
}

// Process answers one question. It always returns an answer once the
// pipeline starts: stage failures degrade locally, and hitting the round
// bound terminates with the last answer produced.
func (o *Orchestrator) Process(ctx context.Context, question string, prefs PreferenceProfile) (Answer, *trace.FlowTrace, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, nil, ErrEmptyQuestion
	}
	prefs = prefs.Normalize()
	startTime := time.Now()

	recorder := trace.NewRecorder(o.config.Storage.File.LogDir, question, prefs)
	o.logger.Printf("[%s] processing %q", recorder.SessionID()[:8], truncate(question, 80))

	state := StateStart
	acc := &Accumulated{}

	// START -> PERCEIVED
	perception, err := o.perceiver.Perceive(ctx, question, prefs)
	if err != nil {
		return Answer{}, nil, fmt.Errorf("perception stage: %w", err)
	}
	acc.Perception = perception
	state = StatePerceived
	recorder.RecordStage("perception", 0,
		map[string]interface{}{"question": question, "preferences": prefs},
		perception, trace.StatusPassed)

	// PERCEIVED -> RECALLED
	memory, err := o.recaller.Recall(ctx, perception)
	if err != nil {
		return Answer{}, nil, fmt.Errorf("memory stage: %w", err)
	}
	acc.Memory = memory
	state = StateRecalled
	recorder.RecordStage("memory", 0, perception, memory, trace.StatusMaintained)

	// RECALLED -> {DECIDING <-> ACTING} -> DONE
	var lastAction ActionResult
	rounds := 0
	for state != StateDone {
		rounds++
		state = StateDeciding
		decision, err := o.decider.Decide(ctx, memory, perception, acc.Rounds)
		if err != nil {
			return Answer{}, nil, fmt.Errorf("decision stage: %w", err)
		}
		recorder.RecordStage("decision", rounds,
			map[string]interface{}{"suggested_method": memory.SuggestedMethod, "prior_rounds": len(acc.Rounds)},
			decision, trace.StatusConsidered)

		state = StateActing
		action, err := o.actor.Act(ctx, decision, acc)
		if err != nil {
			return Answer{}, nil, fmt.Errorf("action stage: %w", err)
		}
		recorder.RecordStage("action", rounds, decision, action, trace.StatusApplied)

		acc.Rounds = append(acc.Rounds, RoundRecord{Round: rounds, Decision: decision, Action: action})
		lastAction = action

		if action.LoopAgain && rounds < o.config.Pipeline.MaxRounds {
			continue
		}
		if action.LoopAgain {
			// Round bound reached while still insufficient: terminate with
			// the best available answer, never an error.
			o.logger.Printf("[%s] round bound reached after %d rounds", recorder.SessionID()[:8], rounds)
		}
		state = StateDone
	}

	// Total outage: rule-only perception, nothing readable from memory and a
	// synthesis that degraded with zero evidence means there is no grounded
	// answer to give. This is the one post-start path that fails the request.
	if perception.Degraded && memory.Degraded && lastAction.Degraded {
		o.logger.Printf("[%s] all stages degraded with no usable context after %d round(s)", recorder.SessionID()[:8], rounds)
		o.telemetry.RecordRequestEvent(ctx, telemetry.RequestEvent{
			ID:       recorder.SessionID(),
			Success:  false,
			Rounds:   rounds,
			Duration: time.Since(startTime),
		})
		return Answer{}, nil, fmt.Errorf("all stages degraded with no usable context: %w", ErrUpstreamUnavailable)
	}

	answer := Answer{
		Question:           question,
		Text:               lastAction.Answer,
		Confidence:         lastAction.Confidence,
		Method:             lastAction.Method,
		Sources:            lastAction.Sources,
		PreferencesApplied: true,
		Rounds:             rounds,
	}
	flowTrace := recorder.Finish(answer)

	if err := o.store.SaveConversation(ctx, ConversationTurn{
		Question:  question,
		Answer:    answer.Text,
		Method:    answer.Method,
		CreatedAt: time.Now(),
	}); err != nil {
		o.logger.Printf("[%s] failed to save conversation turn: %v", recorder.SessionID()[:8], err)
	}

	o.telemetry.RecordRequestEvent(ctx, telemetry.RequestEvent{
		ID:       recorder.SessionID(),
		Success:  true,
		Method:   string(answer.Method),
		Rounds:   rounds,
		Duration: time.Since(startTime),
	})
	o.logger.Printf("[%s] done via %s in %d round(s), %v", recorder.SessionID()[:8], answer.Method, rounds, time.Since(startTime))
	return answer, flowTrace, nil
}
