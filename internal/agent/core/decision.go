package core

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/answerforge/answerforge/config"
	"github.com/answerforge/answerforge/internal/agent/telemetry"
)

// ToolDescription documents one registered tool for the planning prompt
type ToolDescription struct {
	Name        string
	Description string
	WhenToUse   string
	Arguments   string
}

// RegisteredTools is the fixed catalog the decision stage may plan with.
// Names outside this set are rejected.
var RegisteredTools = []ToolDescription{
	{
		Name:        "analyze_query",
		Description: "Extracts keywords and guesses the query type of a question",
		WhenToUse:   "When the question needs re-analysis with different emphasis",
		Arguments:   `{"query": "<question text>"}`,
	},
	{
		Name:        "retrieve_documents",
		Description: "Searches stored documents by lexical relevance to a query",
		WhenToUse:   "When RAG is suggested and grounding documents are needed",
		Arguments:   `{"query": "<search text>", "limit": 5}`,
	},
	{
		Name:        "store_document",
		Description: "Persists a new reference document",
		WhenToUse:   "When the user explicitly asks to save content",
		Arguments:   `{"title": "...", "content": "...", "url": "..."}`,
	},
	{
		Name:        "generate_response",
		Description: "Drafts an answer from supplied context",
		WhenToUse:   "When a draft is needed before verification",
		Arguments:   `{"query": "...", "context": "..."}`,
	},
	{
		Name:        "verify_answer",
		Description: "Scores a draft answer for citations, length and hedging",
		WhenToUse:   "After retrieval, to check the grounded answer quality",
		Arguments:   `{"answer": "...", "sources": ["..."]}`,
	},
	{
		Name:        "store_in_memory",
		Description: "Caches a key-value fact",
		WhenToUse:   "When the conversation surfaced a fact worth remembering",
		Arguments:   `{"key": "...", "value": "...", "category": "..."}`,
	},
	{
		Name:        "retrieve_from_memory",
		Description: "Looks up cached facts by key or keyword",
		WhenToUse:   "When the question may be answered by a cached fact",
		Arguments:   `{"key": "<key or keyword>"}`,
	},
	{
		Name:        "get_statistics",
		Description: "Reports document/fact counts and the most accessed document",
		WhenToUse:   "When the user asks about the system's own stored state",
		Arguments:   `{}`,
	},
}

// Decider plans which tools must run before an answer can be synthesized
type Decider struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
	registered  map[string]ToolDescription
}

// NewDecider creates a new decision stage instance
func NewDecider(cfg *config.Config, llmProvider LLMProvider, tele *telemetry.Telemetry) *Decider {
	registered := make(map[string]ToolDescription, len(RegisteredTools))
	for _, td := range RegisteredTools {
		registered[td.Name] = td
	}
	return &Decider{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tele,
		logger:      log.New(log.Writer(), "[DECISION] ", log.LstdFlags),
		registered:  registered,
	}
}

// Decide plans the next round of tool calls. A plan with zero tools always
// carries loop_again=false: "no tools" means "ready to answer".
func (d *Decider) Decide(ctx context.Context, memory MemoryResult, perception PerceptionResult, priorRounds []RoundRecord) (DecisionResult, error) {
	startTime := time.Now()

	prompt := d.createPlanningPrompt(memory, perception, priorRounds)
	response, err := d.llmProvider.Generate(ctx, prompt, map[string]interface{}{
		"temperature": 0.3,
		"max_tokens":  1200,
	})
	if err != nil {
		d.logger.Printf("model unavailable, using fallback plan: %v", err)
		d.telemetry.RecordStageEvent(ctx, telemetry.StageEvent{Stage: "decision", Degraded: true, Duration: time.Since(startTime)})
		return d.fallbackPlan(memory, perception), nil
	}

	result, err := d.parsePlanningResponse(response)
	if err != nil {
		d.logger.Printf("invalid model output, using fallback plan: %v", err)
		d.telemetry.RecordStageEvent(ctx, telemetry.StageEvent{Stage: "decision", Degraded: true, Duration: time.Since(startTime)})
		return d.fallbackPlan(memory, perception), nil
	}

	d.telemetry.RecordStageEvent(ctx, telemetry.StageEvent{Stage: "decision", Duration: time.Since(startTime)})
	d.logger.Printf("planned %d tool calls, loop_again=%t in %v", len(result.ToolCalls), result.LoopAgain, time.Since(startTime))
	return result, nil
}

func (d *Decider) createPlanningPrompt(memory MemoryResult, perception PerceptionResult, priorRounds []RoundRecord) string {
	var catalog strings.Builder
	for _, td := range RegisteredTools {
		fmt.Fprintf(&catalog, "- %s: %s. Use: %s. Arguments: %s\n", td.Name, td.Description, td.WhenToUse, td.Arguments)
	}

	var prior strings.Builder
	for _, round := range priorRounds {
		fmt.Fprintf(&prior, "Round %d:\n", round.Round)
		for _, tr := range round.Action.ToolResults {
			fmt.Fprintf(&prior, "  - %s: success=%t, %s\n", tr.Tool, tr.Success, truncate(tr.Summary, 120))
		}
	}
	priorBlock := ""
	if prior.Len() > 0 {
		priorBlock = "\nPRIOR ROUNDS (do not repeat calls that already succeeded):\n" + prior.String()
	}

	return fmt.Sprintf(`You are the decision stage of a question answering pipeline. Plan which tools must run before the answer can be written.%s

QUESTION: %s
INTENT: %s
SUGGESTED METHOD: %s
CONTEXT: %s
SUFFICIENT CONTEXT: %t

AVAILABLE TOOLS:
%s
PLANNING RULES:
1. Only use tool names from the list above.
2. Plan the minimum set of tools; if evidence in hand already suffices, plan none.
3. If the suggested method is RAG and no documents have been retrieved yet, plan retrieve_documents before verify_answer.
4. Set loop_again true only if another planning round will be needed after these tools run.

RESPONSE FORMAT:
Respond ONLY with valid JSON in the following format:
{
  "tool_calls": [
    {"tool_name": "retrieve_documents", "arguments": {"query": "..."}, "reasoning": "why", "priority": 1}
  ],
  "loop_again": false,
  "rationale": "why this plan",
  "reasoning_steps": ["step", "by", "step"],
  "confidence": 85
}
Do not include any other text or explanation.`,
		priorBlock, perception.Question, perception.Intent, memory.SuggestedMethod,
		memory.ContextSummary, memory.HasSufficientContext, catalog.String())
}

func (d *Decider) parsePlanningResponse(response string) (DecisionResult, error) {
	var raw struct {
		ToolCalls []struct {
			ToolName  string                 `json:"tool_name"`
			Arguments map[string]interface{} `json:"arguments"`
			Reasoning string                 `json:"reasoning"`
			Priority  int                    `json:"priority"`
		} `json:"tool_calls"`
		LoopAgain      bool     `json:"loop_again"`
		Rationale      string   `json:"rationale"`
		ReasoningSteps []string `json:"reasoning_steps"`
		Confidence     int      `json:"confidence"`
	}
	if err := decodeModelJSON(response, &raw); err != nil {
		return DecisionResult{}, err
	}

	var calls []ToolCall
	for _, tc := range raw.ToolCalls {
		if _, ok := d.registered[tc.ToolName]; !ok {
			d.logger.Printf("rejecting unregistered tool %q", tc.ToolName)
			continue
		}
		args := tc.Arguments
		if args == nil {
			args = map[string]interface{}{}
		}
		calls = append(calls, ToolCall{
			Name:      tc.ToolName,
			Arguments: args,
			Rationale: tc.Reasoning,
			Priority:  tc.Priority,
		})
	}
	sort.SliceStable(calls, func(i, j int) bool { return calls[i].Priority < calls[j].Priority })

	loopAgain := raw.LoopAgain
	if len(calls) == 0 {
		// No tools always means ready to answer, whatever the model said.
		loopAgain = false
	}
	if raw.Confidence <= 0 || raw.Confidence > 100 {
		raw.Confidence = 80
	}
	return DecisionResult{
		ToolCalls:      calls,
		LoopAgain:      loopAgain,
		Rationale:      raw.Rationale,
		ReasoningSteps: raw.ReasoningSteps,
		Confidence:     raw.Confidence,
	}, nil
}

// fallbackPlan is the deterministic plan used when the model cannot be
// consulted: the standard RAG pattern when RAG was suggested, otherwise no
// tools at all.
func (d *Decider) fallbackPlan(memory MemoryResult, perception PerceptionResult) DecisionResult {
	if memory.SuggestedMethod == MethodRAG {
		return DecisionResult{
			ToolCalls: []ToolCall{
				{
					Name:      "retrieve_documents",
					Arguments: map[string]interface{}{"query": strings.Join(perception.Keywords, " ")},
					Rationale: "RAG suggested; retrieve grounding documents",
					Priority:  1,
				},
				{
					Name:      "verify_answer",
					Arguments: map[string]interface{}{"answer": "", "sources": []interface{}{}},
					Rationale: "verify the grounded answer",
					Priority:  2,
				},
			},
			LoopAgain:  false,
			Rationale:  "fallback RAG plan (model unavailable)",
			Confidence: 60,
		}
	}
	return DecisionResult{
		LoopAgain:  false,
		Rationale:  "fallback plan: answer directly (model unavailable)",
		Confidence: 60,
	}
}
