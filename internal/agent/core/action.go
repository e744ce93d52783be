package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/answerforge/answerforge/config"
	"github.com/answerforge/answerforge/internal/agent/telemetry"
)

// Accumulated is the per-request context the orchestrator owns and threads
// through the decision/action rounds
type Accumulated struct {
	Perception PerceptionResult
	Memory     MemoryResult
	Rounds     []RoundRecord
}

// Actor executes planned tool calls and synthesizes the final answer
type Actor struct {
	config      *config.Config
	llmProvider LLMProvider
	tools       ToolRunner
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewActor creates a new action stage instance
func NewActor(cfg *config.Config, llmProvider LLMProvider, tools ToolRunner, tele *telemetry.Telemetry) *Actor {
	return &Actor{
		config:      cfg,
		llmProvider: llmProvider,
		tools:       tools,
		telemetry:   tele,
		logger:      log.New(log.Writer(), "[ACTION] ", log.LstdFlags),
	}
}

// Act runs every planned tool call sequentially, then synthesizes an answer
// with the selected method. A failing tool call never aborts the stage; its
// result is recorded as empty evidence and execution continues.
func (a *Actor) Act(ctx context.Context, decision DecisionResult, acc *Accumulated) (ActionResult, error) {
	startTime := time.Now()

	results := make([]ToolResult, 0, len(decision.ToolCalls))
	failures := 0
	for _, call := range decision.ToolCalls {
		result := a.tools.Invoke(ctx, call.Name, call.Arguments)
		a.telemetry.RecordToolEvent(ctx, telemetry.ToolEvent{Tool: call.Name, Success: result.Success, Duration: result.Latency})
		if !result.Success {
			failures++
			a.logger.Printf("tool %s failed: %s", call.Name, result.Error)
		}
		results = append(results, result)
	}

	evidence := a.collectEvidence(acc.Memory, results)
	method := acc.Memory.SuggestedMethod
	if method == MethodRAG && len(evidence) == 0 {
		// RAG with no retrievable evidence cannot cite anything.
		a.logger.Printf("no retrieval evidence, downgrading RAG to MODEL_KNOWLEDGE")
		method = MethodModelKnowledge
	}

	answer, confidence, sources, degraded := a.synthesize(ctx, method, evidence, acc)
	if degraded {
		// A degraded answer carries no citations; it belongs to the
		// MODEL_KNOWLEDGE band no matter what method was planned.
		method = MethodModelKnowledge
	}

	insufficient := len(decision.ToolCalls) > 0 && failures == len(decision.ToolCalls) && len(evidence) == 0
	loopAgain := decision.LoopAgain || insufficient

	result := ActionResult{
		Answer:      answer,
		Method:      method,
		Confidence:  confidence,
		Sources:     sources,
		LoopAgain:   loopAgain,
		ToolResults: results,
		Degraded:    degraded && len(evidence) == 0,
	}

	a.telemetry.RecordStageEvent(ctx, telemetry.StageEvent{Stage: "action", Degraded: degraded, Duration: time.Since(startTime)})
	a.logger.Printf("answered via %s: confidence=%d sources=%d loop_again=%t in %v",
		method, confidence, len(sources), loopAgain, time.Since(startTime))
	return result, nil
}

// collectEvidence merges memory-stage documents with documents returned by
// retrieve_documents calls this round, deduplicated by id.
func (a *Actor) collectEvidence(memory MemoryResult, results []ToolResult) []Document {
	seen := make(map[string]bool)
	var evidence []Document
	for _, doc := range memory.Documents {
		if !seen[doc.ID] {
			seen[doc.ID] = true
			evidence = append(evidence, doc)
		}
	}
	for _, tr := range results {
		if tr.Tool != "retrieve_documents" || !tr.Success || tr.Payload == nil {
			continue
		}
		raw, err := json.Marshal(tr.Payload)
		if err != nil {
			continue
		}
		var payload struct {
			Documents []Document `json:"documents"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}
		for _, doc := range payload.Documents {
			if doc.ID == "" || !seen[doc.ID] {
				seen[doc.ID] = true
				evidence = append(evidence, doc)
			}
		}
	}
	return evidence
}

// synthesize builds the method-specific completion request and produces the
// final answer. Model failure degrades to an evidence-derived answer at the
// penalty confidence, never to a request error.
func (a *Actor) synthesize(ctx context.Context, method Method, evidence []Document, acc *Accumulated) (string, int, []string, bool) {
	prompt := a.createAnswerPrompt(method, evidence, acc)
	options := map[string]interface{}{
		"temperature": 0.4,
		"max_tokens":  a.config.LLM.MaxTokens,
	}
	if method == MethodLiveSearch {
		options["live_search"] = true
	}

	answer, err := a.llmProvider.Generate(ctx, prompt, options)
	if err != nil {
		a.logger.Printf("model unavailable during synthesis: %v", err)
		return a.degradedAnswer(evidence, acc), DegradedConfidence, nil, true
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return a.degradedAnswer(evidence, acc), DegradedConfidence, nil, true
	}

	return answer, confidenceFor(method, len(evidence)), sourcesFor(method, evidence), false
}

// confidenceFor maps a method to its fixed confidence band. RAG scales with
// citation count inside its band; the other methods sit at fixed points so
// comparisons stay stable across requests.
func confidenceFor(method Method, evidenceCount int) int {
	switch method {
	case MethodRAG:
		c := RAGConfidenceMin + 2*evidenceCount
		if c > RAGConfidenceMax {
			c = RAGConfidenceMax
		}
		return c
	case MethodLiveSearch:
		return LiveSearchConfidenceMin + 2
	default:
		return ModelKnowledgeConfidenceMin + 2
	}
}

func sourcesFor(method Method, evidence []Document) []string {
	switch method {
	case MethodRAG:
		sources := make([]string, 0, len(evidence))
		for _, doc := range evidence {
			sources = append(sources, doc.Title)
		}
		return sources
	case MethodLiveSearch:
		return []string{"Live Web Search"}
	default:
		return nil
	}
}

func (a *Actor) createAnswerPrompt(method Method, evidence []Document, acc *Accumulated) string {
	prefs := acc.Perception.Preferences
	var b strings.Builder

	switch method {
	case MethodRAG:
		b.WriteString("Answer the question using ONLY the reference documents below. Cite document titles when you use them.\n\n")
		for i, doc := range evidence {
			fmt.Fprintf(&b, "DOCUMENT %d: %s\n%s\n\n", i+1, doc.Title, truncate(doc.Content, 1500))
		}
	case MethodLiveSearch:
		b.WriteString("Answer the question using current information from the live web. Prefer the freshest available evidence and say when it was published.\n\n")
	default:
		b.WriteString("Answer the question from your own knowledge. Be direct about uncertainty.\n\n")
	}

	fmt.Fprintf(&b, "QUESTION: %s\n\n", acc.Perception.Question)

	if len(acc.Memory.Conversation) > 0 {
		b.WriteString("RECENT CONVERSATION:\n")
		for _, turn := range acc.Memory.Conversation {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", truncate(turn.Question, 120), truncate(turn.Answer, 200))
		}
		b.WriteString("\n")
	}
	if len(acc.Memory.Facts) > 0 {
		b.WriteString("KNOWN FACTS:\n")
		for _, fact := range acc.Memory.Facts {
			fmt.Fprintf(&b, "- %s: %s\n", fact.Key, fact.Value)
		}
		b.WriteString("\n")
	}

	b.WriteString("AUDIENCE AND STYLE:\n")
	b.WriteString(styleInstructions(prefs))
	return b.String()
}

// styleInstructions renders the preference profile into prompt directives.
// Expertise governs vocabulary, style governs length, depth governs how many
// mechanisms are surfaced, time sensitivity governs freshness emphasis.
func styleInstructions(prefs PreferenceProfile) string {
	var b strings.Builder
	switch prefs.Expertise {
	case "beginner":
		b.WriteString("- Explain for a beginner: plain vocabulary, use analogies, avoid jargon.\n")
	case "expert":
		b.WriteString("- Write for an expert: precise terminology, no basic explanations.\n")
	default:
		b.WriteString("- Write for an informed general reader.\n")
	}
	switch prefs.Style {
	case "concise":
		b.WriteString("- Keep the answer short: a few sentences at most.\n")
	case "detailed":
		b.WriteString("- Give a thorough, well-structured answer.\n")
	default:
		b.WriteString("- Balance brevity and completeness.\n")
	}
	switch prefs.Depth {
	case "shallow":
		b.WriteString("- Cover only the main point.\n")
	case "deep":
		b.WriteString("- Explain the underlying mechanisms, not just the surface facts.\n")
	default:
		b.WriteString("- Include the most important supporting details.\n")
	}
	if prefs.TimeSensitivity == "high" {
		b.WriteString("- Foreground the most recent information and date it.\n")
	}
	if len(prefs.FocusAreas) > 0 {
		fmt.Fprintf(&b, "- Emphasize these focus areas where relevant: %s.\n", strings.Join(prefs.FocusAreas, ", "))
	}
	if len(prefs.SourceKinds) > 0 {
		fmt.Fprintf(&b, "- Prefer evidence from: %s.\n", strings.Join(prefs.SourceKinds, ", "))
	}
	if prefs.Location != "" {
		fmt.Fprintf(&b, "- The user is located in %s; localize examples when useful.\n", prefs.Location)
	}
	return b.String()
}

// degradedAnswer produces the best available answer without the model
func (a *Actor) degradedAnswer(evidence []Document, acc *Accumulated) string {
	if len(evidence) > 0 {
		doc := evidence[0]
		return fmt.Sprintf("The answering service is temporarily degraded. The most relevant stored document is %q: %s",
			doc.Title, truncate(doc.Content, 400))
	}
	return "The answering service is temporarily degraded and could not produce a full answer. Please try again shortly."
}
