package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/answerforge/answerforge/config"
	"github.com/answerforge/answerforge/internal/agent/telemetry"
	"github.com/answerforge/answerforge/internal/helpers"
)

// recencyMarkers are lexical cues that a question needs live data. The final
// live-data flag is the OR of the model's flag and this lexicon: a false
// negative produces stale answers, a false positive only costs one extra
// network call.
var recencyMarkers = []string{
	"latest", "recent", "today", "yesterday", "now", "current",
	"breaking", "just", "this week", "this month",
}

// Perceiver turns a raw question and preference profile into a normalized
// intent record
type Perceiver struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewPerceiver creates a new perception stage instance
func NewPerceiver(cfg *config.Config, llmProvider LLMProvider, tele *telemetry.Telemetry) *Perceiver {
	return &Perceiver{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tele,
		logger:      log.New(log.Writer(), "[PERCEPTION] ", log.LstdFlags),
	}
}

// Perceive analyzes the question. Model-service failure degrades to a
// rule-only result rather than failing the request.
func (p *Perceiver) Perceive(ctx context.Context, question string, prefs PreferenceProfile) (PerceptionResult, error) {
	startTime := time.Now()

	prompt := p.createAnalysisPrompt(question, prefs)
	response, err := p.llmProvider.Generate(ctx, prompt, map[string]interface{}{
		"temperature": 0.2,
		"max_tokens":  800,
	})
	if err != nil {
		p.logger.Printf("model unavailable, using rule-only perception: %v", err)
		p.telemetry.RecordStageEvent(ctx, telemetry.StageEvent{Stage: "perception", Degraded: true, Duration: time.Since(startTime)})
		return p.ruleOnlyResult(question, prefs), nil
	}

	result, err := p.parseAnalysisResponse(response, question, prefs)
	if err != nil {
		p.logger.Printf("invalid model output, using rule-only perception: %v", err)
		p.telemetry.RecordStageEvent(ctx, telemetry.StageEvent{Stage: "perception", Degraded: true, Duration: time.Since(startTime)})
		return p.ruleOnlyResult(question, prefs), nil
	}

	// The lexicon check runs even when the model says no live data is needed.
	result.RequiresLiveData = result.RequiresLiveData || HasRecencySignal(question)
	if result.RequiresLiveData && result.QueryType == QueryFactual {
		result.QueryType = QueryTemporal
	}

	p.telemetry.RecordStageEvent(ctx, telemetry.StageEvent{Stage: "perception", Duration: time.Since(startTime)})
	p.logger.Printf("perceived %q: type=%s live=%t keywords=%d in %v",
		truncate(question, 60), result.QueryType, result.RequiresLiveData, len(result.Keywords), time.Since(startTime))
	return result, nil
}

// HasRecencySignal reports whether the question contains a temporal-recency
// marker or an explicit current-year token.
func HasRecencySignal(question string) bool {
	q := strings.ToLower(question)
	for _, marker := range recencyMarkers {
		if strings.Contains(q, marker) {
			return true
		}
	}
	year := fmt.Sprintf("%d", time.Now().Year())
	return strings.Contains(q, year)
}

func (p *Perceiver) createAnalysisPrompt(question string, prefs PreferenceProfile) string {
	return fmt.Sprintf(`You are the perception stage of a question answering pipeline. Analyze the user's question.

USER QUESTION: %s

USER PREFERENCES:
- Expertise: %s
- Style: %s
- Depth: %s
- Time sensitivity: %s
- Focus areas: %s

QUERY TYPES: factual, comparative, temporal, procedural, opinion

RESPONSE FORMAT:
Respond ONLY with valid JSON in the following format:
{
  "analyzed_intent": "one sentence describing what the user wants",
  "query_type": "one of the query types above",
  "extracted_keywords": ["up", "to", "five", "keywords"],
  "requires_live_data": false,
  "requires_deep_reasoning": false,
  "reasoning_steps": ["short", "self-check", "notes"],
  "confidence": 85
}
Do not include any other text or explanation.`,
		question, prefs.Expertise, prefs.Style, prefs.Depth, prefs.TimeSensitivity,
		strings.Join(prefs.FocusAreas, ", "))
}

func (p *Perceiver) parseAnalysisResponse(response, question string, prefs PreferenceProfile) (PerceptionResult, error) {
	var raw struct {
		AnalyzedIntent        string   `json:"analyzed_intent"`
		QueryType             string   `json:"query_type"`
		ExtractedKeywords     []string `json:"extracted_keywords"`
		RequiresLiveData      bool     `json:"requires_live_data"`
		RequiresDeepReasoning bool     `json:"requires_deep_reasoning"`
		ReasoningSteps        []string `json:"reasoning_steps"`
		Confidence            int      `json:"confidence"`
	}
	if err := decodeModelJSON(response, &raw); err != nil {
		return PerceptionResult{}, err
	}
	if raw.AnalyzedIntent == "" || len(raw.ExtractedKeywords) == 0 {
		return PerceptionResult{}, fmt.Errorf("missing intent or keywords: %w", ErrInvalidModelOutput)
	}
	switch raw.QueryType {
	case QueryFactual, QueryComparative, QueryTemporal, QueryProcedural, QueryOpinion:
	default:
		raw.QueryType = QueryFactual
	}
	if raw.Confidence <= 0 || raw.Confidence > 100 {
		raw.Confidence = 80
	}
	keywords := make([]string, 0, len(raw.ExtractedKeywords))
	for _, kw := range raw.ExtractedKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return PerceptionResult{
		Question:              question,
		Intent:                raw.AnalyzedIntent,
		QueryType:             raw.QueryType,
		Keywords:              keywords,
		RequiresLiveData:      raw.RequiresLiveData,
		RequiresDeepReasoning: raw.RequiresDeepReasoning,
		ReasoningSteps:        raw.ReasoningSteps,
		Confidence:            raw.Confidence,
		Preferences:           prefs,
	}, nil
}

// ruleOnlyResult builds a perception result from the lexicon alone
func (p *Perceiver) ruleOnlyResult(question string, prefs PreferenceProfile) PerceptionResult {
	live := HasRecencySignal(question)
	queryType := QueryFactual
	if live {
		queryType = QueryTemporal
	}
	return PerceptionResult{
		Question:         question,
		Intent:           "Answer the user's question: " + question,
		QueryType:        queryType,
		Keywords:         helpers.ExtractKeywords(question, 5),
		RequiresLiveData: live,
		ReasoningSteps:   []string{"model unavailable, rule-based analysis applied"},
		Confidence:       60,
		Preferences:      prefs,
		Degraded:         true,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
