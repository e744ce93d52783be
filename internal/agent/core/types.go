package core

import (
	"context"
	"errors"
	"time"
)

// Method identifies how an answer is produced
type Method string

const (
	MethodRAG            Method = "RAG"
	MethodLiveSearch     Method = "LIVE_SEARCH"
	MethodModelKnowledge Method = "MODEL_KNOWLEDGE"
)

// Confidence bands per method. Fixed display constants so answers stay
// comparable across requests.
const (
	RAGConfidenceMin            = 90
	RAGConfidenceMax            = 98
	LiveSearchConfidenceMin     = 85
	LiveSearchConfidenceMax     = 90
	ModelKnowledgeConfidenceMin = 80
	ModelKnowledgeConfidenceMax = 88
	DegradedConfidence          = 75
)

// Query type categories detected by the perception stage
const (
	QueryFactual     = "factual"
	QueryComparative = "comparative"
	QueryTemporal    = "temporal"
	QueryProcedural  = "procedural"
	QueryOpinion     = "opinion"
)

// Sentinel errors for stage-local degradation decisions
var (
	ErrInvalidModelOutput  = errors.New("model output failed structural validation")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrPersistenceRead     = errors.New("persistence read failed")
	ErrUnknownTool         = errors.New("unknown tool name")
)

// PreferenceProfile carries caller personalization. Captured once per request
// and never mutated afterwards.
type PreferenceProfile struct {
	Expertise       string   `json:"expertise_level"`
	Style           string   `json:"response_style"`
	Depth           string   `json:"detail_depth"`
	TimeSensitivity string   `json:"time_sensitivity"`
	FocusAreas      []string `json:"focus_areas,omitempty"`
	SourceKinds     []string `json:"preferred_sources,omitempty"`
	Location        string   `json:"location,omitempty"`
}

// DefaultPreferences returns the profile used when the caller supplies none.
func DefaultPreferences() PreferenceProfile {
	return PreferenceProfile{
		Expertise:       "intermediate",
		Style:           "balanced",
		Depth:           "moderate",
		TimeSensitivity: "moderate",
	}
}

var (
	validExpertise       = map[string]bool{"beginner": true, "intermediate": true, "expert": true}
	validStyle           = map[string]bool{"concise": true, "balanced": true, "detailed": true}
	validDepth           = map[string]bool{"shallow": true, "moderate": true, "deep": true}
	validTimeSensitivity = map[string]bool{"low": true, "moderate": true, "high": true}
)

// Normalize fills absent enum fields with defaults.
func (p PreferenceProfile) Normalize() PreferenceProfile {
	def := DefaultPreferences()
	if p.Expertise == "" {
		p.Expertise = def.Expertise
	}
	if p.Style == "" {
		p.Style = def.Style
	}
	if p.Depth == "" {
		p.Depth = def.Depth
	}
	if p.TimeSensitivity == "" {
		p.TimeSensitivity = def.TimeSensitivity
	}
	return p
}

// Validate rejects enum values outside the declared sets. Empty fields are
// allowed; absence means default.
func (p PreferenceProfile) Validate() error {
	if p.Expertise != "" && !validExpertise[p.Expertise] {
		return errors.New("expertise_level must be one of beginner, intermediate, expert")
	}
	if p.Style != "" && !validStyle[p.Style] {
		return errors.New("response_style must be one of concise, balanced, detailed")
	}
	if p.Depth != "" && !validDepth[p.Depth] {
		return errors.New("detail_depth must be one of shallow, moderate, deep")
	}
	if p.TimeSensitivity != "" && !validTimeSensitivity[p.TimeSensitivity] {
		return errors.New("time_sensitivity must be one of low, moderate, high")
	}
	return nil
}

// PerceptionResult is the normalized understanding of the question
type PerceptionResult struct {
	Question              string            `json:"original_query"`
	Intent                string            `json:"analyzed_intent"`
	QueryType             string            `json:"query_type"`
	Keywords              []string          `json:"extracted_keywords"`
	RequiresLiveData      bool              `json:"requires_live_data"`
	RequiresDeepReasoning bool              `json:"requires_deep_reasoning"`
	ReasoningSteps        []string          `json:"reasoning_steps"`
	Confidence            int               `json:"confidence"`
	Preferences           PreferenceProfile `json:"user_preferences"`
	Degraded              bool              `json:"degraded,omitempty"`
}

// Document is a stored reference document with its per-request relevance
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	URL         string    `json:"url,omitempty"`
	Relevance   float64   `json:"relevance_score"`
	AccessCount int       `json:"access_count"`
	StoredAt    time.Time `json:"stored_at"`
}

// ConversationTurn is one prior question/answer exchange
type ConversationTurn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Method    Method    `json:"method"`
	CreatedAt time.Time `json:"created_at"`
}

// Fact is a cached key-value memory item
type Fact struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Category string `json:"category"`
}

// MemoryResult is the contextual grounding gathered for a request
type MemoryResult struct {
	ContextSummary       string             `json:"context_summary"`
	Documents            []Document         `json:"relevant_documents"`
	Conversation         []ConversationTurn `json:"relevant_conversation"`
	Facts                []Fact             `json:"relevant_memories"`
	HasSufficientContext bool               `json:"has_sufficient_context"`
	SuggestedMethod      Method             `json:"suggested_method"`
	Confidence           int                `json:"confidence"`
	Degraded             bool               `json:"degraded,omitempty"`
}

// ToolCall is one planned tool invocation
type ToolCall struct {
	Name      string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments"`
	Rationale string                 `json:"reasoning"`
	Priority  int                    `json:"priority"`
}

// DecisionResult is the plan for the next round
type DecisionResult struct {
	ToolCalls      []ToolCall `json:"tool_calls"`
	LoopAgain      bool       `json:"loop_again"`
	Rationale      string     `json:"rationale"`
	ReasoningSteps []string   `json:"reasoning_steps"`
	Confidence     int        `json:"confidence"`
}

// ToolResult is the outcome of one tool invocation. Failures are recorded,
// never raised.
type ToolResult struct {
	Tool    string                 `json:"tool_name"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"result,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Summary string                 `json:"result_summary"`
	Latency time.Duration          `json:"latency"`
}

// ActionResult is the stage-4 output for one round. Degraded marks a round
// where synthesis failed and no evidence was available to fall back on.
type ActionResult struct {
	Answer      string       `json:"answer"`
	Method      Method       `json:"method"`
	Confidence  int          `json:"confidence"`
	Sources     []string     `json:"sources"`
	LoopAgain   bool         `json:"loop_again"`
	ToolResults []ToolResult `json:"tool_results"`
	Degraded    bool         `json:"degraded,omitempty"`
}

// RoundRecord pairs one decision with the action that executed it
type RoundRecord struct {
	Round    int            `json:"round"`
	Decision DecisionResult `json:"decision"`
	Action   ActionResult   `json:"action"`
}

// Answer is the final response returned to the caller
type Answer struct {
	Question           string   `json:"query"`
	Text               string   `json:"answer"`
	Confidence         int      `json:"confidence"`
	Method             Method   `json:"method"`
	Sources            []string `json:"sources"`
	PreferencesApplied bool     `json:"user_preferences_applied"`
	Rounds             int      `json:"rounds"`
}

// LLMProvider is the black-box completion service the stages call
type LLMProvider interface {
	Generate(ctx context.Context, prompt string, options map[string]interface{}) (string, error)
}

// ToolRunner invokes named tools on the external tool server. Invoke never
// returns an error; failures come back inside the ToolResult.
type ToolRunner interface {
	Invoke(ctx context.Context, name string, args map[string]interface{}) ToolResult
	Tools() []string
}

// ContextStore is the persistence surface the pipeline reads and appends to
type ContextStore interface {
	ListDocuments(ctx context.Context) ([]Document, error)
	RecentConversation(ctx context.Context, limit int) ([]ConversationTurn, error)
	ListFacts(ctx context.Context) ([]Fact, error)
	SaveConversation(ctx context.Context, turn ConversationTurn) error
}
