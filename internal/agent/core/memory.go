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
	"github.com/answerforge/answerforge/internal/helpers"
)

// Recaller gathers supporting context for a perceived question and
// recommends an answer method
type Recaller struct {
	config    *config.Config
	store     ContextStore
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewRecaller creates a new memory stage instance
func NewRecaller(cfg *config.Config, store ContextStore, tele *telemetry.Telemetry) *Recaller {
	return &Recaller{
		config:    cfg,
		store:     store,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[MEMORY] ", log.LstdFlags),
	}
}

// Recall scores stored documents against the perception keywords, loads
// recent conversation and cached facts, and suggests an answer method.
// Persistence failures degrade to "nothing found", never to a request error.
func (r *Recaller) Recall(ctx context.Context, perception PerceptionResult) (MemoryResult, error) {
	startTime := time.Now()
	failures := 0

	docs, err := r.relevantDocuments(ctx, perception.Keywords)
	if err != nil {
		r.logger.Printf("document lookup failed, continuing without documents: %v", err)
		docs = nil
		failures++
	}

	conversation, err := r.store.RecentConversation(ctx, r.config.Pipeline.ConversationWindow)
	if err != nil {
		r.logger.Printf("conversation lookup failed, continuing without history: %v", err)
		conversation = nil
		failures++
	}

	facts, err := r.relevantFacts(ctx, perception.Keywords)
	if err != nil {
		r.logger.Printf("fact lookup failed, continuing without facts: %v", err)
		facts = nil
		failures++
	}

	hasContext := len(docs) > 0
	method := SuggestMethod(perception.RequiresLiveData, hasContext)

	result := MemoryResult{
		ContextSummary:       r.summarize(docs, conversation, facts),
		Documents:            docs,
		Conversation:         conversation,
		Facts:                facts,
		HasSufficientContext: hasContext,
		SuggestedMethod:      method,
		Confidence:           r.confidence(hasContext, len(conversation) > 0, perception.Preferences),
		// Degraded only when every lookup failed. A partial outage still
		// grounds the answer in whatever was readable.
		Degraded: failures == 3,
	}

	r.telemetry.RecordStageEvent(ctx, telemetry.StageEvent{Stage: "memory", Degraded: failures > 0, Duration: time.Since(startTime)})
	r.logger.Printf("recalled %d docs, %d turns, %d facts: method=%s sufficient=%t in %v",
		len(docs), len(conversation), len(facts), method, hasContext, time.Since(startTime))
	return result, nil
}

// SuggestMethod applies the hard method-selection priority chain: recency
// beats stored documents, stored documents beat general knowledge.
func SuggestMethod(requiresLiveData, hasSufficientContext bool) Method {
	switch {
	case requiresLiveData:
		return MethodLiveSearch
	case hasSufficientContext:
		return MethodRAG
	default:
		return MethodModelKnowledge
	}
}

func (r *Recaller) relevantDocuments(ctx context.Context, keywords []string) ([]Document, error) {
	all, err := r.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceRead, err)
	}
	threshold := r.config.Pipeline.RelevanceThreshold
	var scored []Document
	for _, doc := range all {
		doc.Relevance = helpers.RelevanceScore(doc.Title, doc.Content, keywords)
		if doc.Relevance >= threshold {
			scored = append(scored, doc)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Relevance > scored[j].Relevance })
	if len(scored) > r.config.Pipeline.MaxDocuments {
		scored = scored[:r.config.Pipeline.MaxDocuments]
	}
	return scored, nil
}

func (r *Recaller) relevantFacts(ctx context.Context, keywords []string) ([]Fact, error) {
	all, err := r.store.ListFacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceRead, err)
	}
	var relevant []Fact
	for _, fact := range all {
		combined := strings.ToLower(fact.Key + " " + fact.Value)
		for _, kw := range keywords {
			if strings.Contains(combined, kw) {
				relevant = append(relevant, fact)
				break
			}
		}
	}
	return relevant, nil
}

func (r *Recaller) summarize(docs []Document, conversation []ConversationTurn, facts []Fact) string {
	var parts []string
	if len(docs) > 0 {
		titles := make([]string, len(docs))
		for i, d := range docs {
			titles[i] = d.Title
		}
		parts = append(parts, fmt.Sprintf("%d relevant documents: %s", len(docs), strings.Join(titles, "; ")))
	}
	if len(conversation) > 0 {
		parts = append(parts, fmt.Sprintf("%d recent conversation turns", len(conversation)))
	}
	if len(facts) > 0 {
		parts = append(parts, fmt.Sprintf("%d cached facts", len(facts)))
	}
	if len(parts) == 0 {
		return "no stored context available"
	}
	return strings.Join(parts, "; ")
}

// confidence mirrors the additive scheme the stage has always used: a base of
// 50 plus fixed bonuses, capped at 95.
func (r *Recaller) confidence(hasContext, hasConversation bool, prefs PreferenceProfile) int {
	c := 50
	if hasContext {
		c += 30
	}
	if hasConversation {
		c += 10
	}
	if prefs.Expertise != "" || prefs.Style != "" || len(prefs.FocusAreas) > 0 {
		c += 10
	}
	if c > 95 {
		c = 95
	}
	return c
}
