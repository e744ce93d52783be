package tools

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/answerforge/answerforge/internal/agent/core"
	"github.com/answerforge/answerforge/internal/helpers"
	"github.com/answerforge/answerforge/internal/store"
)

// Handler executes one tool call
type Handler func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)

// Registry maps registered tool names to their handlers
type Registry struct {
	store    *store.Store
	llm      core.LLMProvider
	handlers map[string]Handler
	logger   *log.Logger
}

// NewRegistry builds the registry with all eight registered tools
func NewRegistry(st *store.Store, llm core.LLMProvider) *Registry {
	r := &Registry{
		store:  st,
		llm:    llm,
		logger: log.New(log.Writer(), "[TOOLS] ", log.LstdFlags),
	}
	r.handlers = map[string]Handler{
		"analyze_query":        r.analyzeQuery,
		"retrieve_documents":   r.retrieveDocuments,
		"store_document":       r.storeDocument,
		"generate_response":    r.generateResponse,
		"verify_answer":        r.verifyAnswer,
		"store_in_memory":      r.storeInMemory,
		"retrieve_from_memory": r.retrieveFromMemory,
		"get_statistics":       r.getStatistics,
	}
	return r
}

// Names returns the registered tool names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs one tool by name. Unknown names are rejected without any
// side effect.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return handler(ctx, args)
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func (r *Registry) analyzeQuery(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	query := stringArg(args, "query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	keywords := helpers.ExtractKeywords(query, 10)
	queryType := core.QueryFactual
	lower := strings.ToLower(query)
	switch {
	case core.HasRecencySignal(query):
		queryType = core.QueryTemporal
	case strings.Contains(lower, " vs ") || strings.Contains(lower, "compare") || strings.Contains(lower, "difference"):
		queryType = core.QueryComparative
	case strings.HasPrefix(lower, "how to") || strings.Contains(lower, "steps"):
		queryType = core.QueryProcedural
	case strings.Contains(lower, "should ") || strings.Contains(lower, "opinion") || strings.Contains(lower, "best"):
		queryType = core.QueryOpinion
	}
	return map[string]interface{}{
		"keywords":           keywords,
		"query_type":         queryType,
		"requires_live_data": core.HasRecencySignal(query),
	}, nil
}

func (r *Registry) retrieveDocuments(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	query := stringArg(args, "query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	limit := intArg(args, "limit", 5)
	keywords := helpers.ExtractKeywords(query, 10)

	all, err := r.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	var matched []core.Document
	for _, doc := range all {
		doc.Relevance = helpers.RelevanceScore(doc.Title, doc.Content, keywords)
		if doc.Relevance >= 0.15 {
			matched = append(matched, doc)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Relevance > matched[j].Relevance })
	if len(matched) > limit {
		matched = matched[:limit]
	}

	ids := make([]string, len(matched))
	for i, doc := range matched {
		ids[i] = doc.ID
	}
	if err := r.store.IncrementAccess(ctx, ids); err != nil {
		r.logger.Printf("failed to bump access counts: %v", err)
	}

	docs := make([]map[string]interface{}, len(matched))
	for i, doc := range matched {
		docs[i] = map[string]interface{}{
			"id":              doc.ID,
			"title":           doc.Title,
			"content":         doc.Content,
			"url":             doc.URL,
			"relevance_score": doc.Relevance,
		}
	}
	return map[string]interface{}{"documents": docs, "count": len(docs)}, nil
}

func (r *Registry) storeDocument(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	title := stringArg(args, "title")
	content := stringArg(args, "content")
	if title == "" || content == "" {
		return nil, fmt.Errorf("title and content are required")
	}
	sum := md5.Sum([]byte(title + content))
	doc := core.Document{
		ID:      hex.EncodeToString(sum[:]),
		Title:   title,
		Content: content,
		URL:     stringArg(args, "url"),
	}
	created, err := r.store.UpsertDocument(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	return map[string]interface{}{"id": doc.ID, "created": created}, nil
}

func (r *Registry) generateResponse(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	query := stringArg(args, "query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if r.llm == nil {
		return nil, fmt.Errorf("model service not configured")
	}
	prompt := query
	if contextBlock := stringArg(args, "context"); contextBlock != "" {
		prompt = fmt.Sprintf("Use the following context to answer.\n\nCONTEXT:\n%s\n\nQUESTION: %s", contextBlock, query)
	}
	response, err := r.llm.Generate(ctx, prompt, map[string]interface{}{"max_tokens": 800})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	return map[string]interface{}{"response": response}, nil
}

var hedgingTerms = []string{"maybe", "possibly", "i think", "not sure", "might be", "i believe"}

func (r *Registry) verifyAnswer(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	answer := stringArg(args, "answer")
	var sources []interface{}
	if raw, ok := args["sources"].([]interface{}); ok {
		sources = raw
	}

	score := 0
	hasCitations := len(sources) > 0
	if hasCitations {
		score += 40
	}
	goodLength := len(answer) > 100
	if goodLength {
		score += 30
	}
	enoughWords := len(strings.Fields(answer)) > 20
	if enoughWords {
		score += 20
	}
	hedging := false
	lower := strings.ToLower(answer)
	for _, term := range hedgingTerms {
		if strings.Contains(lower, term) {
			hedging = true
			break
		}
	}
	if !hedging {
		score += 10
	}

	return map[string]interface{}{
		"score":    score,
		"verified": score >= 70,
		"checks": map[string]interface{}{
			"has_citations": hasCitations,
			"good_length":   goodLength,
			"enough_words":  enoughWords,
			"no_hedging":    !hedging,
		},
	}, nil
}

func (r *Registry) storeInMemory(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	key := stringArg(args, "key")
	value := stringArg(args, "value")
	if key == "" || value == "" {
		return nil, fmt.Errorf("key and value are required")
	}
	category := stringArg(args, "category")
	if category == "" {
		category = "general"
	}
	if err := r.store.UpsertFact(ctx, core.Fact{Key: key, Value: value, Category: category}); err != nil {
		return nil, fmt.Errorf("store fact: %w", err)
	}
	return map[string]interface{}{"stored": true, "key": key}, nil
}

func (r *Registry) retrieveFromMemory(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	key := stringArg(args, "key")
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}
	if fact, found, err := r.store.GetFact(ctx, key); err != nil {
		return nil, fmt.Errorf("get fact: %w", err)
	} else if found {
		return map[string]interface{}{
			"found": true,
			"facts": []map[string]interface{}{factMap(fact)},
		}, nil
	}

	// No exact hit; fall back to substring match over all facts.
	all, err := r.store.ListFacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	needle := strings.ToLower(key)
	var matched []map[string]interface{}
	for _, fact := range all {
		if strings.Contains(strings.ToLower(fact.Key), needle) || strings.Contains(strings.ToLower(fact.Value), needle) {
			matched = append(matched, factMap(fact))
		}
	}
	return map[string]interface{}{"found": len(matched) > 0, "facts": matched}, nil
}

func factMap(f core.Fact) map[string]interface{} {
	return map[string]interface{}{"key": f.Key, "value": f.Value, "category": f.Category}
}

func (r *Registry) getStatistics(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	stats, err := r.store.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	out := map[string]interface{}{
		"total_documents":     stats.Documents,
		"total_facts":         stats.Facts,
		"conversation_length": stats.ConversationLength,
	}
	if stats.MostAccessedID != "" {
		out["most_accessed_document"] = map[string]interface{}{
			"id":           stats.MostAccessedID,
			"title":        stats.MostAccessedTitle,
			"access_count": stats.MostAccessedCount,
		}
	}
	return out, nil
}
