package core

import (
	"context"
	"errors"

	"github.com/answerforge/answerforge/config"
	"github.com/answerforge/answerforge/internal/agent/telemetry"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Pipeline = cfg.Pipeline.Normalize()
	cfg.LLM.MaxTokens = 1000
	return cfg
}

func testTelemetry() *telemetry.Telemetry {
	return telemetry.NewTelemetry(config.TelemetryConfig{})
}

type stubLLM struct {
	respond func(prompt string, options map[string]interface{}) (string, error)
	prompts []string
	options []map[string]interface{}
}

func (s *stubLLM) Generate(ctx context.Context, prompt string, options map[string]interface{}) (string, error) {
	s.prompts = append(s.prompts, prompt)
	s.options = append(s.options, options)
	if s.respond != nil {
		return s.respond(prompt, options)
	}
	return "", errors.New("no response scripted")
}

type stubTools struct {
	invoke func(name string, args map[string]interface{}) ToolResult
	calls  []string
}

func (s *stubTools) Invoke(ctx context.Context, name string, args map[string]interface{}) ToolResult {
	s.calls = append(s.calls, name)
	if s.invoke != nil {
		return s.invoke(name, args)
	}
	return ToolResult{Tool: name, Success: true, Summary: name + " completed"}
}

func (s *stubTools) Tools() []string {
	names := make([]string, 0, len(RegisteredTools))
	for _, td := range RegisteredTools {
		names = append(names, td.Name)
	}
	return names
}

type stubContextStore struct {
	docs     []Document
	turns    []ConversationTurn
	facts    []Fact
	docsErr  error
	turnsErr error
	factsErr error
	saveErr  error
	saved    []ConversationTurn
}

func (s *stubContextStore) ListDocuments(ctx context.Context) ([]Document, error) {
	return s.docs, s.docsErr
}

func (s *stubContextStore) RecentConversation(ctx context.Context, limit int) ([]ConversationTurn, error) {
	if s.turnsErr != nil {
		return nil, s.turnsErr
	}
	if len(s.turns) > limit {
		return s.turns[len(s.turns)-limit:], nil
	}
	return s.turns, nil
}

func (s *stubContextStore) ListFacts(ctx context.Context) ([]Fact, error) {
	return s.facts, s.factsErr
}

func (s *stubContextStore) SaveConversation(ctx context.Context, turn ConversationTurn) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, turn)
	return nil
}
