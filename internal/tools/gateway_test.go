package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"
)

func newPipedGateway(t *testing.T) *Gateway {
	t.Helper()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	server := NewServer(NewRegistry(nil, nil), reqR, respW)
	go func() { _ = server.Serve(context.Background()) }()
	t.Cleanup(func() {
		reqW.Close()
		respW.Close()
	})
	return NewPipeGateway(reqW, respR, 2*time.Second)
}

func TestGateway_RoundTrip(t *testing.T) {
	g := newPipedGateway(t)

	result := g.Invoke(context.Background(), "analyze_query", map[string]interface{}{
		"query": "latest golang release today",
	})
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Payload["query_type"] != "temporal" {
		t.Fatalf("unexpected payload %v", result.Payload)
	}

	// The transport survives for subsequent calls.
	second := g.Invoke(context.Background(), "verify_answer", map[string]interface{}{
		"answer":  "Short.",
		"sources": []interface{}{"a"},
	})
	if !second.Success {
		t.Fatalf("expected second call to succeed, got %q", second.Error)
	}
}

func TestGateway_UnknownToolFailsWithoutTouchingThePipe(t *testing.T) {
	// No server on the other end: an unknown name must fail before any write.
	g := NewPipeGateway(&blockingWriter{}, neverReader{}, 50*time.Millisecond)

	result := g.Invoke(context.Background(), "launch_rocket", nil)
	if result.Success {
		t.Fatal("expected failure for unknown tool")
	}
	if !strings.Contains(result.Error, "unknown tool") {
		t.Fatalf("unexpected error %q", result.Error)
	}

	// The transport was never used, so a real call still works after the
	// rejection path.
	if g.broken {
		t.Fatal("unknown tool name must not break the transport")
	}
}

func TestGateway_ToolErrorComesBackAsFailedResult(t *testing.T) {
	g := newPipedGateway(t)

	result := g.Invoke(context.Background(), "analyze_query", map[string]interface{}{})
	if result.Success {
		t.Fatal("expected failure for a missing argument")
	}
	if !strings.Contains(result.Error, "query is required") {
		t.Fatalf("unexpected error %q", result.Error)
	}
}

func TestGateway_TimeoutBreaksTransport(t *testing.T) {
	g := NewPipeGateway(&discardWriter{}, neverReader{}, 30*time.Millisecond)

	first := g.Invoke(context.Background(), "analyze_query", map[string]interface{}{"query": "x"})
	if first.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(first.Error, "timed out") {
		t.Fatalf("unexpected error %q", first.Error)
	}

	second := g.Invoke(context.Background(), "analyze_query", map[string]interface{}{"query": "x"})
	if second.Success || !strings.Contains(second.Error, "broken") {
		t.Fatalf("expected broken-transport failure, got %+v", second)
	}
}

func TestGateway_CanceledContextBreaksTransport(t *testing.T) {
	g := NewPipeGateway(&discardWriter{}, neverReader{}, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := g.Invoke(ctx, "analyze_query", map[string]interface{}{"query": "x"})
	if result.Success || !strings.Contains(result.Error, "canceled") {
		t.Fatalf("expected cancellation failure, got %+v", result)
	}
}

func TestServer_OneResponsePerLineEvenWhenMalformed(t *testing.T) {
	var in bytes.Buffer
	in.WriteString("this is not json\n")
	in.WriteString(`{"tool": "verify_answer", "arguments": {"answer": "Short.", "sources": ["a"]}}` + "\n")
	var out bytes.Buffer

	server := NewServer(NewRegistry(nil, nil), &in, &out)
	if err := server.Serve(context.Background()); err != nil {
		t.Fatalf("serve: %v", err)
	}

	scanner := bufio.NewScanner(&out)
	var responses []Response
	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("bad response line %q: %v", scanner.Text(), err)
		}
		responses = append(responses, resp)
	}
	if len(responses) != 2 {
		t.Fatalf("expected one response per request line, got %d", len(responses))
	}
	if responses[0].Success || !strings.Contains(responses[0].Error, "malformed") {
		t.Fatalf("expected malformed-request failure first, got %+v", responses[0])
	}
	if !responses[1].Success {
		t.Fatalf("expected the valid request to succeed, got %+v", responses[1])
	}
}

func TestServer_UnknownToolResponseIsFailure(t *testing.T) {
	var in bytes.Buffer
	in.WriteString(`{"tool": "launch_rocket", "arguments": {}}` + "\n")
	var out bytes.Buffer

	server := NewServer(NewRegistry(nil, nil), &in, &out)
	if err := server.Serve(context.Background()); err != nil {
		t.Fatalf("serve: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success || !strings.Contains(resp.Error, "unknown tool") {
		t.Fatalf("expected unknown-tool failure, got %+v", resp)
	}
}

type neverReader struct{}

func (neverReader) Read([]byte) (int, error) { select {} }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type blockingWriter struct{}

func (blockingWriter) Write(p []byte) (int, error) { select {} }
