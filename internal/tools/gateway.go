package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/answerforge/answerforge/internal/agent/core"
)

// Gateway sends tool invocations to the tool server over a bidirectional
// pipe. It implements core.ToolRunner: Invoke never raises; every failure
// mode comes back as a failed ToolResult.
type Gateway struct {
	names   map[string]bool
	timeout time.Duration
	logger  *log.Logger

	mu     sync.Mutex
	stdin  io.Writer
	lines  chan []byte
	errs   chan error
	broken bool
	cmd    *exec.Cmd
	closer io.Closer
}

// NewGateway spawns the tool server subprocess and connects to its stdio
func NewGateway(command []string, timeout time.Duration) (*Gateway, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("tool server command not configured")
	}
	cmd := exec.Command(command[0], command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start tool server: %w", err)
	}
	g := NewPipeGateway(stdin, stdout, timeout)
	g.cmd = cmd
	g.closer = stdin
	return g, nil
}

// NewPipeGateway connects to a tool server over an existing stream pair
func NewPipeGateway(in io.Writer, out io.Reader, timeout time.Duration) *Gateway {
	names := make(map[string]bool, len(core.RegisteredTools))
	for _, td := range core.RegisteredTools {
		names[td.Name] = true
	}
	g := &Gateway{
		names:   names,
		timeout: timeout,
		logger:  log.New(log.Writer(), "[GATEWAY] ", log.LstdFlags),
		stdin:   in,
		lines:   make(chan []byte, 1),
		errs:    make(chan error, 1),
	}
	go g.readLoop(out)
	return g
}

func (g *Gateway) readLoop(out io.Reader) {
	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		g.lines <- line
	}
	if err := scanner.Err(); err != nil {
		g.errs <- err
	} else {
		g.errs <- io.EOF
	}
}

// Tools returns the registered tool names the gateway will accept
func (g *Gateway) Tools() []string {
	names := make([]string, 0, len(g.names))
	for name := range g.names {
		names = append(names, name)
	}
	return names
}

// Invoke sends one request and waits for its response. Unknown tool names
// fail immediately without touching the pipe. A timed-out response marks
// the transport broken: request/response pairing on the pipe is positional,
// so a late reply would answer the wrong call.
func (g *Gateway) Invoke(ctx context.Context, name string, args map[string]interface{}) core.ToolResult {
	startTime := time.Now()
	fail := func(format string, a ...interface{}) core.ToolResult {
		msg := fmt.Sprintf(format, a...)
		g.logger.Printf("tool %s: %s", name, msg)
		return core.ToolResult{
			Tool:    name,
			Success: false,
			Error:   msg,
			Summary: "failed: " + msg,
			Latency: time.Since(startTime),
		}
	}

	if !g.names[name] {
		return fail("unknown tool name")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.broken {
		return fail("tool server transport is broken")
	}

	payload, err := json.Marshal(Request{Tool: name, Arguments: args})
	if err != nil {
		return fail("marshal request: %v", err)
	}
	if _, err := g.stdin.Write(append(payload, '\n')); err != nil {
		g.broken = true
		return fail("write request: %v", err)
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()
	select {
	case line := <-g.lines:
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			return fail("malformed response: %v", err)
		}
		if !resp.Success {
			return fail("%s", resp.Error)
		}
		return core.ToolResult{
			Tool:    name,
			Success: true,
			Payload: resp.Result,
			Summary: summarize(name, resp.Result),
			Latency: time.Since(startTime),
		}
	case err := <-g.errs:
		g.broken = true
		return fail("tool server stream closed: %v", err)
	case <-timer.C:
		g.broken = true
		return fail("tool server timed out after %v", g.timeout)
	case <-ctx.Done():
		g.broken = true
		return fail("canceled: %v", ctx.Err())
	}
}

// Close shuts down the subprocess if the gateway owns one
func (g *Gateway) Close() error {
	if g.closer != nil {
		_ = g.closer.Close()
	}
	if g.cmd != nil {
		return g.cmd.Wait()
	}
	return nil
}

// summarize renders a short human-readable line for trace and planning use
func summarize(name string, result map[string]interface{}) string {
	if result == nil {
		return name + " completed"
	}
	switch name {
	case "retrieve_documents":
		if count, ok := result["count"].(float64); ok {
			return fmt.Sprintf("retrieved %d documents", int(count))
		}
		if count, ok := result["count"].(int); ok {
			return fmt.Sprintf("retrieved %d documents", count)
		}
	case "verify_answer":
		if score, ok := result["score"].(float64); ok {
			return fmt.Sprintf("verification score %d", int(score))
		}
		if score, ok := result["score"].(int); ok {
			return fmt.Sprintf("verification score %d", score)
		}
	case "store_document":
		if id, ok := result["id"].(string); ok {
			return "stored document " + id
		}
	case "get_statistics":
		return "statistics collected"
	}
	return name + " completed"
}
