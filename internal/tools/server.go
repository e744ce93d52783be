package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
)

// Request is one tool invocation on the wire
type Request struct {
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Response is the result of one invocation on the wire
type Response struct {
	Success bool                   `json:"success"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// maxLineSize bounds one protocol message (documents ride inside results)
const maxLineSize = 4 << 20

// Server answers newline-delimited JSON tool requests on a byte stream.
// One response line is written for every request line, malformed input
// included, so the peer never blocks waiting for a reply.
type Server struct {
	registry *Registry
	in       io.Reader
	out      io.Writer
	logger   *log.Logger
}

// NewServer wires a registry to a request/response stream pair
func NewServer(registry *Registry, in io.Reader, out io.Writer) *Server {
	return &Server{
		registry: registry,
		in:       in,
		out:      out,
		logger:   log.New(log.Writer(), "[TOOLS] ", log.LstdFlags),
	}
}

// Serve processes requests until the input stream closes or ctx is done
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	encoder := json.NewEncoder(s.out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Printf("malformed request: %v", err)
			if err := encoder.Encode(Response{Success: false, Error: "malformed request: " + err.Error()}); err != nil {
				return err
			}
			continue
		}

		result, err := s.registry.Execute(ctx, req.Tool, req.Arguments)
		resp := Response{Success: err == nil, Result: result}
		if err != nil {
			resp.Error = err.Error()
			s.logger.Printf("tool %s failed: %v", req.Tool, err)
		}
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}
