package trace

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Preference-propagation status labels, one per pipeline stage.
const (
	StatusPassed     = "PASSED"     // perception hands the profile onward
	StatusMaintained = "MAINTAINED" // memory threads it through untouched
	StatusConsidered = "CONSIDERED" // decision weighs it while planning
	StatusApplied    = "APPLIED"    // action folds it into the answer
)

// Stage is one recorded stage transition with input/output snapshots
type Stage struct {
	Name             string          `json:"stage"`
	Round            int             `json:"round,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
	Input            json.RawMessage `json:"input"`
	Output           json.RawMessage `json:"output"`
	PreferenceStatus string          `json:"preference_status"`
}

// FlowTrace is the full append-only audit record of one request
type FlowTrace struct {
	SessionID   string          `json:"session_id"`
	Question    string          `json:"query"`
	Preferences json.RawMessage `json:"user_preferences"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time,omitempty"`
	Stages      []Stage         `json:"stages"`
	FinalOutput json.RawMessage `json:"final_output,omitempty"`
}

// Recorder appends stage records for one request and writes the paired
// text/JSON sinks when the request completes. It has no control-flow role.
type Recorder struct {
	trace  *FlowTrace
	logDir string
	logger *log.Logger
}

// NewRecorder starts a trace for one request. An empty logDir disables the
// file sinks; the in-memory trace is still built for the API response.
func NewRecorder(logDir, question string, preferences interface{}) *Recorder {
	return &Recorder{
		trace: &FlowTrace{
			SessionID:   uuid.New().String(),
			Question:    question,
			Preferences: snapshot(preferences),
			StartTime:   time.Now(),
		},
		logDir: logDir,
		logger: log.New(log.Writer(), "[TRACE] ", log.LstdFlags),
	}
}

// SessionID returns the trace's request identifier.
func (r *Recorder) SessionID() string { return r.trace.SessionID }

// RecordStage appends one stage transition. Input and output are snapshotted
// immediately so later mutation of the pipeline context cannot rewrite
// history. Round is 0 for the once-per-request stages.
func (r *Recorder) RecordStage(name string, round int, input, output interface{}, preferenceStatus string) {
	r.trace.Stages = append(r.trace.Stages, Stage{
		Name:             name,
		Round:            round,
		Timestamp:        time.Now(),
		Input:            snapshot(input),
		Output:           snapshot(output),
		PreferenceStatus: preferenceStatus,
	})
}

// Finish seals the trace and writes the text and JSON sinks.
func (r *Recorder) Finish(finalOutput interface{}) *FlowTrace {
	r.trace.EndTime = time.Now()
	r.trace.FinalOutput = snapshot(finalOutput)
	if r.logDir != "" {
		if err := r.writeSinks(); err != nil {
			r.logger.Printf("failed to write trace files: %v", err)
		}
	}
	return r.trace
}

// Trace returns the trace built so far.
func (r *Recorder) Trace() *FlowTrace { return r.trace }

func (r *Recorder) writeSinks() error {
	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		return err
	}
	stem := fmt.Sprintf("flow_%s_%s", r.trace.StartTime.Format("20060102_150405"), r.trace.SessionID[:8])

	jsonData, err := json.MarshalIndent(r.trace, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(r.logDir, stem+".json"), jsonData, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.logDir, stem+".txt"), []byte(r.renderText()), 0o644)
}

// renderText produces the human-readable form of the trace
func (r *Recorder) renderText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FLOW TRACE %s\n", r.trace.SessionID)
	fmt.Fprintf(&b, "Question: %s\n", r.trace.Question)
	fmt.Fprintf(&b, "Started:  %s\n", r.trace.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Preferences: %s\n", string(r.trace.Preferences))
	b.WriteString(strings.Repeat("=", 72) + "\n")
	for _, stage := range r.trace.Stages {
		name := strings.ToUpper(stage.Name)
		if stage.Round > 0 {
			name = fmt.Sprintf("%s (ROUND %d)", name, stage.Round)
		}
		fmt.Fprintf(&b, "\n[%s] %s\n", stage.Timestamp.Format("15:04:05.000"), name)
		fmt.Fprintf(&b, "  Preferences: %s\n", stage.PreferenceStatus)
		fmt.Fprintf(&b, "  Input:  %s\n", compact(stage.Input))
		fmt.Fprintf(&b, "  Output: %s\n", compact(stage.Output))
	}
	b.WriteString("\n" + strings.Repeat("=", 72) + "\n")
	fmt.Fprintf(&b, "Finished: %s\n", r.trace.EndTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Final: %s\n", compact(r.trace.FinalOutput))
	return b.String()
}

func snapshot(v interface{}) json.RawMessage {
	if v == nil {
		return json.RawMessage("null")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(fmt.Sprintf("%q", "unserializable: "+err.Error()))
	}
	return data
}

func compact(raw json.RawMessage) string {
	s := string(raw)
	if len(s) > 600 {
		s = s[:600] + "..."
	}
	return s
}
