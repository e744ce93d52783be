package trace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecorder_AppendsStagesInOrder(t *testing.T) {
	r := NewRecorder("", "what is go?", map[string]string{"expertise_level": "beginner"})

	r.RecordStage("perception", 0, "in1", "out1", StatusPassed)
	r.RecordStage("memory", 0, "in2", "out2", StatusMaintained)
	r.RecordStage("decision", 1, "in3", "out3", StatusConsidered)
	r.RecordStage("action", 1, "in4", "out4", StatusApplied)
	ft := r.Finish(map[string]string{"answer": "go is a language"})

	if len(ft.Stages) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(ft.Stages))
	}
	if ft.Stages[2].Round != 1 || ft.Stages[2].Name != "decision" {
		t.Fatalf("unexpected third stage %+v", ft.Stages[2])
	}
	if ft.Stages[0].PreferenceStatus != StatusPassed || ft.Stages[3].PreferenceStatus != StatusApplied {
		t.Fatal("preference status labels not recorded")
	}
	if ft.EndTime.IsZero() || len(ft.FinalOutput) == 0 {
		t.Fatal("Finish must seal the trace")
	}
}

func TestRecorder_SnapshotsAreImmutable(t *testing.T) {
	r := NewRecorder("", "q", nil)
	payload := map[string]string{"value": "before"}
	r.RecordStage("perception", 0, payload, payload, StatusPassed)
	payload["value"] = "after"
	ft := r.Finish(nil)

	if !strings.Contains(string(ft.Stages[0].Input), "before") {
		t.Fatalf("stage input mutated after recording: %s", ft.Stages[0].Input)
	}
}

func TestRecorder_WritesPairedSinks(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, "what is go?", map[string]string{"expertise_level": "expert"})
	r.RecordStage("perception", 0, "in", "out", StatusPassed)
	ft := r.Finish(map[string]string{"answer": "a compiled language"})

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read log dir: %v", err)
	}
	var jsonFile, textFile string
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".json":
			jsonFile = filepath.Join(dir, e.Name())
		case ".txt":
			textFile = filepath.Join(dir, e.Name())
		}
		if !strings.HasPrefix(e.Name(), "flow_") {
			t.Fatalf("unexpected sink file name %q", e.Name())
		}
	}
	if jsonFile == "" || textFile == "" {
		t.Fatalf("expected paired .json and .txt sinks, got %v", entries)
	}

	data, err := os.ReadFile(jsonFile)
	if err != nil {
		t.Fatalf("read json sink: %v", err)
	}
	var decoded FlowTrace
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json sink is not valid JSON: %v", err)
	}
	if decoded.SessionID != ft.SessionID {
		t.Fatalf("sink session id %q does not match trace %q", decoded.SessionID, ft.SessionID)
	}

	text, err := os.ReadFile(textFile)
	if err != nil {
		t.Fatalf("read text sink: %v", err)
	}
	if !strings.Contains(string(text), "FLOW TRACE") || !strings.Contains(string(text), "PERCEPTION") {
		t.Fatalf("text sink missing expected sections:\n%s", text)
	}
}

func TestRecorder_EmptyLogDirSkipsSinks(t *testing.T) {
	r := NewRecorder("", "q", nil)
	ft := r.Finish("done")
	if ft == nil || ft.SessionID == "" {
		t.Fatal("in-memory trace must still be produced without a log dir")
	}
}
