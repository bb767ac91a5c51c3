package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSONLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "json")

	logger.Info("dropped")
	logger.Warn("kept", "alert_id", 7)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if entry["msg"] != "kept" {
		t.Errorf("expected msg 'kept', got %v", entry["msg"])
	}
	if entry["alert_id"] != float64(7) {
		t.Errorf("expected alert_id 7, got %v", entry["alert_id"])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug", "text")

	logger.Debug("tick", "cycle_id", "abc")

	if !strings.Contains(buf.String(), "cycle_id=abc") {
		t.Errorf("expected text key=value output, got %q", buf.String())
	}
}
