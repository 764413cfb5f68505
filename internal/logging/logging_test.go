package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "warn", Format: FormatJSON, Out: &buf, RunID: "01J0RUN"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.Info().Msg("hidden")
	log.Warn().Str("tag", "randomRecord").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["run_id"] != "01J0RUN" || entry["tag"] != "randomRecord" || entry["level"] != "warn" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Errorf("entry has no timestamp: %v", entry)
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "DEBUG", Out: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.Debug().Int("status", 200).Msg("response body")

	out := buf.String()
	if !strings.Contains(out, "response body") || !strings.Contains(out, "status=") {
		t.Errorf("console output = %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("console output should not be JSON: %q", out)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, err := New(Options{Level: "chatty", Out: &bytes.Buffer{}}); err == nil {
		t.Error("New() with bad level error = nil")
	}
	if _, err := New(Options{Format: "xml", Out: &bytes.Buffer{}}); err == nil {
		t.Error("New() with bad format error = nil")
	}
}
