// internal/logging/logging_test.go
package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewWithWriter(&buf, "warn", "")
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "comp", "batch")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "comp=batch") {
		t.Errorf("console output = %q", out)
	}
}

func TestFileReceivesJSON(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	logger, closer, err := NewWithWriter(&buf, "info", path)
	if err != nil {
		t.Fatal(err)
	}
	logger.With("run_id", "abc").Info("item submitted", "processed", 3)
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("file record is not JSON: %v (%s)", err, data)
	}
	if rec["msg"] != "item submitted" || rec["run_id"] != "abc" || rec["processed"] != float64(3) {
		t.Errorf("record = %v", rec)
	}
	if !strings.Contains(buf.String(), "run_id=abc") {
		t.Errorf("console missing record: %q", buf.String())
	}
}

func TestBadLevel(t *testing.T) {
	if _, _, err := New("chatty", ""); err == nil {
		t.Error("New accepted unknown level")
	}
}
