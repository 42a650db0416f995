package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expect    slog.Level
		expectErr bool
	}{
		{"debug", "debug", slog.LevelDebug, false},
		{"default-info", "", slog.LevelInfo, false},
		{"warn", "warn", slog.LevelWarn, false},
		{"warning-alias", "WARNING", slog.LevelWarn, false},
		{"error", "error", slog.LevelError, false},
		{"invalid", "verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := levelFromString(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error for input %q", tt.input)
				}
				if !strings.Contains(err.Error(), "invalid log level") {
					t.Fatalf("unexpected error message: %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if level != tt.expect {
				t.Fatalf("expected %v, got %v", tt.expect, level)
			}
		})
	}
}

func TestNewProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Environment: "prod", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	l.Info("hello", "job_id", "abc")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON record, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "hello" || record["job_id"] != "abc" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestNewWithFileSink(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "transcribe.log")

	l, err := New(Config{Level: "debug", Environment: "dev", Output: &buf, File: path})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	l.Debug("to both sinks")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "to both sinks") {
		t.Fatalf("file sink missing record: %q", string(data))
	}
	if !strings.Contains(buf.String(), "to both sinks") {
		t.Fatalf("primary sink missing record: %q", buf.String())
	}
}

func TestLogChunkProcessing(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", Environment: "prod", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	LogChunkProcessing(l, "pool", "error", 3, 1200, "CHUNK_TRANSCRIPTION_ERROR")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON record: %v", err)
	}
	if record["level"] != "ERROR" {
		t.Fatalf("expected ERROR level, got %v", record["level"])
	}
	if record["chunk_index"] != float64(3) || record["error_code"] != "CHUNK_TRANSCRIPTION_ERROR" {
		t.Fatalf("unexpected attrs: %v", record)
	}
}

func TestInitAndL(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() {
		// reset singleton for other tests
		once = sync.Once{}
		global = nil
		slog.SetDefault(previous)
	})

	logger, err := Init(Config{Level: "debug", Environment: "dev", WithSource: true, Output: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	if logger == nil {
		t.Fatalf("Init returned nil logger")
	}

	if L() != logger {
		t.Fatalf("L did not return initialized logger")
	}

	// second init should return same instance without error
	logger2, err := Init(Config{Level: "info", Environment: "prod"})
	if err != nil {
		t.Fatalf("unexpected error on second init: %v", err)
	}
	if logger2 != logger {
		t.Fatalf("expected same logger instance on re-init")
	}
}

func TestOrDefault(t *testing.T) {
	if OrDefault(nil) != slog.Default() {
		t.Fatalf("expected slog.Default for nil logger")
	}
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if OrDefault(l) != l {
		t.Fatalf("expected provided logger to be returned")
	}
}
