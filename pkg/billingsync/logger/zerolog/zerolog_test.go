package zerolog

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mihaimyh/billingsync/pkg/billingsync"
)

func decodeLine(t *testing.T, line string) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", line, err)
	}
	return out
}

func TestZerologLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(l *Logger)
		level string
	}{
		{"debug", func(l *Logger) { l.Debug("msg") }, "debug"},
		{"info", func(l *Logger) { l.Info("msg") }, "info"},
		{"warn", func(l *Logger) { l.Warn("msg") }, "warn"},
		{"error", func(l *Logger) { l.Error("msg") }, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := bytes.Buffer{}
			logger := NewLogger(zerolog.New(&output))

			tt.log(logger)

			entry := decodeLine(t, output.String())
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
			if entry["message"] != "msg" {
				t.Errorf("message = %v, want msg", entry["message"])
			}
		})
	}
}

func TestZerologLogger_LogLevelFiltering(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output).Level(zerolog.WarnLevel))

	logger.Debug("debug message")
	logger.Info("info message")

	if output.Len() != 0 {
		t.Error("Expected debug and info to be filtered out")
	}

	logger.Warn("warn message")
	logger.Error("error message")

	if got := strings.Count(output.String(), "\n"); got != 2 {
		t.Errorf("Expected 2 log lines, got %d", got)
	}
}

func TestZerologLogger_FieldTypes(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output))

	logger.Info("event processed",
		billingsync.Field{Key: "event_type", Value: "customer.created"},
		billingsync.Field{Key: "duration_ms", Value: int64(12)},
		billingsync.Field{Key: "attempt", Value: 2},
		billingsync.Field{Key: "fatal", Value: false},
		billingsync.Field{Key: "error", Value: errors.New("boom")},
		billingsync.Field{Key: "claims", Value: map[string]string{"role": "basic"}},
	)

	entry := decodeLine(t, output.String())
	if entry["event_type"] != "customer.created" {
		t.Errorf("event_type = %v", entry["event_type"])
	}
	if entry["duration_ms"] != float64(12) {
		t.Errorf("duration_ms = %v", entry["duration_ms"])
	}
	if entry["attempt"] != float64(2) {
		t.Errorf("attempt = %v", entry["attempt"])
	}
	if entry["fatal"] != false {
		t.Errorf("fatal = %v", entry["fatal"])
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v", entry["error"])
	}
	claims, ok := entry["claims"].(map[string]interface{})
	if !ok || claims["role"] != "basic" {
		t.Errorf("claims = %v", entry["claims"])
	}
}

func TestNew(t *testing.T) {
	output := bytes.Buffer{}
	zl := New(&output, "warn", "json")
	logger := NewLogger(zl)

	logger.Info("dropped")
	if output.Len() != 0 {
		t.Fatal("Expected info to be filtered at warn level")
	}

	logger.Warn("kept")
	entry := decodeLine(t, output.String())
	if entry["service"] != "billingsync" {
		t.Errorf("service = %v", entry["service"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("Expected timestamp field")
	}
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(New(&output, "verbose", ""))

	logger.Debug("dropped")
	if output.Len() != 0 {
		t.Fatal("Expected debug to be filtered at info level")
	}
	logger.Info("kept")
	if output.Len() == 0 {
		t.Error("Expected info to be logged")
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(New(&output, "info", "console"))

	logger.Info("hello", billingsync.Field{Key: "uid", Value: "U1"})

	line := output.String()
	if strings.HasPrefix(line, "{") {
		t.Errorf("Expected console output, got JSON: %s", line)
	}
	if !strings.Contains(line, "hello") || !strings.Contains(line, "U1") {
		t.Errorf("console output missing content: %s", line)
	}
}
