package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newBufferLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{
		Level:       level,
		Format:      "json",
		Output:      &buf,
		ServiceName: "clipforge-test",
	}), &buf
}

func TestLoggerOutput(t *testing.T) {
	log, buf := newBufferLogger("debug")

	log.Info("job accepted", "kind", "video")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}
	if entry["msg"] != "job accepted" {
		t.Errorf("expected msg='job accepted', got %v", entry["msg"])
	}
	if entry["kind"] != "video" {
		t.Errorf("expected kind='video', got %v", entry["kind"])
	}
	if entry["service"] != "clipforge-test" {
		t.Errorf("expected service attr, got %v", entry["service"])
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "TEXT", Output: &buf})
	log.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text handler output, got %q", buf.String())
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logFn     func(*Logger)
		shouldLog bool
	}{
		{"info logs info", "info", func(l *Logger) { l.Info("x") }, true},
		{"info drops debug", "info", func(l *Logger) { l.Debug("x") }, false},
		{"debug logs debug", "debug", func(l *Logger) { l.Debug("x") }, true},
		{"error drops warn", "error", func(l *Logger) { l.Warn("x") }, false},
		{"warning alias", "warning", func(l *Logger) { l.Warn("x") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBufferLogger(tt.level)
			tt.logFn(log)
			if (buf.Len() > 0) != tt.shouldLog {
				t.Errorf("expected shouldLog=%v, got output %q", tt.shouldLog, buf.String())
			}
		})
	}
}

func TestWithHelpers(t *testing.T) {
	log, buf := newBufferLogger("info")

	log.WithComponent("pipeline").
		WithJobID("job-456").
		WithOwnerID("own-1").
		WithError(context.DeadlineExceeded).
		Info("poll")

	out := buf.String()
	for _, want := range []string{"pipeline", "job-456", "own-1", "deadline exceeded"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output %s", want, out)
		}
	}

	if log.WithError(nil) != log {
		t.Error("WithError(nil) should return same logger")
	}
}

func TestFromContext(t *testing.T) {
	log, buf := newBufferLogger("info")

	ctx := ContextWithRequestID(context.Background(), "req-abc")
	ctx = ContextWithJobID(ctx, "job-xyz")
	ctx = ContextWithOwnerID(ctx, "own-42")

	log.FromContext(ctx).Info("test message")

	out := buf.String()
	for _, want := range []string{"req-abc", "job-xyz", "own-42"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output %s", want, out)
		}
	}
	if OwnerIDFromContext(ctx) != "own-42" {
		t.Errorf("expected owner id from context, got %q", OwnerIDFromContext(ctx))
	}
	if OwnerIDFromContext(context.Background()) != "" {
		t.Error("expected empty owner id for bare context")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"INFO", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"ERROR", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input).String(); got != tt.expected {
				t.Errorf("parseLevel(%q) = %s, expected %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing to see")
}
