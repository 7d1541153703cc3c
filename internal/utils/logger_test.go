package utils

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// setupTestLogger configures a logger with a custom writer for tests
func setupTestLogger(output *bytes.Buffer, level string) {
	SetLoggerForTest(zerolog.New(output).With().Timestamp().Logger().Level(parseLevel(level)))
}

func TestInfoLogging(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "info")

	Info("test message", "foo", 42, "bar", true)

	logOutput := buf.String()
	if !strings.Contains(logOutput, "test message") {
		t.Error("Expected log message not found in output")
	}
	if !strings.Contains(logOutput, `"foo":42`) || !strings.Contains(logOutput, `"bar":true`) {
		t.Error("Expected key-value pairs not found in output")
	}
}

func TestErrorLoggingWritesErrorString(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "error")

	Error("error occurred", "error", errors.New("disk full"), "dangling")

	out := buf.String()
	if !strings.Contains(out, `"error":"disk full"`) {
		t.Errorf("expected error string in output: %s", out)
	}
	if !strings.Contains(out, `"dangling":"MISSING"`) {
		t.Errorf("expected dangling key marker in output: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "warn")

	Info("hidden")
	Debug("hidden too")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %s", buf.String())
	}

	SetLogLevel("info")
	Info("should be visible")
	if !strings.Contains(buf.String(), "should be visible") {
		t.Error("Expected info log after SetLogLevel not found")
	}

	SetLogLevel("invalid-level")
	Info("fallback to info")
	if !strings.Contains(buf.String(), "fallback to info") {
		t.Error("Expected unknown level to fall back to info")
	}
}

func TestInitLogger_WritesFile(t *testing.T) {
	defer SetLoggerForTest(zerolog.New(os.Stdout))

	path := filepath.Join(t.TempDir(), "labelgen.log")
	InitLogger(path, 1, 1, 1, false, "debug")
	Debug("to file", "k", "v")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), "to file") {
		t.Fatalf("expected message in log file, got %s", raw)
	}
}
