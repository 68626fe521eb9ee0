package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONLoggerWritesUTCTimestamps(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Options{Level: "debug", Format: "json", Output: buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	Component(logger, "capture").Debug("hello", KeySequence, 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record[KeyComponent] != "capture" {
		t.Fatalf("expected component field, got %v", record[KeyComponent])
	}
	stamp, _ := record["time"].(string)
	if !strings.HasSuffix(stamp, "Z") {
		t.Fatalf("expected UTC RFC3339 timestamp, got %q", stamp)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Options{Level: "warn", Format: "console", Output: buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	if _, err := New(Options{Level: "verbose"}); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatalf("expected format error")
	}
}
