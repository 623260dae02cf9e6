package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestNewZerolog_JSONFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l, err := NewZerolog(Config{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("NewZerolog: %v", err)
	}

	l.Warn("dropped record", String("discriminator", "Z"), Int("count", 3), Err(errors.New("boom")))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if entry["level"] != "warn" {
		t.Fatalf("level = %v, want warn", entry["level"])
	}
	if entry["message"] != "dropped record" {
		t.Fatalf("message = %v", entry["message"])
	}
	if entry["discriminator"] != "Z" {
		t.Fatalf("discriminator = %v, want Z", entry["discriminator"])
	}
	if entry["count"] != float64(3) {
		t.Fatalf("count = %v, want 3", entry["count"])
	}
	if entry["error"] != "boom" {
		t.Fatalf("error = %v, want boom", entry["error"])
	}
}

func TestNewZerolog_LevelFilters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l, err := NewZerolog(Config{Level: "warn", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("NewZerolog: %v", err)
	}

	l.Debug("hidden")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}
}

func TestNewZerolog_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewZerolog(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
	if _, err := NewZerolog(Config{Format: "xml"}); err == nil {
		t.Fatal("expected error for invalid format")
	}
}
