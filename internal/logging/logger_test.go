package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewFallsBackOnInvalidLevel(t *testing.T) {
	l := New(Config{Level: "not-a-level", Format: "json", Output: "stdout"})
	if l.Logger.Level.String() != "info" {
		t.Fatalf("expected fallback to info level, got %s", l.Logger.Level)
	}
}

func TestNewDefaultTagsComponent(t *testing.T) {
	l := NewDefault("scheduler")
	entry := l.WithField("job_id", "abc")
	if entry.Data["job_id"] != "abc" {
		t.Fatalf("expected job_id field to be set")
	}

	var buf bytes.Buffer
	l.SetOutput(&buf)
	entry.Info("claimed")
	if !strings.Contains(buf.String(), "component=scheduler") {
		t.Fatalf("expected component field in output, got %q", buf.String())
	}
}
