package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZerologAdapter_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	z := NewZerologAdapterWithLogger(zerolog.New(&buf))

	z.Info("rotated", String("file", "a.pcap"), Int("records", 3), Err(errors.New("boom")))

	out := buf.String()
	for _, want := range []string{`"message":"rotated"`, `"file":"a.pcap"`, `"records":3`, `"error":"boom"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %s missing %s", out, want)
		}
	}
}

func TestZerologAdapter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	z := NewZerologAdapterWithLogger(zerolog.New(&buf).Level(zerolog.WarnLevel))

	z.Debug("hidden")
	z.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %s", buf.String())
	}
	z.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn message missing")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

type captureLogger struct {
	NoopLogger
	fields []Field
}

func (c *captureLogger) Info(msg string, fields ...Field) { c.fields = fields }

func TestWith_PrependsFields(t *testing.T) {
	c := &captureLogger{}
	l := With(With(c, String("dataset", "radar")), String("session", "s1"))

	l.Info("hello", Int("n", 1))

	if len(c.fields) != 3 {
		t.Fatalf("fields = %v, want 3 entries", c.fields)
	}
	if c.fields[0].Key != "dataset" || c.fields[1].Key != "session" || c.fields[2].Key != "n" {
		t.Errorf("unexpected field order: %v", c.fields)
	}
}

func TestOrNoop(t *testing.T) {
	if OrNoop(nil) == nil {
		t.Fatal("OrNoop(nil) returned nil")
	}
}
