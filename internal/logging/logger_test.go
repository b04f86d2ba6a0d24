package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		"WARNING": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"panic":   zerolog.PanicLevel,
		"off":     zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCtxAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Output: &buf})
	t.Cleanup(func() { Init(Config{}) })

	ctx := ContextWithRequestID(context.Background(), "req-123")
	Ctx(ctx).Info().Str("source", "local").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}
	if entry["request_id"] != "req-123" {
		t.Errorf("request_id = %v", entry["request_id"])
	}
	if entry["message"] != "hello" || entry["source"] != "local" {
		t.Errorf("entry = %v", entry)
	}
}

func TestRequestIDFromContext(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("empty context returned %q", got)
	}
	id := NewRequestID()
	if len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Errorf("NewRequestID() = %q, want uuid", id)
	}
	if got := RequestIDFromContext(ContextWithRequestID(context.Background(), id)); got != id {
		t.Errorf("round trip = %q, want %q", got, id)
	}
}

func TestParseLevelAcceptsConfigLevels(t *testing.T) {
	for _, lvl := range []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"} {
		if got := parseLevel(lvl).String(); got != lvl {
			t.Errorf("parseLevel(%q) = %s", lvl, got)
		}
	}
}
