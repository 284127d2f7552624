package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestInitTracing_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracing(ctx, &TracingConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, span := StartRetrieveSpan(ctx, 10, 0)
	if span == nil {
		t.Fatal("expected a span from the global tracer")
	}
	span.End()
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestInitTracing_NilConfig(t *testing.T) {
	tp, err := InitTracing(context.Background(), nil)
	if err != nil || tp == nil {
		t.Fatalf("got %v, %v", tp, err)
	}
	if DefaultTracingConfig().ServiceName != "lexrag" {
		t.Errorf("unexpected default service name")
	}
}

func TestSpanHelpers(t *testing.T) {
	ctx := context.Background()

	ctx, span := StartRetrieveSpan(ctx, 10, 1)
	RecordRetrieveResult(span, 10, 30, 25)
	span.End()

	_, span = StartEmbedSpan(ctx, "mistral-embed", 1)
	RecordError(span, errors.New("timeout"))
	span.End()

	_, span = StartIndexSpan(ctx, "fetch", 30)
	span.End()

	_, span = StartLLMSpan(ctx, "mistral", "stream")
	RecordLLMOutput(span, 120, true)
	span.End()

	_, span = StartIngestSpan(ctx, "index", 100)
	RecordError(span, nil)
	span.End()
}

func TestNewLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, LogConfig{Level: "warn", Format: "json"})
	log.Info("hidden")
	log.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected json output: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if OrDefault(nil) != slog.Default() {
		t.Error("expected default logger")
	}
}
