package app

import (
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandlerOutput(t *testing.T) {
	var sb strings.Builder
	h := newPrettyHandler(&sb, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	log := slog.New(h)

	log.Info("auth.login.ok", "user", "ada", "path", "/auth/login", "empty", "")
	out := sb.String()

	for _, want := range []string{"[INFO]", "auth.login.ok", "user=ada", "path=/auth/login", `empty=""`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("color disabled but output has ANSI escapes: %q", out)
	}
}

func TestPrettyHandlerLevelGate(t *testing.T) {
	var sb strings.Builder
	h := newPrettyHandler(&sb, &slog.HandlerOptions{Level: slog.LevelWarn}, false)
	log := slog.New(h)

	log.Info("dropped")
	log.Warn("kept")

	out := sb.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info record leaked past warn gate: %q", out)
	}
	if !strings.Contains(out, "[WARN]") || !strings.Contains(out, "kept") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	if got := quoteIfNeeded("plain"); got != "plain" {
		t.Fatalf("plain value quoted: %q", got)
	}
	if got := quoteIfNeeded("two words"); got != `"two words"` {
		t.Fatalf("spaced value not quoted: %q", got)
	}
}
