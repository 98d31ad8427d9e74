package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Addr != ":3000" || cfg.LogLevel != "info" || cfg.TypingWindow != time.Second {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ADDR", "127.0.0.1:9999")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("TYPING_WINDOW_MS", "250")

	cfg := Load()
	if cfg.Addr != "127.0.0.1:9999" || cfg.JWTSecret != "s3cret" || cfg.LogFormat != "json" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.TypingWindow != 250*time.Millisecond {
		t.Fatalf("typing window = %v, want 250ms", cfg.TypingWindow)
	}
}

func TestLoadIgnoresBadTypingWindow(t *testing.T) {
	t.Setenv("TYPING_WINDOW_MS", "-5")
	if cfg := Load(); cfg.TypingWindow != time.Second {
		t.Fatalf("typing window = %v, want default", cfg.TypingWindow)
	}
}
