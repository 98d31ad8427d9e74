package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr      string
	JWTSecret string

	LogLevel  string
	LogFormat string // console or json

	// TypingWindow is the quiet period after which a typing indicator
	// self-clears when no stop event arrives.
	TypingWindow time.Duration
}

func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Addr:         ":3000",
		JWTSecret:    "dev-secret-change-me",
		LogLevel:     "info",
		LogFormat:    "console",
		TypingWindow: time.Second,
	}

	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("TYPING_WINDOW_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TypingWindow = time.Duration(n) * time.Millisecond
		}
	}
	return cfg
}
