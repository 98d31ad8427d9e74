package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/avolkov/chatrelay/internal/chat"
	"github.com/avolkov/chatrelay/internal/config"
	"github.com/avolkov/chatrelay/internal/handlers"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	dir := chat.NewDirectory(chat.Seed())
	msgLog := chat.NewLog(dir)
	registry := chat.NewRegistry()
	broker := chat.NewBroker(registry, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() { _ = broker.Run(ctx) }()

	h := &handlers.ChatHandler{Dir: dir, Log: msgLog, Broker: broker, Logger: logger}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(requestLogger(logger))

	api := app.Group("/chats", handlers.Bearer(cfg.JWTSecret))
	api.Get("/", h.ListChats)
	api.Get("/:id/messages", h.ListMessages)
	api.Post("/:id/messages", h.PostMessage)

	app.Get("/ws", websocket.New(h.Register))

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	logger.Info().Str("addr", cfg.Addr).Msg("relay starting")
	if err := app.Listen(cfg.Addr); err != nil {
		logger.Fatal().Err(err).Msg("relay exited")
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func requestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
		return err
	}
}
