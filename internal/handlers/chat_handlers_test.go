package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/avolkov/chatrelay/internal/chat"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	dir := chat.NewDirectory(chat.Seed())
	msgLog := chat.NewLog(dir)
	broker := chat.NewBroker(chat.NewRegistry(), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = broker.Run(ctx) }()

	h := &ChatHandler{Dir: dir, Log: msgLog, Broker: broker, Logger: zerolog.Nop()}
	app := fiber.New()
	api := app.Group("/chats", Bearer(testSecret))
	api.Get("/", h.ListChats)
	api.Get("/:id/messages", h.ListMessages)
	api.Post("/:id/messages", h.PostMessage)
	return app
}

func authedRequest(t *testing.T, method, target, subject string, body any) *http.Request {
	t.Helper()
	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+mintToken(t, subject))
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return req
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestRejectsMissingAndInvalidCredential(t *testing.T) {
	app := newTestApp(t)

	for name, req := range map[string]*http.Request{
		"missing header": httptest.NewRequest(http.MethodGet, "/chats", nil),
		"garbage token": func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/chats", nil)
			r.Header.Set(fiber.HeaderAuthorization, "Bearer not-a-jwt")
			return r
		}(),
		"wrong scheme": func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/chats", nil)
			r.Header.Set(fiber.HeaderAuthorization, "Basic dXNlcjpwYXNz")
			return r
		}(),
	} {
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Fatalf("%s: status %d, want 401", name, resp.StatusCode)
		}
	}
}

func TestListChatsReturnsSeedWithPreviews(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(authedRequest(t, http.MethodGet, "/chats", "u1", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	var chats []chat.Preview
	decodeBody(t, resp, &chats)
	if len(chats) != 2 || chats[0].ID != "1" || chats[1].ID != "2" {
		t.Fatalf("chat list = %+v", chats)
	}
}

func TestPostThenListMessages(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(authedRequest(t, http.MethodPost, "/chats/1/messages", "u1", map[string]any{
		"text":         "  hello  ",
		"client_token": "tok-1",
		"reply_to":     map[string]string{"id": "x", "text": "earlier"},
	}))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	var stored chat.Message
	decodeBody(t, resp, &stored)
	if stored.ID == "" || stored.SenderID != "u1" || stored.Text != "hello" || stored.ClientToken != "tok-1" {
		t.Fatalf("stored = %+v", stored)
	}
	if stored.ReplyTo == nil || stored.ReplyTo.Text != "earlier" {
		t.Fatalf("reply snapshot = %+v", stored.ReplyTo)
	}

	resp, err = app.Test(authedRequest(t, http.MethodGet, "/chats/1/messages", "u2", nil))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var msgs []chat.Message
	decodeBody(t, resp, &msgs)
	if len(msgs) != 1 || msgs[0].ID != stored.ID {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestPostMessageValidation(t *testing.T) {
	app := newTestApp(t)

	cases := []struct {
		target string
		body   any
		want   int
	}{
		{"/chats/1/messages", map[string]any{"text": "   "}, fiber.StatusBadRequest},
		{"/chats/missing/messages", map[string]any{"text": "hi"}, fiber.StatusNotFound},
	}
	for _, tc := range cases {
		resp, err := app.Test(authedRequest(t, http.MethodPost, tc.target, "u1", tc.body))
		if err != nil {
			t.Fatalf("post %s: %v", tc.target, err)
		}
		if resp.StatusCode != tc.want {
			t.Fatalf("post %s: status %d, want %d", tc.target, resp.StatusCode, tc.want)
		}
	}

	resp, err := app.Test(authedRequest(t, http.MethodGet, "/chats/missing/messages", "u1", nil))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("get unknown chat: status %d, want 404", resp.StatusCode)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	app := newTestApp(t)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	req.Header.Set(fiber.HeaderAuthorization, fmt.Sprintf("Bearer %s", signed))

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
}
