package view

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/avolkov/chatrelay/internal/chat"
)

// Client is the snapshot-read / durable-write collaborator: plain
// request-response calls carrying the bearer credential.
type Client struct {
	base  string
	token string
	http  *fasthttp.Client
}

func NewClient(base, token string) *Client {
	return &Client{
		base:  strings.TrimSuffix(base, "/"),
		token: token,
		http:  &fasthttp.Client{},
	}
}

func (c *Client) do(method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + path)
	req.Header.SetMethod(method)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	if body != nil {
		req.Header.SetContentType(fiber.MIMEApplicationJSON)
		req.SetBody(body)
	}

	if err := c.http.Do(req, resp); err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", method, path, err, chat.ErrUnavailable)
	}
	switch {
	case resp.StatusCode() == fasthttp.StatusUnauthorized:
		return nil, fmt.Errorf("%s %s: %w", method, path, chat.ErrUnauthorized)
	case resp.StatusCode() == fasthttp.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, path, chat.ErrNotFound)
	case resp.StatusCode() >= 400:
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode())
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return out, nil
}

// Chats fetches the chat-list snapshot.
func (c *Client) Chats() ([]chat.Preview, error) {
	body, err := c.do(fasthttp.MethodGet, "/chats", nil)
	if err != nil {
		return nil, err
	}
	var out []chat.Preview
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode chat list: %w", err)
	}
	return out, nil
}

// Messages fetches the full ordered history for one chat.
func (c *Client) Messages(chatID string) ([]chat.Message, error) {
	body, err := c.do(fasthttp.MethodGet, "/chats/"+chatID+"/messages", nil)
	if err != nil {
		return nil, err
	}
	var out []chat.Message
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return out, nil
}

// PostMessage performs the durable write and returns the stored message with
// its server-assigned ID and timestamp.
func (c *Client) PostMessage(chatID, text, clientToken string, replyTo *chat.ReplyRef) (chat.Message, error) {
	payload, err := json.Marshal(map[string]any{
		"text":         text,
		"client_token": clientToken,
		"reply_to":     replyTo,
	})
	if err != nil {
		return chat.Message{}, err
	}
	body, err := c.do(fasthttp.MethodPost, "/chats/"+chatID+"/messages", payload)
	if err != nil {
		return chat.Message{}, err
	}
	var out chat.Message
	if err := json.Unmarshal(body, &out); err != nil {
		return chat.Message{}, fmt.Errorf("decode stored message: %w", err)
	}
	return out, nil
}
