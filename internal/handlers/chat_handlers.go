package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/avolkov/chatrelay/internal/chat"
)

type ChatHandler struct {
	Dir    *chat.Directory
	Log    *chat.Log
	Broker *chat.Broker
	Logger zerolog.Logger
}

// ListChats GET /chats
func (h *ChatHandler) ListChats(c *fiber.Ctx) error {
	return c.JSON(h.Dir.ListWithPreview(h.Log))
}

// ListMessages GET /chats/:id/messages
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	msgs, err := h.Log.Messages(c.Params("id"))
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chat not found"})
		}
		return err
	}
	return c.JSON(msgs)
}

type postMessageRequest struct {
	Text        string         `json:"text"`
	ClientToken string         `json:"client_token"`
	ReplyTo     *chat.ReplyRef `json:"reply_to"`
}

// PostMessage POST /chats/:id/messages
//
// Only the durable write happens here. The client forwards the stored
// message over its live connection as a send_message event; a client with no
// live connection still gets its write appended, and others catch up on the
// next snapshot fetch.
func (h *ChatHandler) PostMessage(c *fiber.Ctx) error {
	var req postMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "empty text"})
	}

	msg, err := h.Log.Append(c.Params("id"), SenderID(c), text, req.ClientToken, req.ReplyTo)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chat not found"})
		}
		return err
	}
	return c.JSON(msg)
}

// Register GET /ws?user_id= (websocket)
//
// The handshake carries the user identity as a query parameter; trust is
// established upstream, the broker does not check credentials.
func (h *ChatHandler) Register(conn *websocket.Conn) {
	userID := conn.Query("user_id")
	if userID == "" {
		_ = conn.Close()
		return
	}
	sess := chat.NewSession(userID, conn, h.Logger)
	h.Broker.Register(sess)
	defer h.Broker.Unregister(sess)
	go sess.WritePump()
	sess.ReadPump(h.Broker)
}
