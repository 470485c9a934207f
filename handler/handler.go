// Package handler adapts Telegram webhook deliveries (via API Gateway)
// to the conversation engine. Telegram redelivers on any non-2xx, so the
// handler answers 200 even when processing fails and leaves failures to
// the operator log.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"mindlog-bot/internal/domain"
	"mindlog-bot/internal/integrations/telegram"
	"mindlog-bot/internal/usecase"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Engine is the conversation engine surface the handler needs.
type Engine interface {
	Handle(ctx context.Context, in usecase.Input) ([]domain.Reply, error)
}

// Sender delivers outbound replies back to the chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard [][]string) error
	SendDocument(ctx context.Context, chatID int64, filename string, data []byte) error
}

// Handler processes one webhook event per invocation.
type Handler struct {
	engine Engine
	sender Sender
	// secretToken, when set, must match the header Telegram echoes back
	// from setWebhook; requests without it are rejected.
	secretToken string
}

func NewHandler(engine Engine, sender Sender, secretToken string) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("handler: engine must not be nil")
	}
	if sender == nil {
		return nil, errors.New("handler: sender must not be nil")
	}
	return &Handler{engine: engine, sender: sender, secretToken: secretToken}, nil
}

// Handle decodes the update, runs the engine, and sends the replies.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if h.secretToken != "" && headerValue(req.Headers, secretTokenHeader) != h.secretToken {
		return response(http.StatusUnauthorized), nil
	}

	var update telegram.Update
	if err := json.Unmarshal([]byte(req.Body), &update); err != nil {
		// Not a Telegram update; acknowledge so it is not redelivered.
		slog.Warn("dropping malformed webhook body", "err", err)
		return response(http.StatusOK), nil
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return response(http.StatusOK), nil
	}

	replies, err := h.engine.Handle(ctx, usecase.Input{
		UserID:   msg.From.ID,
		UserName: msg.From.DisplayName(),
		Text:     msg.Text,
	})
	if err != nil {
		slog.Error("engine error", "user_id", msg.From.ID, "err", err)
	}

	for _, reply := range replies {
		if err := h.send(ctx, msg.Chat.ID, reply); err != nil {
			slog.Error("reply delivery failed", "chat_id", msg.Chat.ID, "err", err)
		}
	}
	return response(http.StatusOK), nil
}

func (h *Handler) send(ctx context.Context, chatID int64, reply domain.Reply) error {
	if reply.Document != nil {
		return h.sender.SendDocument(ctx, chatID, reply.Document.Name, reply.Document.Data)
	}
	return h.sender.SendMessage(ctx, chatID, reply.Text, reply.Keyboard)
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func response(status int) events.APIGatewayProxyResponse {
	body := `{"ok":true}`
	if status != http.StatusOK {
		body = `{"ok":false}`
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"content-type": "application/json"},
		Body:       body,
	}
}
