package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewDefaultHandler returns the handler for updates no other handler
// matched. Unknown commands get the usage hint and other text goes to chat.
func NewDefaultHandler(deps HandlerDeps) bot.HandlerFunc {
	return defaultHandler{deps: deps, chat: chatHandler{deps}}.Handle
}

type defaultHandler struct {
	deps HandlerDeps
	chat chatHandler
}

func (h defaultHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h defaultHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	if update.Message == nil {
		return
	}
	text := strings.TrimSpace(update.Message.Text)
	switch {
	case strings.HasPrefix(text, "/"):
		log := h.deps.Logger.With("handler", "default")
		log.DebugContext(ctx, "Unknown command", "chat_id", update.Message.Chat.ID, "text", text)
		sendText(ctx, s, log, update.Message.Chat.ID, h.deps.Config.Messages.UsageHint, nil)
	case text != "":
		h.chat.handle(ctx, s, update)
	}
}
