package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStopHandler returns a handler for the /stop command.
func NewStopHandler(deps HandlerDeps) bot.HandlerFunc {
	return stopHandler{deps}.Handle
}

type stopHandler struct {
	deps HandlerDeps
}

func (h stopHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h stopHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "stop")

	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	userID := int64(0)
	if update.Message.From != nil {
		userID = update.Message.From.ID
	}

	log.InfoContext(ctx, "Stop command received", "chat_id", chatID, "user_id", userID)
	sendText(ctx, s, log, chatID, h.deps.Config.Messages.Stop, removeKeyboard())

	if h.deps.Shutdown != nil {
		h.deps.Shutdown()
	}
}
