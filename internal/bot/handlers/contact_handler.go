package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/neogem/internal/database"
)

// NewContactHandler returns a handler for shared contacts.
func NewContactHandler(deps HandlerDeps) bot.HandlerFunc {
	return contactHandler{deps}.Handle
}

// IsContact matches messages carrying a shared contact.
func IsContact(update *models.Update) bool {
	return update.Message != nil && update.Message.Contact != nil
}

type contactHandler struct {
	deps HandlerDeps
}

func (h contactHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h contactHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "contact")

	if !IsContact(update) {
		return
	}
	msg := update.Message
	chatID := msg.Chat.ID
	phone := msg.Contact.PhoneNumber

	// Only the sender's own contact, as sent by the request button, is stored.
	if msg.From == nil || msg.Contact.UserID != msg.From.ID {
		log.WarnContext(ctx, "Ignoring contact of another user", "chat_id", chatID)
		sendText(ctx, s, log, chatID, h.deps.Config.Messages.ContactRequest,
			contactKeyboard(h.deps.Config.Messages.ContactButton))
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := h.deps.Store.UpdateUserPhone(dbCtx, chatID, phone)
	if errors.Is(err, database.ErrNotFound) {
		// The record predates onboarding or was lost; recreate it.
		user := &database.User{
			ChatID:    chatID,
			Phone:     &phone,
			FirstName: msg.From.FirstName,
			Username:  msg.From.Username,
		}
		_, err = h.deps.Store.EnsureUser(dbCtx, user)
	}
	if err != nil {
		log.ErrorContext(ctx, "Failed to save contact", "error", err, "chat_id", chatID)
		sendText(ctx, s, log, chatID, h.deps.Config.Messages.ChatError, nil)
		return
	}

	log.InfoContext(ctx, "Contact saved", "chat_id", chatID)
	sendText(ctx, s, log, chatID, h.deps.Config.Messages.ContactSaved, removeKeyboard())
}
