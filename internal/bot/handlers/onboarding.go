// Package handlers contains Telegram bot command and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/neogem/internal/database"
)

type newUserKey struct{}

// IsNewUser reports whether the onboarding middleware registered the
// sender while handling the current update.
func IsNewUser(ctx context.Context) bool {
	v, _ := ctx.Value(newUserKey{}).(bool)
	return v
}

// Onboarding creates a middleware that registers first-time chats. A new
// chat gets the welcome text and the contact request keyboard before the
// update reaches its handler.
func Onboarding(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if onboard(ctx, deps, b, update) {
				ctx = context.WithValue(ctx, newUserKey{}, true)
			}
			next(ctx, b, update)
		}
	}
}

// onboard ensures a user record exists for the sender's chat and greets
// it when the record was just created.
func onboard(ctx context.Context, deps HandlerDeps, s Sender, update *models.Update) bool {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return false
	}
	log := deps.Logger.With("middleware", "onboarding", "chat_id", msg.Chat.ID)

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	created, err := deps.Store.EnsureUser(dbCtx, &database.User{
		ChatID:    msg.Chat.ID,
		FirstName: msg.From.FirstName,
		Username:  msg.From.Username,
	})
	cancel()
	if err != nil {
		log.ErrorContext(ctx, "Failed to ensure user record", "error", err)
		return false
	}
	if !created {
		return false
	}

	log.InfoContext(ctx, "Greeting new user", "user_id", msg.From.ID)
	sendText(ctx, s, log, msg.Chat.ID, deps.Config.Messages.Welcome, nil)
	sendText(ctx, s, log, msg.Chat.ID, deps.Config.Messages.ContactRequest, contactKeyboard(deps.Config.Messages.ContactButton))
	return true
}

func contactKeyboard(label string) *models.ReplyKeyboardMarkup {
	return &models.ReplyKeyboardMarkup{
		Keyboard: [][]models.KeyboardButton{
			{{Text: label, RequestContact: true}},
		},
		OneTimeKeyboard: true,
		ResizeKeyboard:  true,
	}
}

func removeKeyboard() *models.ReplyKeyboardRemove {
	return &models.ReplyKeyboardRemove{RemoveKeyboard: true}
}
