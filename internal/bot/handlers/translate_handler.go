package handlers

import (
	"context"
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/neogem/internal/retry"
)

// NewTranslateHandler returns a handler for /translate <language> <text>.
// Without text, the message being replied to is translated.
func NewTranslateHandler(deps HandlerDeps) bot.HandlerFunc {
	return translateHandler{deps}.Handle
}

type translateHandler struct {
	deps HandlerDeps
}

func (h translateHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

// parseTranslateArgs splits "<language> <text>" and falls back to the
// replied-to message for the text.
func parseTranslateArgs(msg *models.Message) (target, text string) {
	args := commandArgs(msg.Text)
	target, text, _ = strings.Cut(args, " ")
	text = strings.TrimSpace(text)
	if text == "" && msg.ReplyToMessage != nil {
		text = strings.TrimSpace(msg.ReplyToMessage.Text)
		if text == "" {
			text = strings.TrimSpace(msg.ReplyToMessage.Caption)
		}
	}
	return strings.TrimSpace(target), text
}

// detectLanguage names the language of text, or returns "" when the
// guess is unreliable.
func detectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.String()
}

func (h translateHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "translate")

	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	msgs := h.deps.Config.Messages

	target, text := parseTranslateArgs(update.Message)
	if target == "" || text == "" {
		sendText(ctx, s, log, chatID, msgs.TranslateUsage, nil)
		return
	}
	source := detectLanguage(text)

	typing(ctx, s, chatID, models.ChatActionTyping)

	aiCtx, cancel := context.WithTimeout(ctx, aiProcessingTimeout)
	defer cancel()

	out, err := retry.Do(aiCtx, retryPolicy(h.deps, s, log, chatID), func(ctx context.Context) (string, error) {
		return h.deps.GeminiClient.Translate(ctx, text, source, target)
	})
	if err != nil {
		log.ErrorContext(ctx, "Translation failed", "error", err, "chat_id", chatID)
		sendText(ctx, s, log, chatID, failureText(h.deps, err, msgs.TranslateError), nil)
		return
	}
	out = strings.TrimSpace(out)
	if out == "" {
		sendText(ctx, s, log, chatID, msgs.NoResponse, nil)
		return
	}
	log.DebugContext(ctx, "Translation completed", "chat_id", chatID, "source", source, "target", target)
	sendText(ctx, s, log, chatID, out, nil)
}
