package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/neogem/internal/errs"
	"github.com/edgard/neogem/internal/retry"
)

const (
	sendMessageTimeout  = 10 * time.Second
	aiProcessingTimeout = 5 * time.Minute
	dbTimeout           = 5 * time.Second

	// maxMessageLength is Telegram's limit for a text message, in characters.
	maxMessageLength = 4096
)

// sendText sends text to chatID, split into as many messages as needed.
// markup, if any, is attached to the last message.
func sendText(ctx context.Context, s Sender, log *slog.Logger, chatID int64, text string, markup models.ReplyMarkup) {
	chunks := splitMessage(text, maxMessageLength)
	for i, chunk := range chunks {
		params := &bot.SendMessageParams{ChatID: chatID, Text: chunk}
		if i == len(chunks)-1 && markup != nil {
			params.ReplyMarkup = markup
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
		_, err := s.SendMessage(sendCtx, params)
		cancel()
		if err != nil {
			log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
			return
		}
	}
}

// typing shows the typing indicator; failures are ignored.
func typing(ctx context.Context, s Sender, chatID int64, action models.ChatAction) {
	_, _ = s.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: action})
}

// splitMessage breaks text into chunks of at most limit runes, preferring
// newline boundaries.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// commandArgs returns the text after the leading /command token.
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text
	}
	idx := strings.IndexFunc(text, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' })
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(text[idx:])
}

// retryPolicy returns deps.RetryPolicy with OnRetry telling the chat that
// a retry is coming.
func retryPolicy(deps HandlerDeps, s Sender, log *slog.Logger, chatID int64) retry.Policy {
	p := deps.RetryPolicy
	p.Logger = log
	p.OnRetry = func(ctx context.Context, _ int, _ time.Duration, _ error) {
		sendText(ctx, s, log, chatID, deps.Config.Messages.RateLimited, nil)
	}
	return p
}

// notifyRetry adapts retryPolicy's notification to FileProcessor.
func notifyRetry(deps HandlerDeps, s Sender, log *slog.Logger, chatID int64) func(context.Context, int) {
	return func(ctx context.Context, _ int) {
		sendText(ctx, s, log, chatID, deps.Config.Messages.RateLimited, nil)
	}
}

// failureText picks the user-facing text for err: the quota text when
// retries ran out, fallback otherwise.
func failureText(deps HandlerDeps, err error, fallback string) string {
	if errors.Is(err, errs.ErrQuotaExceeded) {
		return deps.Config.Messages.QuotaExceeded
	}
	return fallback
}
