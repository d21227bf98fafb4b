package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/neogem/internal/database"
	"github.com/edgard/neogem/internal/retry"
)

// NewChatHandler returns a handler answering free text with the model,
// using the chat's recent turns as context.
func NewChatHandler(deps HandlerDeps) bot.HandlerFunc {
	return chatHandler{deps}.Handle
}

type chatHandler struct {
	deps HandlerDeps
}

func (h chatHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h chatHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "chat")

	if update.Message == nil {
		return
	}
	msg := update.Message
	chatID := msg.Chat.ID
	prompt := strings.TrimSpace(msg.Text)
	if prompt == "" {
		return
	}

	typing(ctx, s, chatID, models.ChatActionTyping)

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	history, err := h.deps.Store.GetRecentTurns(dbCtx, chatID, h.deps.Config.Gemini.ContextTurns)
	cancel()
	if err != nil {
		log.WarnContext(ctx, "Failed to load history, continuing without it", "error", err, "chat_id", chatID)
		history = nil
	}

	aiCtx, aiCancel := context.WithTimeout(ctx, aiProcessingTimeout)
	defer aiCancel()

	start := time.Now()
	reply, err := retry.Do(aiCtx, retryPolicy(h.deps, s, log, chatID), func(ctx context.Context) (string, error) {
		return h.deps.GeminiClient.GenerateReply(ctx, prompt, history)
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to generate reply", "error", err, "chat_id", chatID)
		sendText(ctx, s, log, chatID, failureText(h.deps, err, h.deps.Config.Messages.ChatError), nil)
		return
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		log.WarnContext(ctx, "Model returned an empty reply", "chat_id", chatID)
		sendText(ctx, s, log, chatID, h.deps.Config.Messages.NoResponse, nil)
		return
	}
	log.DebugContext(ctx, "Reply generated", "chat_id", chatID, "duration_ms", time.Since(start).Milliseconds(), "history_turns", len(history))

	sendText(ctx, s, log, chatID, reply, nil)

	turn := &database.Turn{ChatID: chatID, UserMessage: prompt, BotReply: reply}
	if h.deps.Config.Gemini.SentimentEnabled {
		if sentiment, err := h.deps.GeminiClient.ScoreSentiment(aiCtx, prompt); err != nil {
			log.WarnContext(ctx, "Sentiment scoring failed", "error", err, "chat_id", chatID)
		} else if sentiment != nil {
			turn.SentimentScore = &sentiment.Score
			turn.SentimentLabel = &sentiment.Label
		}
	}

	saveCtx, saveCancel := context.WithTimeout(ctx, dbTimeout)
	defer saveCancel()
	if err := h.deps.Store.SaveTurn(saveCtx, turn); err != nil {
		log.ErrorContext(ctx, "Failed to save turn", "error", err, "chat_id", chatID)
	}
}
