package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/neogem/internal/search"
)

// NewWebSearchHandler returns a handler for /websearch. A URL argument
// gets a page preview, anything else is sent to the instant-answer API.
func NewWebSearchHandler(deps HandlerDeps) bot.HandlerFunc {
	return webSearchHandler{deps}.Handle
}

type webSearchHandler struct {
	deps HandlerDeps
}

func (h webSearchHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h webSearchHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "websearch")

	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	msgs := h.deps.Config.Messages

	query := commandArgs(update.Message.Text)
	if query == "" {
		sendText(ctx, s, log, chatID, msgs.SearchUsage, nil)
		return
	}

	typing(ctx, s, chatID, models.ChatActionTyping)

	if search.IsURL(query) {
		sendText(ctx, s, log, chatID, msgs.SearchFetching+query, nil)
		preview, err := h.deps.Search.Preview(ctx, query)
		if err != nil {
			log.ErrorContext(ctx, "Failed to fetch page", "error", err, "url", query)
			sendText(ctx, s, log, chatID, msgs.SearchFetchError, nil)
			return
		}
		sendText(ctx, s, log, chatID, search.FormatPreview(preview), nil)
		return
	}

	results, err := h.deps.Search.Search(ctx, query)
	if err != nil {
		log.ErrorContext(ctx, "Search failed", "error", err, "query", query)
		sendText(ctx, s, log, chatID, msgs.SearchError, nil)
		return
	}
	if len(results) == 0 {
		sendText(ctx, s, log, chatID, msgs.SearchNoResults, nil)
		return
	}
	log.DebugContext(ctx, "Search completed", "query", query, "results", len(results))
	sendText(ctx, s, log, chatID, search.FormatResults(query, results), nil)
}
