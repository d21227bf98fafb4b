package handlers

import (
	"bytes"
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/neogem/internal/retry"
)

// maxCaptionLength is Telegram's limit for a media caption, in characters.
const maxCaptionLength = 1024

// NewImageHandler returns a handler for /generate_image.
func NewImageHandler(deps HandlerDeps) bot.HandlerFunc {
	return imageHandler{deps}.Handle
}

type imageHandler struct {
	deps HandlerDeps
}

func (h imageHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h imageHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "generate_image")

	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	msgs := h.deps.Config.Messages

	prompt := commandArgs(update.Message.Text)
	if prompt == "" {
		sendText(ctx, s, log, chatID, msgs.ImageUsage, nil)
		return
	}
	if h.deps.ImageGen == nil || !h.deps.ImageGen.Enabled() {
		sendText(ctx, s, log, chatID, msgs.ImageDisabled, nil)
		return
	}

	typing(ctx, s, chatID, models.ChatActionUploadPhoto)

	aiCtx, cancel := context.WithTimeout(ctx, aiProcessingTimeout)
	defer cancel()

	img, err := retry.Do(aiCtx, retryPolicy(h.deps, s, log, chatID), func(ctx context.Context) ([]byte, error) {
		return h.deps.ImageGen.Generate(ctx, prompt)
	})
	if err != nil {
		log.ErrorContext(ctx, "Image generation failed", "error", err, "chat_id", chatID)
		sendText(ctx, s, log, chatID, failureText(h.deps, err, msgs.ImageError), nil)
		return
	}

	sendCtx, sendCancel := context.WithTimeout(ctx, sendMessageTimeout*3)
	defer sendCancel()
	_, err = s.SendPhoto(sendCtx, &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &models.InputFileUpload{Filename: "image.png", Data: bytes.NewReader(img)},
		Caption: truncateRunes(prompt, maxCaptionLength),
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send generated image", "error", err, "chat_id", chatID)
		sendText(ctx, s, log, chatID, msgs.ImageError, nil)
		return
	}
	log.InfoContext(ctx, "Image sent", "chat_id", chatID, "bytes", len(img))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
