package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/neogem/internal/analysis"
	"github.com/edgard/neogem/internal/errs"
)

// NewUploadHandler returns a handler storing and analyzing documents,
// photos, audio files and voice notes.
func NewUploadHandler(deps HandlerDeps) bot.HandlerFunc {
	return uploadHandler{deps}.Handle
}

// IsUpload matches messages carrying a file.
func IsUpload(update *models.Update) bool {
	msg := update.Message
	if msg == nil {
		return false
	}
	return msg.Document != nil || len(msg.Photo) > 0 || msg.Audio != nil || msg.Voice != nil
}

// uploadedFile returns the Telegram file ID and a file name for msg. The
// name's extension drives classification.
func uploadedFile(msg *models.Message) (fileID, name string) {
	switch {
	case msg.Document != nil:
		fileID, name = msg.Document.FileID, msg.Document.FileName
		if name == "" {
			name = fileID
		}
	case len(msg.Photo) > 0:
		// Sizes are ordered smallest first.
		fileID = msg.Photo[len(msg.Photo)-1].FileID
		name = fileID + ".jpg"
	case msg.Audio != nil:
		fileID, name = msg.Audio.FileID, msg.Audio.FileName
		if name == "" {
			name = fileID + ".mp3"
		}
	case msg.Voice != nil:
		fileID = msg.Voice.FileID
		name = fileID + ".ogg"
	}
	return fileID, name
}

type uploadHandler struct {
	deps HandlerDeps
}

func (h uploadHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h uploadHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "upload")

	if !IsUpload(update) {
		return
	}
	msg := update.Message
	chatID := msg.Chat.ID
	msgs := h.deps.Config.Messages

	fileID, name := uploadedFile(msg)
	if fileID == "" {
		sendText(ctx, s, log, chatID, msgs.InvalidFile, nil)
		return
	}
	log = log.With("chat_id", chatID, "file_name", name)

	typing(ctx, s, chatID, models.ChatActionTyping)

	data, err := h.deps.Downloader.Download(ctx, s, fileID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to download file", "error", err)
		sendText(ctx, s, log, chatID, msgs.FileError, nil)
		return
	}

	aiCtx, cancel := context.WithTimeout(ctx, aiProcessingTimeout)
	defer cancel()

	res, err := h.deps.Files.Process(aiCtx, analysis.Upload{ChatID: chatID, FileName: name, Data: data}, notifyRetry(h.deps, s, log, chatID))
	sendText(ctx, s, log, chatID, uploadReply(h.deps, res, err), nil)
	if err != nil {
		log.ErrorContext(ctx, "File processing failed", "error", err, "stored", res != nil)
		return
	}
	log.InfoContext(ctx, "File processed", "file_id", res.FileID, "kind", res.Kind.String(), "analyzed", res.Analyzed)
}

// uploadReply picks the chat reply for the outcome of a file upload.
func uploadReply(deps HandlerDeps, res *analysis.Result, err error) string {
	msgs := deps.Config.Messages
	switch {
	case res == nil:
		return msgs.FileError
	case errors.Is(err, errs.ErrQuotaExceeded):
		return msgs.QuotaExceeded
	case errors.Is(err, errs.ErrFileUnsupported):
		return msgs.NoAnalysis
	case err != nil:
		return msgs.FileError
	case !res.Analyzed:
		return res.Description
	}
	desc := strings.TrimSpace(res.Description)
	if desc == "" {
		return msgs.NoResponse
	}
	return msgs.FileAnalyzed + desc
}
