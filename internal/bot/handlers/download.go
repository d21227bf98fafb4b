package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
)

const fileDownloadTimeout = 60 * time.Second

// FileDownloader fetches the content of a Telegram file.
type FileDownloader interface {
	Download(ctx context.Context, s Sender, fileID string) ([]byte, error)
}

type telegramDownloader struct {
	baseURL    string
	token      string
	maxBytes   int64
	httpClient *http.Client
}

// NewDownloader returns a FileDownloader reading from the Bot API file
// endpoint at baseURL. Files larger than maxBytes are rejected.
func NewDownloader(baseURL, token string, maxBytes int64) FileDownloader {
	return &telegramDownloader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		maxBytes:   maxBytes,
		httpClient: &http.Client{Timeout: fileDownloadTimeout},
	}
}

func (d *telegramDownloader) Download(ctx context.Context, s Sender, fileID string) (data []byte, err error) {
	if d.token == "" {
		return nil, fmt.Errorf("empty token provided")
	}
	if fileID == "" {
		return nil, fmt.Errorf("empty fileID provided")
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("context cancelled before file download: %w", ctx.Err())
	}

	downloadCtx, cancel := context.WithTimeout(ctx, fileDownloadTimeout)
	defer cancel()

	fileObj, err := s.GetFile(downloadCtx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	if fileObj.FilePath == "" {
		return nil, fmt.Errorf("empty file path returned from Telegram")
	}
	if d.maxBytes > 0 && fileObj.FileSize > d.maxBytes {
		return nil, fmt.Errorf("file is %d bytes, limit is %d", fileObj.FileSize, d.maxBytes)
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", d.baseURL, d.token, fileObj.FilePath)
	req, err := http.NewRequestWithContext(downloadCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		// The URL carries the token; keep it out of the error.
		return nil, fmt.Errorf("failed to download file %s", fileID)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	limit := d.maxBytes
	if limit <= 0 {
		limit = 20 << 20
	}
	data, err = io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file data: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds %d bytes", limit)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("received empty file data")
	}
	return data, nil
}
