// Package transcribe turns audio files into text with Whisper, falling back
// to Gemini when no Whisper key is configured.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	openai "github.com/sashabaranov/go-openai"

	"github.com/edgard/neogem/internal/config"
	"github.com/edgard/neogem/internal/errs"
)

// ProviderName identifies Whisper in ProviderError values.
const ProviderName = "whisper"

// Transcriber converts the audio file at path into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Fallback transcribes raw audio bytes. gemini.Client satisfies it.
type Fallback interface {
	TranscribeAudio(ctx context.Context, mimeType string, data []byte) (string, error)
}

type whisperAPI interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// commandRunner runs an external program. Swapped in tests.
type commandRunner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", filepath.Base(name), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Service implements Transcriber.
type Service struct {
	whisper  whisperAPI
	model    string
	fallback Fallback
	ffmpeg   string
	run      commandRunner
	log      *slog.Logger
}

// New builds a Service. Whisper is used when cfg.APIKey is set, otherwise
// fallback. Both being absent makes Transcribe return errs.ErrNotConfigured.
// cfg.FFmpegPath is resolved against PATH; when it cannot be found audio is
// passed through unnormalized.
func New(cfg config.WhisperConfig, fallback Fallback, log *slog.Logger) *Service {
	return newService(cfg, fallback, log, exec.LookPath)
}

func newService(cfg config.WhisperConfig, fallback Fallback, log *slog.Logger, lookPath func(string) (string, error)) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		model:    cfg.Model,
		fallback: fallback,
		run:      runCommand,
		log:      log.With("component", "transcriber"),
	}

	if cfg.FFmpegPath != "" {
		resolved, err := lookPath(cfg.FFmpegPath)
		if err != nil {
			s.log.Warn("ffmpeg not found, audio will not be normalized",
				"ffmpeg_path", cfg.FFmpegPath, "error", err)
		} else {
			s.ffmpeg = resolved
		}
	}

	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		s.whisper = openai.NewClientWithConfig(clientCfg)
	}
	if s.model == "" {
		s.model = openai.Whisper1
	}

	s.log.Info("Transcriber initialized",
		"backend", s.backend(),
		"normalize", s.ffmpeg != "")
	return s
}

func (s *Service) backend() string {
	switch {
	case s.whisper != nil:
		return ProviderName
	case s.fallback != nil:
		return "gemini"
	}
	return "none"
}

// Transcribe normalizes the audio when ffmpeg is available and returns its
// transcript. Every intermediate file is removed before returning.
func (s *Service) Transcribe(ctx context.Context, path string) (string, error) {
	if s.whisper == nil && s.fallback == nil {
		return "", fmt.Errorf("transcription: %w", errs.ErrNotConfigured)
	}

	input := path
	if s.ffmpeg != "" {
		normalized, cleanup, err := s.normalize(ctx, path)
		if err != nil {
			return "", err
		}
		defer cleanup()
		input = normalized
	}

	if s.whisper != nil {
		return s.transcribeWhisper(ctx, input)
	}
	return s.transcribeFallback(ctx, input)
}

// normalize converts path to 16 kHz mono WAV next to it.
func (s *Service) normalize(ctx context.Context, path string) (string, func(), error) {
	out, err := os.CreateTemp(filepath.Dir(path), "neogem-*.wav")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create normalized audio file: %w", err)
	}
	outPath := out.Name()
	_ = out.Close()

	cleanup := func() {
		if err := os.Remove(outPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("Failed to remove normalized audio", "path", outPath, "error", err)
		}
	}

	if err := s.run(ctx, s.ffmpeg, "-y", "-i", path, "-ac", "1", "-ar", "16000", outPath); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to normalize audio: %w", err)
	}
	return outPath, cleanup, nil
}

func (s *Service) transcribeWhisper(ctx context.Context, path string) (string, error) {
	resp, err := s.whisper.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.model,
		FilePath: path,
	})
	if err != nil {
		s.log.WarnContext(ctx, "Whisper transcription failed", "error", err)
		return "", classifyError(err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (s *Service) transcribeFallback(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read audio file: %w", err)
	}
	mimeType := mimetype.Detect(data).String()
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return s.fallback.TranscribeAudio(ctx, mimeType, data)
}

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return errs.NewProviderError(ProviderName, apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return errs.NewProviderError(ProviderName, reqErr.HTTPStatusCode, "", err)
	}
	return errs.NewProviderError(ProviderName, 0, "", err)
}
