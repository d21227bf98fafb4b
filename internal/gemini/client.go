// Package gemini implements integration with Google's Gemini AI API.
// It provides chat replies, image description, summarization, sentiment
// scoring, translation and audio transcription for the bot.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/neogem/internal/config"
	"github.com/edgard/neogem/internal/database"
	"github.com/edgard/neogem/internal/errs"
)

// ProviderName identifies Gemini in ProviderError values.
const ProviderName = "gemini"

// Client defines the interface for AI operations used throughout the application.
//
// Methods returning text return ("", nil) when the model finished normally
// without producing any content.
type Client interface {
	GenerateReply(ctx context.Context, prompt string, history []database.Turn) (string, error)
	DescribeImage(ctx context.Context, mimeType string, data []byte, instruction string) (string, error)
	Summarize(ctx context.Context, prompt string) (string, error)
	ScoreSentiment(ctx context.Context, text string) (*Sentiment, error)
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	TranscribeAudio(ctx context.Context, mimeType string, data []byte) (string, error)
}

// Sentiment is the scored mood of a message.
type Sentiment struct {
	Score float64 `json:"score"`
	Label string  `json:"label"`
}

// contentGenerator is the part of *genai.Models the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type sdkClient struct {
	models           contentGenerator
	log              *slog.Logger
	contentConfig    *genai.GenerateContentConfig
	defaultModelName string
	timeout          time.Duration
}

// NewClient creates a new Gemini AI client with the provided configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	c := newClient(gi.Models, cfg, log)
	c.log.Info("Gemini client initialized successfully", "model", cfg.ModelName)
	return c, nil
}

func newClient(models contentGenerator, cfg config.GeminiConfig, log *slog.Logger) *sdkClient {
	temperature := cfg.Temperature
	baseCfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if cfg.SystemInstruction != "" {
		baseCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}
	if log == nil {
		log = slog.Default()
	}

	return &sdkClient{
		models:           models,
		log:              log.With("component", "gemini_client"),
		contentConfig:    baseCfg,
		defaultModelName: cfg.ModelName,
		timeout:          cfg.Timeout,
	}
}

func (c *sdkClient) generate(ctx context.Context, op string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.models.GenerateContent(ctx, c.defaultModelName, contents, cfg)
	if err != nil {
		classified := classifyError(err)
		c.log.WarnContext(ctx, "Gemini API call failed", "operation", op, "code", errs.Code(classified), "error", err)
		return "", classified
	}

	text, err := extractText(resp)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini returned no usable content", "operation", op, "error", err)
		return "", errs.NewProviderError(ProviderName, 0, "", fmt.Errorf("%s: %w", op, err))
	}
	if text == "" {
		c.log.WarnContext(ctx, "Gemini response text is empty", "operation", op)
	}
	return text, nil
}

func (c *sdkClient) GenerateReply(ctx context.Context, prompt string, history []database.Turn) (string, error) {
	c.log.DebugContext(ctx, "Generating reply", "history_turns", len(history))

	contents := []*genai.Content{genai.NewContentFromText(BuildPrompt(prompt, history), genai.RoleUser)}
	return c.generate(ctx, "GenerateReply", contents, c.contentConfig)
}

func (c *sdkClient) DescribeImage(ctx context.Context, mimeType string, data []byte, instruction string) (string, error) {
	c.log.DebugContext(ctx, "Describing image", "image_size", len(data), "mime_type", mimeType)
	if len(data) == 0 || mimeType == "" {
		return "", fmt.Errorf("image data and MIME type are required for analysis")
	}
	if instruction == "" {
		instruction = DefaultImageInstruction
	}

	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(instruction),
		genai.NewPartFromBytes(data, mimeType),
	}, genai.RoleUser)}
	return c.generate(ctx, "DescribeImage", contents, c.contentConfig)
}

func (c *sdkClient) Summarize(ctx context.Context, prompt string) (string, error) {
	c.log.DebugContext(ctx, "Summarizing", "prompt_chars", len(prompt))

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	return c.generate(ctx, "Summarize", contents, c.contentConfig)
}

var sentimentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"score": {Type: genai.TypeNumber, Description: "Sentiment between -1 (very negative) and 1 (very positive)."},
		"label": {Type: genai.TypeString, Enum: []string{"positive", "neutral", "negative"}},
	},
	Required: []string{"score", "label"},
}

func (c *sdkClient) ScoreSentiment(ctx context.Context, text string) (*Sentiment, error) {
	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = nil
	copyCfg.ResponseMIMEType = "application/json"
	copyCfg.ResponseSchema = sentimentSchema

	contents := []*genai.Content{genai.NewContentFromText(fmt.Sprintf(SentimentInstruction, text), genai.RoleUser)}
	raw, err := c.generate(ctx, "ScoreSentiment", contents, &copyCfg)
	if err != nil {
		return nil, err
	}
	return parseSentiment(raw)
}

func (c *sdkClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	var prompt string
	if sourceLang == "" {
		prompt = fmt.Sprintf(TranslateAutoInstruction, targetLang, text)
	} else {
		prompt = fmt.Sprintf(TranslateInstruction, sourceLang, targetLang, text)
	}

	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = nil

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	return c.generate(ctx, "Translate", contents, &copyCfg)
}

func (c *sdkClient) TranscribeAudio(ctx context.Context, mimeType string, data []byte) (string, error) {
	c.log.DebugContext(ctx, "Transcribing audio", "audio_size", len(data), "mime_type", mimeType)
	if len(data) == 0 || mimeType == "" {
		return "", fmt.Errorf("audio data and MIME type are required for transcription")
	}

	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = nil

	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(TranscribeInstruction),
		genai.NewPartFromBytes(data, mimeType),
	}, genai.RoleUser)}
	return c.generate(ctx, "TranscribeAudio", contents, &copyCfg)
}

// extractText returns the text of the first candidate. A normal finish
// without content yields "". Blocked prompts and abnormal finishes are errors.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("nil response")
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		return "", fmt.Errorf("blocked by safety filter: %s", reasonMsg)
	}

	if len(resp.Candidates) == 0 {
		return "", nil
	}

	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		switch cand.FinishReason {
		case genai.FinishReasonUnspecified, genai.FinishReasonStop:
			return "", nil
		default:
			return "", fmt.Errorf("no content, finish reason: %s", cand.FinishReason)
		}
	}

	return strings.TrimSpace(resp.Text()), nil
}

// classifyError maps SDK errors onto errs kinds.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Status == "RESOURCE_EXHAUSTED" {
			return fmt.Errorf("%w: %w", errs.ErrQuotaExceeded, err)
		}
		return errs.NewProviderError(ProviderName, apiErr.Code, apiErr.Message, err)
	}

	msg := err.Error()
	if strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "Error 429") {
		return fmt.Errorf("%w: %w", errs.ErrQuotaExceeded, err)
	}
	return errs.NewProviderError(ProviderName, 0, "", err)
}

func parseSentiment(raw string) (*Sentiment, error) {
	var s Sentiment
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("invalid sentiment JSON: %w", err)
	}
	s.Score = max(-1, min(1, s.Score))
	s.Label = strings.ToLower(strings.TrimSpace(s.Label))
	switch s.Label {
	case "positive", "neutral", "negative":
	default:
		switch {
		case s.Score > 0.2:
			s.Label = "positive"
		case s.Score < -0.2:
			s.Label = "negative"
		default:
			s.Label = "neutral"
		}
	}
	return &s, nil
}
