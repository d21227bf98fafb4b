// Package imagegen generates images from text prompts through the Hugging
// Face inference API.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/edgard/neogem/internal/config"
	"github.com/edgard/neogem/internal/errs"
)

// ProviderName identifies Hugging Face in ProviderError values.
const ProviderName = "huggingface"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 2048

// Generator produces an image for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Client implements Generator.
type Client struct {
	httpClient *http.Client
	endpoint   string
	token      string
	params     parameters
	log        *slog.Logger
}

type parameters struct {
	GuidanceScale     float64 `json:"guidance_scale"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
}

type request struct {
	Inputs     string     `json:"inputs"`
	Parameters parameters `json:"parameters"`
}

// NewClient builds a Client from cfg.
func NewClient(cfg config.ImageGenConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(cfg.Model, "/"),
		token:      cfg.APIToken,
		params: parameters{
			GuidanceScale:     cfg.GuidanceScale,
			NumInferenceSteps: cfg.Steps,
			Width:             cfg.Width,
			Height:            cfg.Height,
		},
		log: log.With("component", "imagegen"),
	}
}

// Enabled reports whether an API token is configured.
func (c *Client) Enabled() bool {
	return c.token != ""
}

// Generate returns the encoded image bytes produced for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("image generation: %w", errs.ErrNotConfigured)
	}

	body, err := json.Marshal(request{Inputs: prompt, Parameters: c.params})
	if err != nil {
		return nil, fmt.Errorf("failed to encode image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")

	c.log.DebugContext(ctx, "Requesting image", "endpoint", c.endpoint, "prompt_chars", len(prompt))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.NewProviderError(ProviderName, 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.WarnContext(ctx, "Image generation failed", "status", resp.StatusCode)
		return nil, errs.NewProviderError(ProviderName, resp.StatusCode, strings.TrimSpace(string(msg)), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.NewProviderError(ProviderName, resp.StatusCode, "", fmt.Errorf("failed to read image: %w", err))
	}

	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		return nil, errs.NewProviderError(ProviderName, resp.StatusCode, "", fmt.Errorf("unexpected content type %s", mt.String()))
	}

	return data, nil
}
