package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/edgard/neogem/internal/config"
	"github.com/edgard/neogem/internal/database"
	"github.com/edgard/neogem/internal/errs"
	"github.com/edgard/neogem/internal/logger"
)

type fakeModels struct {
	resp     *genai.GenerateContentResponse
	err      error
	contents []*genai.Content
	cfg      *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.contents = contents
	f.cfg = cfg
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func newTestClient(models contentGenerator) *sdkClient {
	return newClient(models, config.GeminiConfig{ModelName: "test-model", Temperature: 1, SystemInstruction: "be nice"}, logger.Discard())
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	if got := BuildPrompt("hi", nil); got != "hi" {
		t.Errorf("BuildPrompt without history = %q", got)
	}

	history := []database.Turn{
		{UserMessage: "first", BotReply: "one"},
		{UserMessage: "second", BotReply: "two"},
	}
	got := BuildPrompt("third", history)
	want := "Previous conversation:\nUser: first\nAssistant: one\nUser: second\nAssistant: two\n\nUser: third"
	if got != want {
		t.Errorf("BuildPrompt() =\n%q\nwant\n%q", got, want)
	}
}

func TestExtractText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		want    string
		wantErr bool
	}{
		{name: "text", resp: textResponse("  hello  "), want: "hello"},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, want: ""},
		{
			name: "empty stop",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}}},
			want: "",
		},
		{
			name:    "safety finish",
			resp:    &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}},
			wantErr: true,
		},
		{
			name: "blocked prompt",
			resp: &genai.GenerateContentResponse{PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
				BlockReason: genai.BlockedReasonSafety,
			}},
			wantErr: true,
		},
		{name: "nil", resp: nil, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := extractText(tc.resp)
			if (err != nil) != tc.wantErr {
				t.Fatalf("extractText() error = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("extractText() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantQuota bool
		wantCode  string
	}{
		{"api 429", &genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, true, errs.CodeQuota},
		{"api status only", &genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED"}, true, errs.CodeQuota},
		{"api 500", &genai.APIError{Code: 500, Message: "internal"}, false, errs.CodeProvider},
		{"string quota", errors.New("Error 429, Message: quota, Status: RESOURCE_EXHAUSTED"), true, errs.CodeQuota},
		{"wrapped string quota", fmt.Errorf("call: %w", errors.New("RESOURCE_EXHAUSTED")), true, errs.CodeQuota},
		{"network", errors.New("connection reset"), false, errs.CodeProvider},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := classifyError(tc.err)
			if errors.Is(got, errs.ErrQuotaExceeded) != tc.wantQuota {
				t.Errorf("quota = %v, want %v (%v)", !tc.wantQuota, tc.wantQuota, got)
			}
			if code := errs.Code(got); code != tc.wantCode {
				t.Errorf("code = %s, want %s", code, tc.wantCode)
			}
		})
	}

	if got := classifyError(context.Canceled); !errors.Is(got, context.Canceled) {
		t.Errorf("context errors should pass through, got %v", got)
	}
}

func TestParseSentiment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw       string
		wantScore float64
		wantLabel string
		wantErr   bool
	}{
		{raw: `{"score": 0.7, "label": "positive"}`, wantScore: 0.7, wantLabel: "positive"},
		{raw: `{"score": -3, "label": "NEGATIVE"}`, wantScore: -1, wantLabel: "negative"},
		{raw: `{"score": 0.05, "label": "meh"}`, wantScore: 0.05, wantLabel: "neutral"},
		{raw: `{"score": 0.9}`, wantScore: 0.9, wantLabel: "positive"},
		{raw: `not json`, wantErr: true},
	}

	for _, tc := range tests {
		got, err := parseSentiment(tc.raw)
		if (err != nil) != tc.wantErr {
			t.Fatalf("parseSentiment(%q) error = %v", tc.raw, err)
		}
		if tc.wantErr {
			continue
		}
		if got.Score != tc.wantScore || got.Label != tc.wantLabel {
			t.Errorf("parseSentiment(%q) = %+v, want %v/%s", tc.raw, got, tc.wantScore, tc.wantLabel)
		}
	}
}

func TestGenerateReplySendsHistory(t *testing.T) {
	t.Parallel()

	models := &fakeModels{resp: textResponse("sure")}
	c := newTestClient(models)

	got, err := c.GenerateReply(context.Background(), "and now?", []database.Turn{{UserMessage: "hi", BotReply: "hello"}})
	if err != nil {
		t.Fatalf("GenerateReply() error = %v", err)
	}
	if got != "sure" {
		t.Errorf("reply = %q", got)
	}
	if len(models.contents) != 1 || !strings.Contains(models.contents[0].Parts[0].Text, "User: hi\nAssistant: hello") {
		t.Errorf("history missing from request: %+v", models.contents)
	}
	if models.cfg.SystemInstruction == nil || models.cfg.SystemInstruction.Parts[0].Text != "be nice" {
		t.Errorf("system instruction not set")
	}
}

func TestGenerateReplyQuota(t *testing.T) {
	t.Parallel()

	c := newTestClient(&fakeModels{err: &genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}})
	_, err := c.GenerateReply(context.Background(), "hi", nil)
	if !errors.Is(err, errs.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestScoreSentimentUsesSchema(t *testing.T) {
	t.Parallel()

	models := &fakeModels{resp: textResponse(`{"score": -0.5, "label": "negative"}`)}
	c := newTestClient(models)

	s, err := c.ScoreSentiment(context.Background(), "this is awful")
	if err != nil {
		t.Fatalf("ScoreSentiment() error = %v", err)
	}
	if s.Label != "negative" || s.Score != -0.5 {
		t.Errorf("sentiment = %+v", s)
	}
	if models.cfg.ResponseMIMEType != "application/json" || models.cfg.ResponseSchema == nil {
		t.Errorf("JSON schema mode not requested: %+v", models.cfg)
	}
	if c.contentConfig.ResponseSchema != nil {
		t.Errorf("base config was mutated")
	}
}

func TestDescribeImageRequiresData(t *testing.T) {
	t.Parallel()

	c := newTestClient(&fakeModels{resp: textResponse("x")})
	if _, err := c.DescribeImage(context.Background(), "", nil, ""); err == nil {
		t.Fatal("expected error for empty image")
	}

	models := &fakeModels{resp: textResponse("a cat")}
	c = newTestClient(models)
	got, err := c.DescribeImage(context.Background(), "image/png", []byte{1, 2, 3}, "")
	if err != nil || got != "a cat" {
		t.Fatalf("DescribeImage() = %q, %v", got, err)
	}
	parts := models.contents[0].Parts
	if len(parts) != 2 || parts[0].Text != DefaultImageInstruction || parts[1].InlineData == nil {
		t.Errorf("unexpected parts: %+v", parts)
	}
}
