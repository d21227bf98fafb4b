package handlers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/require"

	"github.com/edgard/neogem/internal/config"
	"github.com/edgard/neogem/internal/database"
	"github.com/edgard/neogem/internal/errs"
	"github.com/edgard/neogem/internal/gemini"
	"github.com/edgard/neogem/internal/logger"
	"github.com/edgard/neogem/internal/retry"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []*bot.SendMessageParams
	photos   []*bot.SendPhotoParams
	actions  []models.ChatAction
	files    map[string]*models.File
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, params)
	return &models.Message{ID: len(f.messages)}, nil
}

func (f *fakeSender) SendPhoto(_ context.Context, params *bot.SendPhotoParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, params)
	return &models.Message{}, nil
}

func (f *fakeSender) SendChatAction(_ context.Context, params *bot.SendChatActionParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, params.Action)
	return true, nil
}

func (f *fakeSender) GetFile(_ context.Context, params *bot.GetFileParams) (*models.File, error) {
	file, ok := f.files[params.FileID]
	if !ok {
		return nil, fmt.Errorf("file %s not found", params.FileID)
	}
	return file, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.messages))
	for _, m := range f.messages {
		out = append(out, m.Text)
	}
	return out
}

type fakeGemini struct {
	mu          sync.Mutex
	reply       string
	err         error
	calls       int
	history     []database.Turn
	sentiment   *gemini.Sentiment
	translated  string
	translateTo string
	translateIn string
}

func (f *fakeGemini) GenerateReply(_ context.Context, _ string, history []database.Turn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.history = history
	return f.reply, f.err
}

func (f *fakeGemini) DescribeImage(context.Context, string, []byte, string) (string, error) {
	return "a cat on a sofa", nil
}

func (f *fakeGemini) Summarize(context.Context, string) (string, error) {
	return "summary", nil
}

func (f *fakeGemini) ScoreSentiment(context.Context, string) (*gemini.Sentiment, error) {
	return f.sentiment, nil
}

func (f *fakeGemini) Translate(_ context.Context, text, _, targetLang string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.translateIn, f.translateTo = text, targetLang
	return f.translated, f.err
}

func (f *fakeGemini) TranscribeAudio(context.Context, string, []byte) (string, error) {
	return "transcript", nil
}

func testConfig() *config.Config {
	return &config.Config{
		Gemini: config.GeminiConfig{ContextTurns: 5},
		Files:  config.FilesConfig{MaxDownloadBytes: 1 << 20},
		Messages: config.MessagesConfig{
			Welcome:          "welcome",
			WelcomeBack:      "welcome back",
			ContactRequest:   "share your contact",
			ContactButton:    "Share contact",
			ContactSaved:     "contact saved",
			Commands:         "/help /websearch",
			UsageHint:        "usage hint",
			NoResponse:       "no response",
			RateLimited:      "rate limited",
			QuotaExceeded:    "quota exceeded",
			ChatError:        "chat error",
			InvalidFile:      "invalid file",
			FileAnalyzed:     "File analyzed: ",
			FileError:        "file error",
			NoAnalysis:       "no analysis",
			SearchUsage:      "search usage",
			SearchFetching:   "Fetching data for the URL: ",
			SearchFetchError: "fetch error",
			SearchNoResults:  "no results",
			SearchError:      "search error",
			ImageUsage:       "image usage",
			ImageError:       "image error",
			ImageDisabled:    "image disabled",
			TranslateUsage:   "translate usage",
			TranslateError:   "translate error",
			Stop:             "bye",
		},
	}
}

func newTestDeps(t *testing.T) HandlerDeps {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	store := database.NewStore(db, logger.Discard())
	t.Cleanup(func() { _ = store.Close() })

	policy := retry.DefaultPolicy()
	policy.Sleep = func(context.Context, time.Duration) error { return nil }

	return HandlerDeps{
		Logger:       logger.Discard(),
		Config:       testConfig(),
		Store:        store,
		GeminiClient: &fakeGemini{},
		RetryPolicy:  policy,
	}
}

func textUpdate(chatID int64, text string) *models.Update {
	return &models.Update{
		ID: 1,
		Message: &models.Message{
			ID:   10,
			Chat: models.Chat{ID: chatID},
			From: &models.User{ID: chatID, FirstName: "Ada", Username: "ada"},
			Text: text,
		},
	}
}

func TestFirstContactOnboarding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	deps := newTestDeps(t)
	s := &fakeSender{}

	update := textUpdate(100, "/start")
	startCtx := ctx
	if onboard(ctx, deps, s, update) {
		startCtx = context.WithValue(ctx, newUserKey{}, true)
	}
	startHandler{deps}.handle(startCtx, s, update)

	require.Equal(t, []string{"welcome", "share your contact"}, s.texts())
	kb, ok := s.messages[1].ReplyMarkup.(*models.ReplyKeyboardMarkup)
	require.True(t, ok)
	require.True(t, kb.OneTimeKeyboard)
	require.True(t, kb.Keyboard[0][0].RequestContact)
	require.Equal(t, "Share contact", kb.Keyboard[0][0].Text)

	user, err := deps.Store.GetUser(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "Ada", user.FirstName)
	require.Nil(t, user.Phone)

	contact := textUpdate(100, "")
	contact.Message.Contact = &models.Contact{PhoneNumber: "+15550100", UserID: 100}
	require.False(t, onboard(ctx, deps, s, contact))
	require.True(t, IsContact(contact))
	contactHandler{deps}.handle(ctx, s, contact)

	require.Equal(t, "contact saved", s.texts()[2])
	_, ok = s.messages[2].ReplyMarkup.(*models.ReplyKeyboardRemove)
	require.True(t, ok)

	user, err = deps.Store.GetUser(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, user.Phone)
	require.Equal(t, "+15550100", *user.Phone)

	again := textUpdate(100, "/start")
	require.False(t, onboard(ctx, deps, s, again))
	startHandler{deps}.handle(ctx, s, again)
	require.Len(t, s.texts(), 4)
	require.True(t, strings.HasPrefix(s.texts()[3], "welcome back"))
	require.Contains(t, s.texts()[3], "/help /websearch")
}

func TestContactWithoutUserRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	deps := newTestDeps(t)
	s := &fakeSender{}

	update := textUpdate(5, "")
	update.Message.Contact = &models.Contact{PhoneNumber: "+15550199", UserID: 5}
	contactHandler{deps}.handle(ctx, s, update)

	require.Equal(t, []string{"contact saved"}, s.texts())
	user, err := deps.Store.GetUser(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "+15550199", *user.Phone)
}

func TestContactOfAnotherUserIgnored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name    string
		contact models.Contact
	}{
		{name: "other telegram user", contact: models.Contact{PhoneNumber: "+15550111", UserID: 99}},
		{name: "address book card", contact: models.Contact{PhoneNumber: "+15550112"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			deps := newTestDeps(t)
			s := &fakeSender{}

			_, err := deps.Store.EnsureUser(ctx, &database.User{ChatID: 6, FirstName: "Ada"})
			require.NoError(t, err)

			update := textUpdate(6, "")
			update.Message.Contact = &tc.contact
			contactHandler{deps}.handle(ctx, s, update)

			require.Equal(t, []string{"share your contact"}, s.texts())
			kb, ok := s.messages[0].ReplyMarkup.(*models.ReplyKeyboardMarkup)
			require.True(t, ok)
			require.True(t, kb.Keyboard[0][0].RequestContact)

			user, err := deps.Store.GetUser(ctx, 6)
			require.NoError(t, err)
			require.Nil(t, user.Phone)
		})
	}
}

func TestChatUsesRecentWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	deps := newTestDeps(t)
	deps.Config.Gemini.SentimentEnabled = true
	g := &fakeGemini{reply: "fine, thanks", sentiment: &gemini.Sentiment{Score: 0.5, Label: "positive"}}
	deps.GeminiClient = g
	s := &fakeSender{}

	base := time.Now().UTC().Add(-time.Hour)
	for i := range 8 {
		require.NoError(t, deps.Store.SaveTurn(ctx, &database.Turn{
			ChatID:      9,
			UserMessage: fmt.Sprintf("q%d", i),
			BotReply:    fmt.Sprintf("a%d", i),
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	chatHandler{deps}.handle(ctx, s, textUpdate(9, "how are you?"))

	require.Equal(t, []string{"fine, thanks"}, s.texts())
	require.Contains(t, s.actions, models.ChatActionTyping)
	require.Len(t, g.history, 5)
	require.Equal(t, "q3", g.history[0].UserMessage)
	require.Equal(t, "q7", g.history[4].UserMessage)

	turns, err := deps.Store.GetRecentTurns(ctx, 9, 20)
	require.NoError(t, err)
	require.Len(t, turns, 9)
	last := turns[len(turns)-1]
	require.Equal(t, "how are you?", last.UserMessage)
	require.Equal(t, "fine, thanks", last.BotReply)
	require.NotNil(t, last.SentimentScore)
	require.InDelta(t, 0.5, *last.SentimentScore, 1e-9)
}

func TestChatQuotaExhausted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	deps := newTestDeps(t)
	g := &fakeGemini{err: fmt.Errorf("gemini: %w", errs.ErrQuotaExceeded)}
	deps.GeminiClient = g
	s := &fakeSender{}

	chatHandler{deps}.handle(ctx, s, textUpdate(3, "hello"))

	require.Equal(t, 3, g.calls)
	require.Equal(t, []string{"rate limited", "rate limited", "quota exceeded"}, s.texts())

	turns, err := deps.Store.GetRecentTurns(ctx, 3, 10)
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestChatOtherErrorNotRetried(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	g := &fakeGemini{err: fmt.Errorf("boom")}
	deps.GeminiClient = g
	s := &fakeSender{}

	chatHandler{deps}.handle(context.Background(), s, textUpdate(3, "hello"))

	require.Equal(t, 1, g.calls)
	require.Equal(t, []string{"chat error"}, s.texts())
}

func TestChatEmptyReplyNotStored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	deps := newTestDeps(t)
	deps.GeminiClient = &fakeGemini{reply: "   "}
	s := &fakeSender{}

	chatHandler{deps}.handle(ctx, s, textUpdate(4, "hello"))

	require.Equal(t, []string{"no response"}, s.texts())
	turns, err := deps.Store.GetRecentTurns(ctx, 4, 10)
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestDefaultHandler(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	deps.GeminiClient = &fakeGemini{reply: "hi there"}

	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "unknown command", text: "/frobnicate now", want: []string{"usage hint"}},
		{name: "plain text", text: "hello", want: []string{"hi there"}},
		{name: "empty", text: "", want: []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &fakeSender{}
			defaultHandler{deps: deps, chat: chatHandler{deps}}.handle(context.Background(), s, textUpdate(11, tc.text))
			require.Equal(t, tc.want, s.texts())
		})
	}
}

func TestHelpAndStop(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	stopped := 0
	deps.Shutdown = func() { stopped++ }
	s := &fakeSender{}

	helpHandler{deps}.handle(context.Background(), s, textUpdate(1, "/help"))
	stopHandler{deps}.handle(context.Background(), s, textUpdate(1, "/stop"))

	require.Equal(t, []string{"/help /websearch", "bye"}, s.texts())
	_, ok := s.messages[1].ReplyMarkup.(*models.ReplyKeyboardRemove)
	require.True(t, ok)
	require.Equal(t, 1, stopped)
}

func TestTranslate(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	g := &fakeGemini{translated: "hola mundo"}
	deps.GeminiClient = g
	s := &fakeSender{}

	translateHandler{deps}.handle(context.Background(), s, textUpdate(1, "/translate Spanish hello world"))

	require.Equal(t, []string{"hola mundo"}, s.texts())
	require.Equal(t, "Spanish", g.translateTo)
	require.Equal(t, "hello world", g.translateIn)
}

func TestTranslateUsage(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	g := &fakeGemini{}
	deps.GeminiClient = g
	s := &fakeSender{}

	translateHandler{deps}.handle(context.Background(), s, textUpdate(1, "/translate Spanish"))

	require.Equal(t, []string{"translate usage"}, s.texts())
	require.Zero(t, g.calls)
}

func TestParseTranslateArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		text       string
		reply      string
		wantTarget string
		wantText   string
	}{
		{name: "inline", text: "/translate French good morning", wantTarget: "French", wantText: "good morning"},
		{name: "reply", text: "/translate German", reply: "see you later", wantTarget: "German", wantText: "see you later"},
		{name: "inline wins over reply", text: "/translate it ciao", reply: "other", wantTarget: "it", wantText: "ciao"},
		{name: "no args", text: "/translate", wantTarget: "", wantText: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			msg := &models.Message{Text: tc.text}
			if tc.reply != "" {
				msg.ReplyToMessage = &models.Message{Text: tc.reply}
			}
			target, text := parseTranslateArgs(msg)
			require.Equal(t, tc.wantTarget, target)
			require.Equal(t, tc.wantText, text)
		})
	}
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "short", text: "hello", limit: 10, want: []string{"hello"}},
		{name: "exact", text: "abcde", limit: 5, want: []string{"abcde"}},
		{name: "hard cut", text: "abcdefghij", limit: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "newline boundary", text: "abc\ndefgh", limit: 6, want: []string{"abc\n", "defgh"}},
		{name: "multibyte", text: "ééééé", limit: 2, want: []string{"éé", "éé", "é"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := splitMessage(tc.text, tc.limit)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.text, strings.Join(got, ""))
		})
	}
}

func TestCommandArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{"/websearch golang generics", "golang generics"},
		{"/websearch", ""},
		{"/websearch@neogem_bot  spaced  ", "spaced"},
		{"/generate_image\na red fox", "a red fox"},
		{"plain text", "plain text"},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, commandArgs(tc.text))
		})
	}
}

func TestRegisterAllCommands(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)

	got := RegisterAllCommands(deps)
	for _, name := range []string{"/start", "/help", "/websearch", "/generate_image", "/translate", "/stop", "contact", "upload"} {
		require.Contains(t, got, name)
		require.NotNil(t, got[name].Handler, name)
	}
	require.Equal(t, bot.MatchTypeCommandStartOnly, got["/websearch"].MatchType)
	require.NotNil(t, got["contact"].MatchFunc)
	require.NotNil(t, got["upload"].MatchFunc)

	contact := textUpdate(1, "")
	contact.Message.Contact = &models.Contact{PhoneNumber: "1"}
	require.True(t, got["contact"].MatchFunc(contact))
	require.False(t, got["upload"].MatchFunc(contact))
}
