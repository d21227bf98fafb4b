package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgard/neogem/internal/database"
	"github.com/edgard/neogem/internal/errs"
	"github.com/edgard/neogem/internal/logger"
	"github.com/edgard/neogem/internal/retry"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeSummarizer struct {
	reply   string
	err     error
	calls   int
	prompts []string
}

func (f *fakeSummarizer) Summarize(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

type fakeDescriber struct {
	mimeType    string
	instruction string
}

func (f *fakeDescriber) DescribeImage(_ context.Context, mimeType string, _ []byte, instruction string) (string, error) {
	f.mimeType = mimeType
	f.instruction = instruction
	return "a sunset", nil
}

type fakeTranscriber struct {
	path string
	data []byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path string) (string, error) {
	f.path = path
	f.data, _ = os.ReadFile(path)
	return "hello from audio", nil
}

type failingSaveStore struct {
	database.Store
}

func (failingSaveStore) SaveFile(context.Context, *database.File) error {
	return errors.New("disk full")
}

func newStore(t *testing.T) database.Store {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "analysis.db"))
	require.NoError(t, err)
	store := database.NewStore(db, logger.Discard())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func noWaitPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want Kind
	}{
		{"report.pdf", PDF},
		{"REPORT.PDF", PDF},
		{"photo.jpg", Image},
		{"photo.JPEG", Image},
		{"diagram.png", Image},
		{"song.mp3", Audio},
		{"memo.wav", Audio},
		{"voice.ogg", Audio},
		{"clip.m4a", Audio},
		{"notes.txt", Unsupported},
		{"archive.tar.gz", Unsupported},
		{"noextension", Unsupported},
		{"", Unsupported},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Classify(tc.name))
			require.Equal(t, tc.want, Classify(tc.name), "classification must be stable")
		})
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()
	require.Equal(t, "pdf", PDF.String())
	require.Equal(t, "image", Image.String())
	require.Equal(t, "audio", Audio.String())
	require.Equal(t, "unsupported", Unsupported.String())
}

func TestPDFPromptBound(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 999) + "Z" + strings.Repeat("b", 4000)
	prompt := PDFPrompt("report.pdf", text, 1000)

	require.True(t, strings.HasPrefix(prompt, "Summarize the content of the PDF: report.pdf. The extracted text is: "))
	require.Contains(t, prompt, strings.Repeat("a", 999)+"Z...")
	require.NotContains(t, prompt, "b")

	short := PDFPrompt("tiny.pdf", "hello", 1000)
	require.True(t, strings.HasSuffix(short, "hello..."))
}

func TestProcessReportPDF(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	summarizer := &fakeSummarizer{reply: "A quarterly report."}
	extracted := strings.Repeat("q", 5000)
	p := NewPipeline(store, map[Kind]Analyzer{
		PDF: &PDFAnalyzer{
			Summarizer: summarizer,
			Extract:    func([]byte) (string, error) { return extracted, nil },
			MaxChars:   1000,
		},
	}, noWaitPolicy(), logger.Discard())

	res, err := p.Process(ctx, Upload{ChatID: 9, FileName: "report.pdf", Data: []byte("%PDF-1.4 body")}, nil)
	require.NoError(t, err)
	require.True(t, res.Analyzed)
	require.Equal(t, PDF, res.Kind)
	require.Equal(t, "A quarterly report.", res.Description)

	require.Len(t, summarizer.prompts, 1)
	require.Equal(t, 1000, strings.Count(summarizer.prompts[0], "q"))

	file, err := store.GetFile(ctx, res.FileID)
	require.NoError(t, err)
	require.Equal(t, "report.pdf", file.FileName)
	require.Equal(t, "pdf", file.Kind)
	require.Equal(t, []byte("%PDF-1.4 body"), file.Data)
	require.NotNil(t, file.Description)
	require.Equal(t, "A quarterly report.", *file.Description)
}

func TestProcessUnsupportedSkipsAnalysis(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	summarizer := &fakeSummarizer{reply: "never"}
	p := NewPipeline(store, map[Kind]Analyzer{
		PDF: &PDFAnalyzer{Summarizer: summarizer, MaxChars: 1000},
	}, noWaitPolicy(), logger.Discard()).WithNoAnalysisText("nothing to see")

	res, err := p.Process(ctx, Upload{ChatID: 1, FileName: "notes.txt", Data: []byte("plain text")}, nil)
	require.NoError(t, err)
	require.False(t, res.Analyzed)
	require.Equal(t, "nothing to see", res.Description)
	require.Zero(t, summarizer.calls)

	file, err := store.GetFile(ctx, res.FileID)
	require.NoError(t, err)
	require.Nil(t, file.Description)
	require.Equal(t, []byte("plain text"), file.Data)
}

func TestProcessFailureKeepsRawFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	summarizer := &fakeSummarizer{err: errs.NewProviderError("gemini", 429, "quota", nil)}
	p := NewPipeline(store, map[Kind]Analyzer{
		PDF: &PDFAnalyzer{
			Summarizer: summarizer,
			Extract:    func([]byte) (string, error) { return "text", nil },
			MaxChars:   1000,
		},
	}, noWaitPolicy(), logger.Discard())

	var retries []int
	res, err := p.Process(ctx, Upload{ChatID: 2, FileName: "report.pdf", Data: []byte("raw")}, func(_ context.Context, attempt int) {
		retries = append(retries, attempt)
	})
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrQuotaExceeded)
	require.Equal(t, 3, summarizer.calls)
	require.Equal(t, []int{1, 2}, retries)
	require.NotNil(t, res)
	require.False(t, res.Analyzed)

	file, err := store.GetFile(ctx, res.FileID)
	require.NoError(t, err)
	require.Equal(t, []byte("raw"), file.Data)
	require.Nil(t, file.Description)
}

func TestProcessNonRetryableFailure(t *testing.T) {
	t.Parallel()
	store := newStore(t)

	summarizer := &fakeSummarizer{err: errors.New("bad request")}
	p := NewPipeline(store, map[Kind]Analyzer{
		PDF: &PDFAnalyzer{
			Summarizer: summarizer,
			Extract:    func([]byte) (string, error) { return "text", nil },
			MaxChars:   1000,
		},
	}, noWaitPolicy(), logger.Discard())

	_, err := p.Process(context.Background(), Upload{ChatID: 2, FileName: "a.pdf", Data: []byte("raw")}, nil)
	require.ErrorIs(t, err, errs.ErrProcessing)
	require.Equal(t, 1, summarizer.calls)
}

func TestProcessStorageFailure(t *testing.T) {
	t.Parallel()

	summarizer := &fakeSummarizer{reply: "x"}
	p := NewPipeline(failingSaveStore{Store: newStore(t)}, map[Kind]Analyzer{
		PDF: &PDFAnalyzer{Summarizer: summarizer, MaxChars: 1000},
	}, noWaitPolicy(), logger.Discard())

	res, err := p.Process(context.Background(), Upload{ChatID: 3, FileName: "report.pdf", Data: []byte("x")}, nil)
	require.ErrorIs(t, err, errs.ErrStorage)
	require.Nil(t, res)
	require.Zero(t, summarizer.calls)
}

func TestImageAnalyzer(t *testing.T) {
	t.Parallel()

	d := &fakeDescriber{}
	a := &ImageAnalyzer{Describer: d}

	got, err := a.Analyze(context.Background(), Upload{FileName: "AgAD123.jpg", Data: pngHeader})
	require.NoError(t, err)
	require.Equal(t, "a sunset", got)
	require.Equal(t, "image/png", d.mimeType)
	require.Equal(t, "Describe the content of the image: AgAD123.jpg", d.instruction)

	_, err = a.Analyze(context.Background(), Upload{FileName: "fake.png", Data: []byte("not an image")})
	require.ErrorIs(t, err, errs.ErrFileUnsupported)
}

func TestAudioAnalyzerRemovesScratchFile(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "scratch")
	tr := &fakeTranscriber{}
	a := &AudioAnalyzer{Transcriber: tr, ScratchDir: dir}

	got, err := a.Analyze(context.Background(), Upload{FileName: "Memo.OGG", Data: []byte("OggS audio")})
	require.NoError(t, err)
	require.Equal(t, "hello from audio", got)
	require.Equal(t, []byte("OggS audio"), tr.data)
	require.Equal(t, ".ogg", filepath.Ext(tr.path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestExtractPDFTextMalformed(t *testing.T) {
	t.Parallel()

	_, err := ExtractPDFText([]byte("definitely not a pdf"))
	require.Error(t, err)
}
