package analysis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/edgard/neogem/internal/errs"
	"github.com/edgard/neogem/internal/transcribe"
)

// Analyzer derives a description for one kind of upload.
type Analyzer interface {
	Analyze(ctx context.Context, up Upload) (string, error)
}

// Summarizer is the language-model call used for PDFs.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// ImageDescriber is the vision call used for images.
type ImageDescriber interface {
	DescribeImage(ctx context.Context, mimeType string, data []byte, instruction string) (string, error)
}

// TextExtractor returns the plain text of a document.
type TextExtractor func(data []byte) (string, error)

// PDFPrompt builds the summarization prompt from at most maxChars
// characters of the extracted text.
func PDFPrompt(name, text string, maxChars int) string {
	return fmt.Sprintf("Summarize the content of the PDF: %s. The extracted text is: %s...", name, truncateRunes(text, maxChars))
}

// ImagePrompt is the instruction sent along with an image.
func ImagePrompt(name string) string {
	return "Describe the content of the image: " + name
}

// PDFAnalyzer summarizes the text layer of a PDF.
type PDFAnalyzer struct {
	Summarizer Summarizer
	Extract    TextExtractor
	MaxChars   int
}

func (a *PDFAnalyzer) Analyze(ctx context.Context, up Upload) (string, error) {
	extract := a.Extract
	if extract == nil {
		extract = ExtractPDFText
	}
	text, err := extract(up.Data)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", up.FileName, err)
	}
	return a.Summarizer.Summarize(ctx, PDFPrompt(up.FileName, text, a.MaxChars))
}

// ExtractPDFText reads the plain text of every page.
func ExtractPDFText(data []byte) (text string, err error) {
	// The PDF parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// ImageAnalyzer describes images with a vision model.
type ImageAnalyzer struct {
	Describer ImageDescriber
}

func (a *ImageAnalyzer) Analyze(ctx context.Context, up Upload) (string, error) {
	mt := mimetype.Detect(up.Data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: %s is %s", errs.ErrFileUnsupported, up.FileName, mt.String())
	}
	return a.Describer.DescribeImage(ctx, mt.String(), up.Data, ImagePrompt(up.FileName))
}

// AudioAnalyzer transcribes audio through a scratch file that never
// outlives the call.
type AudioAnalyzer struct {
	Transcriber transcribe.Transcriber
	ScratchDir  string
}

func (a *AudioAnalyzer) Analyze(ctx context.Context, up Upload) (string, error) {
	if err := os.MkdirAll(a.ScratchDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create scratch dir: %w", err)
	}

	f, err := os.CreateTemp(a.ScratchDir, "upload-*"+strings.ToLower(filepath.Ext(up.FileName)))
	if err != nil {
		return "", fmt.Errorf("failed to create scratch file: %w", err)
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()

	if _, err := f.Write(up.Data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close scratch file: %w", err)
	}

	return a.Transcriber.Transcribe(ctx, path)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
