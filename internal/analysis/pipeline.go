package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/edgard/neogem/internal/database"
	"github.com/edgard/neogem/internal/errs"
	"github.com/edgard/neogem/internal/retry"
)

// DefaultNoAnalysisText describes files no analyzer handles.
const DefaultNoAnalysisText = "No analysis available for this file type."

// Upload is a received file, fully read into memory.
type Upload struct {
	ChatID   int64
	FileName string
	Data     []byte
}

// Result is the outcome of Process.
type Result struct {
	FileID      string
	Kind        Kind
	Description string
	// Analyzed is false when no analyzer ran; Description then holds the
	// no-analysis text and nothing was stored as description.
	Analyzed bool
}

// Pipeline persists uploads and analyzes them by kind.
type Pipeline struct {
	store          database.Store
	analyzers      map[Kind]Analyzer
	policy         retry.Policy
	noAnalysisText string
	log            *slog.Logger
}

// NewPipeline creates a Pipeline. Kinds without an entry in analyzers are
// stored but not analyzed.
func NewPipeline(store database.Store, analyzers map[Kind]Analyzer, policy retry.Policy, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if policy.Logger == nil {
		policy.Logger = log
	}
	return &Pipeline{
		store:          store,
		analyzers:      analyzers,
		policy:         policy,
		noAnalysisText: DefaultNoAnalysisText,
		log:            log.With("component", "analysis"),
	}
}

// WithNoAnalysisText overrides the text returned for unanalyzed files.
func (p *Pipeline) WithNoAnalysisText(text string) *Pipeline {
	p.noAnalysisText = text
	return p
}

// Process stores the raw upload, then analyzes it and stores the
// description.
//
// A storage failure before analysis returns a nil Result and an error
// matching errs.ErrStorage. Later failures return the Result of the
// persisted file along with the error; the raw record stays intact and
// its description absent.
//
// onRetry, if non-nil, is called before each quota retry.
func (p *Pipeline) Process(ctx context.Context, up Upload, onRetry func(ctx context.Context, attempt int)) (*Result, error) {
	kind := Classify(up.FileName)
	log := p.log.With("chat_id", up.ChatID, "file_name", up.FileName, "kind", kind.String())

	file := &database.File{
		ChatID:   up.ChatID,
		FileName: up.FileName,
		MIMEType: mimetype.Detect(up.Data).String(),
		Kind:     kind.String(),
		Data:     up.Data,
	}
	if err := p.store.SaveFile(ctx, file); err != nil {
		log.ErrorContext(ctx, "Failed to persist upload", "error", err)
		return nil, errs.Storage("save file", err)
	}
	result := &Result{FileID: file.ID, Kind: kind}

	analyzer, ok := p.analyzers[kind]
	if kind == Unsupported || !ok || analyzer == nil {
		log.InfoContext(ctx, "No analyzer for upload")
		result.Description = p.noAnalysisText
		return result, nil
	}

	policy := p.policy
	if onRetry != nil {
		policy.OnRetry = func(ctx context.Context, attempt int, _ time.Duration, _ error) {
			onRetry(ctx, attempt)
		}
	}

	desc, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		return analyzer.Analyze(ctx, up)
	})
	if err != nil {
		log.WarnContext(ctx, "Analysis failed, raw file kept", "file_id", file.ID, "error", err)
		return result, err
	}

	result.Analyzed = true
	result.Description = desc
	if desc == "" {
		log.InfoContext(ctx, "Analysis produced no content", "file_id", file.ID)
		return result, nil
	}

	if err := p.store.UpdateFileDescription(ctx, file.ID, desc); err != nil {
		log.ErrorContext(ctx, "Failed to store description", "file_id", file.ID, "error", err)
		return result, errs.Storage("update file description", err)
	}

	log.InfoContext(ctx, "Upload analyzed", "file_id", file.ID, "description_chars", len(desc))
	return result, nil
}
