// Package analysis turns one candidate file into a change proposal by asking
// the model to review it.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/saint0x/reposage/pkg/api"
	"github.com/saint0x/reposage/pkg/changelog"
	"github.com/saint0x/reposage/pkg/log"
	"github.com/saint0x/reposage/pkg/selector"
	"github.com/saint0x/reposage/pkg/types"
)

// FileGetter is the slice of the repository host a worker needs
type FileGetter interface {
	GetFile(ctx context.Context, repo types.Repo, ref, path string) (*types.File, error)
}

// Config is fixed for the whole run
type Config struct {
	Repo        types.Repo
	Ref         string
	Model       string
	Description string
	// MaxFileSize is the content ceiling in bytes; zero means
	// selector.DefaultMaxFileSize
	MaxFileSize int
	// History is the changelog excerpt shown to the model
	History string
}

// Worker analyses files. It holds no mutable state and is safe for
// concurrent use.
type Worker struct {
	logger   *log.Logger
	host     FileGetter
	provider types.ModelProvider
	cfg      Config
}

// NewWorker creates a worker
func NewWorker(logger *log.Logger, host FileGetter, provider types.ModelProvider, cfg Config) (*Worker, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if host == nil {
		return nil, errors.New("repository host is required")
	}
	if provider == nil {
		return nil, errors.New("model provider is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = selector.DefaultMaxFileSize
	}
	return &Worker{
		logger:   logger,
		host:     host,
		provider: provider,
		cfg:      cfg,
	}, nil
}

// Analyze fetches file, asks the model for improvements and returns the
// proposal. Failures are reported in the proposal, never as an error.
func (w *Worker) Analyze(ctx context.Context, file types.CandidateFile) types.ChangeProposal {
	p := types.ChangeProposal{
		File:  file,
		Model: w.cfg.Model,
	}

	w.logger.Step("Analyzing %s", file.Path)

	f, err := w.host.GetFile(ctx, w.cfg.Repo, w.cfg.Ref, file.Path)
	if err != nil {
		kind := api.KindOf(err)
		switch kind {
		case api.KindNotFound:
			w.logger.Warning("Skipping %s: not found at %s", file.Path, w.cfg.Ref)
			return skipped(p, kind, "file not found at "+w.cfg.Ref)
		case api.KindSizeExceeded:
			w.logger.Warning("Skipping %s: too large to fetch: %v", file.Path, err)
			return skipped(p, kind, fmt.Sprintf("file too large to fetch: %v", err))
		}
		w.logger.Error("Failed to fetch %s: %v", file.Path, err)
		return failed(p, kind, fmt.Sprintf("failed to fetch file: %v", err))
	}
	p.Original = f.Content
	p.Proposed = f.Content
	p.BlobSHA = f.SHA

	if len(f.Content) > w.cfg.MaxFileSize {
		w.logger.Warning("Skipping %s: %d bytes exceeds the %d byte limit", file.Path, len(f.Content), w.cfg.MaxFileSize)
		return skipped(p, api.KindSizeExceeded, fmt.Sprintf("file is %d bytes, limit is %d", len(f.Content), w.cfg.MaxFileSize))
	}

	prompt, err := BuildPrompt(file, f.Content, w.cfg.Description, w.cfg.History)
	if err != nil {
		return failed(p, api.KindUnknown, fmt.Sprintf("failed to build prompt: %v", err))
	}

	raw, err := w.provider.Complete(ctx, w.cfg.Model, prompt)
	if err != nil {
		kind := api.KindOf(err)
		w.logger.Error("Model call failed for %s: %v", file.Path, err)
		p = failed(p, kind, fmt.Sprintf("model call failed (%s): %v", kind, err))
		p.Fatal = api.IsFatal(err)
		return p
	}

	resp, err := ParseResponse(raw)
	if err != nil {
		w.logger.Error("Unparseable model response for %s: %v", file.Path, err)
		return failed(p, api.KindParse, fmt.Sprintf("%v\n\nraw model output:\n%s", err, raw))
	}

	proposed, applied := resp.Apply(f.Content)
	p.Proposed = proposed
	p.Summary = resp.Summary
	p.EditsApplied = len(applied)
	p.Rationale = resp.Rationale(applied)

	if !p.Changed() {
		w.logger.Info("No applicable changes for %s", file.Path)
		p.Outcome = types.OutcomeSkipped
		if p.Rationale == "" {
			p.Rationale = "no applicable changes"
		}
		return p
	}

	w.logger.Success("Proposed %d change(s) for %s", len(applied), file.Path)
	p.Outcome = types.OutcomeSucceeded
	return p
}

func skipped(p types.ChangeProposal, kind api.Kind, rationale string) types.ChangeProposal {
	p.Outcome = types.OutcomeSkipped
	p.ErrorKind = string(kind)
	p.Rationale = rationale
	return p
}

func failed(p types.ChangeProposal, kind api.Kind, rationale string) types.ChangeProposal {
	p.Outcome = types.OutcomeFailed
	p.ErrorKind = string(kind)
	p.Rationale = rationale
	p.Proposed = p.Original
	return p
}

// HistoryExcerpt bounds the changelog shown to the model to budget tokens
func HistoryExcerpt(entries []changelog.Entry, budget int) string {
	return changelog.Excerpt(entries, budget, CountTokens)
}
