// Package runner wires the pipeline stages into a single run: select files,
// analyse them on a bounded pool, assemble changesets and land them.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/saint0x/reposage/pkg/analysis"
	"github.com/saint0x/reposage/pkg/api"
	"github.com/saint0x/reposage/pkg/changelog"
	"github.com/saint0x/reposage/pkg/changeset"
	"github.com/saint0x/reposage/pkg/config"
	"github.com/saint0x/reposage/pkg/landing"
	"github.com/saint0x/reposage/pkg/log"
	"github.com/saint0x/reposage/pkg/pool"
	"github.com/saint0x/reposage/pkg/selector"
	"github.com/saint0x/reposage/pkg/summary"
	"github.com/saint0x/reposage/pkg/types"
)

// Runner executes one run against one repository
type Runner struct {
	logger   *log.Logger
	cfg      config.RunConfig
	host     types.RepositoryHost
	provider types.ModelProvider
	store    changelog.Store

	clock api.Clock
	now   func() time.Time
	newID func() string
}

// Option configures a Runner
type Option func(*Runner)

// WithClock replaces the clock used for backoff waits
func WithClock(c api.Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithNow replaces the wall clock used for timestamps
func WithNow(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithNewID replaces the generator of run ids and branch suffixes
func WithNewID(newID func() string) Option {
	return func(r *Runner) {
		r.newID = newID
	}
}

// New creates a runner. The config must already be valid.
func New(logger *log.Logger, cfg config.RunConfig, host types.RepositoryHost, provider types.ModelProvider, store changelog.Store, opts ...Option) (*Runner, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if host == nil {
		return nil, errors.New("repository host is required")
	}
	if provider == nil {
		return nil, errors.New("model provider is required")
	}
	if store == nil {
		return nil, errors.New("changelog store is required")
	}
	if cfg.Repo.IsZero() {
		return nil, errors.New("repository is required")
	}

	r := &Runner{
		logger:   logger,
		cfg:      cfg,
		host:     host,
		provider: provider,
		store:    store,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}

	if logger.IsDebug() {
		logger.Debug("Runner configured: %s", cfg)
	}
	return r, nil
}

// Run executes the pipeline. The report is returned whenever analysis took
// place, even when the error is non-nil. The error is non-nil only for
// conditions that stop the whole run: rejected credentials, a failed file
// listing, or an unresolvable base branch.
func (r *Runner) Run(ctx context.Context) (*summary.Report, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run not started: %w", err)
	}

	runID := r.newID()
	started := r.now()
	mode := landing.ModeFor(r.cfg.DryRun, r.cfg.UsePR)
	r.logger.Info("Starting run %s on %s (%s)", runID, r.cfg.Repo, mode)

	client := api.NewClient(api.Options{
		Policy:      r.cfg.Retry,
		CallTimeout: r.cfg.CallTimeout,
		Limits:      r.cfg.Limits(),
		Clock:       r.clock,
		Logger:      r.logger,
	})
	host := api.WrapHost(r.host, client)
	provider := api.WrapProvider(r.provider, client)

	base := r.cfg.Base
	if base == "" {
		b, err := host.DefaultBranch(ctx, r.cfg.Repo)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve base branch: %w", err)
		}
		base = b
	}
	r.logger.Branch("Analysing %s@%s", r.cfg.Repo, base)

	// read once; workers only ever see this snapshot
	entries, err := r.store.ReadAll(ctx, r.cfg.Repo)
	if err != nil {
		r.logger.Warning("Failed to read changelog, continuing without history: %v", err)
		entries = nil
	}
	history := analysis.HistoryExcerpt(entries, r.cfg.HistoryTokens)

	sel, err := selector.New(r.logger, host, r.cfg.Repo, selector.Options{
		Extensions:  r.cfg.Extensions,
		Exclude:     r.cfg.Exclude,
		MaxFileSize: r.cfg.MaxFileSize,
		MaxFiles:    r.cfg.MaxFiles,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create selector: %w", err)
	}
	candidates, err := sel.Select(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}

	worker, err := analysis.NewWorker(r.logger, host, provider, analysis.Config{
		Repo:        r.cfg.Repo,
		Ref:         base,
		Model:       r.cfg.Model,
		Description: r.cfg.Description,
		MaxFileSize: r.cfg.MaxFileSize,
		History:     history,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}

	size := pool.Resolve(r.cfg.MaxWorkers, client.MaxInFlight())
	proposals := pool.New(r.logger, size).Run(ctx, candidates, worker.Analyze)

	meta := summary.Meta{
		RunID:     runID,
		Repo:      r.cfg.Repo,
		Base:      base,
		Model:     r.cfg.Model,
		Mode:      mode,
		Workers:   size,
		StartedAt: started,
	}

	if fatal := fatalProposal(proposals); fatal != nil {
		meta.FinishedAt = r.now()
		report := summary.Build(meta, proposals, nil, nil)
		report.Fatal = fatal.Error()
		r.logger.Error("Run aborted: %v", fatal)
		r.save(report)
		return report, fatal
	}

	grouper, err := changeset.GrouperFor(r.cfg.Group)
	if err != nil {
		return nil, err
	}
	sets := changeset.NewAssembler(r.logger, grouper).Assemble(proposals)
	r.logger.Info("Assembled %d changesets from %d proposals", len(sets), len(proposals))

	coord, err := landing.NewCoordinator(r.logger, host, r.store, landing.Options{
		Repo:   r.cfg.Repo,
		Base:   base,
		Mode:   mode,
		Labels: r.cfg.Labels,
		Now:    r.now,
		NewID:  r.branchID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create landing coordinator: %w", err)
	}
	results, landErr := coord.Land(ctx, sets)

	meta.FinishedAt = r.now()
	report := summary.Build(meta, proposals, sets, results)
	if landErr != nil {
		report.Fatal = landErr.Error()
		r.logger.Error("Run aborted: %v", landErr)
	}
	r.save(report)

	c := report.Counts
	r.logger.Success("Run %s done: %d succeeded, %d skipped, %d failed; %d landed, %d recorded, %d landing failures",
		runID, c.Succeeded, c.Skipped, c.Failed, c.Landed, c.Recorded, c.LandingFailed)
	return report, landErr
}

func (r *Runner) branchID() string {
	id := r.newID()
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}

// save writes the report when an output file is configured, and always in
// dry run so the proposed diffs are not lost
func (r *Runner) save(report *summary.Report) {
	path := r.cfg.OutputFile
	if path == "" && r.cfg.DryRun {
		path = summary.DefaultPath
	}
	if path == "" {
		return
	}
	if err := report.Write(path); err != nil {
		r.logger.Error("Failed to write run summary: %v", err)
		return
	}
	r.logger.Success("Run summary written to %s", path)
}

func fatalProposal(proposals []types.ChangeProposal) error {
	for _, p := range proposals {
		if p.Fatal {
			return api.NewError(api.Kind(p.ErrorKind), fmt.Errorf("analysis of %s aborted the run: %s", p.File.Path, p.Rationale))
		}
	}
	return nil
}
