// Package landing applies assembled changesets to the repository, one at a
// time, and records what landed in the changelog.
package landing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saint0x/reposage/pkg/api"
	"github.com/saint0x/reposage/pkg/changelog"
	"github.com/saint0x/reposage/pkg/changeset"
	"github.com/saint0x/reposage/pkg/log"
	"github.com/saint0x/reposage/pkg/types"
)

// Options configure a Coordinator
type Options struct {
	Repo   types.Repo
	Base   string
	Mode   Mode
	Labels []string
	// Now stamps changelog entries; nil uses time.Now
	Now func() time.Time
	// NewID returns the unique suffix of pull request branches; nil uses
	// eight hex digits of a random UUID
	NewID func() string
}

// Coordinator lands changesets sequentially. It is the only writer of the
// changelog during a run.
type Coordinator struct {
	logger   *log.Logger
	store    changelog.Store
	strategy Strategy
	repo     types.Repo
	now      func() time.Time
}

// NewCoordinator creates a coordinator. host may be nil in dry-run mode.
func NewCoordinator(logger *log.Logger, host types.RepositoryHost, store changelog.Store, opts Options) (*Coordinator, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if store == nil {
		return nil, errors.New("changelog store is required")
	}
	if opts.Repo.IsZero() {
		return nil, errors.New("repository is required")
	}

	c := &Coordinator{
		logger: logger,
		store:  store,
		repo:   opts.Repo,
		now:    opts.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}

	if opts.Mode == ModeDryRun {
		c.strategy = &DryRun{logger: logger}
		return c, nil
	}

	if host == nil {
		return nil, errors.New("repository host is required")
	}
	if opts.Base == "" {
		return nil, errors.New("base branch is required")
	}
	cm := committer{logger: logger, host: host, repo: opts.Repo}

	switch opts.Mode {
	case ModeCommit:
		c.strategy = &DirectCommit{committer: cm, base: opts.Base}
	case ModePullRequest:
		newID := opts.NewID
		if newID == nil {
			newID = func() string { return uuid.NewString()[:8] }
		}
		c.strategy = &PullRequest{committer: cm, base: opts.Base, labels: opts.Labels, newID: newID}
	default:
		return nil, fmt.Errorf("unknown landing mode %q", opts.Mode)
	}
	return c, nil
}

// Mode returns the landing mode
func (c *Coordinator) Mode() Mode {
	return c.strategy.Mode()
}

// Land lands every changeset in order and returns one result per changeset.
// The error is non-nil only when the host rejected our credentials; the
// changesets after that point are reported as failed without being attempted.
func (c *Coordinator) Land(ctx context.Context, changesets []changeset.Changeset) ([]Result, error) {
	results := make([]Result, 0, len(changesets))
	var fatal error

	for _, cs := range changesets {
		res := Result{
			ChangesetID: cs.ID,
			Paths:       cs.Paths(),
			Mode:        c.strategy.Mode(),
			State:       StatePending,
		}

		switch {
		case fatal != nil:
			res.State = StateLandingFailed
			res.ErrorKind = string(api.KindCanceled)
			res.Error = "not attempted: " + fatal.Error()
		case ctx.Err() != nil:
			res.State = StateLandingFailed
			res.ErrorKind = string(api.KindCanceled)
			res.Error = "not attempted: run cancelled"
		default:
			c.land(ctx, cs, &res)
			if res.ErrorKind == string(api.KindAuth) {
				fatal = fmt.Errorf("landing aborted: %s", res.Error)
			}
		}
		results = append(results, res)
	}
	return results, fatal
}

// land runs one changeset to completion. Cancellation is only honoured
// between changesets; once a branch or commit exists the remaining calls must
// follow, each still bounded by the per-call timeout.
func (c *Coordinator) land(ctx context.Context, cs changeset.Changeset, res *Result) {
	c.logger.Step("Landing %s", cs.ID)
	ctx = context.WithoutCancel(ctx)

	if err := c.strategy.Land(ctx, cs, res); err != nil {
		res.State = StateLandingFailed
		res.Error = err.Error()
		res.ErrorKind = string(api.KindOf(err))
		c.logger.Error("Failed to land %s: %v", cs.ID, err)
		return
	}
	if res.State != StateLanded {
		return
	}
	c.logger.Success("Landed %s", cs.ID)

	entry := changelog.Entry{
		Timestamp: c.now().UTC(),
		Summary:   entrySummary(cs),
		Paths:     cs.Paths(),
		Category:  changelog.InferCategory(categoryText(cs)),
		Ref:       res.Ref(),
	}
	if err := c.store.Append(ctx, c.repo, entry); err != nil {
		res.ChangelogError = err.Error()
		c.logger.Warning("Landed %s but failed to record it in the changelog: %v", cs.ID, err)
	}
}

func entrySummary(cs changeset.Changeset) string {
	if s := strings.TrimSpace(cs.Summary()); s != "" {
		return s
	}
	return cs.Title
}

// categoryText is the summary, or the rationales when no summary was given
func categoryText(cs changeset.Changeset) string {
	if s := cs.Summary(); s != "" {
		return s
	}
	parts := make([]string, 0, len(cs.Proposals))
	for _, p := range cs.Proposals {
		parts = append(parts, p.Rationale)
	}
	return strings.Join(parts, " ")
}
