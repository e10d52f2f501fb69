package landing

import (
	"context"
	"fmt"

	"github.com/saint0x/reposage/pkg/api"
	"github.com/saint0x/reposage/pkg/changeset"
	"github.com/saint0x/reposage/pkg/log"
	"github.com/saint0x/reposage/pkg/types"
)

// Strategy lands one changeset, advancing res through the states of its mode
type Strategy interface {
	Mode() Mode
	Land(ctx context.Context, cs changeset.Changeset, res *Result) error
}

// DryRun records changesets without touching the host
type DryRun struct {
	logger *log.Logger
}

func (s *DryRun) Mode() Mode { return ModeDryRun }

func (s *DryRun) Land(_ context.Context, cs changeset.Changeset, res *Result) error {
	s.logger.Diff("Dry run: would land %s", cs.Title)
	return res.advance(StateRecorded)
}

// committer commits the proposals of a changeset one file at a time
type committer struct {
	logger *log.Logger
	host   types.RepositoryHost
	repo   types.Repo
}

// commitAll commits every file of cs to branch and returns the last commit SHA
func (c *committer) commitAll(ctx context.Context, branch string, cs changeset.Changeset) (string, error) {
	var sha string
	for _, p := range cs.Proposals {
		var err error
		sha, err = c.commit(ctx, branch, p, cs.Title)
		if err != nil {
			return "", err
		}
		c.logger.Git("Committed %s to %s (%s)", p.File.Path, branch, short(sha))
	}
	return sha, nil
}

// commit writes p to branch using the blob SHA that was analysed. On a
// conflict it refetches once: if the file content is still what was analysed
// the commit is retried with the fresh SHA, otherwise the file moved under us
// and landing fails.
func (c *committer) commit(ctx context.Context, branch string, p types.ChangeProposal, message string) (string, error) {
	path := p.File.Path
	sha, err := c.host.CommitFile(ctx, c.repo, branch, path, p.Proposed, message, p.BlobSHA)
	if err == nil {
		return sha, nil
	}
	if api.KindOf(err) != api.KindConflict {
		return "", fmt.Errorf("failed to commit %s: %w", path, err)
	}

	c.logger.Warning("Conflict committing %s, refetching", path)
	current, ferr := c.host.GetFile(ctx, c.repo, branch, path)
	if ferr != nil {
		return "", fmt.Errorf("failed to refetch %s after conflict: %w", path, ferr)
	}
	if current.Content != p.Original {
		return "", api.Errorf(api.KindConflict, "%s changed on %s since it was analysed", path, branch)
	}

	sha, err = c.host.CommitFile(ctx, c.repo, branch, path, p.Proposed, message, current.SHA)
	if err != nil {
		return "", fmt.Errorf("failed to commit %s after refetch: %w", path, err)
	}
	return sha, nil
}

// DirectCommit commits straight to the base branch
type DirectCommit struct {
	committer
	base string
}

func (s *DirectCommit) Mode() Mode { return ModeCommit }

func (s *DirectCommit) Land(ctx context.Context, cs changeset.Changeset, res *Result) error {
	if err := res.advance(StateCommitting); err != nil {
		return err
	}
	res.Target = s.base

	sha, err := s.commitAll(ctx, s.base, cs)
	if err != nil {
		return err
	}
	res.CommitSHA = sha
	return res.advance(StateLanded)
}

// PullRequest commits to a fresh branch and opens a pull request against base
type PullRequest struct {
	committer
	base   string
	labels []string
	newID  func() string
}

func (s *PullRequest) Mode() Mode { return ModePullRequest }

// BranchName returns the branch a changeset is pushed to
func BranchName(cs changeset.Changeset, id string) string {
	return fmt.Sprintf("reposage-improvements-%s-%s", cs.ID, id)
}

func (s *PullRequest) Land(ctx context.Context, cs changeset.Changeset, res *Result) error {
	if err := res.advance(StateBranchCreating); err != nil {
		return err
	}
	branch := BranchName(cs, s.newID())
	if err := s.host.CreateBranch(ctx, s.repo, s.base, branch); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", branch, err)
	}
	res.Target = branch
	s.logger.Branch("Created branch %s from %s", branch, s.base)

	if err := res.advance(StateCommitting); err != nil {
		return err
	}
	sha, err := s.commitAll(ctx, branch, cs)
	if err != nil {
		return err
	}
	res.CommitSHA = sha

	pr, err := s.host.OpenPullRequest(ctx, s.repo, branch, s.base, cs.PRTitle, cs.Description, s.labels)
	if err != nil {
		return fmt.Errorf("failed to open pull request: %w", err)
	}
	res.PRNumber = pr.Number
	res.PRURL = pr.URL
	s.logger.PR("Opened pull request #%d: %s", pr.Number, pr.URL)
	return res.advance(StateLanded)
}

func short(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
