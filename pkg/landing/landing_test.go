package landing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/saint0x/reposage/pkg/api"
	"github.com/saint0x/reposage/pkg/changelog"
	"github.com/saint0x/reposage/pkg/changeset"
	"github.com/saint0x/reposage/pkg/hosttest"
	"github.com/saint0x/reposage/pkg/log"
	"github.com/saint0x/reposage/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var repo = types.Repo{Owner: "acme", Name: "widgets"}

var fixedNow = func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) }

// setup seeds host with files on main and returns one changeset per file that
// rewrites its content
func setup(t *testing.T, files map[string]string) (*hosttest.Host, []changeset.Changeset) {
	t.Helper()
	host := hosttest.New("main")
	var proposals []types.ChangeProposal
	for _, path := range []string{"a.py", "b.py", "c.py"} {
		content, ok := files[path]
		if !ok {
			continue
		}
		host.AddFile("main", path, content)
		proposals = append(proposals, types.ChangeProposal{
			File:      types.NewCandidate(path, len(content)),
			Original:  content,
			Proposed:  content + "# improved\n",
			Summary:   "Fix edge case in " + path,
			Rationale: "**Change 1**: handle it",
			Model:     "m",
			Outcome:   types.OutcomeSucceeded,
			BlobSHA:   hosttest.BlobSHA(content),
		})
	}
	return host, changeset.NewAssembler(nil, nil).Assemble(proposals)
}

func newCoordinator(t *testing.T, host types.RepositoryHost, store changelog.Store, mode Mode) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(log.Discard(), host, store, Options{
		Repo:   repo,
		Base:   "main",
		Mode:   mode,
		Labels: []string{"reposage"},
		Now:    fixedNow,
		NewID:  func() string { return "deadbeef" },
	})
	require.NoError(t, err)
	return c
}

func TestDirectCommit(t *testing.T) {
	host, sets := setup(t, map[string]string{"a.py": "a\n", "b.py": "b\n"})
	store := changelog.NewMemoryStore(repo)

	results, err := newCoordinator(t, host, store, ModeCommit).Land(context.Background(), sets)
	require.NoError(t, err)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, StateLanded, r.State)
		assert.Equal(t, ModeCommit, r.Mode)
		assert.Equal(t, "main", r.Target)
		assert.NotEmpty(t, r.CommitSHA)
	}
	got, _ := host.Content("main", "a.py")
	assert.Equal(t, "a\n# improved\n", got)
	assert.Zero(t, host.Calls(hosttest.OpCreateBranch))
	assert.Zero(t, host.Calls(hosttest.OpOpenPullRequest))

	entries, _ := store.ReadAll(context.Background(), repo)
	require.Len(t, entries, 2)
	assert.Equal(t, "Fix edge case in a.py", entries[0].Summary)
	assert.Equal(t, changelog.CategoryFixed, entries[0].Category)
	assert.Equal(t, []string{"a.py"}, entries[0].Paths)
	assert.Equal(t, results[0].CommitSHA, entries[0].Ref)
	assert.True(t, fixedNow().Equal(entries[0].Timestamp))
}

func TestPullRequest(t *testing.T) {
	host, sets := setup(t, map[string]string{"a.py": "a\n"})
	store := changelog.NewMemoryStore(repo)

	results, err := newCoordinator(t, host, store, ModePullRequest).Land(context.Background(), sets)
	require.NoError(t, err)

	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, StateLanded, r.State)
	assert.Equal(t, "reposage-improvements-a-py-deadbeef", r.Target)
	assert.Equal(t, 1, r.PRNumber)
	assert.Equal(t, "https://github.com/acme/widgets/pull/1", r.PRURL)

	// base untouched, branch carries the change
	base, _ := host.Content("main", "a.py")
	assert.Equal(t, "a\n", base)
	head, _ := host.Content(r.Target, "a.py")
	assert.Equal(t, "a\n# improved\n", head)

	prs := host.PullRequests()
	require.Len(t, prs, 1)
	assert.Equal(t, "RepoSage: Improve a.py", prs[0].Title)
	assert.Equal(t, "main", prs[0].Base)
	assert.Equal(t, []string{"reposage"}, prs[0].Labels)
	assert.True(t, strings.HasPrefix(prs[0].Body, "# RepoSage: AI-Suggested Code Improvements"))

	entries, _ := store.ReadAll(context.Background(), repo)
	require.Len(t, entries, 1)
	assert.Equal(t, r.PRURL, entries[0].Ref)
}

func TestDryRunNeverTouchesHost(t *testing.T) {
	host, sets := setup(t, map[string]string{"a.py": "a\n", "b.py": "b\n"})
	store := changelog.NewMemoryStore(repo)

	results, err := newCoordinator(t, host, store, ModeDryRun).Land(context.Background(), sets)
	require.NoError(t, err)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, StateRecorded, r.State)
		assert.Equal(t, ModeDryRun, r.Mode)
	}
	assert.Zero(t, host.Mutations())
	assert.Zero(t, store.Len(repo))

	// dry run works without a host at all
	c, err := NewCoordinator(log.Discard(), nil, store, Options{Repo: repo, Mode: ModeDryRun})
	require.NoError(t, err)
	assert.Equal(t, ModeDryRun, c.Mode())
}

func TestNoChangelogEntryWithoutLanding(t *testing.T) {
	host, sets := setup(t, map[string]string{"a.py": "a\n", "b.py": "b\n", "c.py": "c\n"})
	host.Fail(hosttest.OpCommitFile, "b.py", api.Errorf(api.KindTransient, "gateway timeout"), 0)
	store := changelog.NewMemoryStore(repo)

	results, err := newCoordinator(t, host, store, ModeCommit).Land(context.Background(), sets)
	require.NoError(t, err)

	landed := 0
	for _, r := range results {
		if r.State == StateLanded {
			landed++
		}
	}
	assert.Equal(t, 2, landed)
	assert.Equal(t, StateLandingFailed, results[1].State)
	assert.Equal(t, string(api.KindTransient), results[1].ErrorKind)

	entries, _ := store.ReadAll(context.Background(), repo)
	assert.Len(t, entries, landed)
	for _, e := range entries {
		assert.NotEqual(t, []string{"b.py"}, e.Paths)
	}
}

func TestConflictRetriedWhenContentUnchanged(t *testing.T) {
	host, sets := setup(t, map[string]string{"a.py": "a\n"})
	host.Fail(hosttest.OpCommitFile, "a.py", api.Errorf(api.KindConflict, "sha mismatch"), 1)

	results, err := newCoordinator(t, host, changelog.NewMemoryStore(repo), ModeCommit).Land(context.Background(), sets)
	require.NoError(t, err)

	assert.Equal(t, StateLanded, results[0].State)
	assert.Equal(t, 2, host.Calls(hosttest.OpCommitFile))
	assert.Equal(t, 1, host.Calls(hosttest.OpGetFile))
}

func TestConflictFailsWhenFileMoved(t *testing.T) {
	host, sets := setup(t, map[string]string{"a.py": "a\n"})
	host.AddFile("main", "a.py", "someone else's edit\n")
	store := changelog.NewMemoryStore(repo)

	results, err := newCoordinator(t, host, store, ModeCommit).Land(context.Background(), sets)
	require.NoError(t, err)

	assert.Equal(t, StateLandingFailed, results[0].State)
	assert.Equal(t, string(api.KindConflict), results[0].ErrorKind)
	assert.Contains(t, results[0].Error, "changed on main")
	assert.Equal(t, 1, host.Calls(hosttest.OpCommitFile))
	assert.Zero(t, store.Len(repo))

	got, _ := host.Content("main", "a.py")
	assert.Equal(t, "someone else's edit\n", got)
}

func TestSecondConflictFails(t *testing.T) {
	host, sets := setup(t, map[string]string{"a.py": "a\n"})
	host.Fail(hosttest.OpCommitFile, "a.py", api.Errorf(api.KindConflict, "sha mismatch"), 0)

	results, err := newCoordinator(t, host, changelog.NewMemoryStore(repo), ModeCommit).Land(context.Background(), sets)
	require.NoError(t, err)

	assert.Equal(t, StateLandingFailed, results[0].State)
	assert.Equal(t, string(api.KindConflict), results[0].ErrorKind)
	assert.Equal(t, 2, host.Calls(hosttest.OpCommitFile))
}

func TestAuthErrorAbortsRemaining(t *testing.T) {
	host, sets := setup(t, map[string]string{"a.py": "a\n", "b.py": "b\n", "c.py": "c\n"})
	host.Fail(hosttest.OpCommitFile, "a.py", api.Errorf(api.KindAuth, "bad credentials"), 0)
	store := changelog.NewMemoryStore(repo)

	results, err := newCoordinator(t, host, store, ModeCommit).Land(context.Background(), sets)
	require.Error(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, string(api.KindAuth), results[0].ErrorKind)
	for _, r := range results[1:] {
		assert.Equal(t, StateLandingFailed, r.State)
		assert.Equal(t, string(api.KindCanceled), r.ErrorKind)
	}
	assert.Equal(t, 1, host.Calls(hosttest.OpCommitFile))
	assert.Zero(t, store.Len(repo))
}

func TestCancelledRunLandsNothing(t *testing.T) {
	host, sets := setup(t, map[string]string{"a.py": "a\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := newCoordinator(t, host, changelog.NewMemoryStore(repo), ModeCommit).Land(ctx, sets)
	require.NoError(t, err)
	assert.Equal(t, StateLandingFailed, results[0].State)
	assert.Zero(t, host.Mutations())
}

// cancelAfterBranch cancels the run as soon as a branch has been created
type cancelAfterBranch struct {
	*hosttest.Host
	cancel context.CancelFunc
}

func (h *cancelAfterBranch) CreateBranch(ctx context.Context, repo types.Repo, fromRef, name string) error {
	err := h.Host.CreateBranch(ctx, repo, fromRef, name)
	h.cancel()
	return err
}

func TestCancelMidChangesetFinishesIt(t *testing.T) {
	host, sets := setup(t, map[string]string{"a.py": "a\n", "b.py": "b\n"})
	store := changelog.NewMemoryStore(repo)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := api.NewClient(api.Options{Logger: log.Discard()})
	wrapped := api.WrapHost(&cancelAfterBranch{Host: host, cancel: cancel}, client)

	results, err := newCoordinator(t, wrapped, store, ModePullRequest).Land(ctx, sets)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, StateLanded, results[0].State, results[0].Error)
	assert.Equal(t, 1, results[0].PRNumber)
	assert.Len(t, host.PullRequests(), 1)
	assert.Equal(t, 1, host.Calls(hosttest.OpCommitFile))
	assert.Equal(t, 1, store.Len(repo), "landed changeset is recorded")

	assert.Equal(t, StateLandingFailed, results[1].State)
	assert.Equal(t, string(api.KindCanceled), results[1].ErrorKind)
	assert.Equal(t, 1, host.Calls(hosttest.OpCreateBranch))
}

type failingStore struct{ changelog.MemoryStore }

func (f *failingStore) Append(context.Context, types.Repo, changelog.Entry) error {
	return errors.New("disk full")
}

func TestChangelogFailureKeepsLandedState(t *testing.T) {
	host, sets := setup(t, map[string]string{"a.py": "a\n"})

	results, err := newCoordinator(t, host, &failingStore{}, ModeCommit).Land(context.Background(), sets)
	require.NoError(t, err)
	assert.Equal(t, StateLanded, results[0].State)
	assert.Contains(t, results[0].ChangelogError, "disk full")
}

func TestStateMachine(t *testing.T) {
	r := &Result{State: StatePending}
	require.NoError(t, r.advance(StateBranchCreating))
	assert.Error(t, r.advance(StateLanded))
	require.NoError(t, r.advance(StateCommitting))
	require.NoError(t, r.advance(StateLanded))
	assert.True(t, r.State.Terminal())
	assert.Error(t, r.advance(StateCommitting))

	assert.Equal(t, ModeDryRun, ModeFor(true, true))
	assert.Equal(t, ModePullRequest, ModeFor(false, true))
	assert.Equal(t, ModeCommit, ModeFor(false, false))
}

func TestNewCoordinatorValidates(t *testing.T) {
	store := changelog.NewMemoryStore(repo)
	host := hosttest.New("main")

	_, err := NewCoordinator(nil, host, store, Options{Repo: repo, Base: "main", Mode: ModeCommit})
	assert.EqualError(t, err, "logger is required")
	_, err = NewCoordinator(log.Discard(), host, nil, Options{Repo: repo, Base: "main", Mode: ModeCommit})
	assert.EqualError(t, err, "changelog store is required")
	_, err = NewCoordinator(log.Discard(), nil, store, Options{Repo: repo, Base: "main", Mode: ModeCommit})
	assert.EqualError(t, err, "repository host is required")
	_, err = NewCoordinator(log.Discard(), host, store, Options{Repo: repo, Mode: ModeCommit})
	assert.EqualError(t, err, "base branch is required")
	_, err = NewCoordinator(log.Discard(), host, store, Options{Repo: repo, Base: "main", Mode: "rocket"})
	assert.Error(t, err)
}
