// Package hosttest provides an in-memory repository host for tests
package hosttest

import (
	"context"
	"crypto/sha1"
	"fmt"
	"sort"
	"sync"

	"github.com/saint0x/reposage/pkg/api"
	"github.com/saint0x/reposage/pkg/types"
)

// Operation names used by Fail and Calls
const (
	OpDefaultBranch   = "DefaultBranch"
	OpGetFile         = "GetFile"
	OpListTree        = "ListTree"
	OpCreateBranch    = "CreateBranch"
	OpCommitFile      = "CommitFile"
	OpOpenPullRequest = "OpenPullRequest"
)

// Call is one recorded host call
type Call struct {
	Op   string
	Ref  string
	Path string
}

// PullRequest is an opened pull request as the fake saw it
type PullRequest struct {
	types.PullRequest
	Head, Base, Title, Body string
	Labels                  []string
}

type failure struct {
	err       error
	remaining int
}

var _ types.RepositoryHost = (*Host)(nil)

// Host is a goroutine-safe RepositoryHost keeping branches in memory
type Host struct {
	mu       sync.Mutex
	dflt     string
	branches map[string]map[string]*types.File
	failures map[string]*failure
	calls    []Call
	prs      []PullRequest
	commits  int
}

// New creates a host whose default branch is dflt
func New(dflt string) *Host {
	return &Host{
		dflt:     dflt,
		branches: map[string]map[string]*types.File{dflt: {}},
		failures: make(map[string]*failure),
	}
}

// BlobSHA is the SHA the fake assigns to content
func BlobSHA(content string) string {
	return fmt.Sprintf("%x", sha1.Sum([]byte(content)))
}

// AddFile stores a file on ref
func (h *Host) AddFile(ref, path, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.branches[ref] == nil {
		h.branches[ref] = make(map[string]*types.File)
	}
	h.branches[ref][path] = &types.File{Path: path, Content: content, SHA: BlobSHA(content)}
}

// Content returns the file at ref
func (h *Host) Content(ref, path string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.branches[ref][path]
	if !ok {
		return "", false
	}
	return f.Content, true
}

// Fail makes op on path return err. times <= 0 fails forever. An empty path
// matches every path.
func (h *Host) Fail(op, path string, err error, times int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[op+":"+path] = &failure{err: err, remaining: times}
}

// Calls returns the number of recorded calls of op
func (h *Host) Calls(op string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Mutations returns the number of calls that write to the host
func (h *Host) Mutations() int {
	return h.Calls(OpCreateBranch) + h.Calls(OpCommitFile) + h.Calls(OpOpenPullRequest)
}

// PullRequests returns the opened pull requests
func (h *Host) PullRequests() []PullRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]PullRequest(nil), h.prs...)
}

// Branches returns the branch names, sorted
func (h *Host) Branches() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.branches))
	for b := range h.branches {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// record logs the call and returns an injected failure, if any. h.mu must be held.
func (h *Host) record(op, ref, path string) error {
	h.calls = append(h.calls, Call{Op: op, Ref: ref, Path: path})
	for _, key := range []string{op + ":" + path, op + ":"} {
		f, ok := h.failures[key]
		if !ok {
			continue
		}
		if f.remaining > 0 {
			f.remaining--
			if f.remaining == 0 {
				delete(h.failures, key)
			}
		}
		return f.err
	}
	return nil
}

func (h *Host) DefaultBranch(_ context.Context, _ types.Repo) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record(OpDefaultBranch, "", ""); err != nil {
		return "", err
	}
	return h.dflt, nil
}

func (h *Host) GetFile(_ context.Context, _ types.Repo, ref, path string) (*types.File, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record(OpGetFile, ref, path); err != nil {
		return nil, err
	}
	f, ok := h.branches[ref][path]
	if !ok {
		return nil, api.Errorf(api.KindNotFound, "%s not found at %s", path, ref)
	}
	cp := *f
	return &cp, nil
}

func (h *Host) ListTree(_ context.Context, _ types.Repo, ref string) ([]types.TreeEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record(OpListTree, ref, ""); err != nil {
		return nil, err
	}
	files, ok := h.branches[ref]
	if !ok {
		return nil, api.Errorf(api.KindNotFound, "ref %s not found", ref)
	}
	out := make([]types.TreeEntry, 0, len(files))
	for p, f := range files {
		out = append(out, types.TreeEntry{Path: p, Size: len(f.Content)})
	}
	return out, nil
}

func (h *Host) CreateBranch(_ context.Context, _ types.Repo, fromRef, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record(OpCreateBranch, name, ""); err != nil {
		return err
	}
	src, ok := h.branches[fromRef]
	if !ok {
		return api.Errorf(api.KindNotFound, "ref %s not found", fromRef)
	}
	if _, exists := h.branches[name]; exists {
		return api.Errorf(api.KindConflict, "branch %s already exists", name)
	}
	dst := make(map[string]*types.File, len(src))
	for p, f := range src {
		cp := *f
		dst[p] = &cp
	}
	h.branches[name] = dst
	return nil
}

func (h *Host) CommitFile(_ context.Context, _ types.Repo, branch, path, content, _, blobSHA string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record(OpCommitFile, branch, path); err != nil {
		return "", err
	}
	files, ok := h.branches[branch]
	if !ok {
		return "", api.Errorf(api.KindNotFound, "branch %s not found", branch)
	}
	if cur, ok := files[path]; ok && cur.SHA != blobSHA {
		return "", api.Errorf(api.KindConflict, "%s does not match %s", path, blobSHA)
	}
	files[path] = &types.File{Path: path, Content: content, SHA: BlobSHA(content)}
	h.commits++
	return fmt.Sprintf("commit%04d", h.commits), nil
}

func (h *Host) OpenPullRequest(_ context.Context, repo types.Repo, head, base, title, body string, labels []string) (*types.PullRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record(OpOpenPullRequest, head, ""); err != nil {
		return nil, err
	}
	n := len(h.prs) + 1
	pr := PullRequest{
		PullRequest: types.PullRequest{
			Number: n,
			URL:    fmt.Sprintf("https://github.com/%s/pull/%d", repo, n),
		},
		Head:   head,
		Base:   base,
		Title:  title,
		Body:   body,
		Labels: labels,
	}
	h.prs = append(h.prs, pr)
	out := pr.PullRequest
	return &out, nil
}
