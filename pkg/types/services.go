package types

import "context"

// RepositoryHost is the code hosting API the pipeline reads from and lands on
type RepositoryHost interface {
	DefaultBranch(ctx context.Context, repo Repo) (string, error)
	GetFile(ctx context.Context, repo Repo, ref, path string) (*File, error)
	ListTree(ctx context.Context, repo Repo, ref string) ([]TreeEntry, error)
	CreateBranch(ctx context.Context, repo Repo, fromRef, name string) error
	// CommitFile updates path on branch. blobSHA must be the SHA of the
	// version being replaced; a mismatch is reported as a conflict.
	CommitFile(ctx context.Context, repo Repo, branch, path, content, message, blobSHA string) (string, error)
	OpenPullRequest(ctx context.Context, repo Repo, head, base, title, body string, labels []string) (*PullRequest, error)
}

// Prompt is a system + user message pair
type Prompt struct {
	System string
	User   string
}

// ModelProvider returns the model's text completion for a prompt
type ModelProvider interface {
	Complete(ctx context.Context, model string, prompt Prompt) (string, error)
}
