package github

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/saint0x/reposage/pkg/log"
	"github.com/saint0x/reposage/pkg/types"
	"golang.org/x/oauth2"
)

// Client implements the repository host on the GitHub REST API
type Client struct {
	client *github.Client
	logger *log.Logger
}

// Option configures a Client
type Option func(*Client) error

// WithBaseURL points the client at a GitHub Enterprise or test server
func WithBaseURL(baseURL string) Option {
	return func(c *Client) error {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		c.client.BaseURL = u
		return nil
	}
}

// New creates a new GitHub client authenticated with token
func New(logger *log.Logger, token string, opts ...Option) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if token == "" {
		return nil, errors.New("github token is required")
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	c := &Client{
		client: github.NewClient(tc),
		logger: logger,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DefaultBranch gets the default branch for a repository
func (c *Client) DefaultBranch(ctx context.Context, repo types.Repo) (string, error) {
	repository, _, err := c.client.Repositories.Get(ctx, repo.Owner, repo.Name)
	if err != nil {
		return "", classify(fmt.Errorf("failed to get repository: %w", err))
	}
	return repository.GetDefaultBranch(), nil
}

// GetFile reads path at ref through the contents API
func (c *Client) GetFile(ctx context.Context, repo types.Repo, ref, path string) (*types.File, error) {
	content, _, _, err := c.client.Repositories.GetContents(
		ctx,
		repo.Owner,
		repo.Name,
		path,
		&github.RepositoryContentGetOptions{Ref: ref},
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get %s: %w", path, err))
	}
	if content == nil {
		return nil, notFound("%s is a directory", path)
	}

	decoded, err := content.GetContent()
	if err != nil {
		// the contents API does not inline blobs above 1 MB
		return nil, sizeExceeded("failed to decode %s: %v", path, err)
	}
	return &types.File{
		Path:    path,
		Content: decoded,
		SHA:     content.GetSHA(),
	}, nil
}

// ListTree lists every blob reachable from ref
func (c *Client) ListTree(ctx context.Context, repo types.Repo, ref string) ([]types.TreeEntry, error) {
	tree, _, err := c.client.Git.GetTree(ctx, repo.Owner, repo.Name, ref, true)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get tree: %w", err))
	}
	if tree.GetTruncated() {
		c.logger.Warning("Tree of %s@%s is truncated, some files will not be analysed", repo, ref)
	}

	entries := make([]types.TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		if e.GetType() != "blob" {
			continue
		}
		entries = append(entries, types.TreeEntry{
			Path: e.GetPath(),
			Size: e.GetSize(),
		})
	}
	return entries, nil
}

// CreateBranch creates name pointing at the head of fromRef
func (c *Client) CreateBranch(ctx context.Context, repo types.Repo, fromRef, name string) error {
	base, _, err := c.client.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+fromRef)
	if err != nil {
		return classify(fmt.Errorf("failed to get ref %s: %w", fromRef, err))
	}

	_, _, err = c.client.Git.CreateRef(ctx, repo.Owner, repo.Name, &github.Reference{
		Ref:    github.String("refs/heads/" + name),
		Object: &github.GitObject{SHA: base.Object.SHA},
	})
	if err != nil {
		return classify(fmt.Errorf("failed to create branch: %w", err))
	}
	return nil
}

// CommitFile writes content to path on branch. blobSHA must be the SHA of
// the version being replaced; GitHub answers 409 when it is stale.
func (c *Client) CommitFile(ctx context.Context, repo types.Repo, branch, path, content, message, blobSHA string) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
		Branch:  github.String(branch),
	}
	if blobSHA != "" {
		opts.SHA = github.String(blobSHA)
	}

	res, _, err := c.client.Repositories.UpdateFile(ctx, repo.Owner, repo.Name, path, opts)
	if err != nil {
		return "", classify(fmt.Errorf("failed to commit %s: %w", path, err))
	}
	return res.Commit.GetSHA(), nil
}

// OpenPullRequest creates a new pull request and applies labels
func (c *Client) OpenPullRequest(ctx context.Context, repo types.Repo, head, base, title, body string, labels []string) (*types.PullRequest, error) {
	pr, _, err := c.client.PullRequests.Create(ctx, repo.Owner, repo.Name, &github.NewPullRequest{
		Title: github.String(title),
		Body:  github.String(body),
		Head:  github.String(head),
		Base:  github.String(base),
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create PR: %w", err))
	}

	if len(labels) > 0 {
		if _, _, err := c.client.Issues.AddLabelsToIssue(ctx, repo.Owner, repo.Name, pr.GetNumber(), labels); err != nil {
			c.logger.Warning("Failed to label PR #%d: %v", pr.GetNumber(), err)
		}
	}

	return &types.PullRequest{
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
	}, nil
}

// ParseRepoURL parses a GitHub URL, or a bare owner/repo, into a repository
func ParseRepoURL(repoURL string) (types.Repo, error) {
	repoURL = strings.TrimSuffix(strings.TrimSpace(repoURL), ".git")

	// Handle SSH URLs (git@github.com:owner/repo)
	if strings.HasPrefix(repoURL, "git@github.com:") {
		parts := strings.Split(strings.TrimPrefix(repoURL, "git@github.com:"), "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return types.Repo{}, fmt.Errorf("invalid SSH repository URL format")
		}
		return types.Repo{Owner: parts[0], Name: parts[1]}, nil
	}

	if !strings.Contains(repoURL, "://") {
		return types.ParseRepo(repoURL)
	}

	// Handle HTTPS URLs
	u, err := url.Parse(repoURL)
	if err != nil {
		return types.Repo{}, fmt.Errorf("invalid URL: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return types.Repo{}, fmt.Errorf("invalid repository URL format")
	}
	return types.Repo{Owner: parts[0], Name: parts[1]}, nil
}
