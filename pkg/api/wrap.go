package api

import (
	"context"

	"github.com/saint0x/reposage/pkg/types"
)

type guardedHost struct {
	host   types.RepositoryHost
	client *Client
}

// WrapHost routes every host method through c
func WrapHost(h types.RepositoryHost, c *Client) types.RepositoryHost {
	return &guardedHost{host: h, client: c}
}

func (g *guardedHost) DefaultBranch(ctx context.Context, repo types.Repo) (string, error) {
	return Call(ctx, g.client, ServiceHost, "defaultBranch", func(ctx context.Context) (string, error) {
		return g.host.DefaultBranch(ctx, repo)
	})
}

func (g *guardedHost) GetFile(ctx context.Context, repo types.Repo, ref, path string) (*types.File, error) {
	return Call(ctx, g.client, ServiceHost, "getFile", func(ctx context.Context) (*types.File, error) {
		return g.host.GetFile(ctx, repo, ref, path)
	})
}

func (g *guardedHost) ListTree(ctx context.Context, repo types.Repo, ref string) ([]types.TreeEntry, error) {
	return Call(ctx, g.client, ServiceHost, "listTree", func(ctx context.Context) ([]types.TreeEntry, error) {
		return g.host.ListTree(ctx, repo, ref)
	})
}

func (g *guardedHost) CreateBranch(ctx context.Context, repo types.Repo, fromRef, name string) error {
	_, err := Call(ctx, g.client, ServiceHost, "createBranch", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.host.CreateBranch(ctx, repo, fromRef, name)
	})
	return err
}

func (g *guardedHost) CommitFile(ctx context.Context, repo types.Repo, branch, path, content, message, blobSHA string) (string, error) {
	return Call(ctx, g.client, ServiceHost, "commitFile", func(ctx context.Context) (string, error) {
		return g.host.CommitFile(ctx, repo, branch, path, content, message, blobSHA)
	})
}

func (g *guardedHost) OpenPullRequest(ctx context.Context, repo types.Repo, head, base, title, body string, labels []string) (*types.PullRequest, error) {
	return Call(ctx, g.client, ServiceHost, "openPullRequest", func(ctx context.Context) (*types.PullRequest, error) {
		return g.host.OpenPullRequest(ctx, repo, head, base, title, body, labels)
	})
}

type guardedProvider struct {
	provider types.ModelProvider
	client   *Client
}

// WrapProvider routes model completions through c
func WrapProvider(p types.ModelProvider, c *Client) types.ModelProvider {
	return &guardedProvider{provider: p, client: c}
}

func (g *guardedProvider) Complete(ctx context.Context, model string, prompt types.Prompt) (string, error) {
	return Call(ctx, g.client, ServiceModel, "complete", func(ctx context.Context) (string, error) {
		return g.provider.Complete(ctx, model, prompt)
	})
}
