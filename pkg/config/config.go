// Package config holds the settings of a single run.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saint0x/reposage/pkg/ai"
	"github.com/saint0x/reposage/pkg/api"
	"github.com/saint0x/reposage/pkg/selector"
	"github.com/saint0x/reposage/pkg/types"
)

var (
	ErrMissingRepo   = errors.New("repository not configured")
	ErrMissingToken  = errors.New("GITHUB_TOKEN not configured")
	ErrMissingAPIKey = errors.New("OPENROUTER_API_KEY not configured")
	ErrMissingModel  = errors.New("model not configured")
)

const redacted = "[REDACTED]"

// RunConfig is everything one run needs. It is passed by value.
type RunConfig struct {
	Repo        types.Repo
	GitHubToken string
	APIKey      string
	BaseURL     string
	Model       string

	// Base is the ref analysed and landed on; empty means the default branch
	Base        string
	Description string
	MaxWorkers  int
	// DryRun takes precedence over UsePR
	DryRun      bool
	UsePR       bool
	OutputFile  string

	Extensions  []string
	Exclude     []string
	MaxFileSize int
	MaxFiles    int
	Group       string
	Labels      []string

	ChangelogPath string
	HistoryTokens int

	Retry       api.Policy
	HostLimits  api.Limits
	ModelLimits api.Limits
	CallTimeout time.Duration
	Timeout     time.Duration

	Debug bool
}

// Default returns a config with every optional setting filled in
func Default() RunConfig {
	limits := api.DefaultLimits()
	return RunConfig{
		BaseURL:       ai.DefaultBaseURL,
		Model:         ai.DefaultModel,
		Extensions:    append([]string(nil), selector.DefaultExtensions...),
		MaxFileSize:   selector.DefaultMaxFileSize,
		Group:         "file",
		Labels:        []string{"reposage"},
		ChangelogPath: ".reposage/changelog.yaml",
		HistoryTokens: 1000,
		Retry:         api.DefaultPolicy(),
		HostLimits:    limits[api.ServiceHost],
		ModelLimits:   limits[api.ServiceModel],
		CallTimeout:   2 * time.Minute,
		Timeout:       30 * time.Minute,
	}
}

// Validate checks the config is complete and consistent
func (c RunConfig) Validate() error {
	if c.Repo.IsZero() {
		return ErrMissingRepo
	}
	if c.GitHubToken == "" {
		return ErrMissingToken
	}
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Model == "" {
		return ErrMissingModel
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("invalid max workers %d", c.MaxWorkers)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("invalid max file size %d", c.MaxFileSize)
	}
	if c.MaxFiles < 0 {
		return fmt.Errorf("invalid max files %d", c.MaxFiles)
	}
	if c.HistoryTokens < 0 {
		return fmt.Errorf("invalid history token budget %d", c.HistoryTokens)
	}
	switch c.Group {
	case "", "file", "all":
	default:
		return fmt.Errorf("invalid group %q: want file or all", c.Group)
	}
	if c.Timeout < 0 || c.CallTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// Limits returns the per-service caps for the API client
func (c RunConfig) Limits() map[api.Service]api.Limits {
	return map[api.Service]api.Limits{
		api.ServiceHost:  c.HostLimits,
		api.ServiceModel: c.ModelLimits,
	}
}

// Redacted returns a copy safe to log
func (c RunConfig) Redacted() RunConfig {
	if c.GitHubToken != "" {
		c.GitHubToken = redacted
	}
	if c.APIKey != "" {
		c.APIKey = redacted
	}
	return c
}

// String summarises the config without credentials
func (c RunConfig) String() string {
	r := c.Redacted()
	var b strings.Builder
	fmt.Fprintf(&b, "repo=%s base=%q model=%s workers=%d", r.Repo, r.Base, r.Model, r.MaxWorkers)
	fmt.Fprintf(&b, " dry_run=%t use_pr=%t group=%s", r.DryRun, r.UsePR, r.Group)
	fmt.Fprintf(&b, " github_token=%s api_key=%s", orNone(r.GitHubToken), orNone(r.APIKey))
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}
