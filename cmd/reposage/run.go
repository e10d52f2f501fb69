package main

import (
	"fmt"
	"os"

	"github.com/saint0x/reposage/pkg/ai"
	"github.com/saint0x/reposage/pkg/changelog"
	"github.com/saint0x/reposage/pkg/config"
	"github.com/saint0x/reposage/pkg/github"
	"github.com/saint0x/reposage/pkg/log"
	"github.com/saint0x/reposage/pkg/runner"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Analyse a repository and land the suggested improvements",
		Example: `  reposage run -r acme/widgets --dry-run
  reposage run -r acme/widgets --use-pr -d "error handling" --max-workers 4`,
		Args:    cobra.NoArgs,
		PreRunE: bindFlags(runFlags),
		RunE:    runRun,
	}

	f := cmd.Flags()
	f.StringP("repo", "r", "", "Repository in format owner/repo or a GitHub URL")
	f.StringP("github-token", "g", "", "GitHub token for repository access")
	f.StringP("open-router-api-key", "o", "", "OpenRouter (or OpenAI-compatible) API key")
	f.String("base-url", "", "Base URL of the OpenAI-compatible API")
	f.StringP("model", "m", "", fmt.Sprintf("Model to use for analysis (default: %s)", ai.DefaultModel))
	f.StringP("base-branch", "b", "", "Branch to analyse and land on (default: the repository's default branch)")
	f.StringP("description", "d", "", "What RepoSage should focus on")
	f.Bool("dry-run", false, "Generate changes but do not commit or open PRs")
	f.Bool("use-pr", false, "Open a pull request per changeset instead of committing to the base branch")
	f.String("output-file", "", "Save the run summary to a JSON file")
	f.Int("max-workers", 0, "Maximum number of parallel workers for file analysis")
	f.StringSlice("exclude", nil, "Glob patterns of paths to skip")
	f.Int("max-files", 0, "Analyse at most this many files")
	f.String("group", "", "How proposals become changesets: file or all")
	f.StringSlice("label", nil, "Labels applied to opened pull requests")
	f.String("changelog", "", "Path of the changelog store")
	f.Duration("timeout", 0, "Deadline for the whole run")

	return cmd
}

// runFlags maps run's flags to config keys
var runFlags = map[string]string{
	"repo":                config.KeyRepo,
	"github-token":        config.KeyGitHubToken,
	"open-router-api-key": config.KeyAPIKey,
	"base-url":            config.KeyBaseURL,
	"model":               config.KeyModel,
	"base-branch":         config.KeyBaseBranch,
	"description":         config.KeyDescription,
	"dry-run":             config.KeyDryRun,
	"use-pr":              config.KeyUsePR,
	"output-file":         config.KeyOutputFile,
	"max-workers":         config.KeyMaxWorkers,
	"exclude":             config.KeyExclude,
	"max-files":           config.KeyMaxFiles,
	"group":               config.KeyGroup,
	"label":               config.KeyLabels,
	"changelog":           config.KeyChangelog,
	"timeout":             config.KeyTimeout,
}

// bindFlags binds flags when the command runs, so commands sharing a key
// do not overwrite each other's binding
func bindFlags(flags map[string]string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		for flag, key := range flags {
			if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", flag, err)
			}
		}
		return nil
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := log.New(cfg.Debug)

	gh, err := github.New(logger, cfg.GitHubToken)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}
	provider, err := ai.New(logger, cfg.APIKey, ai.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return fmt.Errorf("failed to create model provider: %w", err)
	}
	store := changelog.NewFileStore(cfg.ChangelogPath)

	r, err := runner.New(logger, cfg, gh, provider, store)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	ctx, stop := signalContext(logger)
	defer stop()

	report, runErr := r.Run(ctx)
	if report != nil {
		if err := report.WriteMarkdown(os.Stdout); err != nil {
			logger.Error("Failed to print summary: %v", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	return nil
}
