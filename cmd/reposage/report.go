package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/saint0x/reposage/pkg/changelog"
	"github.com/saint0x/reposage/pkg/config"
	"github.com/saint0x/reposage/pkg/github"
	"github.com/saint0x/reposage/pkg/summary"
	"github.com/spf13/cobra"
)

func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff [summary.json]",
		Short: "Print the diffs and rationales of a saved run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := summary.DefaultPath
			if len(args) == 1 {
				path = args[0]
			}
			report, err := summary.Load(path)
			if err != nil {
				return err
			}

			markdown, _ := cmd.Flags().GetBool("markdown")
			if markdown {
				return report.WriteMarkdown(os.Stdout)
			}
			return report.PrintDiffs(os.Stdout)
		},
	}
	cmd.Flags().Bool("markdown", false, "Print the run overview instead of the diffs")
	return cmd
}

func newChangelogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Render the recorded changes of a repository as markdown",
		Args:  cobra.NoArgs,
		PreRunE: bindFlags(map[string]string{
			"repo":      config.KeyRepo,
			"changelog": config.KeyChangelog,
		}),
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := strings.TrimSpace(v.GetString(config.KeyRepo))
			if s == "" {
				return config.ErrMissingRepo
			}
			repo, err := github.ParseRepoURL(s)
			if err != nil {
				return fmt.Errorf("failed to parse repository: %w", err)
			}

			store := changelog.NewFileStore(v.GetString(config.KeyChangelog))
			entries, err := store.ReadAll(context.Background(), repo)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(os.Stdout, changelog.RenderMarkdown(repo, entries))
			return err
		},
	}
	cmd.Flags().StringP("repo", "r", "", "Repository in format owner/repo or a GitHub URL")
	cmd.Flags().String("changelog", "", "Path of the changelog store")
	return cmd
}
