package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/saint0x/reposage/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = config.NewViper()

var rootCmd = &cobra.Command{
	Use:   "reposage",
	Short: "AI-suggested improvements for GitHub repositories",
	Long: `RepoSage analyses the source files of a GitHub repository with an LLM,
turns the suggestions into diffs and lands them as commits or pull requests.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfigFile,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./.reposage.yaml or $HOME/.reposage.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	_ = v.BindPFlag(config.KeyDebug, rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(newRunCmd(), newDiffCmd(), newChangelogCmd())
}

func loadConfigFile(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return nil
	}

	v.SetConfigName(".reposage")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Clean(home))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
