package config

import (
	"fmt"
	"strings"

	"github.com/saint0x/reposage/pkg/github"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by NewViper
const EnvPrefix = "REPOSAGE"

// Config keys
const (
	KeyRepo          = "repo"
	KeyGitHubToken   = "github_token"
	KeyAPIKey        = "api_key"
	KeyBaseURL       = "base_url"
	KeyModel         = "model"
	KeyBaseBranch    = "base_branch"
	KeyDescription   = "description"
	KeyMaxWorkers    = "max_workers"
	KeyDryRun        = "dry_run"
	KeyUsePR         = "use_pr"
	KeyOutputFile    = "output_file"
	KeyExtensions    = "extensions"
	KeyExclude       = "exclude"
	KeyMaxFileSize   = "max_file_size"
	KeyMaxFiles      = "max_files"
	KeyGroup         = "group"
	KeyLabels        = "labels"
	KeyChangelog     = "changelog"
	KeyHistoryTokens = "history_tokens"
	KeyCallTimeout   = "call_timeout"
	KeyTimeout       = "timeout"
	KeyDebug         = "debug"
)

// NewViper returns a viper instance with defaults set and environment
// variables bound. Credentials also fall back to the variables the GitHub
// Action and OpenRouter documentation use.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv(KeyGitHubToken, EnvPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN")
	_ = v.BindEnv(KeyAPIKey, EnvPrefix+"_API_KEY", "OPENROUTER_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv(KeyRepo, EnvPrefix+"_REPO", "GITHUB_REPOSITORY")
	_ = v.BindEnv(KeyDebug, EnvPrefix+"_DEBUG", "DEBUG")
	return v
}

// SetDefaults registers the values of Default under their keys
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyBaseURL, d.BaseURL)
	v.SetDefault(KeyModel, d.Model)
	v.SetDefault(KeyMaxWorkers, d.MaxWorkers)
	v.SetDefault(KeyExtensions, d.Extensions)
	v.SetDefault(KeyMaxFileSize, d.MaxFileSize)
	v.SetDefault(KeyGroup, d.Group)
	v.SetDefault(KeyLabels, d.Labels)
	v.SetDefault(KeyChangelog, d.ChangelogPath)
	v.SetDefault(KeyHistoryTokens, d.HistoryTokens)
	v.SetDefault(KeyCallTimeout, d.CallTimeout)
	v.SetDefault(KeyTimeout, d.Timeout)

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.base_delay", d.Retry.BaseDelay)
	v.SetDefault("retry.max_delay", d.Retry.MaxDelay)
	v.SetDefault("retry.jitter", d.Retry.Jitter)

	v.SetDefault("limits.host.max_in_flight", d.HostLimits.MaxInFlight)
	v.SetDefault("limits.host.requests_per_second", d.HostLimits.RequestsPerSecond)
	v.SetDefault("limits.host.burst", d.HostLimits.Burst)
	v.SetDefault("limits.model.max_in_flight", d.ModelLimits.MaxInFlight)
	v.SetDefault("limits.model.requests_per_second", d.ModelLimits.RequestsPerSecond)
	v.SetDefault("limits.model.burst", d.ModelLimits.Burst)
}

// FromViper reads and validates a RunConfig
func FromViper(v *viper.Viper) (RunConfig, error) {
	cfg := Default()

	if s := strings.TrimSpace(v.GetString(KeyRepo)); s != "" {
		repo, err := github.ParseRepoURL(s)
		if err != nil {
			return RunConfig{}, fmt.Errorf("failed to parse repository: %w", err)
		}
		cfg.Repo = repo
	}

	cfg.GitHubToken = v.GetString(KeyGitHubToken)
	cfg.APIKey = v.GetString(KeyAPIKey)
	cfg.BaseURL = v.GetString(KeyBaseURL)
	cfg.Model = v.GetString(KeyModel)
	cfg.Base = v.GetString(KeyBaseBranch)
	cfg.Description = v.GetString(KeyDescription)
	cfg.MaxWorkers = v.GetInt(KeyMaxWorkers)
	cfg.DryRun = v.GetBool(KeyDryRun)
	cfg.UsePR = v.GetBool(KeyUsePR)
	cfg.OutputFile = v.GetString(KeyOutputFile)
	cfg.Extensions = list(v.GetStringSlice(KeyExtensions))
	cfg.Exclude = list(v.GetStringSlice(KeyExclude))
	cfg.MaxFileSize = v.GetInt(KeyMaxFileSize)
	cfg.MaxFiles = v.GetInt(KeyMaxFiles)
	cfg.Group = v.GetString(KeyGroup)
	cfg.Labels = list(v.GetStringSlice(KeyLabels))
	cfg.ChangelogPath = v.GetString(KeyChangelog)
	cfg.HistoryTokens = v.GetInt(KeyHistoryTokens)
	cfg.CallTimeout = v.GetDuration(KeyCallTimeout)
	cfg.Timeout = v.GetDuration(KeyTimeout)
	cfg.Debug = v.GetBool(KeyDebug)

	cfg.Retry.MaxAttempts = v.GetInt("retry.max_attempts")
	cfg.Retry.BaseDelay = v.GetDuration("retry.base_delay")
	cfg.Retry.MaxDelay = v.GetDuration("retry.max_delay")
	cfg.Retry.Jitter = v.GetFloat64("retry.jitter")

	cfg.HostLimits.MaxInFlight = v.GetInt("limits.host.max_in_flight")
	cfg.HostLimits.RequestsPerSecond = v.GetFloat64("limits.host.requests_per_second")
	cfg.HostLimits.Burst = v.GetInt("limits.host.burst")
	cfg.ModelLimits.MaxInFlight = v.GetInt("limits.model.max_in_flight")
	cfg.ModelLimits.RequestsPerSecond = v.GetFloat64("limits.model.requests_per_second")
	cfg.ModelLimits.Burst = v.GetInt("limits.model.burst")

	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// FromEnv reads a RunConfig from environment variables only
func FromEnv() (RunConfig, error) {
	return FromViper(NewViper())
}

// list flattens comma separated values, which is how lists arrive from
// environment variables
func list(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
