// Package config loads settings from flags, environment and an optional YAML
// file, and builds the process logger.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Commit sources.
const (
	CommitSourceAPI = "api"
	CommitSourceGit = "git"
)

// Wait modes.
const (
	WaitOnce = "once"
	WaitPoll = "poll"
)

// Cursor backends.
const (
	CursorFile = "file"
	CursorSQL  = "sql"
)

// Config holds every setting of a watch pass.
type Config struct {
	GitHubToken        string `mapstructure:"github_token"`
	ServiceAccountJSON string `mapstructure:"service_account_json"`
	GitHubHost         string `mapstructure:"github_host"`
	UpstreamRepo       string `mapstructure:"upstream_repo"`
	WorkflowFile       string `mapstructure:"workflow_file"`

	CommitSource string `mapstructure:"commit_source"`
	CommitLimit  int    `mapstructure:"commit_limit"`
	RunsLimit    int    `mapstructure:"runs_limit"`
	RunFallback  bool   `mapstructure:"run_fallback"`

	WaitMode     string        `mapstructure:"wait_mode"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollAttempts int           `mapstructure:"poll_attempts"`

	CursorBackend string `mapstructure:"cursor_backend"`
	CursorFile    string `mapstructure:"cursor_file"`
	CursorDSN     string `mapstructure:"cursor_dsn"`
	CursorKey     string `mapstructure:"cursor_key"`

	PolicyFile string `mapstructure:"policy_file"`

	PublisherCommand      string   `mapstructure:"publisher_command"`
	PublisherArgs         []string `mapstructure:"publisher_args"`
	RequirePublishSuccess bool     `mapstructure:"require_publish_success"`

	BreakerMaxFailures int           `mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

var defaults = map[string]any{
	"github_token":            "",
	"service_account_json":    "",
	"github_host":             "github.com",
	"upstream_repo":           "aayush2622/Dartotsu",
	"workflow_file":           "dart.yml",
	"commit_source":           CommitSourceAPI,
	"commit_limit":            30,
	"runs_limit":              30,
	"run_fallback":            true,
	"wait_mode":               WaitOnce,
	"poll_interval":           30 * time.Second,
	"poll_attempts":           60,
	"cursor_backend":          CursorFile,
	"cursor_file":             "last_commit.txt",
	"cursor_dsn":              "",
	"cursor_key":              "",
	"policy_file":             "",
	"publisher_command":       "python",
	"publisher_args":          []string{"scripts/download_and_release.py"},
	"require_publish_success": false,
	"breaker_max_failures":    3,
	"breaker_timeout":         30 * time.Second,
	"log_level":               "info",
	"log_format":              "text",
}

// NewFlagSet declares the command line flags. Flag names use dashes; each
// maps to the config key with underscores.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("github-host", "github.com", "GitHub host")
	fs.String("upstream-repo", "aayush2622/Dartotsu", "repository to watch (owner/name)")
	fs.String("workflow-file", "dart.yml", "workflow file that builds releases")
	fs.String("commit-source", CommitSourceAPI, "commit history source: api or git")
	fs.Int("commit-limit", 30, "number of recent commits to scan")
	fs.Int("runs-limit", 30, "number of recent completed runs to search")
	fs.Bool("run-fallback", true, "use the latest successful run when no run matches the commit")
	fs.String("wait-mode", WaitOnce, "how to handle a running workflow: once or poll")
	fs.Duration("poll-interval", 30*time.Second, "delay between checks in poll mode")
	fs.Int("poll-attempts", 60, "maximum checks in poll mode")
	fs.String("cursor-backend", CursorFile, "cursor storage: file or sql")
	fs.String("cursor-file", "last_commit.txt", "cursor file path")
	fs.String("cursor-dsn", "", "postgres DSN for the sql cursor backend")
	fs.String("cursor-key", "", "cursor row key (defaults to the upstream repo)")
	fs.String("policy-file", "", "YAML release policy overriding the built-in tables")
	fs.String("publisher-command", "python", "release publisher executable")
	fs.StringSlice("publisher-args", []string{"scripts/download_and_release.py"}, "arguments placed before credentials, build type and changelog")
	fs.Bool("require-publish-success", false, "keep the cursor unchanged when the publisher fails")
	fs.Int("breaker-max-failures", 3, "consecutive API failures before the circuit opens")
	fs.Duration("breaker-timeout", 30*time.Second, "how long the circuit stays open")
	fs.String("log-level", "info", "log level")
	fs.String("log-format", "text", "log format: text or json")
	return fs
}

// Load resolves the configuration. Precedence: flags, environment, config
// file, defaults. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()
	if err := v.BindEnv("github_token", "GITHUB_TOKEN", "GH_TOKEN"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}

		if path, _ := flags.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.CursorKey == "" {
		cfg.CursorKey = cfg.UpstreamRepo
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enum values and required combinations.
func (c *Config) Validate() error {
	if err := oneOf("commit_source", c.CommitSource, CommitSourceAPI, CommitSourceGit); err != nil {
		return err
	}
	if err := oneOf("wait_mode", c.WaitMode, WaitOnce, WaitPoll); err != nil {
		return err
	}
	if err := oneOf("cursor_backend", c.CursorBackend, CursorFile, CursorSQL); err != nil {
		return err
	}
	if err := oneOf("log_format", c.LogFormat, "text", "json"); err != nil {
		return err
	}

	if owner, name, ok := strings.Cut(c.UpstreamRepo, "/"); !ok || owner == "" || name == "" {
		return fmt.Errorf("upstream_repo must be owner/name, got %q", c.UpstreamRepo)
	}
	if c.CommitLimit <= 0 || c.RunsLimit <= 0 {
		return fmt.Errorf("commit_limit and runs_limit must be positive")
	}
	if c.WaitMode == WaitPoll && (c.PollInterval <= 0 || c.PollAttempts <= 0) {
		return fmt.Errorf("poll mode needs a positive poll_interval and poll_attempts")
	}
	if c.BreakerMaxFailures < 0 || c.BreakerTimeout < 0 {
		return fmt.Errorf("breaker_max_failures and breaker_timeout must not be negative")
	}
	if c.CursorBackend == CursorSQL && c.CursorDSN == "" {
		return fmt.Errorf("cursor_backend sql requires cursor_dsn")
	}
	if c.CursorBackend == CursorFile && c.CursorFile == "" {
		return fmt.Errorf("cursor_backend file requires cursor_file")
	}
	if c.PublisherCommand == "" {
		return fmt.Errorf("publisher_command must not be empty")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}
