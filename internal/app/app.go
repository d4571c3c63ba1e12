// Package app wires configuration into a ready-to-run orchestrator.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/kyleking/gh-releasewatch/internal/buildtag"
	"github.com/kyleking/gh-releasewatch/internal/changelog"
	"github.com/kyleking/gh-releasewatch/internal/commits"
	"github.com/kyleking/gh-releasewatch/internal/config"
	"github.com/kyleking/gh-releasewatch/internal/cursor"
	"github.com/kyleking/gh-releasewatch/internal/exec"
	"github.com/kyleking/gh-releasewatch/internal/github"
	"github.com/kyleking/gh-releasewatch/internal/orchestrator"
	"github.com/kyleking/gh-releasewatch/internal/release"
	"github.com/kyleking/gh-releasewatch/internal/workflow"
)

// Overrides replaces external collaborators. Zero values use the real ones.
type Overrides struct {
	Transport http.RoundTripper
	Executor  exec.CommandExecutor
	Fs        afero.Fs
	Cursor    cursor.Store
	Commits   commits.Source
}

// App is a configured watcher.
type App struct {
	cfg  *config.Config
	log  *logrus.Logger
	ov   Overrides
	gh   *github.Client
	pol  workflow.Policy
	curs cursor.Store
}

// New validates the wiring that does not depend on a single pass.
func New(cfg *config.Config, log *logrus.Logger, ov Overrides) (*App, error) {
	client, err := github.NewClient(github.Options{
		Host:        cfg.GitHubHost,
		Token:       cfg.GitHubToken,
		Repo:        cfg.UpstreamRepo,
		Workflow:    cfg.WorkflowFile,
		Transport:   ov.Transport,
		MaxFailures: uint32(cfg.BreakerMaxFailures),
		Timeout:     cfg.BreakerTimeout,
	})
	if err != nil {
		return nil, err
	}

	pol, err := workflow.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}

	store, err := openCursor(cfg, ov)
	if err != nil {
		return nil, err
	}

	return &App{cfg: cfg, log: log, ov: ov, gh: client, pol: pol, curs: store}, nil
}

func openCursor(cfg *config.Config, ov Overrides) (cursor.Store, error) {
	if ov.Cursor != nil {
		return ov.Cursor, nil
	}
	switch cfg.CursorBackend {
	case config.CursorSQL:
		return cursor.OpenSQLStore(cfg.CursorDSN, cfg.CursorKey)
	default:
		if ov.Fs == nil {
			return cursor.NewOSFileStore(cfg.CursorFile), nil
		}
		return cursor.NewFileStore(ov.Fs, cfg.CursorFile), nil
	}
}

// Orchestrator builds the state machine for one pass. The commit history is
// fetched at most once per pass.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	log := a.log.WithField("repo", a.cfg.UpstreamRepo)

	source := commits.NewMemo(a.commitSource())
	locator := workflow.NewLocator(a.gh, workflow.LocatorOptions{
		Limit:    a.cfg.RunsLimit,
		Fallback: a.cfg.RunFallback,
	}, log)

	executor := a.ov.Executor
	if executor == nil {
		executor = exec.NewRealExecutor()
	}

	return orchestrator.New(orchestrator.Deps{
		Commits:   source,
		Detector:  buildtag.NewDetector(a.pol.Directives),
		Cursor:    a.curs,
		Runs:      locator,
		Waiter:    a.waiter(),
		Evaluator: workflow.NewEvaluator(a.gh, a.pol.RequiredJobs, log),
		Changelog: changelog.NewExtractor(locator, a.gh, source, a.gh.CommitURL, log),
		Publisher: release.NewCommandPublisher(executor, release.Options{
			Command:     a.cfg.PublisherCommand,
			Args:        a.cfg.PublisherArgs,
			Credentials: a.cfg.ServiceAccountJSON,
		}, log),
	}, orchestrator.Options{
		RequirePublishSuccess: a.cfg.RequirePublishSuccess,
	}, log)
}

func (a *App) commitSource() commits.Source {
	if a.ov.Commits != nil {
		return a.ov.Commits
	}
	if a.cfg.CommitSource == config.CommitSourceGit {
		url := fmt.Sprintf("https://%s/%s.git", a.cfg.GitHubHost, a.cfg.UpstreamRepo)
		return commits.NewGitSource(url, a.cfg.GitHubToken, a.cfg.CommitLimit)
	}
	return commits.NewAPISource(a.gh, a.cfg.CommitLimit)
}

func (a *App) waiter() workflow.Waiter {
	if a.cfg.WaitMode == config.WaitPoll {
		poll := workflow.DefaultPoll
		if a.cfg.PollInterval > 0 {
			poll.Interval = a.cfg.PollInterval
		}
		if a.cfg.PollAttempts > 0 {
			poll.MaxAttempts = a.cfg.PollAttempts
		}
		return poll
	}
	return workflow.Once{}
}

// RunOnce executes a single pass.
func (a *App) RunOnce(ctx context.Context) (orchestrator.Result, error) {
	res, err := a.Orchestrator().Run(ctx)
	a.log.WithFields(logrus.Fields{
		"state":      res.State,
		"commit":     res.Request.CommitID,
		"build_type": res.Request.Type,
	}).Info("watch pass complete")
	return res, err
}
