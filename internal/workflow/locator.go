package workflow

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kyleking/gh-releasewatch/internal/github"
)

// RunLister is the subset of the GitHub client the Locator needs.
type RunLister interface {
	CompletedRuns(ctx context.Context, limit int) ([]github.WorkflowRun, error)
	RunsForCommit(ctx context.Context, sha string) ([]github.WorkflowRun, error)
}

// Match is a located workflow run. Exact is false when the run was chosen by
// the fallback policy and its head commit differs from the requested one.
type Match struct {
	Run   github.WorkflowRun
	Exact bool
}

// LocatorOptions configures a Locator.
type LocatorOptions struct {
	// Limit is how many recent completed runs are searched.
	Limit int
	// Fallback enables picking the most recent successful run when no run
	// matches the commit exactly. Such a run may belong to another commit.
	Fallback bool
}

// Locator finds the CI run belonging to a commit.
type Locator struct {
	client RunLister
	opts   LocatorOptions
	log    logrus.FieldLogger
}

// NewLocator creates a Locator.
func NewLocator(client RunLister, opts LocatorOptions, log logrus.FieldLogger) *Locator {
	if opts.Limit <= 0 {
		opts.Limit = 30
	}
	return &Locator{client: client, opts: opts, log: log}
}

// Locate searches recent completed runs for sha. API failures are logged and
// reported as no match.
func (l *Locator) Locate(ctx context.Context, sha string) *Match {
	runs, err := l.client.CompletedRuns(ctx, l.opts.Limit)
	if err != nil {
		l.log.WithError(err).WithField("commit", sha).Warn("failed to list completed runs")
		return nil
	}
	return l.pick(runs, sha)
}

func (l *Locator) pick(runs []github.WorkflowRun, sha string) *Match {
	for _, run := range runs {
		if run.HeadSHA == sha {
			return &Match{Run: run, Exact: true}
		}
	}
	if !l.opts.Fallback {
		return nil
	}
	for _, run := range runs {
		if run.Conclusion == github.ConclusionSuccess {
			l.log.WithFields(logrus.Fields{
				"commit":   sha,
				"run_id":   run.ID,
				"run_head": run.HeadSHA,
			}).Warn("no run for commit, falling back to most recent successful run")
			return &Match{Run: run, Exact: false}
		}
	}
	return nil
}

// Resolve locates the run for sha, letting waiter decide whether to wait for a
// queued or in-progress run of that exact commit. ErrNotCompleted means the
// run is still pending.
func (l *Locator) Resolve(ctx context.Context, sha string, waiter Waiter) (*Match, error) {
	return waiter.Wait(ctx, func(ctx context.Context) (*Match, bool) {
		runs, err := l.client.CompletedRuns(ctx, l.opts.Limit)
		if err != nil {
			l.log.WithError(err).WithField("commit", sha).Warn("failed to list completed runs")
			return nil, true
		}
		for _, run := range runs {
			if run.HeadSHA == sha {
				return &Match{Run: run, Exact: true}, true
			}
		}
		if l.pending(ctx, sha) {
			l.log.WithField("commit", sha).Info("workflow still running")
			return nil, false
		}
		return l.pick(runs, sha), true
	})
}

func (l *Locator) pending(ctx context.Context, sha string) bool {
	runs, err := l.client.RunsForCommit(ctx, sha)
	if err != nil {
		l.log.WithError(err).WithField("commit", sha).Warn("failed to list runs for commit")
		return false
	}
	for _, run := range runs {
		if run.IsActive() {
			return true
		}
	}
	return false
}
