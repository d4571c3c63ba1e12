// Package orchestrator runs one watch pass: detect a tagged commit, check its
// CI run, publish the release and advance the cursor.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kyleking/gh-releasewatch/internal/buildtag"
	"github.com/kyleking/gh-releasewatch/internal/changelog"
	"github.com/kyleking/gh-releasewatch/internal/commits"
	"github.com/kyleking/gh-releasewatch/internal/cursor"
	"github.com/kyleking/gh-releasewatch/internal/github"
	"github.com/kyleking/gh-releasewatch/internal/release"
	"github.com/kyleking/gh-releasewatch/internal/workflow"
)

// State is the terminal state of a pass.
type State string

const (
	// StateNoCommits means the commit history could not be fetched.
	StateNoCommits State = "no_commits"
	// StateNoMatch means no commit carries a build directive.
	StateNoMatch State = "no_match"
	// StateAlreadyProcessed means the detected commit was released before and
	// there is nothing new to put in its notes.
	StateAlreadyProcessed State = "already_processed"
	// StateNoteRefreshed means release notes of a released commit were republished.
	StateNoteRefreshed State = "note_refreshed"
	// StatePending means the CI run has not completed yet.
	StatePending State = "pending"
	// StateNoRun means no usable CI run was found.
	StateNoRun State = "no_run"
	// StateRejected means the run did not satisfy the build type's jobs.
	StateRejected State = "rejected"
	// StatePublishFailed means the publisher failed or could not be invoked,
	// and the cursor was kept.
	StatePublishFailed State = "publish_failed"
	// StateReleased means the publisher ran and the cursor was advanced.
	StateReleased State = "released"
)

// Resolver locates the CI run of a commit.
type Resolver interface {
	Resolve(ctx context.Context, sha string, waiter workflow.Waiter) (*workflow.Match, error)
}

// JobEvaluator judges a completed run.
type JobEvaluator interface {
	Evaluate(ctx context.Context, run github.WorkflowRun, bt buildtag.BuildType) workflow.Verdict
}

// ChangelogSource builds the encoded changelog of a commit.
type ChangelogSource interface {
	Extract(ctx context.Context, previous, current string) string
}

// Options tunes the pass.
type Options struct {
	// RequirePublishSuccess keeps the cursor unchanged when the publisher
	// fails. Off by default: a failed publish still marks the commit processed.
	RequirePublishSuccess bool
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Commits   commits.Source
	Detector  *buildtag.Detector
	Cursor    cursor.Store
	Runs      Resolver
	Waiter    workflow.Waiter
	Evaluator JobEvaluator
	Changelog ChangelogSource
	Publisher release.Publisher
}

// Result describes what a pass did.
type Result struct {
	State     State
	Request   buildtag.Request
	Previous  string
	Run       *workflow.Match
	Verdict   workflow.Verdict
	Changelog string
	// CursorUnreadable is set when a stored cursor could not be read.
	// Previous is then empty.
	CursorUnreadable bool
	// PublishErr is the publisher failure, if any. It never fails the pass.
	PublishErr error
}

// Orchestrator is the release state machine.
type Orchestrator struct {
	deps Deps
	opts Options
	log  logrus.FieldLogger
}

// New creates an Orchestrator. A nil Waiter checks once.
func New(deps Deps, opts Options, log logrus.FieldLogger) *Orchestrator {
	if deps.Waiter == nil {
		deps.Waiter = workflow.Once{}
	}
	if deps.Detector == nil {
		deps.Detector = buildtag.NewDetector(nil)
	}
	return &Orchestrator{deps: deps, opts: opts, log: log}
}

// Run executes one pass. Upstream and publisher failures degrade to a
// terminal state; only cursor writes and cancellation return an error.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	var res Result
	res.Previous, res.CursorUnreadable = o.readCursor(ctx)

	list, err := o.deps.Commits.Commits(ctx)
	if err != nil {
		o.log.WithError(err).Warn("failed to fetch commits")
		return o.finish(res, StateNoCommits), nil
	}

	req, ok := o.deps.Detector.Detect(list)
	if !ok {
		return o.finish(res, StateNoMatch), nil
	}
	res.Request = req

	log := o.log.WithFields(logrus.Fields{"commit": req.CommitID, "build_type": req.Type})
	log.Info("build directive detected")

	if req.CommitID == res.Previous {
		return o.refreshNotes(ctx, log, res), nil
	}
	return o.release(ctx, log, res)
}

// readCursor normalises a missing and an unreadable cursor to "". unreadable
// reports the second case.
func (o *Orchestrator) readCursor(ctx context.Context) (prev string, unreadable bool) {
	prev, err := o.deps.Cursor.Get(ctx)
	switch {
	case err == nil:
		return prev, false
	case errors.Is(err, cursor.ErrNoCursor):
		o.log.Info("no previous release recorded")
		return "", false
	case cursor.IsReadError(err):
		o.log.WithError(err).Error("failed to read cursor, treating as no previous release")
	default:
		o.log.WithError(err).Error("cursor store failed, treating as no previous release")
	}
	return "", true
}

func (o *Orchestrator) refreshNotes(ctx context.Context, log logrus.FieldLogger, res Result) Result {
	res.Changelog = o.deps.Changelog.Extract(ctx, res.Previous, res.Request.CommitID)
	if changelog.IsSentinel(res.Changelog) {
		log.Info("commit already released, no new changelog")
		return o.finish(res, StateAlreadyProcessed)
	}

	if err := o.deps.Publisher.Trigger(ctx, buildtag.UpdateNote, res.Changelog); err != nil {
		log.WithError(err).Error("failed to refresh release notes")
		res.PublishErr = err
	}
	return o.finish(res, StateNoteRefreshed)
}

func (o *Orchestrator) release(ctx context.Context, log logrus.FieldLogger, res Result) (Result, error) {
	req := res.Request

	match, err := o.deps.Runs.Resolve(ctx, req.CommitID, o.deps.Waiter)
	switch {
	case errors.Is(err, workflow.ErrNotCompleted):
		log.Info("workflow run not completed yet")
		return o.finish(res, StatePending), nil
	case err != nil:
		return o.finish(res, StatePending), fmt.Errorf("wait for workflow run: %w", err)
	case match == nil:
		log.Warn("no workflow run found for commit")
		return o.finish(res, StateNoRun), nil
	}
	res.Run = match
	log = log.WithField("run_id", match.Run.ID)

	res.Verdict = o.deps.Evaluator.Evaluate(ctx, match.Run, req.Type)
	if !res.Verdict.Success {
		log.WithField("failed_jobs", res.Verdict.Failed).Warn("required jobs did not succeed, skipping release")
		return o.finish(res, StateRejected), nil
	}

	res.Changelog = o.deps.Changelog.Extract(ctx, res.Previous, req.CommitID)

	if err := o.deps.Publisher.Trigger(ctx, req.Type, res.Changelog); err != nil {
		res.PublishErr = err
		// Without credentials nothing ran, so the commit stays eligible.
		if errors.Is(err, release.ErrMissingCredentials) {
			log.WithError(err).Error("release publisher not invoked")
			return o.finish(res, StatePublishFailed), nil
		}
		log.WithError(err).Error("release publisher failed")
		if o.opts.RequirePublishSuccess {
			return o.finish(res, StatePublishFailed), nil
		}
	}

	if err := o.writeCursor(ctx, res, req.CommitID); err != nil {
		return o.finish(res, StateReleased), err
	}
	log.Info("cursor advanced")
	return o.finish(res, StateReleased), nil
}

// writeCursor uses compare-and-set when the store offers it. After a failed
// read the expected value is unknown, so the cursor is overwritten.
func (o *Orchestrator) writeCursor(ctx context.Context, res Result, commitID string) error {
	if s, ok := o.deps.Cursor.(cursor.Swapper); ok && !res.CursorUnreadable {
		if err := s.CompareAndSet(ctx, res.Previous, commitID); err != nil {
			return fmt.Errorf("advance cursor to %s: %w", commitID, err)
		}
		return nil
	}
	if err := o.deps.Cursor.Set(ctx, commitID); err != nil {
		return fmt.Errorf("advance cursor to %s: %w", commitID, err)
	}
	return nil
}

func (o *Orchestrator) finish(res Result, state State) Result {
	res.State = state
	o.log.WithFields(logrus.Fields{
		"state":  state,
		"commit": res.Request.CommitID,
	}).Debug("pass finished")
	return res
}
