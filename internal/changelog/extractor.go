// Package changelog derives release notes for a commit, preferring the
// changelog printed by the CI notification job and falling back to the raw
// commit history.
package changelog

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kyleking/gh-releasewatch/internal/commits"
	"github.com/kyleking/gh-releasewatch/internal/github"
	"github.com/kyleking/gh-releasewatch/internal/workflow"
)

// RunLocator finds the workflow run of a commit.
type RunLocator interface {
	Locate(ctx context.Context, sha string) *workflow.Match
}

// JobSource lists jobs and downloads their logs.
type JobSource interface {
	Jobs(ctx context.Context, runID int64) ([]github.Job, error)
	JobLog(ctx context.Context, jobID int64) (string, error)
}

// Extractor builds the transport-safe changelog for a commit.
type Extractor struct {
	runs    RunLocator
	jobs    JobSource
	commits commits.Source
	link    LinkFunc
	log     logrus.FieldLogger
}

// NewExtractor creates an Extractor.
func NewExtractor(runs RunLocator, jobs JobSource, source commits.Source, link LinkFunc, log logrus.FieldLogger) *Extractor {
	return &Extractor{runs: runs, jobs: jobs, commits: source, link: link, log: log}
}

// Extract returns the encoded changelog for current. previous is the last
// released commit, or empty when nothing was released yet.
func (e *Extractor) Extract(ctx context.Context, previous, current string) string {
	log := e.log.WithField("commit", current)

	entries := e.fromLogs(ctx, log, current)
	if len(entries) == 0 && previous != current {
		entries = e.fromHistory(ctx, log, previous)
	}
	if len(entries) == 0 {
		log.Info("no changelog entries found")
		return Encode(NoNewCommits)
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, entry.Format(e.link))
	}
	return Encode(strings.Join(lines, "\n"))
}

func (e *Extractor) fromLogs(ctx context.Context, log logrus.FieldLogger, current string) []Entry {
	match := e.runs.Locate(ctx, current)
	if match == nil {
		log.Info("no workflow run data available")
		return nil
	}
	log = log.WithField("run_id", match.Run.ID)

	jobs, err := e.jobs.Jobs(ctx, match.Run.ID)
	if err != nil {
		log.WithError(err).Warn("failed to list jobs, using commit history")
		return nil
	}

	job, ok := FindSendMessageJob(jobs)
	if !ok {
		log.Info("no sendMessage job found")
		return nil
	}

	raw, err := e.jobs.JobLog(ctx, job.ID)
	if err != nil {
		log.WithError(err).WithField("job_id", job.ID).Warn("failed to fetch job log, using commit history")
		return nil
	}

	entries := ParseLines(raw)
	for i := range entries {
		if entries[i].CommitID == "" {
			entries[i].CommitID = current
		}
	}
	log.WithField("entries", len(entries)).Debug("parsed changelog from job log")
	return entries
}

func (e *Extractor) fromHistory(ctx context.Context, log logrus.FieldLogger, previous string) []Entry {
	list, err := e.commits.Commits(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch commit history")
		return nil
	}

	end := commits.IndexOf(list, previous)
	if end < 0 {
		end = len(list)
	}

	entries := make([]Entry, 0, end)
	for _, c := range list[:end] {
		entries = append(entries, FromCommit(c))
	}
	log.WithField("entries", len(entries)).Debug("built changelog from commit history")
	return entries
}

// FindSendMessageJob returns the notification job of a run. Matching ignores
// case and separators, so "sendMessage", "send_message" and "Send Message" all match.
func FindSendMessageJob(jobs []github.Job) (github.Job, bool) {
	for _, job := range jobs {
		name := strings.ToLower(job.Name)
		name = strings.NewReplacer("_", "", "-", "", " ", "", ".", "").Replace(name)
		if strings.Contains(name, "sendmessage") {
			return job, true
		}
	}
	return github.Job{}, false
}
