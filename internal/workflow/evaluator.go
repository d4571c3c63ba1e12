package workflow

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kyleking/gh-releasewatch/internal/buildtag"
	"github.com/kyleking/gh-releasewatch/internal/github"
)

// Requirement lists the jobs a build type depends on.
type Requirement struct {
	Jobs []string
	// PartialSuccess releases when at least one required job succeeded.
	PartialSuccess bool
}

// JobTable maps build types to their required jobs.
type JobTable map[buildtag.BuildType]Requirement

// DefaultJobTable is strict for single-platform builds and lenient for "all".
var DefaultJobTable = JobTable{
	buildtag.All: {
		Jobs:           []string{"build_android", "build_windows", "build_macos", "build_linux", "build_ios"},
		PartialSuccess: true,
	},
	buildtag.APK:     {Jobs: []string{"build_android"}},
	buildtag.Windows: {Jobs: []string{"build_windows"}},
	buildtag.Linux:   {Jobs: []string{"build_linux"}},
	buildtag.IOS:     {Jobs: []string{"build_ios"}},
	buildtag.MacOS:   {Jobs: []string{"build_macos"}},
}

// Verdict is the outcome of evaluating a run for a build type.
type Verdict struct {
	Success   bool
	Partial   bool
	Succeeded []string
	Failed    []string
}

// JobLister is the subset of the GitHub client the Evaluator needs.
type JobLister interface {
	Jobs(ctx context.Context, runID int64) ([]github.Job, error)
}

// Evaluator decides whether a completed run is good enough to release.
type Evaluator struct {
	jobs  JobLister
	table JobTable
	log   logrus.FieldLogger
}

// NewEvaluator creates an Evaluator. A nil table uses DefaultJobTable.
func NewEvaluator(jobs JobLister, table JobTable, log logrus.FieldLogger) *Evaluator {
	if table == nil {
		table = DefaultJobTable
	}
	return &Evaluator{jobs: jobs, table: table, log: log}
}

// Evaluate fetches the jobs of run and applies the table for bt. A failed job
// listing counts as not successful.
func (e *Evaluator) Evaluate(ctx context.Context, run github.WorkflowRun, bt buildtag.BuildType) Verdict {
	req, ok := e.table[bt]
	if !ok {
		return Verdict{Success: run.Conclusion == github.ConclusionSuccess}
	}

	jobs, err := e.jobs.Jobs(ctx, run.ID)
	if err != nil {
		e.log.WithError(err).WithField("run_id", run.ID).Warn("failed to list jobs")
		return Verdict{}
	}

	v := Decide(req, jobs)
	fields := logrus.Fields{
		"run_id":     run.ID,
		"build_type": bt,
		"succeeded":  v.Succeeded,
		"failed":     v.Failed,
	}
	switch {
	case v.Partial:
		e.log.WithFields(fields).Warn("partial success, releasing available platforms")
	case v.Success:
		e.log.WithFields(fields).Info("required jobs succeeded")
	default:
		e.log.WithFields(fields).Info("required jobs did not succeed")
	}
	return v
}

// Decide applies req to jobs. Every required job must succeed unless
// req.PartialSuccess is set, in which case one success is enough.
func Decide(req Requirement, jobs []github.Job) Verdict {
	var v Verdict
	for _, name := range req.Jobs {
		if requiredJobSucceeded(name, jobs) {
			v.Succeeded = append(v.Succeeded, name)
		} else {
			v.Failed = append(v.Failed, name)
		}
	}

	switch {
	case len(req.Jobs) == 0:
		v.Success = false
	case len(v.Failed) == 0:
		v.Success = true
	case req.PartialSuccess && len(v.Succeeded) > 0:
		v.Success = true
		v.Partial = true
	}
	return v
}

func requiredJobSucceeded(required string, jobs []github.Job) bool {
	required = NormalizeJobName(required)
	for _, job := range jobs {
		name := NormalizeJobName(job.Name)
		if name != required && !strings.HasPrefix(name, required+"_") {
			continue
		}
		if job.IsSuccess() {
			return true
		}
	}
	return false
}

// NormalizeJobName lower-cases name and turns spaces and dashes into underscores.
func NormalizeJobName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(name)
}
