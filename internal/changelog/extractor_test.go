package changelog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/kyleking/gh-releasewatch/internal/commits"
	"github.com/kyleking/gh-releasewatch/internal/github"
	"github.com/kyleking/gh-releasewatch/internal/workflow"
)

type fakeLocator struct {
	match *workflow.Match
}

func (f fakeLocator) Locate(context.Context, string) *workflow.Match { return f.match }

type fakeJobs struct {
	jobs    []github.Job
	jobsErr error
	log     string
	logErr  error

	logRequests []int64
}

func (f *fakeJobs) Jobs(context.Context, int64) ([]github.Job, error) {
	return f.jobs, f.jobsErr
}

func (f *fakeJobs) JobLog(_ context.Context, jobID int64) (string, error) {
	f.logRequests = append(f.logRequests, jobID)
	return f.log, f.logErr
}

type failingSource struct{}

func (failingSource) Commits(context.Context) ([]github.Commit, error) {
	return nil, errors.New("rate limited")
}

var history = commits.Static{
	{SHA: "c4", Message: "feat: four\n\ndetails", Author: "Dee"},
	{SHA: "c3", Message: "fix: three [build.apk]", Author: "Cy"},
	{SHA: "c2", Message: "chore: two", Author: "Bo"},
	{SHA: "c1", Message: "init", Author: "Al"},
}

func decode(s string) string {
	s = strings.ReplaceAll(s, "%0A", "\n")
	s = strings.ReplaceAll(s, "%0D", "\r")
	return strings.ReplaceAll(s, "%25", "%")
}

func runMatch() *workflow.Match {
	return &workflow.Match{Run: github.WorkflowRun{ID: 7, HeadSHA: "c3"}, Exact: true}
}

func newExtractor(t *testing.T, loc RunLocator, jobs JobSource, src commits.Source) *Extractor {
	t.Helper()
	log, _ := test.NewNullLogger()
	return NewExtractor(loc, jobs, src, testLink, log)
}

func TestExtract_FromJobLog(t *testing.T) {
	jobs := &fakeJobs{
		jobs: []github.Job{{ID: 1, Name: "build_android"}, {ID: 2, Name: "send_message"}},
		log:  loadFixture(t, "send_message.log"),
	}

	got := newExtractor(t, fakeLocator{runMatch()}, jobs, history).Extract(context.Background(), "c1", "c3")

	if len(jobs.logRequests) != 1 || jobs.logRequests[0] != 2 {
		t.Errorf("log requests: got %v, want [2]", jobs.logRequests)
	}
	if strings.ContainsAny(got, "\r\n") {
		t.Fatal("changelog contains a raw line break")
	}

	lines := strings.Split(decode(got), "\n")
	if len(lines) != 5 {
		t.Fatalf("lines: got %d, want 5:\n%s", len(lines), decode(got))
	}
	if want := "● fix: crash on start ~Dev [a1b2c3d](https://github.com/o/r/commit/a1b2c3d)"; lines[0] != want {
		t.Errorf("line 0:\n got %q\nwant %q", lines[0], want)
	}
	if want := "● chore: bump dependencies [c3](https://github.com/o/r/commit/c3)"; lines[2] != want {
		t.Errorf("line without commit should link the detected commit:\n got %q\nwant %q", lines[2], want)
	}
}

func TestExtract_HistoryFallback(t *testing.T) {
	tests := []struct {
		name     string
		locator  RunLocator
		jobs     *fakeJobs
		previous string
		want     []string
	}{
		{
			name:     "no run",
			locator:  fakeLocator{},
			jobs:     &fakeJobs{},
			previous: "c2",
			want:     []string{"c4", "c3"},
		},
		{
			name:     "no sendMessage job",
			locator:  fakeLocator{runMatch()},
			jobs:     &fakeJobs{jobs: []github.Job{{ID: 1, Name: "build_android"}}},
			previous: "c2",
			want:     []string{"c4", "c3"},
		},
		{
			name:     "job listing fails",
			locator:  fakeLocator{runMatch()},
			jobs:     &fakeJobs{jobsErr: errors.New("boom")},
			previous: "c3",
			want:     []string{"c4"},
		},
		{
			name:     "log fetch fails",
			locator:  fakeLocator{runMatch()},
			jobs:     &fakeJobs{jobs: []github.Job{{ID: 2, Name: "sendMessage"}}, logErr: errors.New("410 gone")},
			previous: "c2",
			want:     []string{"c4", "c3"},
		},
		{
			name:     "log has no usable lines",
			locator:  fakeLocator{runMatch()},
			jobs:     &fakeJobs{jobs: []github.Job{{ID: 2, Name: "sendMessage"}}, log: "nothing here\n"},
			previous: "c2",
			want:     []string{"c4", "c3"},
		},
		{
			name:     "no cursor includes everything",
			locator:  fakeLocator{},
			jobs:     &fakeJobs{},
			previous: "",
			want:     []string{"c4", "c3", "c2", "c1"},
		},
		{
			name:     "cursor outside window includes everything",
			locator:  fakeLocator{},
			jobs:     &fakeJobs{},
			previous: "c0",
			want:     []string{"c4", "c3", "c2", "c1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decode(newExtractor(t, tt.locator, tt.jobs, history).Extract(context.Background(), tt.previous, "c3"))
			lines := strings.Split(got, "\n")
			if len(lines) != len(tt.want) {
				t.Fatalf("lines: got %d, want %d:\n%s", len(lines), len(tt.want), got)
			}
			for i, sha := range tt.want {
				if !strings.HasSuffix(lines[i], "(https://github.com/o/r/commit/"+sha+")") {
					t.Errorf("line %d: got %q, want link to %s", i, lines[i], sha)
				}
			}
		})
	}
}

func TestExtract_HistoryEntryFormat(t *testing.T) {
	got := decode(newExtractor(t, fakeLocator{}, &fakeJobs{}, history).Extract(context.Background(), "c3", "c4"))
	want := "● feat: four ~Dee [c4](https://github.com/o/r/commit/c4)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtract_NoNewCommits(t *testing.T) {
	tests := []struct {
		name     string
		src      commits.Source
		previous string
		current  string
	}{
		{"already released", history, "c3", "c3"},
		{"cursor is newest", history, "c4", "c3"},
		{"history unavailable", failingSource{}, "c1", "c3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newExtractor(t, fakeLocator{}, &fakeJobs{}, tt.src).Extract(context.Background(), tt.previous, tt.current)
			if got != NoNewCommits {
				t.Errorf("got %q, want %q", got, NoNewCommits)
			}
		})
	}
}

func TestExtract_AlreadyReleasedStillUsesJobLog(t *testing.T) {
	jobs := &fakeJobs{
		jobs: []github.Job{{ID: 2, Name: "Send Message"}},
		log:  "● [a1b2c3d] ~Dev~: fix: crash on start\n",
	}
	got := decode(newExtractor(t, fakeLocator{runMatch()}, jobs, history).Extract(context.Background(), "c3", "c3"))
	if !strings.Contains(got, "fix: crash on start") {
		t.Errorf("expected job log changelog, got %q", got)
	}
}

func TestExtract_PercentEncodedOnce(t *testing.T) {
	src := commits.Static{{SHA: "p1", Message: "perf: 100% faster\r", Author: "Dev"}}

	got := newExtractor(t, fakeLocator{}, &fakeJobs{}, src).Extract(context.Background(), "", "p1")
	if !strings.Contains(got, "100%25 faster") {
		t.Errorf("expected percent to be encoded once, got %q", got)
	}
	if strings.Contains(got, "%2525") {
		t.Errorf("percent encoded twice: %q", got)
	}
	if strings.ContainsAny(got, "\r\n") {
		t.Errorf("raw line break in %q", got)
	}
}

func TestFindSendMessageJob(t *testing.T) {
	tests := []struct {
		name string
		jobs []string
		want bool
	}{
		{"camel case", []string{"build", "sendMessage"}, true},
		{"snake case", []string{"send_message"}, true},
		{"spaced", []string{"Send Message (discord)"}, true},
		{"dashed", []string{"notify / send-message"}, true},
		{"absent", []string{"build_android", "upload"}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var jobs []github.Job
			for i, name := range tt.jobs {
				jobs = append(jobs, github.Job{ID: int64(i), Name: name})
			}
			if _, got := FindSendMessageJob(jobs); got != tt.want {
				t.Errorf("FindSendMessageJob(%v) = %v, want %v", tt.jobs, got, tt.want)
			}
		})
	}
}
