// Package release hands a detected build over to the external publisher that
// downloads the CI artifacts and creates the release entry.
package release

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kyleking/gh-releasewatch/internal/buildtag"
	"github.com/kyleking/gh-releasewatch/internal/exec"
)

// ErrMissingCredentials is returned when no publisher credential blob is configured.
var ErrMissingCredentials = errors.New("publisher credentials not set")

// Publisher triggers one release.
type Publisher interface {
	Trigger(ctx context.Context, bt buildtag.BuildType, changelog string) error
}

// Options configures the publisher command line.
type Options struct {
	Command     string
	Args        []string
	Credentials string
}

// CommandPublisher runs the publisher as a child process.
type CommandPublisher struct {
	exec exec.CommandExecutor
	opts Options
	log  logrus.FieldLogger
}

// NewCommandPublisher creates a CommandPublisher using executor to run the publisher.
func NewCommandPublisher(executor exec.CommandExecutor, opts Options, log logrus.FieldLogger) *CommandPublisher {
	return &CommandPublisher{exec: executor, opts: opts, log: log}
}

// Trigger invokes "<command> <args...> <credentials> <buildType> <changelog>".
// changelog must already be encoded for single-line transport.
func (p *CommandPublisher) Trigger(ctx context.Context, bt buildtag.BuildType, changelog string) error {
	if p.opts.Credentials == "" {
		return ErrMissingCredentials
	}

	args := make([]string, 0, len(p.opts.Args)+3)
	args = append(args, p.opts.Args...)
	args = append(args, p.opts.Credentials, string(bt), changelog)

	log := p.log.WithField("build_type", bt)
	log.WithField("command", p.opts.Command).Info("invoking release publisher")

	stdout, stderr, err := p.exec.Execute(ctx, p.opts.Command, args...)
	if out := strings.TrimSpace(stdout); out != "" {
		log.WithField("stream", "stdout").Info(out)
	}
	if out := strings.TrimSpace(stderr); out != "" {
		log.WithField("stream", "stderr").Warn(out)
	}
	if err != nil {
		return fmt.Errorf("publisher %s: %w", bt, err)
	}
	return nil
}
