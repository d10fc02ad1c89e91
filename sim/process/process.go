// Package process launches simulator tools and streams their output line by line.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// maxLineBytes bounds a single output line; vsim transcripts can carry very long lines.
const maxLineBytes = 1 << 20

// Command is one subprocess invocation.
type Command struct {
	Args []string // Args[0] is the executable
	Dir  string   // working directory; empty inherits the caller's
	Env  []string // extra KEY=VALUE entries appended to the parent environment
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// LineConsumer receives each output line. Returning false means the consumer is
// done; the runner keeps draining the process output without forwarding it.
type LineConsumer func(line string) bool

// Discard drains output silently.
func Discard(string) bool { return false }

// ExitError reports that the process ran and exited with a nonzero status.
type ExitError struct {
	Command Command
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Command.Args[0], e.Code)
}

// Succeeded maps a Run result to the boolean outcome callers report upward.
func Succeeded(err error) bool {
	return err == nil
}

// IsExitFailure reports whether err came from a nonzero exit rather than a launch failure.
func IsExitFailure(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}

// Runner runs a command to completion, blocking the caller.
type Runner interface {
	Run(ctx context.Context, cmd Command, consume LineConsumer) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Output receives lines when no consumer is given. Defaults to os.Stdout.
	Output io.Writer
}

// NewExecRunner creates a runner echoing unconsumed output to stdout.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Output: os.Stdout}
}

// Run launches cmd and streams stdout and stderr to consume.
// A nil consumer echoes every line to r.Output.
// Nonzero exit is returned as *ExitError; launch failures are returned as-is.
func (r *ExecRunner) Run(ctx context.Context, cmd Command, consume LineConsumer) error {
	if len(cmd.Args) == 0 {
		return errors.New("empty command")
	}
	if consume == nil {
		consume = r.echo
	}

	c := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	stdout, err := c.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe for %s: %w", cmd.Args[0], err)
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe for %s: %w", cmd.Args[0], err)
	}

	logrus.Debugf("Running %s (cwd=%q)", cmd, cmd.Dir)
	if err := c.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", cmd.Args[0], err)
	}

	sink := &lineSink{consume: consume}
	var g errgroup.Group
	g.Go(func() error { return sink.drain(stdout) })
	g.Go(func() error { return sink.drain(stderr) })
	drainErr := g.Wait()

	waitErr := c.Wait()
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{Command: cmd, Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("waiting for %s: %w", cmd.Args[0], waitErr)
	}
	if drainErr != nil {
		return fmt.Errorf("reading output of %s: %w", cmd.Args[0], drainErr)
	}
	return nil
}

func (r *ExecRunner) echo(line string) bool {
	out := r.Output
	if out == nil {
		out = os.Stdout
	}
	_, _ = fmt.Fprintln(out, line)
	return true
}

// lineSink serializes consumer calls coming from the stdout and stderr readers.
type lineSink struct {
	mu      sync.Mutex
	consume LineConsumer
	done    bool
}

func (s *lineSink) drain(rd io.Reader) error {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		s.deliver(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		// Keep the pipe flowing so the child never blocks on a full buffer.
		_, _ = io.Copy(io.Discard, rd)
		return err
	}
	return nil
}

func (s *lineSink) deliver(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	if !s.consume(line) {
		s.done = true
	}
}
