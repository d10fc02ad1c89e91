// Package processtest provides a scripted process.Runner for adapter tests.
package processtest

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/solsjo/hdlsim/sim/process"
)

// Response is what the recorder plays back for a matching command.
type Response struct {
	Lines []string // output fed to the consumer
	Err   error    // returned from Run
	// Effect runs before Lines are replayed, e.g. to create the files a tool would.
	Effect func(cmd process.Command)
}

// Recorder records every command and answers with canned responses keyed by
// the base name of the executable ("vlib", "vsim").
type Recorder struct {
	mu        sync.Mutex
	Commands  []process.Command
	Responses map[string]Response
}

// NewRecorder creates an empty recorder; unknown tools succeed with no output.
func NewRecorder() *Recorder {
	return &Recorder{Responses: make(map[string]Response)}
}

// On registers the response for a tool.
func (r *Recorder) On(tool string, resp Response) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Responses[tool] = resp
	return r
}

// Run implements process.Runner.
func (r *Recorder) Run(_ context.Context, cmd process.Command, consume process.LineConsumer) error {
	r.mu.Lock()
	r.Commands = append(r.Commands, cmd)
	resp := r.Responses[filepath.Base(cmd.Args[0])]
	r.mu.Unlock()

	if resp.Effect != nil {
		resp.Effect(cmd)
	}
	if consume != nil {
		for _, line := range resp.Lines {
			if !consume(line) {
				break
			}
		}
	}
	return resp.Err
}

// Calls returns the recorded commands whose executable base name is tool.
func (r *Recorder) Calls(tool string) []process.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []process.Command
	for _, c := range r.Commands {
		if filepath.Base(c.Args[0]) == tool {
			out = append(out, c)
		}
	}
	return out
}
