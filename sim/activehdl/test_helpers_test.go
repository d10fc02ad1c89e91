package activehdl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solsjo/hdlsim/sim"
	"github.com/solsjo/hdlsim/sim/process/processtest"
	"github.com/solsjo/hdlsim/sim/script"
)

const testPrefix = "/opt/aldec/bin"

// staticProject serves a fixed library list.
type staticProject []sim.Library

func (p staticProject) Libraries() []sim.Library { return p }

// newTestAdapter returns an adapter over a recorder in a fresh output directory.
func newTestAdapter(t *testing.T, mutate func(*Options)) (*Adapter, *processtest.Recorder, string) {
	t.Helper()
	out := t.TempDir()
	opts := Options{Prefix: testPrefix, OutputPath: out}
	if mutate != nil {
		mutate(&opts)
	}
	rec := processtest.NewRecorder()
	a, err := New(opts, rec)
	require.NoError(t, err)
	return a, rec, out
}

// fifoConfig is a test bench with two generics and no coverage.
func fifoConfig() sim.TestConfig {
	return sim.TestConfig{
		Name:        "lib.tb_fifo.all",
		LibraryName: "lib",
		EntityName:  "tb_fifo",
		Generics: []sim.Generic{
			{Name: "WIDTH", Value: "8"},
			{Name: "DEPTH", Value: "4"},
		},
		VHDLAssertStopLevel: sim.AssertLevelError,
	}
}

// vsimCommand digs the vsim invocation out of the load proc's catch block.
func vsimCommand(t *testing.T, load script.Proc) script.Command {
	t.Helper()
	for _, st := range load.Body {
		if c, ok := st.(script.Catch); ok {
			require.Len(t, c.Body, 1)
			cmd, ok := c.Body[0].(script.Command)
			require.True(t, ok)
			return cmd
		}
	}
	t.Fatal("load proc has no catch block")
	return script.Command{}
}

// words renders the arguments of a command as plain strings.
func words(c script.Command) []string {
	out := make([]string, 0, len(c.Args))
	for _, w := range c.Args {
		out = append(out, w.Text)
	}
	return out
}
