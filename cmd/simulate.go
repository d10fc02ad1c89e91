package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/solsjo/hdlsim/sim"
	"github.com/solsjo/hdlsim/sim/activehdl"
	"github.com/solsjo/hdlsim/sim/compile"
	"github.com/solsjo/hdlsim/sim/project"
)

var (
	simGUI        bool     // Launch the interactive simulator
	simElaborate  bool     // Stop after loading the design
	simJobs       int      // Concurrent batch simulations
	mergeCoverage string   // Merged coverage database to write
	coverageArgs  []string // Extra acdb merge arguments
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [tests...]",
	Short: "Run project test benches, or only the named ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(activehdl.Options{GUI: simGUI, ElaborateOnly: simElaborate})
		if err != nil {
			return err
		}
		defer s.close()

		tests, err := selectTests(s.project, args)
		if err != nil {
			return err
		}
		jobs := simJobs
		if simGUI {
			jobs = 1
		}

		ctx, stop := signalContext()
		defer stop()

		libs, err := s.adapter.SetupLibraryMapping(ctx, s.project)
		if err != nil {
			return err
		}
		results, err := runTests(ctx, s.adapter, s.project, tests, libs, jobs)
		if err != nil {
			return err
		}
		failed := reportResults(results)

		if mergeCoverage != "" {
			out, err := filepath.Abs(mergeCoverage)
			if err != nil {
				return err
			}
			if err := s.adapter.MergeCoverage(ctx, out, coverageArgs); err != nil {
				return err
			}
		}
		if failed > 0 {
			return errFailed
		}
		return nil
	},
}

// testResult is the outcome of one Simulate call.
type testResult struct {
	Name   string
	Passed bool
}

// selectTests returns the named test configurations, or all of them.
func selectTests(p *project.Project, names []string) ([]sim.TestConfig, error) {
	if len(names) == 0 {
		return p.Tests, nil
	}
	out := make([]sim.TestConfig, 0, len(names))
	for _, name := range names {
		cfg, ok := p.Test(name)
		if !ok {
			return nil, fmt.Errorf("unknown test %q", name)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// runTests simulates each configuration with at most jobs running at once.
// Results keep the order of tests. A failing test does not stop the others;
// a launch error does.
func runTests(ctx context.Context, a *activehdl.Adapter, p *project.Project, tests []sim.TestConfig, libs compile.LibrarySet, jobs int) ([]testResult, error) {
	if jobs < 1 {
		jobs = 1
	}
	results := make([]testResult, len(tests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, cfg := range tests {
		i, cfg := i, cfg
		g.Go(func() error {
			ok, err := a.Simulate(gctx, p.TestOutputPath(cfg), cfg, libs)
			if err != nil {
				return fmt.Errorf("simulating %s: %w", cfg.Name, err)
			}
			results[i] = testResult{Name: cfg.Name, Passed: ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// reportResults logs one line per test and returns the number of failures.
func reportResults(results []testResult) int {
	failed := 0
	for _, r := range results {
		if r.Passed {
			logrus.Infof("pass %s", r.Name)
			continue
		}
		failed++
		logrus.Errorf("fail %s", r.Name)
	}
	logrus.Infof("%d of %d tests passed", len(results)-failed, len(results))
	return failed
}

func init() {
	simulateCmd.Flags().BoolVar(&simGUI, "gui", false, "Open the test bench in the Active-HDL GUI")
	simulateCmd.Flags().BoolVar(&simElaborate, "elaborate", false, "Only load the design, do not run it")
	simulateCmd.Flags().IntVarP(&simJobs, "jobs", "j", 1, "Number of simulations run concurrently (ignored with --gui)")
	simulateCmd.Flags().StringVar(&mergeCoverage, "merge-coverage", "", "Merge coverage of the simulated tests into this .acdb file")
	simulateCmd.Flags().StringSliceVar(&coverageArgs, "coverage-args", nil, "Extra arguments passed to acdb merge")

	rootCmd.AddCommand(simulateCmd)
}
