package cmd

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/solsjo/hdlsim/sim/activehdl"
	"github.com/solsjo/hdlsim/sim/watch"
)

var (
	watchDebounce time.Duration // Quiet period before recompiling
	watchRunTests bool          // Rerun all tests after a successful recompile
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Recompile project sources as they change",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(activehdl.Options{})
		if err != nil {
			return err
		}
		defer s.close()

		ctx, stop := signalContext()
		defer stop()

		libs, err := s.adapter.SetupLibraryMapping(ctx, s.project)
		if err != nil {
			return err
		}

		paths := make([]string, len(s.project.Sources))
		for i, f := range s.project.Sources {
			paths[i] = f.Name
		}
		w, err := watch.New(watch.Config{Files: paths, Debounce: watchDebounce})
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				logrus.Errorf("File watcher stopped: %v", err)
			}
		}()
		logrus.Infof("Watching %d source files, press Ctrl-C to stop", len(paths))

		for batch := range w.Batches() {
			files, err := selectSources(s.project, batch)
			if err != nil {
				logrus.Errorf("%v", err)
				continue
			}
			ok, err := compileFiles(ctx, s.adapter, files, libs)
			if err != nil {
				logrus.Errorf("%v", err)
				continue
			}
			if !ok || !watchRunTests {
				continue
			}
			results, err := runTests(ctx, s.adapter, s.project, s.project.Tests, libs, 1)
			if err != nil {
				logrus.Errorf("%v", err)
				continue
			}
			reportResults(results)
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before recompiling changed files")
	watchCmd.Flags().BoolVar(&watchRunTests, "run-tests", false, "Rerun every test after a successful recompile")

	rootCmd.AddCommand(watchCmd)
}
