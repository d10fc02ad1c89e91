package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/solsjo/hdlsim/sim/activehdl"
	"github.com/solsjo/hdlsim/sim/metrics"
	"github.com/solsjo/hdlsim/sim/process"
	"github.com/solsjo/hdlsim/sim/project"
)

// PrefixEnv names the environment variable consulted when neither --prefix
// nor the project file sets the toolchain directory.
const PrefixEnv = "ACTIVEHDL_PREFIX"

var (
	logLevel    string // Log verbosity level
	projectPath string // Path to hdlsim.yaml
	prefix      string // Active-HDL bin directory
	outputPath  string // Overrides output_path from the project file
	metricsFile string // Prometheus textfile written on exit
)

// newRunner is replaced in tests.
var newRunner = func() process.Runner { return process.NewExecRunner() }

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "hdlsim",
	Short: "Drive the Active-HDL simulator from an hdlsim.yaml project",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// session bundles what every subcommand needs.
type session struct {
	project *project.Project
	adapter *activehdl.Adapter
	metrics *metrics.Recorder
}

// resolvePrefix picks the toolchain directory: flag, project file,
// environment, then a PATH search.
func resolvePrefix(flag, fromProject string, getenv func(string) string) (string, error) {
	switch {
	case flag != "":
		return flag, nil
	case fromProject != "":
		return fromProject, nil
	case getenv(PrefixEnv) != "":
		return getenv(PrefixEnv), nil
	}
	return activehdl.FindPrefix()
}

// openSession loads the project and builds an adapter for it.
func openSession(opts activehdl.Options) (*session, error) {
	p, err := project.Open(projectPath)
	if err != nil {
		return nil, err
	}
	if outputPath != "" {
		p.OutputPath = outputPath
	}
	pfx, err := resolvePrefix(prefix, p.Prefix, os.Getenv)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Using Active-HDL at %s", pfx)

	rec := metrics.NewRecorder()
	opts.Prefix = pfx
	opts.OutputPath = p.OutputPath
	opts.Env = p.Env
	opts.ResultFileName = p.ResultFileName()
	opts.Metrics = rec

	a, err := activehdl.New(opts, newRunner())
	if err != nil {
		return nil, err
	}
	return &session{project: p, adapter: a, metrics: rec}, nil
}

// close flushes metrics when --metrics-file is set.
func (s *session) close() {
	if metricsFile == "" {
		return
	}
	if err := s.metrics.WriteTextfile(metricsFile); err != nil {
		logrus.Errorf("Writing metrics: %v", err)
		return
	}
	logrus.Debugf("Metrics written to %s", metricsFile)
}

// signalContext is cancelled on SIGINT/SIGTERM so running tools are killed.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// errFailed signals that tools ran but reported failure; the message has
// already been logged.
var errFailed = errors.New("one or more steps failed")

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalf("%v", err)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&projectPath, "project", project.DefaultFileName, "Path to the project file")
	rootCmd.PersistentFlags().StringVar(&prefix, "prefix", "", "Active-HDL bin directory (default: project prefix, $"+PrefixEnv+", or PATH search)")
	rootCmd.PersistentFlags().StringVar(&outputPath, "output", "", "Output directory (default: project output_path)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}
