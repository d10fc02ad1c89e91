// Package activehdl drives Aldec Active-HDL: it maps libraries, builds
// compile commands, writes the TCL scripts that load and run a test bench,
// and merges coverage.
//
// An Adapter is not synchronized. Compile command construction is pure and may
// run concurrently; SetupLibraryMapping mutates library.cfg and must be
// serialized by the caller; Simulate may run concurrently for different test
// configurations since each writes its own output directory.
package activehdl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/solsjo/hdlsim/sim"
	"github.com/solsjo/hdlsim/sim/compile"
	"github.com/solsjo/hdlsim/sim/coverage"
	"github.com/solsjo/hdlsim/sim/library"
	"github.com/solsjo/hdlsim/sim/metrics"
	"github.com/solsjo/hdlsim/sim/ostools"
	"github.com/solsjo/hdlsim/sim/process"
	"github.com/solsjo/hdlsim/sim/script"
	"github.com/solsjo/hdlsim/sim/version"
)

// Name identifies the simulator; generated scripts live in <output>/activehdl.
const Name = "activehdl"

// PackageGenericsVersion is the first release supporting VHDL-2008 package generics.
var PackageGenericsVersion = version.Version{Major: 10, Minor: 1}

// Script file names written per test configuration.
const (
	CommonScriptName = "common.tcl"
	BatchScriptName  = "batch.tcl"
	GUIScriptName    = "gui.tcl"
	MergeScriptName  = "acdb_merge.tcl"
)

// Options configure an Adapter.
type Options struct {
	Prefix         string // toolchain bin directory holding vsim, vcom, vlog, ...
	OutputPath     string // root holding library.cfg and the coverage merge script
	GUI            bool   // launch the interactive script instead of batch
	ElaborateOnly  bool   // batch mode stops after load
	Env            []string
	ResultFileName sim.ResultFileName // defaults to sim.DefaultResultFileName
	Metrics        *metrics.Recorder  // optional
}

// Adapter is the Active-HDL simulator interface.
type Adapter struct {
	opts     Options
	runner   process.Runner
	registry *library.Registry
	builder  compile.Builder
	prober   *version.Prober
	coverage *coverage.Set
	dialect  script.Dialect
}

// New creates an adapter, creating library.cfg in opts.OutputPath if needed.
func New(opts Options, runner process.Runner) (*Adapter, error) {
	if opts.Prefix == "" {
		return nil, fmt.Errorf("toolchain prefix is required")
	}
	if opts.ResultFileName == nil {
		opts.ResultFileName = sim.DefaultResultFileName
	}
	registry, err := library.NewRegistry(opts.Prefix, opts.OutputPath, runner, opts.Env)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		opts:     opts,
		runner:   runner,
		registry: registry,
		builder:  compile.Builder{Prefix: opts.Prefix, LibraryCfg: registry.CfgPath()},
		prober:   version.NewProber(runner, opts.Env),
		coverage: coverage.NewSet(),
		dialect:  script.TCL{},
	}, nil
}

// SupportsCoverage reports that Active-HDL can collect code coverage.
func SupportsCoverage() bool { return true }

// SupportsVHDLPackageGenerics probes the compiler version once per prefix.
// A missing tool or unrecognized banner means unsupported.
func (a *Adapter) SupportsVHDLPackageGenerics(ctx context.Context) bool {
	v, err := a.prober.Probe(ctx, a.opts.Prefix)
	if err != nil {
		logrus.Warnf("Could not determine Active-HDL version, assuming no package generics support: %v", err)
		return false
	}
	return v.AtLeast(PackageGenericsVersion)
}

// Version returns the probed compiler version.
func (a *Adapter) Version(ctx context.Context) (version.Version, error) {
	return a.prober.Probe(ctx, a.opts.Prefix)
}

// Prefix is the toolchain directory the adapter runs tools from.
func (a *Adapter) Prefix() string { return a.opts.Prefix }

// LibraryCfg is the absolute path of library.cfg.
func (a *Adapter) LibraryCfg() string { return a.registry.CfgPath() }

// SetupLibraryMapping creates and maps every project library and returns the
// snapshot later compile and simulate calls link against.
func (a *Adapter) SetupLibraryMapping(ctx context.Context, project sim.Project) (compile.LibrarySet, error) {
	mapped, err := a.registry.ReadMapped()
	if err != nil {
		return compile.LibrarySet{}, err
	}
	libs := project.Libraries()
	for _, lib := range libs {
		changed, err := a.registry.Ensure(ctx, lib.Name, lib.Directory, mapped)
		if err != nil {
			return compile.LibrarySet{}, fmt.Errorf("setting up library %s: %w", lib.Name, err)
		}
		if changed {
			a.opts.Metrics.ObserveLibrary("ensure")
		} else {
			a.opts.Metrics.ObserveLibrary("skip")
		}
	}
	return compile.NewLibrarySet(libs), nil
}

// CompileSourceFileCommand returns the compiler invocation for file.
func (a *Adapter) CompileSourceFileCommand(file sim.SourceFile, libs compile.LibrarySet) ([]string, error) {
	return a.builder.Command(file, libs)
}

// CompileSourceFile compiles file, echoing compiler output. A compiler error is
// reported as false; the diagnostics are already on the output stream.
func (a *Adapter) CompileSourceFile(ctx context.Context, file sim.SourceFile, libs compile.LibrarySet) (bool, error) {
	args, err := a.CompileSourceFileCommand(file, libs)
	if err != nil {
		a.opts.Metrics.ObserveCompile(string(file.Kind), metrics.OutcomeError)
		return false, err
	}
	logrus.Infof("Compiling %s into %s", file.Name, file.Library.Name)
	ok, err := a.run(ctx, process.Command{Args: args, Env: a.opts.Env})
	a.opts.Metrics.ObserveCompile(string(file.Kind), metrics.Outcome(ok, err))
	return ok, err
}

// Simulate writes the common, batch and GUI scripts for cfg under
// outputPath/activehdl and runs the script for the configured mode.
// The result is whether the simulator exited cleanly.
func (a *Adapter) Simulate(ctx context.Context, outputPath string, cfg sim.TestConfig, libs compile.LibrarySet) (bool, error) {
	runID := uuid.New().String()
	scriptDir := filepath.Join(outputPath, Name)
	commonFile := filepath.Join(scriptDir, CommonScriptName)
	batchFile := filepath.Join(scriptDir, BatchScriptName)
	guiFile := filepath.Join(scriptDir, GUIScriptName)

	common, err := a.commonScript(cfg, outputPath)
	if err != nil {
		return false, err
	}
	gui, err := guiScript(commonFile, cfg, libs)
	if err != nil {
		return false, err
	}
	for _, f := range []struct {
		path string
		s    script.Script
	}{
		{commonFile, common},
		{guiFile, gui},
		{batchFile, batchScript(commonFile, a.opts.ElaborateOnly)},
	} {
		if err := ostools.WriteFile(f.path, a.dialect.Render(f.s)); err != nil {
			return false, err
		}
	}

	mode := "batch"
	start := time.Now()
	var ok bool
	if a.opts.GUI {
		mode = "gui"
		guiDir := filepath.Join(scriptDir, "gui")
		if err := ostools.RenewPath(guiDir); err != nil {
			return false, err
		}
		logrus.Infof("Starting %s in GUI mode (run %s)", cfg.Name, runID)
		ok, err = a.runScript(ctx, guiFile, true, guiDir)
	} else {
		logrus.Infof("Simulating %s (run %s)", cfg.Name, runID)
		ok, err = a.runScript(ctx, batchFile, false, a.registry.Dir())
	}
	elapsed := time.Since(start)
	a.opts.Metrics.ObserveSimulation(mode, metrics.Outcome(ok, err), elapsed)
	logrus.Debugf("Run %s of %s finished in %s: ok=%v", runID, cfg.Name, elapsed, ok)
	return ok, err
}

// runScript invokes vsim on a TCL file. Batch runs quit with code 1 on any
// TCL error; GUI runs stay open.
func (a *Adapter) runScript(ctx context.Context, scriptFile string, gui bool, dir string) (bool, error) {
	todo := fmt.Sprintf(`@do -tcl ""%s""`, script.FixPath(scriptFile))
	modeFlag := "-gui"
	if !gui {
		todo = "@onerror {quit -code 1};" + todo
		modeFlag = "-c"
	}
	args := []string{
		filepath.Join(a.opts.Prefix, "vsim"),
		modeFlag,
		"-l", filepath.Join(filepath.Dir(scriptFile), "transcript"),
		"-do", todo,
	}
	return a.run(ctx, process.Command{Args: args, Dir: dir, Env: a.opts.Env})
}

// CoverageFiles lists the coverage databases recorded by generated load scripts.
func (a *Adapter) CoverageFiles() []string { return a.coverage.Files() }

// MergeCoverage merges every recorded coverage database into fileName.
// Databases that were never written are skipped with a warning.
func (a *Adapter) MergeCoverage(ctx context.Context, fileName string, args []string) error {
	plan := coverage.PlanMerge(a.coverage.Files(), args, fileName)
	a.opts.Metrics.ObserveCoverageMissing(len(plan.Missing))

	mergeScript := filepath.Join(a.opts.OutputPath, MergeScriptName)
	if err := ostools.WriteFile(mergeScript, a.dialect.Render(plan.Script)+"\n"); err != nil {
		return err
	}

	logrus.Infof("Merging coverage files into %s...", fileName)
	cmd := process.Command{
		Args: []string{filepath.Join(a.opts.Prefix, "vsimsa"), "-tcl", script.FixPath(mergeScript)},
		Env:  a.opts.Env,
	}
	if err := a.runner.Run(ctx, cmd, nil); err != nil {
		return fmt.Errorf("merging coverage: %w", err)
	}
	logrus.Info("Done merging coverage files")
	return nil
}

// run maps a nonzero exit to false; launch failures are returned as errors.
func (a *Adapter) run(ctx context.Context, cmd process.Command) (bool, error) {
	err := a.runner.Run(ctx, cmd, nil)
	switch {
	case process.Succeeded(err):
		return true, nil
	case process.IsExitFailure(err):
		logrus.Debugf("%v", err)
		return false, nil
	}
	return false, err
}

// FindPrefix returns the first PATH directory holding both vsim and avhdl.
func FindPrefix() (string, error) {
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" {
			continue
		}
		if isExecutable(filepath.Join(dir, "vsim")) && isExecutable(filepath.Join(dir, "avhdl")) {
			return dir, nil
		}
	}
	return "", fmt.Errorf("no Active-HDL installation on PATH (looked for vsim and avhdl)")
}

func isExecutable(path string) bool {
	for _, p := range []string{path, path + ".exe"} {
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() && (info.Mode()&0111 != 0 || strings.HasSuffix(p, ".exe")) {
			return true
		}
	}
	return false
}
