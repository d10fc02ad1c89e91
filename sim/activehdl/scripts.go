package activehdl

import (
	"fmt"
	"path/filepath"

	"github.com/solsjo/hdlsim/sim"
	"github.com/solsjo/hdlsim/sim/compile"
	"github.com/solsjo/hdlsim/sim/coverage"
	"github.com/solsjo/hdlsim/sim/script"
)

// Names of the procs defined by the common script.
const (
	LoadProc = "hdlsim_load"
	RunProc  = "hdlsim_run"
	DoneProc = "is_test_suite_done"
)

// suiteDoneMarker is the line the test bench writes to its result file when
// every test case has finished.
const suiteDoneMarker = "test_suite_done"

// genericVar is the script-local variable holding a generic's value.
func genericVar(name string) string {
	return "hdlsim_generic_" + name
}

// doneProcedure reads the result file and reports whether the suite finished.
func doneProcedure(resultFile string) script.Proc {
	return script.Proc{Name: DoneProc, Body: []script.Statement{
		script.SetResult{Name: "fd", Command: script.Cmd("open", script.Quoted(script.FixPath(resultFile)), script.Quoted("r"))},
		script.SetResult{Name: "contents", Command: script.Cmd("read", script.Bare("$fd"))},
		script.Cmd("close", script.Bare("$fd")),
		script.SetResult{Name: "lines", Command: script.Cmd("split", script.Bare("$contents"), script.Quoted(`\n`))},
		script.Foreach{Var: "line", List: "$lines", Body: []script.Statement{
			script.If{Cond: fmt.Sprintf(`$line=="%s"`, suiteDoneMarker), Then: []script.Statement{script.Return{Value: "true"}}},
		}},
		script.Return{Value: "false"},
	}}
}

// vsimExtraArgs picks the user flags for the current mode. GUI flags replace
// the batch flags only when they are set.
func (a *Adapter) vsimExtraArgs(cfg sim.TestConfig) []string {
	flags := cfg.SimOptions.VsimFlags
	if a.opts.GUI && cfg.SimOptions.VsimFlagsGUI != nil {
		flags = cfg.SimOptions.VsimFlagsGUI
	}
	return flags
}

// loadProcedure elaborates the design with generics bound. Failure of vsim is
// caught inside the script and reported as a true return value. A coverage
// database path is recorded in the adapter's coverage set as a side effect.
func (a *Adapter) loadProcedure(cfg sim.TestConfig, outputPath string) (script.Proc, error) {
	level := cfg.VHDLAssertStopLevel
	if level == "" {
		level = sim.AssertLevelError
	}
	breakLevel, ok := level.BreakLevel()
	if !ok {
		return script.Proc{}, fmt.Errorf("test %s: unknown assertion stop level %q", cfg.Name, cfg.VHDLAssertStopLevel)
	}

	var body []script.Statement
	vsim := script.Cmd("vsim")
	for _, pli := range cfg.SimOptions.PLI {
		vsim.Args = append(vsim.Args, script.Bare("-pli"), script.Quoted(script.FixPath(pli)))
	}
	for _, g := range cfg.Generics {
		body = append(body, script.Set{Name: genericVar(g.Name), Value: script.Braced(g.Value)})
		vsim.Args = append(vsim.Args,
			script.Bare(fmt.Sprintf("-g/%s/%s=${%s}", cfg.EntityName, g.Name, genericVar(g.Name))))
	}
	vsim.Args = append(vsim.Args, script.Bare("-lib"), script.Bare(cfg.LibraryName), script.Bare(cfg.EntityName))
	if cfg.ArchitectureName != "" {
		vsim.Args = append(vsim.Args, script.Bare(cfg.ArchitectureName))
	}
	if cfg.SimOptions.EnableCoverage {
		covFile := filepath.Join(outputPath, coverage.FileName)
		a.coverage.Add(covFile)
		vsim.Args = append(vsim.Args, script.Bare("-acdb_file"), script.Braced(script.FixPath(covFile)))
	}
	vsim.Args = append(vsim.Args, script.Bares(a.vsimExtraArgs(cfg)...)...)
	if cfg.SimOptions.DisableIEEEWarnings {
		vsim.Args = append(vsim.Args, script.Bare("-ieee_nowarn"))
	}

	body = append(body,
		script.Catch{ResultVar: "vsim_failed", Body: []script.Statement{vsim}},
		script.If{Cond: "${vsim_failed}", Then: []script.Statement{script.Return{Value: "true"}}},
		script.Blank{},
		script.Global{Name: "breakassertlevel"},
		script.Set{Name: "breakassertlevel", Value: script.Bare(fmt.Sprint(breakLevel))},
		script.Blank{},
		script.Global{Name: "builtinbreakassertlevel"},
		script.Set{Name: "builtinbreakassertlevel", Value: script.Bare("$breakassertlevel")},
		script.Blank{},
		script.Return{Value: "false"},
	)
	return script.Proc{Name: LoadProc, Body: body}, nil
}

// runProcedure runs to completion and returns true when the suite did not
// report done. The stack trace is best effort: bt fails when the stop came
// from a PLI library rather than from HDL code.
func runProcedure() script.Proc {
	return script.Proc{Name: RunProc, Body: []script.Statement{
		script.Cmd("run", script.Bare("-all")),
		script.If{Cond: fmt.Sprintf("![%s]", DoneProc), Then: []script.Statement{
			script.Catch{Body: []script.Statement{
				script.Comment{Text: "bt fails when the error comes from a PLI library"},
				script.Cmd("echo", script.Quoted("")),
				script.Cmd("echo", script.Quoted("Stack trace result from 'bt' command")),
				script.Cmd("bt"),
			}},
			script.Return{Value: "true"},
		}},
		script.Return{Value: "false"},
	}}
}

// commonScript holds everything batch and GUI mode share.
func (a *Adapter) commonScript(cfg sim.TestConfig, outputPath string) (script.Script, error) {
	load, err := a.loadProcedure(cfg, outputPath)
	if err != nil {
		return script.Script{}, err
	}
	var s script.Script
	s.Add(
		doneProcedure(a.opts.ResultFileName(outputPath)),
		script.Blank{},
		load,
		script.Blank{},
		runProcedure(),
	)
	return s, nil
}

// batchScript loads, optionally runs, and quits with the outcome as exit code.
func batchScript(commonFile string, loadOnly bool) script.Script {
	quitOnFailure := script.If{Cond: "$failed", Then: []script.Statement{script.Cmd("quit", script.Bares("-code", "1")...)}}
	var s script.Script
	s.Add(
		script.Source{Path: commonFile},
		script.SetResult{Name: "failed", Command: script.Cmd(LoadProc)},
		quitOnFailure,
	)
	if !loadOnly {
		s.Add(
			script.SetResult{Name: "failed", Command: script.Cmd(RunProc)},
			quitOnFailure,
		)
	}
	s.Add(script.Cmd("quit", script.Bares("-code", "0")...))
	return s
}

// guiScript prepares a fresh interactive session and hands control to the user.
func guiScript(commonFile string, cfg sim.TestConfig, libs compile.LibrarySet) (script.Script, error) {
	var s script.Script
	s.Add(
		script.Source{Path: commonFile},
		script.Cmd("workspace", script.Bares("create", "workspace")...),
		script.Cmd("design", script.Bares("create", "-a", "design", ".")...),
	)
	for _, lib := range libs.Libraries() {
		s.Add(script.Cmd("vmap", script.Bare(lib.Name), script.Bare(script.FixPath(lib.Directory))))
	}
	s.Add(script.Cmd(LoadProc))
	if cfg.SimOptions.InitFileGUI != "" {
		initFile, err := filepath.Abs(cfg.SimOptions.InitFileGUI)
		if err != nil {
			return script.Script{}, fmt.Errorf("resolving GUI init file: %w", err)
		}
		s.Add(script.Source{Path: initFile})
	}
	s.Add(script.Cmd("puts", script.Quoted("hdlsim help: Design already loaded. Use run -all to run the test.")))
	return s, nil
}
