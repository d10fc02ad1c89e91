package activehdl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solsjo/hdlsim/sim"
	"github.com/solsjo/hdlsim/sim/compile"
	"github.com/solsjo/hdlsim/sim/metrics"
	"github.com/solsjo/hdlsim/sim/process"
	"github.com/solsjo/hdlsim/sim/process/processtest"
)

func exitFailure(tool string) error {
	return &process.ExitError{Command: process.Command{Args: []string{tool}}, Code: 1}
}

func TestNew_RequiresPrefix(t *testing.T) {
	_, err := New(Options{OutputPath: t.TempDir()}, processtest.NewRecorder())
	assert.Error(t, err)
}

func TestSimulate_Batch_WritesAllScriptsAndRunsBatch(t *testing.T) {
	// GIVEN a batch-mode adapter
	rec := metrics.NewRecorder()
	a, runner, out := newTestAdapter(t, func(o *Options) { o.Metrics = rec })
	testOut := filepath.Join(out, "lib.tb_fifo.all")

	// WHEN a test configuration is simulated
	ok, err := a.Simulate(context.Background(), testOut, fifoConfig(), compile.LibrarySet{})

	// THEN it succeeds and all three scripts exist
	require.NoError(t, err)
	assert.True(t, ok)
	scriptDir := filepath.Join(testOut, Name)
	for _, name := range []string{CommonScriptName, BatchScriptName, GUIScriptName} {
		assert.FileExists(t, filepath.Join(scriptDir, name))
	}

	// AND vsim ran the batch script in console mode from the library.cfg directory
	calls := runner.Calls("vsim")
	require.Len(t, calls, 1)
	batchFile := filepath.Join(scriptDir, BatchScriptName)
	assert.Equal(t, []string{
		filepath.Join(testPrefix, "vsim"), "-c",
		"-l", filepath.Join(scriptDir, "transcript"),
		"-do", `@onerror {quit -code 1};@do -tcl ""` + batchFile + `""`,
	}, calls[0].Args)
	assert.Equal(t, filepath.Dir(a.LibraryCfg()), calls[0].Dir)
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Simulations.WithLabelValues("batch", metrics.OutcomeSuccess)))

	// AND the common script carries both generic flags in order
	common, err := os.ReadFile(filepath.Join(scriptDir, CommonScriptName))
	require.NoError(t, err)
	assert.Contains(t, string(common),
		"vsim -g/tb_fifo/WIDTH=${hdlsim_generic_WIDTH} -g/tb_fifo/DEPTH=${hdlsim_generic_DEPTH} -lib lib tb_fifo\n")
}

func TestSimulate_IsDeterministic(t *testing.T) {
	a, _, out := newTestAdapter(t, nil)
	testOut := filepath.Join(out, "t")
	common := filepath.Join(testOut, Name, CommonScriptName)

	_, err := a.Simulate(context.Background(), testOut, fifoConfig(), compile.LibrarySet{})
	require.NoError(t, err)
	first, err := os.ReadFile(common)
	require.NoError(t, err)
	_, err = a.Simulate(context.Background(), testOut, fifoConfig(), compile.LibrarySet{})
	require.NoError(t, err)
	second, err := os.ReadFile(common)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestSimulate_NonzeroExit_IsFailureNotError(t *testing.T) {
	a, runner, out := newTestAdapter(t, nil)
	runner.On("vsim", processtest.Response{Err: exitFailure("vsim")})

	ok, err := a.Simulate(context.Background(), filepath.Join(out, "t"), fifoConfig(), compile.LibrarySet{})

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSimulate_LaunchFailure_IsError(t *testing.T) {
	a, runner, out := newTestAdapter(t, nil)
	runner.On("vsim", processtest.Response{Err: errors.New("exec: \"vsim\": not found")})

	ok, err := a.Simulate(context.Background(), filepath.Join(out, "t"), fifoConfig(), compile.LibrarySet{})

	assert.Error(t, err)
	assert.False(t, ok)
}

func TestSimulate_GUI_RenewsScratchDirectory(t *testing.T) {
	// GIVEN a GUI adapter and a stale file in the GUI scratch directory
	a, runner, out := newTestAdapter(t, func(o *Options) { o.GUI = true })
	testOut := filepath.Join(out, "t")
	guiDir := filepath.Join(testOut, Name, "gui")
	require.NoError(t, os.MkdirAll(guiDir, 0755))
	stale := filepath.Join(guiDir, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))

	// WHEN simulating
	ok, err := a.Simulate(context.Background(), testOut, fifoConfig(), compile.LibrarySet{})

	// THEN the scratch directory was wiped and vsim started the GUI script there
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoFileExists(t, stale)
	calls := runner.Calls("vsim")
	require.Len(t, calls, 1)
	assert.Equal(t, "-gui", calls[0].Args[1])
	assert.Equal(t, `@do -tcl ""`+filepath.Join(testOut, Name, GUIScriptName)+`""`, calls[0].Args[5])
	assert.Equal(t, guiDir, calls[0].Dir)
	// the batch script is still written so the user can switch modes
	assert.FileExists(t, filepath.Join(testOut, Name, BatchScriptName))
}

func TestSimulate_UnsetStopLevel_BreaksOnError(t *testing.T) {
	// GIVEN a configuration built in code without a stop level
	a, _, out := newTestAdapter(t, nil)
	testOut := filepath.Join(out, "t")
	cfg := fifoConfig()
	cfg.VHDLAssertStopLevel = ""

	// WHEN it is simulated
	ok, err := a.Simulate(context.Background(), testOut, cfg, compile.LibrarySet{})

	// THEN the run proceeds with the error break level
	require.NoError(t, err)
	assert.True(t, ok)
	common, err := os.ReadFile(filepath.Join(testOut, Name, CommonScriptName))
	require.NoError(t, err)
	assert.Contains(t, string(common), "set breakassertlevel 2\n")
}

func TestSimulate_ElaborateOnly(t *testing.T) {
	a, _, out := newTestAdapter(t, func(o *Options) { o.ElaborateOnly = true })
	testOut := filepath.Join(out, "t")

	_, err := a.Simulate(context.Background(), testOut, fifoConfig(), compile.LibrarySet{})
	require.NoError(t, err)

	batch, err := os.ReadFile(filepath.Join(testOut, Name, BatchScriptName))
	require.NoError(t, err)
	assert.NotContains(t, string(batch), RunProc)
}

func TestSetupLibraryMapping_EnsuresEachLibrary(t *testing.T) {
	rec := metrics.NewRecorder()
	a, runner, out := newTestAdapter(t, func(o *Options) { o.Metrics = rec })
	project := staticProject{
		{Name: "lib", Directory: filepath.Join(out, "libs", "lib")},
		{Name: "osvvm", Directory: filepath.Join(out, "libs", "osvvm")},
	}

	libs, err := a.SetupLibraryMapping(context.Background(), project)

	require.NoError(t, err)
	assert.Equal(t, []sim.Library(project), libs.Libraries())
	assert.Len(t, runner.Calls("vlib"), 2)
	assert.Len(t, runner.Calls("vmap"), 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.LibraryOps.WithLabelValues("ensure")))
}

func TestSetupLibraryMapping_AlreadyMapped_NoTools(t *testing.T) {
	// GIVEN library.cfg already mapping lib to an existing directory
	rec := metrics.NewRecorder()
	a, runner, out := newTestAdapter(t, func(o *Options) { o.Metrics = rec })
	libDir := filepath.Join(out, "libs", "lib")
	require.NoError(t, os.MkdirAll(libDir, 0755))
	require.NoError(t, os.WriteFile(a.LibraryCfg(), []byte("lib = \"libs/lib/lib.lib\"\n"), 0644))

	// WHEN mapping is set up again
	_, err := a.SetupLibraryMapping(context.Background(), staticProject{{Name: "lib", Directory: libDir}})

	// THEN no tool runs and the library is counted as skipped
	require.NoError(t, err)
	assert.Empty(t, runner.Commands)
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.LibraryOps.WithLabelValues("skip")))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.LibraryOps.WithLabelValues("ensure")))
}

func TestSetupLibraryMapping_ToolFailure(t *testing.T) {
	a, runner, out := newTestAdapter(t, nil)
	runner.On("vmap", processtest.Response{Err: exitFailure("vmap")})

	_, err := a.SetupLibraryMapping(context.Background(), staticProject{{Name: "lib", Directory: filepath.Join(out, "lib")}})

	assert.Error(t, err)
}

func TestCompileSourceFile(t *testing.T) {
	a, runner, _ := newTestAdapter(t, nil)
	file := sim.SourceFile{
		Name:         "rtl/fifo.vhd",
		Library:      sim.Library{Name: "lib"},
		Kind:         sim.FileKindVHDL,
		VHDLStandard: sim.VHDL2008,
	}

	ok, err := a.CompileSourceFile(context.Background(), file, compile.LibrarySet{})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, runner.Calls("vcom"), 1)

	runner.On("vcom", processtest.Response{Err: exitFailure("vcom")})
	ok, err = a.CompileSourceFile(context.Background(), file, compile.LibrarySet{})
	require.NoError(t, err)
	assert.False(t, ok)

	file.VHDLStandard = sim.VHDL2019
	_, err = a.CompileSourceFile(context.Background(), file, compile.LibrarySet{})
	assert.ErrorIs(t, err, compile.ErrUnsupportedStandard)
	assert.Len(t, runner.Calls("vcom"), 2, "configuration errors never reach the compiler")
}

func TestMergeCoverage_SkipsMissingArtifacts(t *testing.T) {
	// GIVEN two coverage-enabled runs where only the first produced a database
	hook := logtest.NewGlobal()
	defer hook.Reset()
	a, runner, out := newTestAdapter(t, nil)
	cfg := fifoConfig()
	cfg.SimOptions.EnableCoverage = true
	outA := filepath.Join(out, "a")
	outB := filepath.Join(out, "b")
	_, err := a.Simulate(context.Background(), outA, cfg, compile.LibrarySet{})
	require.NoError(t, err)
	_, err = a.Simulate(context.Background(), outB, cfg, compile.LibrarySet{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(outA, "coverage.acdb"), []byte("db"), 0644))
	require.Len(t, a.CoverageFiles(), 2)

	// WHEN merging
	merged := filepath.Join(out, "merged.acdb")
	require.NoError(t, a.MergeCoverage(context.Background(), merged, nil))

	// THEN the merge script names only the existing database
	data, err := os.ReadFile(filepath.Join(out, MergeScriptName))
	require.NoError(t, err)
	assert.Equal(t, "onerror {quit -code 1}\nacdb merge -i {"+filepath.Join(outA, "coverage.acdb")+"} -o {"+merged+"}\n\n", string(data))

	// AND vsimsa ran it
	calls := runner.Calls("vsimsa")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{filepath.Join(testPrefix, "vsimsa"), "-tcl", filepath.Join(out, MergeScriptName)}, calls[0].Args)

	// AND the missing one was warned about
	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "Missing coverage file: "+filepath.Join(outB, "coverage.acdb") {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestSupportsVHDLPackageGenerics(t *testing.T) {
	tests := []struct {
		name string
		resp processtest.Response
		want bool
	}{
		{"new enough", processtest.Response{Lines: []string{"Aldec VHDL Compiler build 10.1.3.4"}}, true},
		{"newer letter", processtest.Response{Lines: []string{"11.0a.1.2"}}, true},
		{"too old", processtest.Response{Lines: []string{"build 9.9z.100.1"}}, false},
		{"no banner", processtest.Response{Lines: []string{"garbage"}}, false},
		{"not installed", processtest.Response{Err: errors.New("not found")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, runner, _ := newTestAdapter(t, nil)
			runner.On("vcom", tt.resp)

			assert.Equal(t, tt.want, a.SupportsVHDLPackageGenerics(context.Background()))
			assert.Equal(t, tt.want, a.SupportsVHDLPackageGenerics(context.Background()))
			assert.Len(t, runner.Calls("vcom"), 1, "probe is cached")
		})
	}
}

func TestSupportsCoverage(t *testing.T) {
	assert.True(t, SupportsCoverage())
}
