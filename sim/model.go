package sim

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileKind identifies the HDL a source file is written in.
type FileKind string

const (
	FileKindVHDL          FileKind = "vhdl"
	FileKindVerilog       FileKind = "verilog"
	FileKindSystemVerilog FileKind = "systemverilog"
)

// IsVHDL reports whether the file is compiled with vcom.
func (k FileKind) IsVHDL() bool { return k == FileKindVHDL }

// IsAnyVerilog reports whether the file is compiled with vlog.
func (k FileKind) IsAnyVerilog() bool {
	return k == FileKindVerilog || k == FileKindSystemVerilog
}

// fileKindByExt maps lower-case file extensions to their language.
var fileKindByExt = map[string]FileKind{
	".vhd":  FileKindVHDL,
	".vhdl": FileKindVHDL,
	".v":    FileKindVerilog,
	".vp":   FileKindVerilog,
	".sv":   FileKindSystemVerilog,
	".svh":  FileKindSystemVerilog,
	".svp":  FileKindSystemVerilog,
}

// FileKindFromName guesses the language from the file extension.
// Unrecognized extensions return the empty kind, which the compile builder rejects.
func FileKindFromName(name string) FileKind {
	return fileKindByExt[strings.ToLower(filepath.Ext(name))]
}

// VHDLStandard is a VHDL language revision.
type VHDLStandard int

const (
	VHDL93   VHDLStandard = 1993
	VHDL2002 VHDLStandard = 2002
	VHDL2008 VHDLStandard = 2008
	VHDL2019 VHDLStandard = 2019
)

// DefaultVHDLStandard is used when a source file does not name one.
const DefaultVHDLStandard = VHDL2008

// String returns the short form used on tool command lines ("93", "2008").
func (s VHDLStandard) String() string {
	if s == VHDL93 {
		return "93"
	}
	return fmt.Sprintf("%d", int(s))
}

// ParseVHDLStandard accepts "93", "1993", "2002", "2008" and "2019".
// The empty string yields DefaultVHDLStandard.
func ParseVHDLStandard(s string) (VHDLStandard, error) {
	switch strings.TrimSpace(s) {
	case "":
		return DefaultVHDLStandard, nil
	case "93", "1993":
		return VHDL93, nil
	case "2002", "02":
		return VHDL2002, nil
	case "2008", "08":
		return VHDL2008, nil
	case "2019", "19":
		return VHDL2019, nil
	}
	return 0, fmt.Errorf("unknown VHDL standard %q; valid: 93, 2002, 2008, 2019", s)
}

// AssertLevel is the VHDL assertion severity at which the simulator stops.
type AssertLevel string

const (
	AssertLevelWarning AssertLevel = "warning"
	AssertLevelError   AssertLevel = "error"
	AssertLevelFailure AssertLevel = "failure"
)

// breakLevels maps assertion severities to the simulator's breakassertlevel values.
var breakLevels = map[AssertLevel]int{
	AssertLevelWarning: 1,
	AssertLevelError:   2,
	AssertLevelFailure: 3,
}

// BreakLevel returns the numeric break level, or false for an unknown severity.
func (l AssertLevel) BreakLevel() (int, bool) {
	level, ok := breakLevels[l]
	return level, ok
}

// ParseAssertLevel validates a severity name. Empty means error.
func ParseAssertLevel(s string) (AssertLevel, error) {
	if s == "" {
		return AssertLevelError, nil
	}
	l := AssertLevel(strings.ToLower(s))
	if _, ok := breakLevels[l]; !ok {
		return "", fmt.Errorf("unknown assertion stop level %q; valid: warning, error, failure", s)
	}
	return l, nil
}

// Library is a named compilation namespace stored in a directory.
type Library struct {
	Name      string
	Directory string
}

// Project is the framework-owned view of the build that the adapter consumes.
type Project interface {
	Libraries() []Library
}

// CompileOptions carries per-file flags passed through to the compilers.
type CompileOptions struct {
	VcomFlags []string // extra vcom flags, VHDL only
	VlogFlags []string // extra vlog flags, Verilog/SystemVerilog only
}

// SourceFile describes one file to compile. It is never mutated by the adapter.
type SourceFile struct {
	Name           string // path to the file
	Library        Library
	Kind           FileKind
	VHDLStandard   VHDLStandard
	CompileOptions CompileOptions
	IncludeDirs    []string
	Defines        map[string]string
}

// Generic is a single name/value binding for a design unit parameter.
type Generic struct {
	Name  string
	Value string
}

// SimOptions are simulator options attached to a test configuration.
type SimOptions struct {
	PLI                 []string // PLI/VHPI libraries loaded into vsim
	EnableCoverage      bool
	DisableIEEEWarnings bool
	VsimFlags           []string
	VsimFlagsGUI        []string // nil falls back to VsimFlags in GUI mode
	InitFileGUI         string   // TCL sourced after load in GUI mode
}

// TestConfig describes one test bench run.
type TestConfig struct {
	Name                string // unique, used for the output subdirectory
	LibraryName         string
	EntityName          string
	ArchitectureName    string // optional
	Generics            []Generic
	SimOptions          SimOptions
	VHDLAssertStopLevel AssertLevel
}

// ResultFileName returns the file the test bench writes its status lines to.
// The name is owned by the test framework; the adapter only reads it from TCL.
type ResultFileName func(outputPath string) string

// DefaultResultFileName places the result file directly in the test output directory.
func DefaultResultFileName(outputPath string) string {
	return filepath.Join(outputPath, "test_results")
}
