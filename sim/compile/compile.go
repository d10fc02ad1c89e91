// Package compile builds vcom and vlog argument vectors for single source files.
package compile

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/solsjo/hdlsim/sim"
)

var (
	// ErrUnsupportedStandard is returned for VHDL revisions the compiler cannot target.
	ErrUnsupportedStandard = errors.New("unsupported VHDL standard")
	// ErrUnknownFileKind is returned for files that are neither VHDL nor Verilog.
	ErrUnknownFileKind = errors.New("unknown source file kind")
)

// MaxVHDLStandard is the newest revision vcom accepts.
const MaxVHDLStandard = sim.VHDL2008

// LibrarySet is an immutable snapshot of the libraries known to a build.
type LibrarySet struct {
	libs []sim.Library
}

// NewLibrarySet copies libs into a snapshot.
func NewLibrarySet(libs []sim.Library) LibrarySet {
	return LibrarySet{libs: append([]sim.Library(nil), libs...)}
}

// Libraries returns a copy of the snapshot in insertion order.
func (s LibrarySet) Libraries() []sim.Library {
	return append([]sim.Library(nil), s.libs...)
}

// Len is the number of libraries.
func (s LibrarySet) Len() int { return len(s.libs) }

// Builder turns source files into compiler invocations. It holds no mutable
// state and is safe for concurrent use.
type Builder struct {
	Prefix     string // toolchain bin directory
	LibraryCfg string // absolute path of library.cfg
}

// StandardFlag returns the vcom flag selecting std.
func StandardFlag(std sim.VHDLStandard) (string, error) {
	if std > MaxVHDLStandard {
		return "", fmt.Errorf("%w: VHDL-%s", ErrUnsupportedStandard, std)
	}
	return "-" + std.String(), nil
}

// Command returns the argument vector compiling file into its library.
func (b Builder) Command(file sim.SourceFile, libs LibrarySet) ([]string, error) {
	switch {
	case file.Kind.IsVHDL():
		return b.vhdlCommand(file)
	case file.Kind.IsAnyVerilog():
		return b.verilogCommand(file, libs), nil
	}
	logrus.Errorf("Unknown file type: %q (%s)", file.Kind, file.Name)
	return nil, fmt.Errorf("%w: %q for %s", ErrUnknownFileKind, file.Kind, file.Name)
}

func (b Builder) vhdlCommand(file sim.SourceFile) ([]string, error) {
	std, err := StandardFlag(file.VHDLStandard)
	if err != nil {
		return nil, err
	}
	args := []string{filepath.Join(b.Prefix, "vcom"), "-quiet", "-j", filepath.Dir(b.LibraryCfg)}
	args = append(args, file.CompileOptions.VcomFlags...)
	args = append(args, std, "-work", file.Library.Name, file.Name)
	return args, nil
}

func (b Builder) verilogCommand(file sim.SourceFile, libs LibrarySet) []string {
	args := []string{filepath.Join(b.Prefix, "vlog"), "-quiet", "-lc", b.LibraryCfg}
	args = append(args, file.CompileOptions.VlogFlags...)
	args = append(args, "-work", file.Library.Name, file.Name)
	for _, lib := range libs.libs {
		args = append(args, "-l", lib.Name)
	}
	for _, dir := range file.IncludeDirs {
		args = append(args, "+incdir+"+dir)
	}
	keys := make([]string, 0, len(file.Defines))
	for k := range file.Defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, fmt.Sprintf("+define+%s=%s", k, file.Defines[k]))
	}
	return args
}
