// Package library maintains the Active-HDL library.cfg mapping and materializes
// libraries on disk with vlib and vmap.
package library

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/solsjo/hdlsim/sim/ostools"
	"github.com/solsjo/hdlsim/sim/process"
)

// CfgFileName is the library map file kept in the output root.
const CfgFileName = "library.cfg"

// ErrNoDirective is returned by ParseLine for lines outside the grammar.
var ErrNoDirective = errors.New("not a library.cfg directive")

// DirectiveKind distinguishes mapping lines from include lines.
type DirectiveKind int

const (
	DirectiveMapping DirectiveKind = iota
	DirectiveInclude
)

// Directive is one parsed library.cfg line.
type Directive struct {
	Kind DirectiveKind
	Name string // library name; empty for includes
	Path string // raw, unresolved value
}

// ParseLine parses `NAME = "PATH"` or `$INCLUDE = "PATH"`.
// NAME is letters and underscores; the separator is a single space on each
// side of '=', as vmap writes it.
func ParseLine(line string) (Directive, error) {
	kind := DirectiveMapping
	rest := line
	if strings.HasPrefix(rest, "$INCLUDE") {
		kind = DirectiveInclude
		rest = rest[len("$INCLUDE"):]
	}

	name := ""
	if kind == DirectiveMapping {
		n := 0
		for n < len(rest) && isIdentChar(rest[n]) {
			n++
		}
		if n == 0 {
			return Directive{}, ErrNoDirective
		}
		name, rest = rest[:n], rest[n:]
	}

	if len(rest) < 4 || !isSpace(rest[0]) || rest[1] != '=' || !isSpace(rest[2]) || rest[3] != '"' {
		return Directive{}, ErrNoDirective
	}
	rest = rest[4:]
	end := strings.LastIndexByte(rest, '"')
	if end < 0 {
		return Directive{}, ErrNoDirective
	}
	return Directive{Kind: kind, Name: name, Path: rest[:end]}, nil
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

// MapFile is the parsed content of a library.cfg.
type MapFile struct {
	Includes []string
	Entries  []Directive
}

// ReadMapFile parses path, skipping lines outside the grammar.
func ReadMapFile(path string) (*MapFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening library map: %w", err)
	}
	defer func() { _ = f.Close() }()

	mf := &MapFile{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		d, err := ParseLine(strings.TrimRight(scanner.Text(), "\r"))
		if err != nil {
			continue
		}
		if d.Kind == DirectiveInclude {
			mf.Includes = append(mf.Includes, d.Path)
		} else {
			mf.Entries = append(mf.Entries, d)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading library map: %w", err)
	}
	return mf, nil
}

// ResolvePath makes p absolute relative to base. Absolute inputs are only cleaned.
func ResolvePath(base, p string) (string, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return filepath.Abs(p)
}

// Registry owns library.cfg and the vlib/vmap calls that update it.
// It performs no locking; concurrent Ensure calls must be serialized by the caller.
type Registry struct {
	prefix  string
	cfgPath string
	runner  process.Runner
	env     []string
}

// NewRegistry opens (creating if absent) outputPath/library.cfg.
// A new file is seeded with an include of the installation's vlib/library.cfg.
func NewRegistry(prefix, outputPath string, runner process.Runner, env []string) (*Registry, error) {
	absOut, err := filepath.Abs(outputPath)
	if err != nil {
		return nil, fmt.Errorf("resolving output path: %w", err)
	}
	r := &Registry{
		prefix:  prefix,
		cfgPath: filepath.Join(absOut, CfgFileName),
		runner:  runner,
		env:     env,
	}
	if err := r.createCfg(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) createCfg() error {
	if ostools.FileExists(r.cfgPath) {
		return nil
	}
	base := filepath.Join(filepath.Dir(filepath.Clean(r.prefix)), "vlib", CfgFileName)
	logrus.Debugf("Creating %s including %s", r.cfgPath, base)
	// library.cfg values are raw between the quotes; no escaping.
	return ostools.WriteFile(r.cfgPath, fmt.Sprintf("$INCLUDE = \"%s\"\n", base))
}

// CfgPath is the absolute path of library.cfg.
func (r *Registry) CfgPath() string { return r.cfgPath }

// Dir is the directory holding library.cfg; tools run from here.
func (r *Registry) Dir() string { return filepath.Dir(r.cfgPath) }

// ReadMapped returns library name to absolute directory for every mapping in
// library.cfg. Entries point at the library's .lib file, so the directory is
// the parent of the recorded path.
func (r *Registry) ReadMapped() (map[string]string, error) {
	mf, err := ReadMapFile(r.cfgPath)
	if err != nil {
		return nil, err
	}
	libs := make(map[string]string, len(mf.Entries))
	for _, e := range mf.Entries {
		dir, err := ResolvePath(r.Dir(), filepath.Dir(e.Path))
		if err != nil {
			return nil, fmt.Errorf("resolving library %s: %w", e.Name, err)
		}
		libs[e.Name] = dir
	}
	return libs, nil
}

// Ensure makes sure library name exists at path and is mapped there.
// vlib runs only when path does not exist; vmap is skipped when mapped already
// binds name to path.
// The result reports whether vlib or vmap had to run.
func (r *Registry) Ensure(ctx context.Context, name, path string, mapped map[string]string) (bool, error) {
	absPath, err := ResolvePath(r.Dir(), path)
	if err != nil {
		return false, fmt.Errorf("resolving library %s: %w", name, err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return false, fmt.Errorf("creating parent of library %s: %w", name, err)
	}

	changed := false
	if !ostools.FileExists(absPath) {
		logrus.Debugf("Creating library %s at %s", name, absPath)
		if err := r.run(ctx, "vlib", name, absPath); err != nil {
			return true, err
		}
		changed = true
	}

	if current, ok := mapped[name]; ok && current == absPath {
		return changed, nil
	}
	logrus.Debugf("Mapping library %s to %s", name, absPath)
	return true, r.run(ctx, "vmap", name, absPath)
}

func (r *Registry) run(ctx context.Context, tool string, args ...string) error {
	cmd := process.Command{
		Args: append([]string{filepath.Join(r.prefix, tool)}, args...),
		Dir:  r.Dir(),
		Env:  r.env,
	}
	if err := r.runner.Run(ctx, cmd, process.Discard); err != nil {
		return fmt.Errorf("%s %s: %w", tool, strings.Join(args, " "), err)
	}
	return nil
}
