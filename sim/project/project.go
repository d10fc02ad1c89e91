// Package project loads hdlsim.yaml, the project description the CLI feeds
// to the adapter: libraries, source files in compile order, and test benches.
package project

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/solsjo/hdlsim/sim"
)

// DefaultFileName is looked up in the working directory when no path is given.
const DefaultFileName = "hdlsim.yaml"

// DefaultOutputPath is used when output_path is not set.
const DefaultOutputPath = "hdlsim_out"

// File is the hdlsim.yaml structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type File struct {
	Prefix     string            `yaml:"prefix"`
	OutputPath string            `yaml:"output_path"`
	ResultFile string            `yaml:"result_file"`
	Env        map[string]string `yaml:"env"`
	Libraries  []LibrarySpec     `yaml:"libraries"`
	Sources    []SourceSpec      `yaml:"sources"`
	Tests      []TestSpec        `yaml:"tests"`
}

// LibrarySpec declares a library. Directory defaults to <output>/libraries/<name>.
type LibrarySpec struct {
	Name      string `yaml:"name"`
	Directory string `yaml:"directory"`
}

// SourceSpec is a group of files sharing a library and compile options.
// Files are glob patterns (doublestar syntax) compiled in listed order;
// the matches of one pattern are compiled in lexical order.
type SourceSpec struct {
	Library      string            `yaml:"library"`
	Files        []string          `yaml:"files"`
	VHDLStandard string            `yaml:"vhdl_standard"`
	VcomFlags    []string          `yaml:"vcom_flags"`
	VlogFlags    []string          `yaml:"vlog_flags"`
	IncludeDirs  []string          `yaml:"include_dirs"`
	Defines      map[string]string `yaml:"defines"`
}

// TestSpec declares one test bench configuration.
type TestSpec struct {
	Name                string         `yaml:"name"`
	Library             string         `yaml:"library"`
	Entity              string         `yaml:"entity"`
	Architecture        string         `yaml:"architecture"`
	Generics            Generics       `yaml:"generics"`
	VHDLAssertStopLevel string         `yaml:"vhdl_assert_stop_level"`
	SimOptions          SimOptionsSpec `yaml:"sim_options"`
}

// SimOptionsSpec mirrors sim.SimOptions.
type SimOptionsSpec struct {
	PLI                 []string `yaml:"pli"`
	EnableCoverage      bool     `yaml:"enable_coverage"`
	DisableIEEEWarnings bool     `yaml:"disable_ieee_warnings"`
	VsimFlags           []string `yaml:"vsim_flags"`
	VsimFlagsGUI        []string `yaml:"vsim_flags_gui"`
	InitFileGUI         string   `yaml:"init_file_gui"`
}

// Generics is a YAML mapping decoded in document order.
type Generics []sim.Generic

// UnmarshalYAML keeps the order generics were written in, so generated
// scripts are reproducible.
func (g *Generics) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: generics must be a mapping", node.Line)
	}
	out := make(Generics, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: generic %q must have a scalar value", val.Line, key.Value)
		}
		out = append(out, sim.Generic{Name: key.Value, Value: val.Value})
	}
	*g = out
	return nil
}

// Load parses path with strict field checking: typos must cause errors.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project file: %w", err)
	}
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing project file %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks cross references and enumerations.
func (f *File) Validate() error {
	libs := make(map[string]bool, len(f.Libraries))
	for i, l := range f.Libraries {
		if l.Name == "" {
			return fmt.Errorf("libraries[%d]: name is required", i)
		}
		if libs[l.Name] {
			return fmt.Errorf("duplicate library %q", l.Name)
		}
		if !isMapName(l.Name) {
			logrus.Warnf("library %q contains characters other than letters and underscores; it will be re-mapped on every run", l.Name)
		}
		libs[l.Name] = true
	}
	for i, s := range f.Sources {
		if !libs[s.Library] {
			return fmt.Errorf("sources[%d]: unknown library %q", i, s.Library)
		}
		if len(s.Files) == 0 {
			return fmt.Errorf("sources[%d]: at least one file pattern required", i)
		}
		if _, err := sim.ParseVHDLStandard(s.VHDLStandard); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
	}
	dirs := make(map[string]string, len(f.Tests))
	for i, t := range f.Tests {
		if t.Name == "" || t.Entity == "" {
			return fmt.Errorf("tests[%d]: name and entity are required", i)
		}
		dir := outputDirName(t.Name)
		if other, ok := dirs[dir]; ok {
			if other == t.Name {
				return fmt.Errorf("duplicate test %q", t.Name)
			}
			return fmt.Errorf("tests %q and %q share output directory %q", other, t.Name, dir)
		}
		dirs[dir] = t.Name
		if !libs[t.Library] {
			return fmt.Errorf("test %s: unknown library %q", t.Name, t.Library)
		}
		if _, err := sim.ParseAssertLevel(t.VHDLAssertStopLevel); err != nil {
			return fmt.Errorf("test %s: %w", t.Name, err)
		}
	}
	return nil
}

func isMapName(name string) bool {
	for _, c := range name {
		if c != '_' && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// Project is a resolved project: absolute paths, expanded globs, typed values.
type Project struct {
	Root       string // directory of the project file
	Prefix     string
	OutputPath string
	ResultFile string // empty means sim.DefaultResultFileName
	Env        []string
	Sources    []sim.SourceFile
	Tests      []sim.TestConfig

	libraries []sim.Library
}

// Libraries implements sim.Project.
func (p *Project) Libraries() []sim.Library {
	return append([]sim.Library(nil), p.libraries...)
}

// Test returns the configuration named name.
func (p *Project) Test(name string) (sim.TestConfig, bool) {
	for _, t := range p.Tests {
		if t.Name == name {
			return t, true
		}
	}
	return sim.TestConfig{}, false
}

// SourceFile returns the source whose absolute path is path.
func (p *Project) SourceFile(path string) (sim.SourceFile, bool) {
	for _, s := range p.Sources {
		if s.Name == path {
			return s, true
		}
	}
	return sim.SourceFile{}, false
}

// TestOutputPath is the per-configuration directory handed to Simulate.
func (p *Project) TestOutputPath(cfg sim.TestConfig) string {
	return filepath.Join(p.OutputPath, "test_output", outputDirName(cfg.Name))
}

// outputDirName folds path separators and drive colons out of a test name.
func outputDirName(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' {
			return '_'
		}
		return r
	}, name)
}

// ResultFileName returns the function naming the test bench result file.
func (p *Project) ResultFileName() sim.ResultFileName {
	if p.ResultFile == "" {
		return sim.DefaultResultFileName
	}
	name := p.ResultFile
	return func(outputPath string) string { return filepath.Join(outputPath, name) }
}

// Resolve expands f relative to root.
func (f *File) Resolve(root string) (*Project, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}

	p := &Project{
		Root:       root,
		Prefix:     abs(f.Prefix),
		OutputPath: abs(f.OutputPath),
		ResultFile: f.ResultFile,
	}
	if p.OutputPath == "" {
		p.OutputPath = filepath.Join(root, DefaultOutputPath)
	}

	envKeys := make([]string, 0, len(f.Env))
	for k := range f.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		p.Env = append(p.Env, k+"="+f.Env[k])
	}

	byName := make(map[string]sim.Library, len(f.Libraries))
	for _, l := range f.Libraries {
		dir := abs(l.Directory)
		if dir == "" {
			dir = filepath.Join(p.OutputPath, "libraries", l.Name)
		}
		lib := sim.Library{Name: l.Name, Directory: dir}
		p.libraries = append(p.libraries, lib)
		byName[l.Name] = lib
	}

	seen := make(map[string]bool)
	for i, s := range f.Sources {
		std, err := sim.ParseVHDLStandard(s.VHDLStandard)
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		incs := make([]string, len(s.IncludeDirs))
		for j, d := range s.IncludeDirs {
			incs[j] = abs(d)
		}
		for _, pattern := range s.Files {
			matches, err := doublestar.FilepathGlob(abs(pattern))
			if err != nil {
				return nil, fmt.Errorf("sources[%d]: bad pattern %q: %w", i, pattern, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("sources[%d]: pattern %q matched no files", i, pattern)
			}
			sort.Strings(matches)
			for _, m := range matches {
				if seen[m] {
					continue
				}
				seen[m] = true
				p.Sources = append(p.Sources, sim.SourceFile{
					Name:         m,
					Library:      byName[s.Library],
					Kind:         sim.FileKindFromName(m),
					VHDLStandard: std,
					CompileOptions: sim.CompileOptions{
						VcomFlags: s.VcomFlags,
						VlogFlags: s.VlogFlags,
					},
					IncludeDirs: incs,
					Defines:     s.Defines,
				})
			}
		}
	}

	for _, t := range f.Tests {
		level, err := sim.ParseAssertLevel(t.VHDLAssertStopLevel)
		if err != nil {
			return nil, fmt.Errorf("test %s: %w", t.Name, err)
		}
		opts := t.SimOptions
		pli := make([]string, len(opts.PLI))
		for j, l := range opts.PLI {
			pli[j] = abs(l)
		}
		p.Tests = append(p.Tests, sim.TestConfig{
			Name:             t.Name,
			LibraryName:      t.Library,
			EntityName:       t.Entity,
			ArchitectureName: t.Architecture,
			Generics:         []sim.Generic(t.Generics),
			SimOptions: sim.SimOptions{
				PLI:                 pli,
				EnableCoverage:      opts.EnableCoverage,
				DisableIEEEWarnings: opts.DisableIEEEWarnings,
				VsimFlags:           opts.VsimFlags,
				VsimFlagsGUI:        opts.VsimFlagsGUI,
				InitFileGUI:         abs(opts.InitFileGUI),
			},
			VHDLAssertStopLevel: level,
		})
	}
	return p, nil
}

// Open loads, validates and resolves the project file at path.
func Open(path string) (*Project, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project file %s: %w", path, err)
	}
	return f.Resolve(filepath.Dir(path))
}
