package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/solsjo/hdlsim/sim"
	"github.com/solsjo/hdlsim/sim/activehdl"
	"github.com/solsjo/hdlsim/sim/compile"
	"github.com/solsjo/hdlsim/sim/project"
)

var compileCmd = &cobra.Command{
	Use:   "compile [files...]",
	Short: "Compile project sources, or only the named files, in project order",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(activehdl.Options{})
		if err != nil {
			return err
		}
		defer s.close()

		files, err := selectSources(s.project, args)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		libs, err := s.adapter.SetupLibraryMapping(ctx, s.project)
		if err != nil {
			return err
		}
		ok, err := compileFiles(ctx, s.adapter, files, libs)
		if err != nil {
			return err
		}
		if !ok {
			return errFailed
		}
		logrus.Infof("Compiled %d files", len(files))
		return nil
	},
}

// selectSources returns the project sources named by paths, in project
// order. No paths selects every source.
func selectSources(p *project.Project, paths []string) ([]sim.SourceFile, error) {
	if len(paths) == 0 {
		return p.Sources, nil
	}
	want := make(map[string]bool, len(paths))
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		if _, ok := p.SourceFile(abs); !ok {
			return nil, fmt.Errorf("%s is not a source file of the project", path)
		}
		want[abs] = true
	}
	var out []sim.SourceFile
	for _, f := range p.Sources {
		if want[f.Name] {
			out = append(out, f)
		}
	}
	return out, nil
}

// compileFiles stops at the first file that fails to compile; later files
// usually depend on it.
func compileFiles(ctx context.Context, a *activehdl.Adapter, files []sim.SourceFile, libs compile.LibrarySet) (bool, error) {
	for _, f := range files {
		ok, err := a.CompileSourceFile(ctx, f, libs)
		if err != nil {
			return false, fmt.Errorf("compiling %s: %w", f.Name, err)
		}
		if !ok {
			logrus.Errorf("Failed to compile %s", f.Name)
			return false, nil
		}
	}
	return true, nil
}

func init() {
	rootCmd.AddCommand(compileCmd)
}
