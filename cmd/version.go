package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solsjo/hdlsim/sim/activehdl"
	"github.com/solsjo/hdlsim/sim/ostools"
	"github.com/solsjo/hdlsim/sim/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Active-HDL compiler version and its capabilities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		v, pfx, err := probeVersion(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Active-HDL %s (%s)\n", v, pfx)
		fmt.Fprintf(out, "coverage: %v\n", activehdl.SupportsCoverage())
		fmt.Fprintf(out, "vhdl package generics: %v\n", v.AtLeast(activehdl.PackageGenericsVersion))
		return nil
	},
}

// probeVersion asks the adapter of the project when a project file exists, so
// its prefix and environment apply. Without one only --prefix,
// $ACTIVEHDL_PREFIX and PATH are consulted.
func probeVersion(ctx context.Context) (version.Version, string, error) {
	if ostools.FileExists(projectPath) {
		s, err := openSession(activehdl.Options{})
		if err != nil {
			return version.Version{}, "", err
		}
		defer s.close()
		v, err := s.adapter.Version(ctx)
		return v, s.adapter.Prefix(), err
	}
	pfx, err := resolvePrefix(prefix, "", os.Getenv)
	if err != nil {
		return version.Version{}, "", err
	}
	v, err := version.NewProber(newRunner(), nil).Probe(ctx, pfx)
	return v, pfx, err
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
