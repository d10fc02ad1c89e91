package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/solsjo/hdlsim/sim/activehdl"
)

var mapLibrariesCmd = &cobra.Command{
	Use:   "map-libraries",
	Short: "Create and map every project library in library.cfg",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(activehdl.Options{})
		if err != nil {
			return err
		}
		defer s.close()

		ctx, stop := signalContext()
		defer stop()

		libs, err := s.adapter.SetupLibraryMapping(ctx, s.project)
		if err != nil {
			return err
		}
		logrus.Infof("Mapped %d libraries in %s", libs.Len(), s.adapter.LibraryCfg())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mapLibrariesCmd)
}
