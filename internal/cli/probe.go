package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/nartya-app/nartya/internal/probe"
)

var probeJSON bool

var probeCmd = &cobra.Command{
	Use:   "probe <video-url>",
	Short: "Check that a direct video URL plays outside the browser",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			report probe.Report
			err    error
		)
		withSpinner("Probing media...", func() {
			report, err = newProber(cfg).Probe(cmd.Context(), args[0])
		})
		if err != nil && !errors.Is(err, probe.ErrNotPlayable) {
			return err
		}

		if probeJSON {
			if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
				return werr
			}
		} else {
			renderProbe(cmd.OutOrStdout(), report)
		}
		return err
	},
}

func init() {
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(probeCmd)
}
