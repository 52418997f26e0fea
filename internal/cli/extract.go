package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/charmbracelet/huh/spinner"
	"github.com/spf13/cobra"

	"github.com/nartya-app/nartya/internal/extractor"
	"github.com/nartya-app/nartya/internal/util"
)

var extractJSON bool

var extractCmd = &cobra.Command{
	Use:   "extract <embed-url>",
	Short: "Resolve one embed page to a direct video URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		rt, err := newRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		var res extractor.Result
		withSpinner("Extracting video URL...", func() {
			res = rt.engine.Extract(ctx, args[0])
		})
		return printResult(cmd.OutOrStdout(), args[0], res, extractJSON)
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(extractCmd)
}

// printResult writes r and turns a failure into the command error so the
// exit status reflects it.
func printResult(w io.Writer, embedURL string, r extractor.Result, asJSON bool) error {
	if asJSON {
		if err := writeJSON(w, r); err != nil {
			return err
		}
	} else {
		renderResult(w, embedURL, r)
	}
	if f, ok := r.(extractor.Failure); ok {
		return f
	}
	return nil
}

// withSpinner runs fn behind a spinner. Debug mode skips the spinner so log
// lines stay readable.
func withSpinner(title string, fn func()) {
	if util.IsDebug {
		fn()
		return
	}
	if err := spinner.New().Title(title).Type(spinner.Dots).Action(fn).Run(); err != nil {
		util.Debug("Spinner failed", "error", err)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
