package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nartya-app/nartya/internal/analyzer"
)

var (
	analyzeListing  string
	analyzeLanguage string
	analyzeJSON     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Rank the sources of an episode listing by host speed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		l, err := readListing(analyzeListing)
		if err != nil {
			return err
		}
		language, err := pickLanguage(l, analyzeLanguage)
		if err != nil {
			return err
		}

		analyses := analyzer.AnalyzeAll(l, language)
		if len(analyses) == 0 {
			return fmt.Errorf("language %q not in listing (have %v)", language, l.Languages())
		}

		report := analyzer.Report(analyses)
		if analyzeJSON {
			return writeJSON(cmd.OutOrStdout(), report)
		}
		renderReport(cmd.OutOrStdout(), language, report)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeListing, "listing", "l", "", "episodes JSON file: language → source → embed URLs")
	analyzeCmd.Flags().StringVar(&analyzeLanguage, "language", "", "listing language, asked when omitted")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(analyzeCmd)
}
