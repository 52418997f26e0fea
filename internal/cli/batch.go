package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

var batchFile string

var batchCmd = &cobra.Command{
	Use:   "batch [embed-url...]",
	Short: "Resolve several embed pages one after another",
	Long: `Resolve several embed pages one after another and print a JSON object
mapping every embed URL to its video URL, or null when extraction failed.

URLs come from the arguments and from --file (one per line, # comments).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		urls := append([]string(nil), args...)
		if batchFile != "" {
			fromFile, err := readURLFile(batchFile)
			if err != nil {
				return err
			}
			urls = append(urls, fromFile...)
		}
		if len(urls) == 0 {
			return fmt.Errorf("no URLs given")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		rt, err := newRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		var out map[string]*string
		withSpinner(fmt.Sprintf("Extracting %d URLs...", len(urls)), func() {
			out = rt.engine.ExtractMany(ctx, urls)
		})
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "read embed URLs from file")
	rootCmd.AddCommand(batchCmd)
}

func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open URL file: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read URL file: %w", err)
	}
	return urls, nil
}
