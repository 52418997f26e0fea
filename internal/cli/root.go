// Package cli implements the nartya command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/nartya-app/nartya/internal/config"
	"github.com/nartya-app/nartya/internal/util"
	"github.com/nartya-app/nartya/internal/version"
)

var (
	configFile string
	debug      bool
	backend    string
	headful    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "nartya",
	Short:         "Resolve anime embed pages to direct video URLs",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("debug") {
			loaded.Debug = debug
		}
		if backend != "" {
			loaded.Browser.Backend = backend
		}
		if headful {
			loaded.Browser.Headless = false
		}
		cfg = loaded

		util.SetDebugMode(cfg.Debug)
		util.InitLogger()
		if cfg.File != "" {
			util.Debug("Config loaded", "file", cfg.File)
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default: nartya.yaml in the user config dir)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")
	pf.StringVar(&backend, "backend", "", "browser backend: playwright or rod")
	pf.BoolVar(&headful, "show-browser", false, "show the browser window")

	rootCmd.SetVersionTemplate(version.String() + "\n")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
