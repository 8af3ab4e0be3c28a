package cli

import (
	"github.com/spf13/cobra"
)

var (
	// cfgFile holds the path to the config file, bound to the persistent flag.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "trix",
	Short: "Trix reacts to on-chain events with user-defined automations",
	Long: `Trix evaluates normalized blockchain events against user-authored
triggers and dispatches the configured actions (webhooks, notifications,
local tools). Events arrive via push notifications from the chain listener,
with a polling sweep catching anything the push path lost.

Run 'trix help <command>' for more information on a specific command.`,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "Path to the configuration file")
}

func getConfigPath() string {
	return cfgFile
}
