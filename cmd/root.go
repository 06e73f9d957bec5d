package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "zapa",
	Short: "WhatsApp conversational agent platform",
	Long: `Zapa fronts LLM agents with WhatsApp: it ingests bridge webhooks,
queues conversations and answers them with per-user provider configurations.`,
}

func init() {
	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"verbose logging --debug <true/false> | example: --debug=true")

	cobra.OnInitialize(func() {
		if debugFlag {
			logrus.SetLevel(logrus.DebugLevel)
		}
	})
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
