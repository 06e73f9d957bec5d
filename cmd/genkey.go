package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zapa-ai/zapa/pkg/crypto"
)

var genKeyCmd = &cobra.Command{
	Use:   "gen-key",
	Short: "Generate a random value suitable for SECRET_KEY or ENCRYPTION_KEY",
	Run: func(_ *cobra.Command, _ []string) {
		key, err := crypto.GenerateKey()
		if err != nil {
			logrus.Fatalf("[APP] Key generation failed: %v", err)
		}
		fmt.Println(key)
	},
}

func init() {
	rootCmd.AddCommand(genKeyCmd)
}
