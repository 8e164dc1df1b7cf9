package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Credential and session lifecycle service",
	Long:  `Registers users, activates them by emailed verification code, and issues, rotates and revokes access/refresh token pairs. Verification emails travel over Kafka to an SMTP sender.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
