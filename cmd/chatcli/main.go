package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	flagServer string
	flagToken  string
	flagPoll   int
)

var rootCmd = &cobra.Command{
	Use:   "chatcli",
	Short: "Support chat terminal client",
	Long:  "Terminal client for the storefront support chat.\nRun the customer widget or the admin console against a support-chat server.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "server base URL (overrides config and SUPPORT_CHAT_SERVER)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "bearer token (overrides config and SUPPORT_CHAT_TOKEN)")
	rootCmd.PersistentFlags().IntVar(&flagPoll, "poll-ms", 2000, "status poll interval in milliseconds")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
