package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rehearse",
	Short: "Conversation practice backend",
	Long: `rehearse runs the practice-session API, the realtime channel and the
turn workers.

Examples:
  rehearse serve             # HTTP + websocket server
  rehearse serve --workers   # also consume the turn stream in-process
  rehearse worker            # turn workers only (TURN_DISPATCH=redis)
  rehearse migrate           # create tables and indexes`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
