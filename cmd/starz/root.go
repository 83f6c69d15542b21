package main

import (
	"github.com/spf13/cobra"
)

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "starz",
	Short: "Bookmark chat messages and keep the bookmarks pointing at the right message",
	Long: `starz keeps favorites of chat messages with notes. The daemon holds the
conversation logs, reconciles favorites when messages are inserted or
deleted, and serves them over HTTP and MCP.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(favoritesCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(configCmd)
}
