package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "playshelf-api",
	Short: "PlayShelf backend API",
	Long:  `Backend-for-frontend API for the PlayShelf board-game collection tracker: authentication, session lifecycle, and the GraphQL auth surface.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
