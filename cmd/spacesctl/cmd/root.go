// Package cmd implements spacesctl, an operator CLI that inspects and
// repairs the session store directly, bypassing the live reconciliation
// engine entirely.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codedread/spaces/internal/logging"
	"github.com/codedread/spaces/internal/store"
)

var storePath string

var rootCmd = &cobra.Command{
	Use:   "spacesctl",
	Short: "Inspect and repair the spaces session store",
	Long: `spacesctl talks directly to the SQLite-backed session store, for
operator tasks that don't need a running daemon: listing sessions, deleting
one by hand, or resetting every stored session hash after a URL-cleaning
rule change.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "spaces.db", "Path to the session store database")
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute runs the CLI, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore() (*store.Store, error) {
	logger := logging.NewDefault()
	return store.Open(storePath, logger)
}
