package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codedread/spaces/internal/sessionhash"
	"github.com/codedread/spaces/internal/types"
	"github.com/codedread/spaces/internal/urlnorm"
)

var migrateExtensionID string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Repair stored data after a cleaning or hashing rule change",
}

var migrateResetHashesCmd = &cobra.Command{
	Use:   "reset-hashes",
	Short: "Recompute every stored session's hash under the current URL-cleaning rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		clean := urlnorm.New(migrateExtensionID)
		ok := st.ResetAllHashes(context.Background(), func(tabs []types.Tab) uint32 {
			return sessionhash.Hash(tabs, clean.Clean)
		})
		if !ok {
			return fmt.Errorf("reset-hashes failed")
		}
		fmt.Println("session hashes recomputed")
		return nil
	},
}

func init() {
	migrateResetHashesCmd.Flags().StringVar(&migrateExtensionID, "extension-id", "", "Browser extension id, used to recognize the extension's own pages during URL cleaning")
	migrateCmd.AddCommand(migrateResetHashesCmd)
}
