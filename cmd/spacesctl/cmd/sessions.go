package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sessions := st.FetchAll(context.Background())
		if len(sessions) == 0 {
			fmt.Println("no sessions stored")
			return nil
		}

		fmt.Printf("%-8s %-24s %-6s %-10s %s\n", "ID", "NAME", "TABS", "HASH", "LAST ACCESS")
		for _, s := range sessions {
			name := "(unnamed)"
			if s.Name != nil {
				name = *s.Name
			}
			id := "-"
			if s.ID != nil {
				id = strconv.FormatInt(*s.ID, 10)
			}
			fmt.Printf("%-8s %-24s %-6d %-10d %s\n", id, name, len(s.Tabs), s.SessionHash, s.LastAccess.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single session's tabs and history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session id %q", args[0])
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sess, ok := st.FetchByID(context.Background(), id)
		if !ok {
			return fmt.Errorf("session %d not found", id)
		}

		name := "(unnamed)"
		if sess.Name != nil {
			name = *sess.Name
		}
		fmt.Printf("Session: %d\n", id)
		fmt.Printf("Name:    %s\n", name)
		fmt.Printf("Hash:    %d\n", sess.SessionHash)
		fmt.Printf("Tabs:    %d\n", len(sess.Tabs))
		for _, t := range sess.Tabs {
			fmt.Printf("  - %s\n", t.URL)
		}
		fmt.Printf("History: %d\n", len(sess.History))
		for _, t := range sess.History {
			fmt.Printf("  - %s\n", t.URL)
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session id %q", args[0])
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if !st.Remove(context.Background(), id) {
			return fmt.Errorf("session %d not found", id)
		}
		fmt.Printf("deleted session %d\n", id)
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}
