package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/xfeldman/vros/internal/history"
)

var (
	historySession string
	historyLimit   int
	historyJSON    bool
)

// historyCmd: vros history [--session ID] [--limit N] [--json]
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded sessions and scene application changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := history.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		changes, err := db.Recent(historySession, historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if historyJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(changes)
		}

		if historySession == "" {
			sessions, err := db.ListSessions(5)
			if err != nil {
				return err
			}
			printSessions(out, sessions)
			fmt.Fprintln(out)
		}
		printChanges(out, changes)
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historySession, "session", "", "only changes of this session")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of changes (0 = all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print changes as JSON")
}

func printSessions(w io.Writer, sessions []*history.Session) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tPID\tSTARTED\tRESULT")
	for _, s := range sessions {
		result := "running"
		if s.Ended() {
			result = "ok"
			if s.Result != "" {
				result = s.Result
			}
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.ID, s.PID, humanize.Time(s.StartedAt), result)
	}
	tw.Flush()
}

func printChanges(w io.Writer, changes []*history.Change) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tAPPLICATION\tKEY\tSESSION")
	for _, c := range changes {
		name, key := c.Name, c.Key
		if c.Cleared() {
			name, key = "(none)", "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", humanize.Time(c.ChangedAt), name, key, c.SessionID)
	}
	tw.Flush()
}
