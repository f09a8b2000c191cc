package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xfeldman/vros/internal/logstore"
)

var (
	logsTail  int
	logsPrune int
)

// logsCmd: vros logs [SESSION] [--tail N] | vros logs --prune KEEP
var logsCmd = &cobra.Command{
	Use:   "logs [session]",
	Short: "Print agent diagnostics of a session (default: the latest)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := logstore.NewStore(cfg.LogsDir)
		if err != nil {
			return err
		}
		defer store.Close()

		if cmd.Flags().Changed("prune") {
			removed, err := pruneLogs(store, logsPrune)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d session log(s)\n", removed)
			return nil
		}

		session := ""
		if len(args) == 1 {
			session = args[0]
		} else {
			sessions, err := store.Sessions()
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				return errors.New("no agent sessions recorded")
			}
			session = sessions[len(sessions)-1]
		}

		entries, err := store.ReadFile(session, logsTail)
		if err != nil {
			return fmt.Errorf("session %s: %w", session, err)
		}
		out := cmd.OutOrStdout()
		for _, e := range entries {
			printEntry(out, e)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 200, "number of lines (0 = all)")
	logsCmd.Flags().IntVar(&logsPrune, "prune", 0, "delete all but the newest KEEP session logs")
}

func printEntry(w io.Writer, e logstore.Entry) {
	fmt.Fprintf(w, "%s [%s] %s\n", e.Timestamp.Format("2006-01-02 15:04:05.000"), e.Stream, e.Line)
}

// pruneLogs removes session logs oldest first until keep remain.
func pruneLogs(store *logstore.Store, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("--prune must be >= 0, got %d", keep)
	}
	sessions, err := store.Sessions()
	if err != nil {
		return 0, err
	}
	if len(sessions) <= keep {
		return 0, nil
	}
	stale := sessions[:len(sessions)-keep]
	for _, session := range stale {
		store.Remove(session)
	}
	return len(stale), nil
}
