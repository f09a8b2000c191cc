package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xfeldman/vros/internal/config"
	"github.com/xfeldman/vros/internal/history"
	"github.com/xfeldman/vros/internal/host"
	"github.com/xfeldman/vros/internal/logstore"
)

var (
	agentPathFlag string
	simFlag       string
	followFlag    bool
)

// stderrTail is how many agent stderr lines are logged when the agent
// fails to start.
const stderrTail = 20

// runCmd: vros run [--agent PATH] [--sim SCENARIO] [--follow]
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent and follow the scene application until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if agentPathFlag != "" {
			cfg.AgentPath = agentPathFlag
		}

		var follow io.Writer
		if followFlag {
			follow = cmd.ErrOrStderr()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSession(ctx, cfg, log, simFlag, follow)
	},
}

func init() {
	runCmd.Flags().StringVar(&agentPathFlag, "agent", "", "agent executable (overrides config)")
	runCmd.Flags().StringVar(&simFlag, "sim", "", "run the agent against a simulated runtime scenario (YAML)")
	runCmd.Flags().BoolVarP(&followFlag, "follow", "f", false, "print agent diagnostics as they arrive")
}

// agentArgs passes the host's settings down to the agent.
func agentArgs(cfg *config.Config, simScenario string) []string {
	args := []string{
		"--tick-rate", strconv.Itoa(cfg.TickRate),
		"--max-frame-size", strconv.FormatUint(uint64(cfg.MaxFrameSize), 10),
		"--log-level", cfg.LogLevel,
	}
	if simScenario != "" {
		args = append(args, "--runtime", "sim", "--sim-script", simScenario)
	}
	return args
}

// runSession supervises one agent run and records it. When follow is set,
// the session's diagnostics are copied to it as they arrive.
func runSession(ctx context.Context, cfg *config.Config, log *slog.Logger, simScenario string, follow io.Writer) error {
	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("create data dirs: %w", err)
	}

	db, err := history.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	logs, err := logstore.NewStore(cfg.LogsDir)
	if err != nil {
		return err
	}
	defer logs.Close()

	id := uuid.NewString()
	agentPath := cfg.ResolveAgentPath()
	log = log.With("session", id)
	if err := db.StartSession(&history.Session{ID: id, AgentPath: agentPath, StartedAt: time.Now()}); err != nil {
		return fmt.Errorf("record session: %w", err)
	}

	diag := logs.GetOrCreate(id)
	if follow != nil {
		stopFollow := followLog(diag, follow)
		defer stopFollow()
	}

	sess, err := host.Start(ctx, host.Options{
		AgentPath:        agentPath,
		Args:             agentArgs(cfg, simScenario),
		MaxFrameSize:     cfg.MaxFrameSize,
		HandshakeTimeout: cfg.HandshakeTimeout,
		ExitGrace:        cfg.ExitGrace,
		Sink:             host.MultiSink(host.LogSink(log), db.Recorder(id)),
		Logger:           log,
		Diagnostics:      diag,
		OnStart: func(pid int) {
			if err := db.SetSessionPID(id, pid); err != nil {
				log.Warn("record agent pid", "err", err)
			}
		},
	})
	if err != nil {
		for _, line := range agentStderr(diag, stderrTail) {
			log.Warn("agent stderr", "line", line)
		}
		endSession(db, log, id, err)
		return err
	}

	err = sess.Wait()
	if errors.Is(err, context.Canceled) {
		// Interrupted by the user.
		err = nil
	}
	endSession(db, log, id, err)
	return err
}

// agentStderr returns the last n stderr lines buffered for the session.
func agentStderr(l *logstore.Log, n int) []string {
	var lines []string
	for _, e := range l.Read(time.Time{}, 0) {
		if e.Stream == logstore.StreamStderr {
			lines = append(lines, e.Line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// followLog copies entries of l to w until the returned stop is called.
func followLog(l *logstore.Log, w io.Writer) (stop func()) {
	ch, existing, unsub := l.Subscribe()
	for _, e := range existing {
		printEntry(w, e)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			printEntry(w, e)
		}
	}()
	return func() {
		unsub()
		<-done
	}
}

func endSession(db *history.DB, log *slog.Logger, id string, err error) {
	result := ""
	if err != nil {
		result = err.Error()
	}
	if dbErr := db.EndSession(id, time.Now(), result); dbErr != nil {
		log.Warn("record session end", "err", dbErr)
	}
}
