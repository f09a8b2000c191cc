// vros-steamvr-agent owns the SteamVR runtime session on behalf of vros.
//
// It is spawned by the vros host with stdin and stdout redirected: stdout
// carries length-prefixed protocol frames, stdin carries host commands,
// stderr carries diagnostics. Exit status 0 is a clean shutdown, 1 means the
// runtime session could not be opened, 2 is any other failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xfeldman/vros/internal/agent"
	"github.com/xfeldman/vros/internal/logging"
	"github.com/xfeldman/vros/internal/openvr"
	"github.com/xfeldman/vros/internal/version"
)

const (
	exitOK = iota
	exitInit
	exitFailure
)

var (
	runtimeFlag  string
	simScript    string
	tickRate     int
	maxFrameSize uint32
	logLevel     string
)

func main() {
	os.Exit(execute())
}

func execute() int {
	var runErr error
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		runErr = run(cmd.Context(), os.Stdin, os.Stdout, os.Stderr)
		return nil
	}
	if err := rootCmd.Execute(); err != nil {
		return exitFailure
	}
	switch {
	case runErr == nil:
		return exitOK
	case errors.Is(runErr, agent.ErrInitialization):
		return exitInit
	default:
		fmt.Fprintf(os.Stderr, "vros-steamvr-agent: %v\n", runErr)
		return exitFailure
	}
}

var rootCmd = &cobra.Command{
	Use:          "vros-steamvr-agent",
	Short:        "SteamVR runtime agent for vros (spawned by the host)",
	Version:      version.Version(),
	Args:         cobra.NoArgs,
	SilenceUsage: true,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&runtimeFlag, "runtime", "native", "runtime backend: native or sim")
	f.StringVar(&simScript, "sim-script", "", "YAML scenario for the sim runtime")
	f.IntVar(&tickRate, "tick-rate", agent.DefaultTickRate, "loop frequency in Hz")
	f.Uint32Var(&maxFrameSize, "max-frame-size", 0, "frame size limit in bytes (0 = default)")
	f.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
}

// run drives the agent over the given streams. Setup errors are reported
// to the host as InitializationError rather than a silent exit.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) error {
	level, levelErr := logging.ParseLevel(logLevel)
	// stdout is the protocol stream.
	log := logging.New(stderr, level)

	open, err := opener()
	if err = errors.Join(levelErr, err); err != nil {
		// Reported to the host as InitializationError by agent.Run.
		open = func() (openvr.Session, error) { return nil, err }
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug("agent starting", "runtime", runtimeFlag, "version", version.Version())
	return agent.Run(ctx, open, stdin, stdout, agent.Options{
		TickRate:     tickRate,
		MaxFrameSize: maxFrameSize,
		Logger:       log,
	})
}

func opener() (openvr.Opener, error) {
	switch runtimeFlag {
	case "native":
		return openvr.OpenNative, nil
	case "sim":
		var sc *openvr.Scenario
		if simScript != "" {
			var err error
			if sc, err = openvr.LoadScenario(simScript); err != nil {
				return nil, err
			}
		}
		return openvr.NewSim(sc).Open, nil
	default:
		return nil, fmt.Errorf("unknown runtime %q (want native or sim)", runtimeFlag)
	}
}
