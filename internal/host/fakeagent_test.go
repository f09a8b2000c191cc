package host

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/xfeldman/vros/internal/agent"
	"github.com/xfeldman/vros/internal/logging"
	"github.com/xfeldman/vros/internal/openvr"
	"github.com/xfeldman/vros/internal/protocol"
)

// The test binary doubles as the agent: when fakeModeEnv is set, TestMain
// runs the requested behavior instead of the tests.
const fakeModeEnv = "VROS_FAKE_AGENT_MODE"

func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeModeEnv); mode != "" {
		os.Exit(runFakeAgent(mode))
	}
	os.Exit(m.Run())
}

func fakeOptions(t *testing.T, mode string) Options {
	t.Helper()
	return Options{
		AgentPath: os.Args[0],
		Env:       []string{fakeModeEnv + "=" + mode},
		Logger:    logging.Discard(),
	}
}

var (
	appA = &protocol.Application{Key: "app.a", Name: "Alpha"}
	appB = &protocol.Application{Key: "app.b", Name: "Beta"}
)

func runFakeAgent(mode string) int {
	tx := protocol.NewSender(os.Stdout, 0)
	send := func(msgs ...protocol.FromAgent) {
		for _, msg := range msgs {
			if err := tx.SendFromAgent(msg); err != nil {
				fmt.Fprintln(os.Stderr, "fake agent:", err)
				os.Exit(9)
			}
		}
	}
	waitForHost := func() { io.Copy(io.Discard, os.Stdin) }

	switch mode {
	case "completed":
		send(protocol.InitializationCompleted{}, protocol.ApplicationName{Application: appA})
		waitForHost()
		return 0
	case "init-error":
		send(protocol.InitializationError{Name: "VRInitError_Init_HmdNotFound", Code: 108})
		return 1
	case "exit":
		return 3
	case "hang":
		waitForHost()
		return 0
	case "sequence":
		send(protocol.InitializationCompleted{},
			protocol.ApplicationName{Application: appA},
			protocol.ApplicationName{},
			protocol.ApplicationName{Application: appB})
		return 0
	case "crash":
		send(protocol.InitializationCompleted{})
		return 2
	case "duplicate":
		send(protocol.InitializationCompleted{}, protocol.InitializationCompleted{})
		waitForHost()
		return 0
	case "app-first":
		send(protocol.ApplicationName{Application: appA}, protocol.InitializationCompleted{})
		waitForHost()
		return 0
	case "garbage":
		send(protocol.InitializationCompleted{})
		protocol.NewWriter(os.Stdout, 0).WriteFrame([]byte{0xc1})
		waitForHost()
		return 0
	case "garbage-exit":
		protocol.NewWriter(os.Stdout, 0).WriteFrame([]byte{0xc1})
		return 1
	case "stderr":
		fmt.Fprintln(os.Stderr, "hello diagnostics")
		send(protocol.InitializationCompleted{})
		waitForHost()
		return 0
	case "sim":
		sim := openvr.NewSim(&openvr.Scenario{
			ScenePID: 4242,
			Apps:     map[uint32]openvr.SimApp{4242: {Key: "steam.app.620", Name: "Portal 2"}},
		})
		err := agent.Run(context.Background(), sim.Open, os.Stdin, os.Stdout, agent.Options{
			Logger: logging.New(os.Stderr, slog.LevelDebug),
		})
		if err != nil {
			return 1
		}
		return 0
	default:
		fmt.Fprintln(os.Stderr, "fake agent: unknown mode", mode)
		return 99
	}
}
