// vros supervises the SteamVR agent and reports which application is
// rendering the VR scene.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/xfeldman/vros/internal/config"
	"github.com/xfeldman/vros/internal/logging"
	"github.com/xfeldman/vros/internal/version"
)

var (
	configPath string
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vros",
	Short: "Supervise the SteamVR agent and track the scene application",
	Long: `vros spawns vros-steamvr-agent, waits for it to open a SteamVR session,
and records every change of the application rendering the VR scene.

Environment:
  VROS_AGENT_PATH         Agent executable (default: next to vros)
  VROS_DATA_DIR           Runtime data (default: ~/.vros/data)
  VROS_HANDSHAKE_TIMEOUT  Wait for the agent's handshake (default: 30s)
  VROS_LOG_LEVEL          debug, info, warn or error`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and applies the --log-level override.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(os.Stderr, level), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String("vros"))
	},
}
