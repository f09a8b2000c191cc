package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, uint32(1024*1024), cfg.MaxFrameSize)
	assert.Equal(t, 120, cfg.TickRate)
	assert.Equal(t, 2*time.Second, cfg.ExitGrace)
	assert.Equal(t, "vros.db", filepath.Base(cfg.DBPath))
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().TickRate, cfg.TickRate)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agent_path: /opt/vros/agent
tick_rate: 90
handshake_timeout: 5s
exit_grace: 500ms
log_level: debug
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/vros/agent", cfg.AgentPath)
	assert.Equal(t, 90, cfg.TickRate)
	assert.Equal(t, 5*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.ExitGrace)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint32(1024*1024), cfg.MaxFrameSize, "unset fields keep defaults")
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tick_rate: 0\n"), 0600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "tick_rate")

	require.NoError(t, os.WriteFile(path, []byte("tick_rate: [\n"), 0600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"VROS_BIN_DIR":           "/usr/lib/vros",
		"VROS_MAX_FRAME_SIZE":    "4096",
		"VROS_TICK_RATE":         "60",
		"VROS_HANDSHAKE_TIMEOUT": "1m",
		"VROS_LOG_LEVEL":         "",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/usr/lib/vros", cfg.BinDir)
	assert.Equal(t, uint32(4096), cfg.MaxFrameSize)
	assert.Equal(t, 60, cfg.TickRate)
	assert.Equal(t, time.Minute, cfg.HandshakeTimeout)
	assert.Equal(t, "info", cfg.LogLevel, "empty values are ignored")
}

func TestApplyEnvErrors(t *testing.T) {
	for key, val := range map[string]string{
		"VROS_MAX_FRAME_SIZE":    "-1",
		"VROS_TICK_RATE":         "fast",
		"VROS_EXIT_GRACE":        "soon",
		"VROS_HANDSHAKE_TIMEOUT": "10",
	} {
		err := DefaultConfig().ApplyEnv(envMap(map[string]string{key: val}))
		assert.ErrorContains(t, err, key)
	}
}

func TestResolveAgentPath(t *testing.T) {
	cfg := &Config{BinDir: "/opt/vros"}
	assert.Equal(t, filepath.Join("/opt/vros", AgentBinary), trimExe(cfg.ResolveAgentPath()))

	cfg.AgentPath = "/custom/agent"
	assert.Equal(t, "/custom/agent", cfg.ResolveAgentPath())
}

func trimExe(p string) string {
	return p[:len(p)-len(filepath.Ext(p))]
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	cfg := &Config{
		DataDir: filepath.Join(root, "data"),
		DBPath:  filepath.Join(root, "db", "vros.db"),
		LogsDir: filepath.Join(root, "data", "logs"),
	}
	require.NoError(t, cfg.EnsureDirs())
	assert.DirExists(t, filepath.Join(root, "db"))
	assert.DirExists(t, cfg.LogsDir)
}
