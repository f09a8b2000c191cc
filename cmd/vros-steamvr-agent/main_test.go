package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfeldman/vros/internal/agent"
	"github.com/xfeldman/vros/internal/protocol"
)

func TestOpenerSelectsRuntime(t *testing.T) {
	defer func(r, s string) { runtimeFlag, simScript = r, s }(runtimeFlag, simScript)

	runtimeFlag, simScript = "sim", ""
	open, err := opener()
	require.NoError(t, err)
	sess, err := open()
	require.NoError(t, err)
	assert.Zero(t, sess.SceneProcessID())
	sess.Shutdown()

	runtimeFlag = "vulkan"
	_, err = opener()
	assert.ErrorContains(t, err, "unknown runtime")

	runtimeFlag, simScript = "sim", "/nonexistent/scenario.yaml"
	_, err = opener()
	assert.Error(t, err)
}

func TestRunReportsSetupErrorsAsInitializationError(t *testing.T) {
	defer func(r, s, l string) { runtimeFlag, simScript, logLevel = r, s, l }(runtimeFlag, simScript, logLevel)

	tests := []struct {
		name     string
		runtime  string
		logLevel string
		want     string
	}{
		{"bad log level", "sim", "loud", `unknown log level "loud"`},
		{"bad runtime", "vulkan", "info", `unknown runtime "vulkan"`},
		{"both", "vulkan", "loud", `unknown log level "loud"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runtimeFlag, simScript, logLevel = tt.runtime, "", tt.logLevel

			var stdout, stderr bytes.Buffer
			err := run(context.Background(), strings.NewReader(""), &stdout, &stderr)
			require.ErrorIs(t, err, agent.ErrInitialization)

			msg, err := protocol.NewReceiver(&stdout, 0).RecvFromAgent()
			require.NoError(t, err)
			initErr, ok := msg.(protocol.InitializationError)
			require.True(t, ok, "got %s", protocol.Describe(msg))
			assert.Contains(t, initErr.Name, tt.want)
		})
	}
}
