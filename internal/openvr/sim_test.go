package openvr

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimInitError(t *testing.T) {
	sim := NewSim(&Scenario{InitError: &SimInitError{Name: "VRInitError_Init_HmdNotFound", Code: 108}})

	s, err := sim.Open()
	require.Nil(t, s)

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "VRInitError_Init_HmdNotFound", initErr.Name)
	assert.Equal(t, uint32(108), initErr.Code)
}

func TestSimOpenTwiceFails(t *testing.T) {
	sim := NewSim(nil)
	_, err := sim.Open()
	require.NoError(t, err)
	_, err = sim.Open()
	assert.Error(t, err)
}

func TestWithSessionReleasesOnError(t *testing.T) {
	sim := NewSim(nil)
	boom := errors.New("boom")

	err := WithSession(sim.Open, func(Session) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, sim.Shutdowns())
}

func TestWithSessionReleasesOnPanic(t *testing.T) {
	sim := NewSim(nil)

	assert.Panics(t, func() {
		_ = WithSession(sim.Open, func(Session) error { panic("boom") })
	})
	assert.Equal(t, 1, sim.Shutdowns())
}

func TestWithSessionNoReleaseWhenOpenFails(t *testing.T) {
	sim := NewSim(&Scenario{InitError: &SimInitError{Name: "x", Code: 1}})
	called := false

	err := WithSession(sim.Open, func(Session) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
	assert.Zero(t, sim.Shutdowns())
}

func TestSimPollOrderAndSceneTracking(t *testing.T) {
	sim := NewSim(nil)
	sim.AddApp(10, "steam.app.10", "Ten")
	_, err := sim.Open()
	require.NoError(t, err)

	sim.SetScene(10)
	sim.Push(RawEvent{Type: EventEnterStandbyMode})

	var ev RawEvent
	require.True(t, sim.PollNextEvent(&ev))
	assert.Equal(t, SceneApplicationChanged{PID: 10}, DecodeEvent(&ev))
	require.True(t, sim.PollNextEvent(&ev))
	assert.Equal(t, EnterStandby{}, DecodeEvent(&ev))
	assert.False(t, sim.PollNextEvent(&ev))

	assert.Equal(t, uint32(10), sim.SceneProcessID())
}

func TestSimScheduledEvents(t *testing.T) {
	sim := NewSim(&Scenario{
		Apps: map[uint32]SimApp{5: {Key: "k", Name: "n"}},
		Events: []SimEvent{
			{After: 0, Type: "scene_changed", PID: 5},
			{After: time.Hour, Type: "quit"},
		},
	})
	_, err := sim.Open()
	require.NoError(t, err)

	var ev RawEvent
	require.True(t, sim.PollNextEvent(&ev))
	assert.Equal(t, EventSceneApplicationChanged, ev.Type)
	assert.Equal(t, uint32(5), sim.SceneProcessID())
	assert.False(t, sim.PollNextEvent(&ev), "quit is not due yet")
}

func TestSimApplicationLookups(t *testing.T) {
	sim := NewSim(nil)
	sim.AddApp(7, "steam.app.7", "Seven")

	_, code := sim.ApplicationKeyByProcessID(8)
	assert.Equal(t, ApplicationErrorNoApplication, code)

	key, code := sim.ApplicationKeyByProcessID(7)
	require.Equal(t, ApplicationErrorNone, code)
	assert.Equal(t, "steam.app.7", key)

	need, code := sim.ApplicationPropertyString(key, ApplicationPropertyName, nil)
	assert.Equal(t, ApplicationErrorBufferTooSmall, code)
	assert.Equal(t, uint32(len("Seven")+1), need)

	buf := make([]byte, need)
	n, code := sim.ApplicationPropertyString(key, ApplicationPropertyName, buf)
	require.Equal(t, ApplicationErrorNone, code)
	assert.Equal(t, "Seven", string(buf[:n-1]))
	assert.Equal(t, 2, sim.NameLookups())
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scene_pid: 100
apps:
  100: {key: steam.app.438100, name: VRChat}
  200: {key: steam.app.620980, name: Beat Saber}
events:
  - after: 250ms
    type: scene_changed
    pid: 200
  - after: 1s
    type: quit
`), 0o600))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), sc.ScenePID)
	assert.Equal(t, SimApp{Key: "steam.app.620980", Name: "Beat Saber"}, sc.Apps[200])
	require.Len(t, sc.Events, 2)
	assert.Equal(t, 250*time.Millisecond, sc.Events[0].After)
	assert.Equal(t, "quit", sc.Events[1].Type)
}

func TestLoadScenarioRejectsUnknownEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("events:\n  - type: explode\n"), 0o600))

	_, err := LoadScenario(path)
	assert.ErrorContains(t, err, "explode")
}
