package openvr

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario describes a simulated runtime.
type Scenario struct {
	// InitError, when set, makes Open fail with this error.
	InitError *SimInitError `yaml:"init_error"`

	// ScenePID is the process rendering the scene when the session opens.
	ScenePID uint32 `yaml:"scene_pid"`

	// Apps maps process IDs to installed applications.
	Apps map[uint32]SimApp `yaml:"apps"`

	// Events are delivered once their delay since Open has elapsed.
	Events []SimEvent `yaml:"events"`
}

// SimInitError is the scripted refusal to open a session.
type SimInitError struct {
	Name string `yaml:"name"`
	Code uint32 `yaml:"code"`
}

// SimApp is an application known to the simulator.
type SimApp struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

// SimEvent is a scripted runtime event.
type SimEvent struct {
	After time.Duration `yaml:"after"`

	// Type is one of scene_changed, standby_enter, standby_leave, quit.
	Type string `yaml:"type"`

	// PID is the new scene process for scene_changed. The simulator updates
	// its scene process when the event is delivered.
	PID uint32 `yaml:"pid"`
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	for i, ev := range sc.Events {
		if _, err := ev.raw(); err != nil {
			return nil, fmt.Errorf("scenario %s: event %d: %w", path, i, err)
		}
	}
	return &sc, nil
}

func (e SimEvent) raw() (RawEvent, error) {
	switch e.Type {
	case "scene_changed":
		return NewProcessEvent(EventSceneApplicationChanged, e.PID, 0, false, false), nil
	case "standby_enter":
		return RawEvent{Type: EventEnterStandbyMode}, nil
	case "standby_leave":
		return RawEvent{Type: EventLeaveStandbyMode}, nil
	case "quit":
		return NewProcessEvent(EventQuit, 0, 0, false, false), nil
	default:
		return RawEvent{}, fmt.Errorf("unknown event type %q", e.Type)
	}
}

type scheduledEvent struct {
	due time.Duration
	ev  RawEvent
}

// Sim is a scripted runtime. Unlike the native runtime it is safe for
// concurrent use, so tests can inject events while an agent polls it.
type Sim struct {
	mu sync.Mutex

	initErr   *InitError
	scenePID  uint32
	apps      map[uint32]SimApp
	scheduled []scheduledEvent
	queue     []RawEvent
	openedAt  time.Time
	open      bool

	nameErr            ApplicationError
	nameAlwaysTooSmall bool

	shutdowns   int
	quitAcks    int
	nameLookups int
	polls       int
}

var _ Session = (*Sim)(nil)

// NewSim returns a simulator for sc. A nil scenario is an empty runtime
// with no active application.
func NewSim(sc *Scenario) *Sim {
	s := &Sim{apps: make(map[uint32]SimApp)}
	if sc == nil {
		return s
	}
	if sc.InitError != nil {
		s.initErr = &InitError{Name: sc.InitError.Name, Code: sc.InitError.Code}
	}
	s.scenePID = sc.ScenePID
	for pid, app := range sc.Apps {
		s.apps[pid] = app
	}
	for _, e := range sc.Events {
		raw, err := e.raw()
		if err != nil {
			continue
		}
		s.scheduled = append(s.scheduled, scheduledEvent{due: e.After, ev: raw})
	}
	return s
}

// Open is an Opener for the simulator.
func (s *Sim) Open() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initErr != nil {
		return nil, s.initErr
	}
	if s.open {
		return nil, &InitError{Name: "VRInitError_Init_AlreadyRunning", Code: 4}
	}
	s.open = true
	s.openedAt = time.Now()
	return s, nil
}

// Push queues an event for the next poll.
func (s *Sim) Push(ev RawEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, ev)
}

// SetScene changes the scene process and queues a scene change event.
func (s *Sim) SetScene(pid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.scenePID
	s.scenePID = pid
	s.queue = append(s.queue, NewProcessEvent(EventSceneApplicationChanged, pid, old, false, false))
}

// AddApp registers an application for pid.
func (s *Sim) AddApp(pid uint32, key, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[pid] = SimApp{Key: key, Name: name}
}

// FailNameLookups makes every display-name lookup fail with code.
// ApplicationErrorNone restores normal behavior.
func (s *Sim) FailNameLookups(code ApplicationError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nameErr = code
}

// SetNameAlwaysTooSmall makes display-name lookups report a larger
// required size on every call.
func (s *Sim) SetNameAlwaysTooSmall(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nameAlwaysTooSmall = v
}

// Shutdowns returns how many times the session was released.
func (s *Sim) Shutdowns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdowns
}

// QuitAcks returns how many quit acknowledgements were received.
func (s *Sim) QuitAcks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quitAcks
}

// NameLookups returns how many display-name calls were made.
func (s *Sim) NameLookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nameLookups
}

// Polls returns how many times PollNextEvent was called.
func (s *Sim) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func (s *Sim) PollNextEvent(ev *RawEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++

	elapsed := time.Since(s.openedAt)
	pending := s.scheduled[:0]
	for _, sch := range s.scheduled {
		if sch.due <= elapsed {
			s.queue = append(s.queue, sch.ev)
			continue
		}
		pending = append(pending, sch)
	}
	s.scheduled = pending

	if len(s.queue) == 0 {
		return false
	}
	*ev = s.queue[0]
	s.queue = s.queue[1:]
	if ev.Type == EventSceneApplicationChanged {
		if sc, ok := DecodeEvent(ev).(SceneApplicationChanged); ok {
			s.scenePID = sc.PID
		}
	}
	return true
}

func (s *Sim) AcknowledgeQuit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quitAcks++
}

func (s *Sim) SceneProcessID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scenePID
}

func (s *Sim) ApplicationKeyByProcessID(pid uint32) (string, ApplicationError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[pid]
	if !ok {
		return "", ApplicationErrorNoApplication
	}
	if len(app.Key) >= MaxApplicationKeyLength {
		return "", ApplicationErrorBufferTooSmall
	}
	return app.Key, ApplicationErrorNone
}

func (s *Sim) ApplicationPropertyString(key string, prop ApplicationProperty, buf []byte) (uint32, ApplicationError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nameLookups++

	if s.nameErr != ApplicationErrorNone {
		return 0, s.nameErr
	}
	if prop != ApplicationPropertyName {
		return 0, ApplicationErrorUnknownProperty
	}

	var value string
	found := false
	for _, app := range s.apps {
		if app.Key == key {
			value, found = app.Name, true
			break
		}
	}
	if !found {
		return 0, ApplicationErrorUnknownApplication
	}

	need := uint32(len(value) + 1)
	if s.nameAlwaysTooSmall {
		need = uint32(len(buf)) + 1
	}
	if uint32(len(buf)) < need {
		return need, ApplicationErrorBufferTooSmall
	}
	n := copy(buf, value)
	buf[n] = 0
	return need, ApplicationErrorNone
}

func (s *Sim) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdowns++
	s.open = false
}
