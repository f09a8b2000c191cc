// Package openvr is the agent's view of the SteamVR runtime. The runtime
// API is not reentrant: a Session must only be used from the goroutine that
// opened it.
//
// Two implementations exist. OpenNative binds the OpenVR flat C API and is
// only available in builds tagged "openvr" with cgo enabled. Sim is a
// scripted, in-process runtime for tests and for running without SteamVR.
package openvr

import (
	"errors"
	"fmt"
)

// MaxApplicationKeyLength is the size of the runtime's application key
// buffer, including the terminating NUL.
const MaxApplicationKeyLength = 128

// ErrNativeUnavailable is returned by OpenNative in builds without the
// OpenVR binding.
var ErrNativeUnavailable = errors.New("openvr: native runtime not compiled in (build with -tags openvr)")

// Session is a live connection to the runtime. It is acquired by an Opener
// and released exactly once with Shutdown.
type Session interface {
	// PollNextEvent copies the next pending event into ev and reports
	// whether there was one. It never blocks.
	PollNextEvent(ev *RawEvent) bool

	// AcknowledgeQuit tells the runtime the application is exiting in
	// response to a quit event.
	AcknowledgeQuit()

	// SceneProcessID returns the process rendering the scene, or 0.
	SceneProcessID() uint32

	// ApplicationKeyByProcessID maps a process to its application key.
	ApplicationKeyByProcessID(pid uint32) (string, ApplicationError)

	// ApplicationPropertyString copies a string property into buf and
	// returns the size the value needs, including the terminating NUL. When
	// buf is too small the error is ApplicationErrorBufferTooSmall and the
	// returned size is the one to retry with.
	ApplicationPropertyString(key string, prop ApplicationProperty, buf []byte) (uint32, ApplicationError)

	// Shutdown releases the session.
	Shutdown()
}

// Opener acquires a runtime session. A runtime refusal is reported as a
// *InitError.
type Opener func() (Session, error)

// WithSession opens a session, runs fn with it, and releases the session on
// every return path, including a panic inside fn.
func WithSession(open Opener, fn func(Session) error) error {
	s, err := open()
	if err != nil {
		return err
	}
	defer s.Shutdown()
	return fn(s)
}

// InitError is the runtime's refusal to open a session.
type InitError struct {
	Name string
	Code uint32
}

func (e *InitError) Error() string {
	return fmt.Sprintf("openvr init: %s (%d)", e.Name, e.Code)
}

// Init error codes referenced by the agent and the simulator.
const (
	InitErrorNone            uint32 = 0
	InitErrorUnknown         uint32 = 1
	InitErrorInitHmdNotFound uint32 = 108
)

// ApplicationError is the status returned by the applications interface.
type ApplicationError uint32

const (
	ApplicationErrorNone               ApplicationError = 0
	ApplicationErrorNoApplication      ApplicationError = 102
	ApplicationErrorUnknownApplication ApplicationError = 104
	ApplicationErrorIPCFailed          ApplicationError = 105
	ApplicationErrorBufferTooSmall     ApplicationError = 200
	ApplicationErrorPropertyNotSet     ApplicationError = 201
	ApplicationErrorUnknownProperty    ApplicationError = 202
)

var applicationErrorNames = map[ApplicationError]string{
	ApplicationErrorNone:               "VRApplicationError_None",
	ApplicationErrorNoApplication:      "VRApplicationError_NoApplication",
	ApplicationErrorUnknownApplication: "VRApplicationError_UnknownApplication",
	ApplicationErrorIPCFailed:          "VRApplicationError_IPCFailed",
	ApplicationErrorBufferTooSmall:     "VRApplicationError_BufferTooSmall",
	ApplicationErrorPropertyNotSet:     "VRApplicationError_PropertyNotSet",
	ApplicationErrorUnknownProperty:    "VRApplicationError_UnknownProperty",
}

func (e ApplicationError) String() string {
	if name, ok := applicationErrorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("VRApplicationError(%d)", uint32(e))
}

// Error lets a non-zero ApplicationError travel as an error value.
func (e ApplicationError) Error() string {
	return e.String()
}

// ApplicationProperty selects an application property.
type ApplicationProperty uint32

const (
	ApplicationPropertyName ApplicationProperty = 0
)
