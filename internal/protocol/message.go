// Package protocol defines the messages exchanged between the vros host and
// its SteamVR agent, their body encoding, and the length-prefixed framing
// carried over the agent's stdin/stdout pipes.
//
// Framing contract (both directions):
//   - 4-byte little-endian unsigned body length, then exactly that many
//     bytes of MessagePack-encoded message.
//   - A message body is a MessagePack array whose first element is the
//     variant tag. Remaining elements are the variant's fields.
//   - No compression, no checksum. The transport is an ordered byte stream.
package protocol

import "fmt"

// FromAgent is an event sent from the agent to the host. The set of
// implementations is closed: InitializationCompleted, InitializationError
// and ApplicationName.
type FromAgent interface {
	fromAgent()
}

// ToAgent is a command sent from the host to the agent. No commands are
// defined yet; the framing and tag dispatch exist so new ones can be added
// without changing the wire format.
type ToAgent interface {
	toAgent()
}

// tag is the variant discriminant written as the first array element.
type tag uint64

const (
	tagInitializationCompleted tag = 0
	tagInitializationError     tag = 1
	tagApplicationName         tag = 2
)

func (t tag) String() string {
	switch t {
	case tagInitializationCompleted:
		return "InitializationCompleted"
	case tagInitializationError:
		return "InitializationError"
	case tagApplicationName:
		return "ApplicationName"
	default:
		return fmt.Sprintf("tag(%d)", uint64(t))
	}
}

// InitializationCompleted reports that the agent holds a live runtime
// session and is ready. It is only valid as the agent's first message.
type InitializationCompleted struct{}

func (InitializationCompleted) fromAgent() {}

// InitializationError reports that the agent could not open a runtime
// session. Name is the runtime's symbolic error name and Code its raw
// status. Only valid as the agent's first message; the agent exits after
// sending it.
type InitializationError struct {
	Name string
	Code uint32
}

func (InitializationError) fromAgent() {}

func (e InitializationError) Error() string {
	return fmt.Sprintf("%s (%d)", e.Name, e.Code)
}

// Application identifies the application currently rendering the scene.
type Application struct {
	Key  string
	Name string
}

// ApplicationName reports the active scene application. A nil Application
// means no application is active.
type ApplicationName struct {
	Application *Application
}

func (ApplicationName) fromAgent() {}

func (m ApplicationName) String() string {
	if m.Application == nil {
		return "none"
	}
	return fmt.Sprintf("%s (%s)", m.Application.Name, m.Application.Key)
}

// Describe returns a short human-readable name for msg, for logging.
func Describe(msg FromAgent) string {
	switch m := msg.(type) {
	case InitializationCompleted:
		return tagInitializationCompleted.String()
	case InitializationError:
		return tagInitializationError.String() + ": " + m.Error()
	case ApplicationName:
		return tagApplicationName.String() + ": " + m.String()
	default:
		return fmt.Sprintf("%T", msg)
	}
}
