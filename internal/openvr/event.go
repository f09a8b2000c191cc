package openvr

import (
	"encoding/binary"
	"fmt"
)

// EventDataSize is the size of the runtime's event payload union.
const EventDataSize = 48

// EventType is the runtime's event discriminant.
type EventType uint32

const (
	EventEnterStandbyMode        EventType = 106
	EventLeaveStandbyMode        EventType = 107
	EventSceneApplicationChanged EventType = 404
	EventQuit                    EventType = 700
)

func (t EventType) String() string {
	switch t {
	case EventEnterStandbyMode:
		return "VREvent_EnterStandbyMode"
	case EventLeaveStandbyMode:
		return "VREvent_LeaveStandbyMode"
	case EventSceneApplicationChanged:
		return "VREvent_SceneApplicationChanged"
	case EventQuit:
		return "VREvent_Quit"
	default:
		return fmt.Sprintf("VREvent(%d)", uint32(t))
	}
}

// RawEvent mirrors the runtime's event record. Data holds the untyped
// payload union; only DecodeEvent interprets it.
type RawEvent struct {
	Type               EventType
	TrackedDeviceIndex uint32
	AgeSeconds         float32
	Data               [EventDataSize]byte
}

// Event is a decoded runtime event. The set of implementations is closed.
type Event interface {
	event()
}

// SceneApplicationChanged reports that a different process now renders the
// scene.
type SceneApplicationChanged struct {
	PID    uint32
	OldPID uint32
}

// EnterStandby reports that the headset entered standby.
type EnterStandby struct{}

// LeaveStandby reports that the headset left standby.
type LeaveStandby struct{}

// Quit asks the application to exit.
type Quit struct {
	PID            uint32
	Forced         bool
	ConnectionLost bool
}

// Unhandled is any event type the agent does not act on.
type Unhandled struct {
	Type EventType
}

func (SceneApplicationChanged) event() {}
func (EnterStandby) event()            {}
func (LeaveStandby) event()            {}
func (Quit) event()                    {}
func (Unhandled) event()               {}

// process payload layout: pid u32, oldPid u32, bForced bool, bConnectionLost bool.
const (
	processPIDOffset            = 0
	processOldPIDOffset         = 4
	processForcedOffset         = 8
	processConnectionLostOffset = 9
)

// DecodeEvent converts a raw event into its typed form, reading only the
// payload member that is valid for the event's type.
func DecodeEvent(raw *RawEvent) Event {
	switch raw.Type {
	case EventSceneApplicationChanged:
		return SceneApplicationChanged{
			PID:    binary.LittleEndian.Uint32(raw.Data[processPIDOffset:]),
			OldPID: binary.LittleEndian.Uint32(raw.Data[processOldPIDOffset:]),
		}
	case EventEnterStandbyMode:
		return EnterStandby{}
	case EventLeaveStandbyMode:
		return LeaveStandby{}
	case EventQuit:
		return Quit{
			PID:            binary.LittleEndian.Uint32(raw.Data[processPIDOffset:]),
			Forced:         raw.Data[processForcedOffset] != 0,
			ConnectionLost: raw.Data[processConnectionLostOffset] != 0,
		}
	default:
		return Unhandled{Type: raw.Type}
	}
}

// NewProcessEvent builds a raw event carrying the process payload.
func NewProcessEvent(t EventType, pid, oldPID uint32, forced, connectionLost bool) RawEvent {
	ev := RawEvent{Type: t}
	binary.LittleEndian.PutUint32(ev.Data[processPIDOffset:], pid)
	binary.LittleEndian.PutUint32(ev.Data[processOldPIDOffset:], oldPID)
	if forced {
		ev.Data[processForcedOffset] = 1
	}
	if connectionLost {
		ev.Data[processConnectionLostOffset] = 1
	}
	return ev
}
