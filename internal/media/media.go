package media

import "fmt"

// ServiceName is the bridge service every media command is addressed to.
const ServiceName = "Media"

// MsgType identifies the kind of status event reported by the native layer
type MsgType int

const (
	MsgState    MsgType = 1
	MsgDuration MsgType = 2
	MsgPosition MsgType = 3
	MsgError    MsgType = 9
)

func (m MsgType) String() string {
	switch m {
	case MsgState:
		return "STATE"
	case MsgDuration:
		return "DURATION"
	case MsgPosition:
		return "POSITION"
	case MsgError:
		return "ERROR"
	default:
		return fmt.Sprintf("MsgType(%d)", int(m))
	}
}

// State mirrors the playback state held by the native engine. The values
// are informational; the native layer is authoritative.
type State int

const (
	StateNone State = iota
	StateStarting
	StateRunning
	StatePaused
	StateStopped
)

var stateNames = [...]string{"None", "Starting", "Running", "Paused", "Stopped"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StatusEvent is one accepted status event, as published to subscribers
type StatusEvent struct {
	ID    string  `json:"id"`
	Type  MsgType `json:"msg_type"`
	Value any     `json:"value"`
}
