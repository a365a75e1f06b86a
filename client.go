package relayws

import (
	"fmt"
	"net/url"
)

type (
	// Client is the behavior of a relay client: connecting, sending, disconnecting and
	// lifecycle notifications.
	Client interface {
		// Connect starts a connection attempt to the current server. It never blocks.
		Connect() error
		// Send transmits a payload if the connection is open.
		Send(payload any) error
		// Disconnect closes the active connection and cancels pending reconnects.
		Disconnect()
		// Close disconnects and releases the client for good.
		Close()
		// On registers a listener for lifecycle events.
		On(event EventType, listener EventHandler)
		// State returns the lifecycle state.
		State() State
		// CurrentServer returns the address the next attempt dials.
		CurrentServer() url.URL
	}

	// MessageHandler receives every parsed inbound frame, and a Rejection when the server
	// refuses the session.
	MessageHandler func(payload any)

	// EventHandler receives lifecycle notifications registered through On.
	EventHandler func(EventType)
)

var _ Client = (*Manager)(nil)

// EventType names a lifecycle notification.
type EventType uint8

const (
	// EventConnect fires when a connection opens and the auth frame was sent.
	EventConnect EventType = iota + 1
	// EventClose fires on every close of the active connection.
	EventClose
	// EventReconnect fires when a scheduled reconnect starts a new attempt.
	EventReconnect
	// EventRedirect fires when the server sends the client to another address.
	EventRedirect
	// EventReject fires when the server refuses the session.
	EventReject
)

func (e EventType) String() string {
	switch e {
	case EventConnect:
		return "connect"
	case EventClose:
		return "close"
	case EventReconnect:
		return "reconnect"
	case EventRedirect:
		return "redirect"
	case EventReject:
		return "reject"
	default:
		return fmt.Sprintf("EventType(%d)", uint8(e))
	}
}

// State is the lifecycle state of a Manager.
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosedClean
	StateClosedDirty
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateOpen:
		return "Open"
	case StateClosedClean:
		return "ClosedClean"
	case StateClosedDirty:
		return "ClosedDirty"
	default:
		return "Unknown"
	}
}
