package relayws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ConnState is the phase of a single transport handle. Values follow the standard
// WebSocket readyState numbering.
type ConnState int32

const (
	ConnConnecting ConnState = 0
	ConnOpen       ConnState = 1
	ConnClosing    ConnState = 2
	ConnClosed     ConnState = 3
)

func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnOpen:
		return "open"
	case ConnClosing:
		return "closing"
	case ConnClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// Live reports whether the handle still blocks a new connection attempt.
func (s ConnState) Live() bool {
	return s != ConnClosed
}

type TransportEventKind uint8

const (
	TransportOpen TransportEventKind = iota + 1
	TransportClose
	TransportError
	TransportMessage
)

func (k TransportEventKind) String() string {
	switch k {
	case TransportOpen:
		return "open"
	case TransportClose:
		return "close"
	case TransportError:
		return "error"
	case TransportMessage:
		return "message"
	default:
		return "unknown"
	}
}

// TransportEvent is what a Connection reports to its owner. Clean, Code and Reason are
// set for close events, Err for error events and Data for message events.
type TransportEvent struct {
	Kind   TransportEventKind
	Clean  bool
	Code   int
	Reason string
	Err    error
	Data   []byte
}

func (e TransportEvent) String() string {
	switch e.Kind {
	case TransportClose:
		return fmt.Sprintf("close{clean=%t,code=%d,reason=%q}", e.Clean, e.Code, e.Reason)
	case TransportError:
		return fmt.Sprintf("error{%v}", e.Err)
	case TransportMessage:
		return fmt.Sprintf("message{%s}", e.Data)
	default:
		return e.Kind.String()
	}
}

func openEvent() TransportEvent { return TransportEvent{Kind: TransportOpen} }

func closeEvent(clean bool, code int, reason string) TransportEvent {
	return TransportEvent{Kind: TransportClose, Clean: clean, Code: code, Reason: reason}
}

func errorEvent(err error) TransportEvent { return TransportEvent{Kind: TransportError, Err: err} }

func messageEvent(data []byte) TransportEvent {
	return TransportEvent{Kind: TransportMessage, Data: data}
}

type (
	// EventSink receives the events of one Connection. For a given handle the open event
	// fires at most once and before any close, and the close event fires exactly once and
	// is the last event delivered.
	EventSink func(TransportEvent)

	// Connection is a single transport handle. It is never reopened: every connection
	// attempt gets a fresh one from a ConnectionFactory.
	Connection interface {
		// Open dials the server. It blocks until the dial completes. Its outcome is also
		// reported through the sink, as an open event or a close event.
		Open(ctx context.Context) error
		// Write queues a frame. It fails unless the handle is open.
		Write(m Message) error
		// Close requests an orderly closure.
		Close()
		// State returns the current phase.
		State() ConnState
	}

	OpenConnectionParams struct {
		// ID identifies the attempt in logs.
		ID     string
		URL    url.URL
		Header http.Header
	}

	ConnectionFactory func(params OpenConnectionParams, sink EventSink) Connection
)
