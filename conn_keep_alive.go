package relayws

import (
	"sync"
	"time"
)

type KeepAliveMessageFactory func() Message

// keepAliveConnection decorates a Connection so that it writes a keep-alive message every
// interval while it is open.
type keepAliveConnection struct {
	Connection
	interval                time.Duration
	keepAliveMessageFactory KeepAliveMessageFactory
	logger                  Logger

	stopOnce sync.Once
	stopC    chan struct{}
}

// observe wraps the owner's sink to start the ticker on open and stop it on close.
func (h *keepAliveConnection) observe(sink EventSink) EventSink {
	return func(ev TransportEvent) {
		switch ev.Kind {
		case TransportOpen:
			go h.run()
		case TransportClose:
			h.stop()
		}
		sink(ev)
	}
}

func (h *keepAliveConnection) run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopC:
			return
		case <-ticker.C:
			if err := h.Connection.Write(h.keepAliveMessageFactory()); err != nil {
				h.logger.Debugf("keep-alive skipped: %s", err)
			}
		}
	}
}

func (h *keepAliveConnection) stop() {
	h.stopOnce.Do(func() {
		close(h.stopC)
	})
}

// NewKeepAliveConnectionFactory returns a factory whose connections send the message built
// by keepAliveMessageFactory every interval. A nil keepAliveMessageFactory sends pings.
func NewKeepAliveConnectionFactory(
	logger Logger,
	factory ConnectionFactory,
	interval time.Duration,
	keepAliveMessageFactory KeepAliveMessageFactory,
) ConnectionFactory {
	if keepAliveMessageFactory == nil {
		keepAliveMessageFactory = NewKeepAliveMessageFactory(PingMessage, func() []byte { return nil })
	}

	return func(params OpenConnectionParams, sink EventSink) Connection {
		h := &keepAliveConnection{
			interval:                interval,
			keepAliveMessageFactory: keepAliveMessageFactory,
			logger:                  logger.WithField("subtype", "keepAliveConnection"),
			stopC:                   make(chan struct{}),
		}
		h.Connection = factory(params, h.observe(sink))
		return h
	}
}

// NewKeepAliveMessageFactory returns a factory function for creating keep-alive messages.
func NewKeepAliveMessageFactory(
	mt MessageType,
	contentFactory func() []byte,
) KeepAliveMessageFactory {
	return func() Message {
		return NewMessage(mt, contentFactory())
	}
}
