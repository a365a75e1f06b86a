package relayws

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// RedirectCloseCode is the clean close code by which the server sends the client to
	// the address carried in the close reason. It is an application convention, not an
	// RFC 6455 code.
	RedirectCloseCode = 302

	// failoverRetryLimit is the count of dirty closes tolerated on a redirected server
	// before falling back to the primary one.
	failoverRetryLimit = 5
	failbackDelay      = time.Second
)

// Manager keeps one authenticated connection to a relay server alive. It follows server
// redirects, reconnects after abrupt closes and reports session rejections to the
// message handler.
//
// Every reaction (transport events, timers, public calls) runs under one lock, so the
// manager behaves as a single event loop. The message handler and lifecycle listeners are
// called after the lock is released.
type Manager struct {
	cfg     Config
	opts    options
	logger  Logger
	factory ConnectionFactory
	emitter *EventEmitterCallback[EventType, EventType]

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	target      *serverTarget
	conn        Connection
	connLogger  Logger
	state       State
	retryCount  int
	retryTimer  Timer
	retryGen    uint64
	rejectTimer Timer
	rejectGen   uint64
	userClosed  bool
	closed      bool
}

// New builds a Manager. It does not connect. An empty WsServer is accepted, Connect
// refuses to run until one is known; a malformed one is an error.
func New(cfg Config, opts ...Option) (*Manager, error) {
	cfg = resolveConfig(cfg)

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.scheduler == nil {
		o.scheduler = RealScheduler
	}
	if o.backoff == nil {
		o.backoff = StepBackoff
	}

	logger := o.logger
	if logger == nil {
		if cfg.MsgLog != nil || cfg.ErrLog != nil {
			logger = NewFuncLogger(cfg.MsgLog, cfg.ErrLog, nil)
		} else {
			logger = NewLogrusLogger(nil)
		}
	}

	var primary *url.URL
	if cfg.WsServer != "" {
		u, err := parseServer(cfg.WsServer)
		if err != nil {
			return nil, errors.Wrap(err, "invalid ws server")
		}
		primary = u
	}

	factory := o.connectionFactory
	if factory == nil {
		factory = NewWebsocketFactory(logger, o.dialer, o.errorAdapters)
	}
	if o.keepAliveInterval > 0 {
		factory = NewKeepAliveConnectionFactory(logger, factory, o.keepAliveInterval, o.keepAliveMessage)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		cfg:        cfg,
		opts:       o,
		logger:     logger.WithField("type", "relay_manager"),
		factory:    factory,
		emitter:    NewEventEmitter[EventType, EventType](),
		ctx:        ctx,
		cancel:     cancel,
		target:     newServerTarget(primary, o.header),
		connLogger: logger,
		state:      StateIdle,
	}, nil
}

// Connect starts a connection attempt to the current server and returns immediately.
// It refuses, logging why, when the token or the server is missing or when a connection
// is still connecting, open or closing.
func (m *Manager) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.connectLocked()
}

func (m *Manager) connectLocked() error {
	if m.closed {
		m.logger.Warn("cannot connect: manager closed")
		return ErrClosed
	}
	if m.cfg.UserToken == "" {
		m.logger.Error("cannot connect: user token is required")
		return ErrMissingToken
	}
	if _, ok := m.target.Current(); !ok {
		m.logger.Error("cannot connect: ws server is required")
		return ErrMissingServer
	}
	if m.conn != nil && m.conn.State().Live() {
		m.logger.Warnf("cannot connect: connection is %s", m.conn.State())
		return ErrBusy
	}

	// a fresh attempt supersedes any scheduled one
	m.cancelReconnectLocked()
	m.userClosed = false

	params := m.target.Params()
	params.ID = uuid.NewString()

	var conn Connection
	conn = m.factory(params, func(ev TransportEvent) {
		m.dispatch(conn, ev)
	})
	m.conn = conn
	m.connLogger = m.logger.WithField("conn_id", params.ID)
	m.state = StateConnecting

	m.connLogger.Infof("connecting to %s", params.URL.String())

	ctx, logger := m.ctx, m.connLogger
	go func() {
		if err := conn.Open(ctx); err != nil {
			logger.Debugf("open failed: %s", err)
		}
	}()

	return nil
}

// Send transmits payload when the connection is open; otherwise the payload is dropped
// and ErrNotOpen returned. Strings and byte slices are sent as they are, any other value
// is JSON encoded.
func (m *Manager) Send(payload any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil || conn.State() != ConnOpen {
		m.logger.Debugf("dropping outbound payload: %s", ErrNotOpen)
		return ErrNotOpen
	}

	data, err := encodePayload(payload)
	if err != nil {
		m.logger.Errorf("dropping outbound payload: %s", err)
		return err
	}

	return conn.Write(NewDataMessage(data))
}

// Disconnect closes the active connection, if any, and cancels the pending reconnect
// and rejection delivery. No automatic reconnect follows.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.cancelReconnectLocked()
	m.cancelRejectionLocked()

	conn := m.conn
	if conn != nil && conn.State().Live() {
		m.userClosed = true
	} else {
		m.state = StateIdle
		conn = nil
	}
	m.mu.Unlock()

	if conn != nil {
		m.logger.Info("disconnecting")
		conn.Close()
	}
}

// Close disconnects, aborts in-flight dials and drops every lifecycle listener.
// Connect fails with ErrClosed afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.Disconnect()
	m.cancel()
	m.emitter.Close()
}

// On registers a lifecycle listener.
func (m *Manager) On(event EventType, listener EventHandler) {
	m.emitter.On(event, listener)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) CurrentServer() url.URL {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, _ := m.target.Current()
	return u
}

// RetryCount returns the count of dirty closes since the last successful open.
func (m *Manager) RetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCount
}

// dispatch is the single entry point of transport events. Events of a connection that
// is no longer the active one are dropped.
func (m *Manager) dispatch(conn Connection, ev TransportEvent) {
	m.mu.Lock()
	if conn != m.conn {
		m.mu.Unlock()
		m.logger.Debugf("dropping %s from a stale connection", ev)
		return
	}

	var after []func()
	switch ev.Kind {
	case TransportOpen:
		after = m.handleOpen(conn)
	case TransportClose:
		after = m.handleClose(ev)
	case TransportError:
		m.connLogger.Errorf("transport error: %s", ev.Err)
	case TransportMessage:
		after = m.handleMessage(ev)
	}
	m.mu.Unlock()

	for _, f := range after {
		f()
	}
}

func (m *Manager) handleOpen(conn Connection) []func() {
	m.retryCount = 0
	m.state = StateOpen

	frame, err := encodePayload(newAuthFrame(m.cfg.UserToken, m.cfg.Device))
	if err != nil {
		m.connLogger.Errorf("cannot build auth frame: %s", err)
	} else if err := conn.Write(NewDataMessage(frame)); err != nil {
		m.connLogger.Errorf("cannot send auth frame: %s", err)
	} else {
		m.connLogger.Info("connection open, auth frame sent")
	}

	return []func(){m.emit(EventConnect)}
}

func (m *Manager) handleClose(ev TransportEvent) []func() {
	after := []func(){m.emit(EventClose)}

	if m.userClosed {
		m.userClosed = false
		m.state = StateIdle
		m.connLogger.Infof("connection closed on request: %s", ev)
		return after
	}

	if ev.Clean {
		return append(after, m.handleCleanClose(ev)...)
	}
	return append(after, m.handleDirtyClose(ev)...)
}

func (m *Manager) handleCleanClose(ev TransportEvent) []func() {
	m.state = StateClosedClean

	switch {
	case ev.Code == RedirectCloseCode:
		next, err := parseServer(ev.Reason)
		if err != nil {
			m.connLogger.Errorf("invalid redirect target %q: %s", ev.Reason, err)
			return m.handleDirtyClose(ev)
		}

		m.connLogger.Infof("redirected to %s", next)
		m.target.Redirect(*next)
		_ = m.connectLocked()
		return []func(){m.emit(EventRedirect)}

	case isRejectionCode(ev.Code):
		rejection := Rejection{ErrorCode: ev.Code, Reason: ev.Reason}
		m.connLogger.Errorf("%s", rejection)
		m.scheduleRejectionLocked(rejection)
		return []func(){m.emit(EventReject)}

	default:
		m.state = StateIdle
		m.connLogger.Infof("connection closed: %s", ev)
		return nil
	}
}

func (m *Manager) handleDirtyClose(ev TransportEvent) []func() {
	m.state = StateClosedDirty
	m.retryCount++

	delay := m.opts.backoff(m.retryCount)
	if m.retryCount > failoverRetryLimit && !m.target.OnPrimary() {
		m.target.ResetToPrimary()
		delay = failbackDelay
		primary := m.target.Primary()
		m.connLogger.Warnf("falling back to primary server %s", primary.String())
	}

	m.connLogger.Infof("retrying to connect after %s due to %s (retry #%d)", delay, ev, m.retryCount)
	m.scheduleReconnectLocked(delay)
	return nil
}

func (m *Manager) handleMessage(ev TransportEvent) []func() {
	handler, logger := m.cfg.OnMessage, m.connLogger

	return []func(){func() {
		payload, err := decodePayload(ev.Data)
		if err != nil {
			logger.Errorf("dropping malformed frame: %s", err)
			return
		}
		if handler != nil {
			handler(payload)
		}
	}}
}

func (m *Manager) scheduleReconnectLocked(delay time.Duration) {
	m.cancelReconnectLocked()

	gen := m.retryGen
	m.retryTimer = m.opts.scheduler.AfterFunc(delay, func() {
		m.reconnect(gen)
	})
}

func (m *Manager) cancelReconnectLocked() {
	m.retryGen++
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.retryGen {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	err := m.connectLocked()
	m.mu.Unlock()

	if err == nil {
		m.emitter.Emit(EventReconnect, EventReconnect)
	}
}

// scheduleRejectionLocked hands the rejection to the message handler once, after the
// rejection delay.
func (m *Manager) scheduleRejectionLocked(rejection Rejection) {
	handler := m.cfg.OnMessage
	if handler == nil {
		return
	}

	m.cancelRejectionLocked()

	gen := m.rejectGen
	m.rejectTimer = m.opts.scheduler.AfterFunc(m.opts.rejectionDelay, func() {
		m.mu.Lock()
		if gen != m.rejectGen {
			m.mu.Unlock()
			return
		}
		m.rejectGen++
		m.rejectTimer = nil
		m.mu.Unlock()

		handler(rejection)
	})
}

func (m *Manager) cancelRejectionLocked() {
	m.rejectGen++
	if m.rejectTimer != nil {
		m.rejectTimer.Stop()
		m.rejectTimer = nil
	}
}

func (m *Manager) emit(event EventType) func() {
	return func() {
		m.emitter.Emit(event, event)
	}
}
