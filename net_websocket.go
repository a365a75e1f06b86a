package relayws

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
)

const (
	defaultWriteTimeout = time.Second
	defaultCloseGrace   = 5 * time.Second
	defaultSendBuffer   = 64

	// relayPrivateCodeBase offsets relay close codes into the RFC 6455 private range.
	relayPrivateCodeBase = 4000
)

type (
	ErrAdapter func(*websocket.Conn, *http.Response, error) error

	// CloseAdapter maps the close code and text received from the peer before they are
	// reported as a clean close event.
	CloseAdapter func(code int, text string) (int, string)

	ErrorAdapters struct {
		OnDial  ErrAdapter
		OnClose CloseAdapter
	}

	// WsConnection is a Connection backed by a fasthttp/websocket client socket.
	WsConnection struct {
		errAdapters  ErrorAdapters
		params       OpenConnectionParams
		logger       Logger
		dialer       *websocket.Dialer
		sink         EventSink
		writeTimeout time.Duration
		closeGrace   time.Duration

		mu         sync.Mutex
		state      ConnState
		conn       *websocket.Conn
		cancelDial context.CancelFunc

		emitMu   sync.Mutex
		finished bool

		closeC    chan struct{}
		closeOnce sync.Once
		send      chan Message
	}
)

func NewWebsocketConnection(
	dialer *websocket.Dialer,
	params OpenConnectionParams,
	logger Logger,
	sink EventSink,
	errorAdapters ErrorAdapters,
) *WsConnection {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger = logger.WithField("net", "ws_connection")
	if params.ID != "" {
		logger = logger.WithField("conn_id", params.ID)
	}
	return &WsConnection{
		errAdapters:  errorAdapters,
		params:       params,
		dialer:       dialer,
		sink:         sink,
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
		closeGrace:   defaultCloseGrace,
		state:        ConnConnecting,
		closeC:       make(chan struct{}),
		send:         make(chan Message, defaultSendBuffer),
	}
}

func NewWebsocketFactory(
	logger Logger,
	dialer *websocket.Dialer,
	errorAdapters ErrorAdapters,
) ConnectionFactory {
	return func(params OpenConnectionParams, sink EventSink) Connection {
		return NewWebsocketConnection(
			dialer,
			params,
			logger,
			sink,
			errorAdapters,
		)
	}
}

// NormalizeRelayCloseCode is the default CloseAdapter. RFC 6455 forbids close codes
// below 1000 on the wire, so relay servers send the redirect as 4302 and rejections as
// 4401..4499. Those are reported as 302 and 401..499; every other code is left as is.
func NormalizeRelayCloseCode(code int, text string) (int, string) {
	if code > relayPrivateCodeBase && code < relayPrivateCodeBase+1000 {
		app := code - relayPrivateCodeBase
		if app == RedirectCloseCode || isRejectionCode(app) {
			return app, text
		}
	}
	return code, text
}

// State returns the phase of the handle.
func (w *WsConnection) State() ConnState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Open dials the server and, on success, spawns the read and write loops.
// This method is blocking and returns when the connection is established or the dial failed.
// Close aborts a dial in flight, in which case Open returns ErrTerminated.
func (w *WsConnection) Open(ctx context.Context) error {
	target := w.params.URL.String()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	if w.state != ConnConnecting {
		w.mu.Unlock()
		w.finish(closeEvent(false, websocket.CloseAbnormalClosure, "closed before open"))
		return ErrTerminated
	}
	w.cancelDial = cancel
	w.mu.Unlock()

	dialer, release := w.abortableDialer(ctx)
	conn, resp, err := dialer.DialContext(ctx, target, w.params.Header)
	release()
	if err != nil {
		if w.State() == ConnClosing {
			w.logger.Debugf("dial to %s aborted: %s", target, err)
			w.finish(closeEvent(false, websocket.CloseAbnormalClosure, "dial aborted"))
			return ErrTerminated
		}
		ev, dialErr := w.handleDialError(conn, resp, err)
		w.logger.Errorf("connection err to %s: %s", target, dialErr)
		w.emit(errorEvent(dialErr))
		w.finish(ev)
		return dialErr
	}

	w.mu.Lock()
	w.cancelDial = nil
	if w.state == ConnClosing {
		// closed while the handshake completed
		w.conn = conn
		w.mu.Unlock()
		w.finish(closeEvent(false, websocket.CloseAbnormalClosure, "closed before open"))
		return ErrTerminated
	}
	w.conn = conn
	w.state = ConnOpen
	w.mu.Unlock()

	w.logger.Debugf("success opening connection to %s", target)

	conn.SetPongHandler(func(string) error {
		w.logger.Debugln("<= [PONG]")
		return nil
	})

	w.emit(openEvent())

	go w.read()
	go w.write()

	return nil
}

// Write queues a frame for the write loop.
func (w *WsConnection) Write(m Message) error {
	if w.State() != ConnOpen {
		return ErrNotOpen
	}

	select {
	case w.send <- m:
		return nil
	case <-w.closeC:
		return ErrConnectionClosed
	default:
		return errors.Wrap(ErrConnectionClosed, "send buffer is full")
	}
}

// Close starts the closing handshake. The socket is torn down once the peer answers,
// or after closeGrace if it never does.
func (w *WsConnection) Close() {
	w.mu.Lock()
	switch w.state {
	case ConnConnecting:
		w.state = ConnClosing
		cancel := w.cancelDial
		w.mu.Unlock()
		if cancel != nil {
			// aborts the dial in flight
			cancel()
		}
		return
	case ConnOpen:
		w.state = ConnClosing
	default:
		w.mu.Unlock()
		return
	}
	conn := w.conn
	w.mu.Unlock()

	w.logger.Infoln("closing connection from our side")

	deadline := time.Now().Add(w.writeTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		w.logger.Warnf("cannot send close frame: %s", err)
		_ = conn.Close()
		return
	}

	time.AfterFunc(w.closeGrace, func() {
		select {
		case <-w.closeC:
		default:
			w.logger.Warnf("peer did not answer close within %s", w.closeGrace)
			_ = conn.Close()
		}
	})
}

// abortableDialer returns a copy of the dialer whose sockets are shut as soon as ctx is
// done, so that cancelling ctx also interrupts a handshake the server never answers.
// release detaches the socket from ctx once the dial returned.
func (w *WsConnection) abortableDialer(ctx context.Context) (*websocket.Dialer, func()) {
	d := *w.dialer

	netDial := d.NetDialContext
	if netDial == nil && d.NetDial != nil {
		plain := d.NetDial
		netDial = func(_ context.Context, network, addr string) (net.Conn, error) {
			return plain(network, addr)
		}
	}
	if netDial == nil {
		var nd net.Dialer
		netDial = nd.DialContext
	}

	var stop func() bool
	d.NetDialContext = func(dialCtx context.Context, network, addr string) (net.Conn, error) {
		c, err := netDial(dialCtx, network, addr)
		if err != nil {
			return nil, err
		}
		stop = context.AfterFunc(ctx, func() { _ = c.Close() })
		return c, nil
	}

	return &d, func() {
		if stop != nil {
			stop()
		}
	}
}

func (w *WsConnection) read() {
	for {
		messageType, bts, err := w.conn.ReadMessage()
		if err != nil {
			w.finish(w.readFailureEvent(err))
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			w.logger.Debugln("<= [BIN]")
		default:
			w.logger.Debugf("<= [DATA] %s", bts)
		}
		w.emit(messageEvent(bts))
	}
}

func (w *WsConnection) write() {
	for {
		select {
		case <-w.closeC:
			return
		case msg := <-w.send:
			deadline := time.Now().Add(w.writeTimeout)
			_ = w.conn.SetWriteDeadline(deadline)

			var err error

			switch msg.Type() {
			case PingMessage:
				w.logger.Debugln("=> [PING]")
				err = w.conn.WriteControl(websocket.PingMessage, msg.Data(), deadline)
			case PongMessage:
				w.logger.Debugln("=> [PONG]")
				err = w.conn.WriteControl(websocket.PongMessage, msg.Data(), deadline)
			case BinaryMessage:
				w.logger.Debugln("=> [BIN]")
				err = w.conn.WriteMessage(websocket.BinaryMessage, msg.Data())
			default:
				w.logger.Debugf("=> [DATA] %s", msg.Data())
				err = w.conn.WriteMessage(websocket.TextMessage, msg.Data())
			}

			if err != nil {
				w.logger.Errorf("error occurred on websocket write: %s", err)
				w.emit(errorEvent(errors.Wrap(ErrConnectionClosed, err.Error())))
				// unblocks the read loop, which reports the close
				_ = w.conn.Close()
				return
			}
		}
	}
}

func (w *WsConnection) readFailureEvent(err error) TransportEvent {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
		code, text := closeErr.Code, closeErr.Text
		if w.errAdapters.OnClose != nil {
			code, text = w.errAdapters.OnClose(code, text)
		}
		w.logger.Debugf("<= [CLOSE] code=%d reason=%s", code, text)
		return closeEvent(true, code, text)
	}

	if w.State() != ConnClosing {
		w.logger.Errorf("error occurred on websocket read: %s", err)
		w.emit(errorEvent(errors.Wrap(ErrConnectionClosed, "error occurred on websocket read: "+err.Error())))
	}
	return closeEvent(false, websocket.CloseAbnormalClosure, "")
}

// handleDialError classifies a failed dial. HTTP 4xx answers to the upgrade request
// (other than 429) are the server refusing the session and are reported as a clean
// close carrying the status code.
func (w *WsConnection) handleDialError(conn *websocket.Conn, resp *http.Response, err error) (TransportEvent, error) {
	if w.errAdapters.OnDial != nil {
		if adapted := w.errAdapters.OnDial(conn, resp, err); adapted != nil {
			err = adapted
		}
	}

	// 1. Check HTTP errors first
	if resp != nil {
		var msg string
		if resp.Body != nil {
			bts, readErr := io.ReadAll(resp.Body)
			if readErr == nil {
				msg = string(bts)
			}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return closeEvent(false, websocket.CloseAbnormalClosure, msg), errors.Wrap(ErrRateLimit, msg)
		}
		if isRejectionCode(resp.StatusCode) {
			return closeEvent(true, resp.StatusCode, msg),
				errors.Wrapf(ErrCannotConnect, "handshake refused with status %d", resp.StatusCode)
		}
	}

	// 2. Network errors
	return closeEvent(false, websocket.CloseAbnormalClosure, ""),
		WrapErrorUnrecoverableConnection(errors.Wrap(ErrCannotConnect, err.Error()), w.params.URL)
}

// emit forwards an event to the sink unless the close event was already delivered.
func (w *WsConnection) emit(ev TransportEvent) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	if w.finished {
		return
	}
	w.sink(ev)
}

// finish marks the handle closed, releases the socket and delivers the close event once.
func (w *WsConnection) finish(ev TransportEvent) {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.state = ConnClosed
		conn := w.conn
		w.mu.Unlock()

		close(w.closeC)
		if conn != nil {
			_ = conn.Close()
		}

		w.emitMu.Lock()
		defer w.emitMu.Unlock()
		w.finished = true
		w.sink(ev)
	})
}
