package relayws

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// fakeConn is a Connection driven by the test through emit.
type fakeConn struct {
	params OpenConnectionParams
	sink   EventSink

	mu         sync.Mutex
	state      ConnState
	writes     []Message
	closeCalls int
	opened     chan struct{}
	openOnce   sync.Once
}

func (c *fakeConn) Open(context.Context) error {
	c.openOnce.Do(func() { close(c.opened) })
	return nil
}

func (c *fakeConn) Write(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != ConnOpen {
		return ErrNotOpen
	}
	c.writes = append(c.writes, m)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeCalls++
	if c.state == ConnOpen || c.state == ConnConnecting {
		c.state = ConnClosing
	}
}

func (c *fakeConn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// emit moves the handle to the phase implied by the event and reports it.
func (c *fakeConn) emit(ev TransportEvent) {
	switch ev.Kind {
	case TransportOpen:
		c.setState(ConnOpen)
	case TransportClose:
		c.setState(ConnClosed)
	}
	c.sink(ev)
}

func (c *fakeConn) open() { c.emit(openEvent()) }
func (c *fakeConn) closeDirty() { c.emit(closeEvent(false, 1006, "")) }
func (c *fakeConn) closeClean(code int, r string) { c.emit(closeEvent(true, code, r)) }
func (c *fakeConn) receive(data string) { c.emit(messageEvent([]byte(data))) }

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.writes))
	for _, m := range c.writes {
		out = append(out, string(m.Data()))
	}
	return out
}

func (c *fakeConn) sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.writes...)
}

func (c *fakeConn) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// fakeTransport is a ConnectionFactory recording every connection it builds.
type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (t *fakeTransport) factory(params OpenConnectionParams, sink EventSink) Connection {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := &fakeConn{params: params, sink: sink, state: ConnConnecting, opened: make(chan struct{})}
	t.conns = append(t.conns, c)
	return c
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

// fakeTimer is a scheduled call fired by hand.
type fakeTimer struct {
	delay time.Duration
	f     func()

	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &fakeTimer{delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) at(i int) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[i]
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

// fire runs the call even when it was stopped, as a runtime timer racing Stop would.
func (s *fakeScheduler) fire(t *fakeTimer) {
	t.mu.Lock()
	t.fired = true
	t.mu.Unlock()
	t.f()
}

// pending returns the timers neither stopped nor fired.
func (s *fakeScheduler) pending() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*fakeTimer
	for _, t := range s.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
		t.mu.Unlock()
	}
	return out
}

type mockMessageHandler struct {
	mock.Mock
}

func (m *mockMessageHandler) Handle(payload any) {
	m.Called(payload)
}

// recordingLogger collects log lines per stream.
type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
	errs []string
}

func (r *recordingLogger) msgLog(line string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, line)
	r.mu.Unlock()
}

func (r *recordingLogger) errLog(line string) {
	r.mu.Lock()
	r.errs = append(r.errs, line)
	r.mu.Unlock()
}

func (r *recordingLogger) errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errs...)
}

func (r *recordingLogger) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}
