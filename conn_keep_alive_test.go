package relayws

import (
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeepAliveConnection_WritesWhileOpen(t *testing.T) {
	tr := &fakeTransport{}
	rec := &recordingLogger{}
	factory := NewKeepAliveConnectionFactory(
		NewFuncLogger(rec.msgLog, rec.errLog, nil),
		tr.factory,
		5*time.Millisecond,
		NewKeepAliveMessageFactory(DataMessage, func() []byte { return []byte(`{"e":"hb"}`) }),
	)

	log := &eventLog{}
	conn := factory(OpenConnectionParams{ID: "k1"}, log.sink)
	fc := tr.last()
	require.NotNil(t, fc)
	assert.Equal(t, "k1", fc.params.ID)

	fc.open()
	require.Eventually(t, func() bool { return len(fc.written()) >= 2 }, waitFor, tick)
	assert.Equal(t, `{"e":"hb"}`, fc.written()[0])

	fc.closeDirty()

	assert.Equal(t, ConnClosed, conn.State())
	assert.Equal(t, []TransportEventKind{TransportOpen, TransportClose}, log.kinds())
}

func TestKeepAliveConnection_DefaultsToPing(t *testing.T) {
	tr := &fakeTransport{}
	factory := NewKeepAliveConnectionFactory(
		NewFuncLogger(func(string) {}, func(string) {}, nil),
		tr.factory,
		5*time.Millisecond,
		nil,
	)

	factory(OpenConnectionParams{}, func(TransportEvent) {})
	fc := tr.last()
	fc.open()
	defer fc.closeDirty()

	require.Eventually(t, func() bool { return len(fc.sent()) > 0 }, waitFor, tick)
	assert.True(t, fc.sent()[0].Type().IsPing())
}

func TestKeepAliveConnection_IdleBeforeOpen(t *testing.T) {
	tr := &fakeTransport{}
	factory := NewKeepAliveConnectionFactory(
		NewFuncLogger(func(string) {}, func(string) {}, nil),
		tr.factory,
		time.Millisecond,
		nil,
	)

	factory(OpenConnectionParams{}, func(TransportEvent) {})
	fc := tr.last()

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, fc.sent())

	fc.closeDirty()
}

func TestManager_LiveKeepAlive(t *testing.T) {
	frames := make(chan string, 8)
	srv, _ := newRelayServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case frames <- string(data):
			default:
			}
		}
	})

	heartbeat := NewKeepAliveMessageFactory(DataMessage, func() []byte { return []byte(`{"e":"hb"}`) })
	m, _ := newLiveManager(t, wsURL(srv), nil, WithKeepAlive(10*time.Millisecond, heartbeat))

	require.NoError(t, m.Connect())

	assert.Equal(t, `{"e":"auth","userToken":"tok","device":"custom"}`, receive(t, frames))
	assert.Equal(t, `{"e":"hb"}`, receive(t, frames))
}
