package relayws

import (
	"net/http"
	"os"
	"time"

	"github.com/fasthttp/websocket"
)

const (
	// DefaultDevice is the identity label sent when none is configured.
	DefaultDevice = "custom"

	// DefaultRejectionDelay is how long a rejection waits before reaching the message
	// handler, leaving the caller time to settle any in-flight state transition.
	DefaultRejectionDelay = 3 * time.Second

	EnvUserToken = "RELAY_USER_TOKEN"
	EnvWsServer  = "RELAY_WS_SERVER"
	EnvDevice    = "RELAY_DEVICE"
)

// Config holds the caller facing configuration of a Manager.
type Config struct {
	// UserToken is the opaque credential sent in the auth frame. Connect refuses to run
	// without it. Fallback: RELAY_USER_TOKEN.
	UserToken string

	// WsServer is the primary server URI. Fallback: RELAY_WS_SERVER.
	WsServer string

	// Device is the client identity label. Fallback: RELAY_DEVICE, then "custom".
	Device string

	// OnMessage receives inbound frames and rejections. May be nil.
	OnMessage MessageHandler

	// MsgLog and ErrLog receive informational and error log lines. When both are nil
	// the manager logs through logrus.
	MsgLog LogFunc
	ErrLog LogFunc
}

// resolveConfig fills empty fields from environment variables and defaults.
func resolveConfig(cfg Config) Config {
	if cfg.UserToken == "" {
		cfg.UserToken = os.Getenv(EnvUserToken)
	}
	if cfg.WsServer == "" {
		cfg.WsServer = os.Getenv(EnvWsServer)
	}
	if cfg.Device == "" {
		cfg.Device = os.Getenv(EnvDevice)
	}
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}
	return cfg
}

// Option configures the collaborators of a Manager.
type Option func(*options)

type options struct {
	logger            Logger
	connectionFactory ConnectionFactory
	dialer            *websocket.Dialer
	errorAdapters     ErrorAdapters
	header            http.Header
	scheduler         Scheduler
	backoff           BackoffCalculator
	rejectionDelay    time.Duration
	keepAliveInterval time.Duration
	keepAliveMessage  KeepAliveMessageFactory
}

func defaultOptions() options {
	return options{
		scheduler:      RealScheduler,
		backoff:        StepBackoff,
		rejectionDelay: DefaultRejectionDelay,
		errorAdapters: ErrorAdapters{
			OnClose: NormalizeRelayCloseCode,
		},
	}
}

// WithLogger sets the logger. It takes precedence over Config.MsgLog and Config.ErrLog.
func WithLogger(l Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithConnectionFactory replaces the fasthttp/websocket transport.
func WithConnectionFactory(f ConnectionFactory) Option {
	return func(o *options) {
		o.connectionFactory = f
	}
}

// WithDialer sets the dialer of the default transport.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithErrorAdapters sets the dial and close adapters of the default transport.
func WithErrorAdapters(a ErrorAdapters) Option {
	return func(o *options) {
		o.errorAdapters = a
	}
}

// WithHeader adds headers to every upgrade request.
func WithHeader(h http.Header) Option {
	return func(o *options) {
		o.header = h.Clone()
	}
}

// WithScheduler replaces the timer source used for reconnects and rejections.
func WithScheduler(s Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithBackoff replaces StepBackoff.
func WithBackoff(b BackoffCalculator) Option {
	return func(o *options) {
		o.backoff = b
	}
}

// WithRejectionDelay overrides DefaultRejectionDelay.
func WithRejectionDelay(d time.Duration) Option {
	return func(o *options) {
		o.rejectionDelay = d
	}
}

// WithKeepAlive makes every connection write a keep-alive frame each interval.
// A nil factory sends websocket pings.
func WithKeepAlive(interval time.Duration, msgFactory KeepAliveMessageFactory) Option {
	return func(o *options) {
		o.keepAliveInterval = interval
		o.keepAliveMessage = msgFactory
	}
}
