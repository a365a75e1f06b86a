// Command relaytail connects to a relay server and prints every inbound frame as a JSON
// line on stdout until interrupted.
//
// Configuration comes from flags, then from the environment (RELAY_USER_TOKEN,
// RELAY_WS_SERVER, RELAY_DEVICE), which may be loaded from a .env file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/sonirico/relayws"
)

type flags struct {
	envFile   string
	server    string
	token     string
	device    string
	keepAlive time.Duration
	backoff   string
	verbose   bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.envFile, "env", ".env", "dotenv file to load, ignored when missing")
	flag.StringVar(&f.server, "server", "", "primary relay server URI (default $"+relayws.EnvWsServer+")")
	flag.StringVar(&f.token, "token", "", "user token (default $"+relayws.EnvUserToken+")")
	flag.StringVar(&f.device, "device", "", "device label (default $"+relayws.EnvDevice+" or \"custom\")")
	flag.DurationVar(&f.keepAlive, "keepalive", 0, "websocket ping interval, 0 disables it")
	flag.StringVar(&f.backoff, "backoff", "step", "reconnect backoff: step or exponential")
	flag.BoolVar(&f.verbose, "v", false, "debug logging")
	flag.Parse()
	return f
}

func main() {
	os.Exit(run(parseFlags()))
}

// run returns the process exit code: 0 on signal, 1 on setup errors, 2 when the relay
// rejected the session.
func run(f flags) int {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if f.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := godotenv.Load(f.envFile); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warnf("cannot load %s", f.envFile)
	}

	out := json.NewEncoder(os.Stdout)
	rejected := make(chan relayws.Rejection, 1)

	opts := []relayws.Option{relayws.WithLogger(relayws.NewLogrusLogger(logger))}
	if f.keepAlive > 0 {
		opts = append(opts, relayws.WithKeepAlive(f.keepAlive, nil))
	}
	switch f.backoff {
	case "step":
	case "exponential":
		opts = append(opts, relayws.WithBackoff(relayws.ExponentialBackoffSeconds))
	default:
		logger.Errorf("unknown backoff %q, want step or exponential", f.backoff)
		return 1
	}

	manager, err := relayws.New(relayws.Config{
		UserToken: f.token,
		WsServer:  f.server,
		Device:    f.device,
		OnMessage: func(payload any) {
			if r, ok := payload.(relayws.Rejection); ok {
				select {
				case rejected <- r:
				default:
				}
				return
			}
			if err := out.Encode(payload); err != nil {
				logger.WithError(err).Error("cannot write frame")
			}
		},
	}, opts...)
	if err != nil {
		logger.WithError(err).Error("invalid configuration")
		return 1
	}
	defer manager.Close()

	manager.On(relayws.EventRedirect, func(relayws.EventType) {
		server := manager.CurrentServer()
		logger.WithField("server", server.String()).Info("redirected")
	})

	if err := manager.Connect(); err != nil {
		logger.WithError(err).Error("cannot connect")
		return 1
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
		return 0
	case r := <-rejected:
		fmt.Fprintln(os.Stderr, r.Error())
		return 2
	}
}
