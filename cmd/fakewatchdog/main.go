// Package main runs a local watchdog endpoint for manual testing of the
// client. It accepts connections bearing the configured token and logs every
// keepalive ping it receives.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/codeGROOVE-dev/watchdog/pkg/logger"
	"github.com/codeGROOVE-dev/watchdog/pkg/watchdogtest"
)

func run() error {
	var (
		addr   = flag.String("addr", "localhost:8080", "listen address")
		token  = flag.String("token", os.Getenv("WATCHDOG_SERVER_TOKEN"), "bearer token clients must present")
		refuse = flag.Int("refuse", 0, "refuse the first N connection attempts with 503")
	)
	flag.Parse()

	if *token == "" {
		return errors.New("token required: -token or WATCHDOG_SERVER_TOKEN")
	}

	log := logger.New(os.Stderr, slog.LevelDebug)

	srv, err := watchdogtest.Listen(*addr, *token,
		watchdogtest.WithLogger(log),
		watchdogtest.WithScript(func(n int) watchdogtest.Behavior {
			if n <= *refuse {
				return watchdogtest.Behavior{Reject: http.StatusServiceUnavailable}
			}
			return watchdogtest.Behavior{}
		}),
	)
	if err != nil {
		return err
	}
	defer srv.Close()

	log.Info("fake watchdog listening", "url", srv.URL())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down", "attempts", srv.Attempts(), "upgrades", srv.Upgrades(), "pings", srv.Pings())
			return nil
		case n := <-srv.Pinged():
			log.Info("ping received", "total", n)
		}
	}
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
