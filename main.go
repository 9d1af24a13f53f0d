// Package main implements watchdog, a client that keeps one authenticated
// WebSocket connection to a watchdog endpoint open for the life of the process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/watchdog/pkg/config"
	"github.com/codeGROOVE-dev/watchdog/pkg/logger"
	"github.com/codeGROOVE-dev/watchdog/pkg/metrics"
	"github.com/codeGROOVE-dev/watchdog/pkg/supervisor"
)

const (
	exitOK      = 0
	exitFailure = 1

	shutdownTimeout = 5 * time.Second
)

type options struct {
	configPath  string
	metricsAddr string
	debug       bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", config.DefaultPath, "path to the TOML configuration file")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics_addr)")
	flag.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, opts, os.Stderr)
	stop()

	if errors.Is(err, supervisor.ErrRetriesExhausted) {
		// Unrecoverable: the connection could not be kept up.
		panic(err)
	}
	os.Exit(exitStatus(err))
}

// exitStatus maps the result of run to a process exit status.
func exitStatus(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return exitOK
	}
	return exitFailure
}

// run loads the configuration and supervises the connection until the
// failure budget is exhausted or ctx is cancelled.
func run(ctx context.Context, opts options, w io.Writer) error {
	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	log := logger.New(w, level)

	cfg, err := config.Load(opts.configPath, log)
	if err != nil {
		log.Error("Failed to load configuration", "path", opts.configPath, "error", err)
		return err
	}
	if !opts.debug {
		log = logger.New(w, cfg.Level())
	}

	if err := cfg.Validate(); err != nil {
		log.Error("Token is empty! Application abort!")
		return err
	}

	m := metrics.New()
	sup, err := supervisor.New(supervisor.Config{
		URL:       cfg.URL,
		Token:     cfg.Token,
		KeepAlive: cfg.KeepAlive(),
		Logger:    log,
		Metrics:   m,
	})
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	log.Info("starting watchdog client",
		"url", cfg.URL,
		"keepalive", cfg.KeepAlive().String(),
		"max_failures", supervisor.MaxFailures,
	)

	g, gctx := errgroup.WithContext(ctx)

	addr := opts.metricsAddr
	if addr == "" {
		addr = cfg.MetricsAddr
	}
	if addr != "" {
		srv := metrics.NewServer(addr, m, log)
		if err := srv.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Stop(shutdownCtx)
		})
	}

	g.Go(func() error {
		return sup.Run(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info("shutdown complete")
	}
	return err
}
