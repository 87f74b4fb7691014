// Command minidis-server runs a standalone RESP2 key/value server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/minidis/minidis/internal/config"
	"github.com/minidis/minidis/internal/logging"
	"github.com/minidis/minidis/internal/server"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		os.Stderr.WriteString("minidis: invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logging.SetOptions(logging.Options{Level: cfg.LogLevel, Filename: cfg.LogFile})
	log := logging.New(logging.Options{Level: cfg.LogLevel, Filename: cfg.LogFile})

	srv := server.New(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(srv.Start)

	// gctx ends on either a shutdown signal or srv.Start returning early
	// (e.g. a socket bind failure), whichever comes first.
	<-gctx.Done()
	log.Infof("shutting down")

	// Stop is a no-op error ("server not running") when Start already
	// returned on its own; group.Wait below is what surfaces that real
	// cause, so it takes precedence.
	stopErr := srv.Stop()
	startErr := group.Wait()

	var shutdownErr error
	if startErr != nil {
		shutdownErr = multierr.Append(shutdownErr, startErr)
	} else if stopErr != nil {
		shutdownErr = multierr.Append(shutdownErr, stopErr)
	}

	if shutdownErr != nil {
		log.Errorf("shutdown error: %v", shutdownErr)
		os.Exit(1)
	}
}
