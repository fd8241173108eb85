// Command drcd runs the Dithers Relay Chat server.
//
// Every message a client sends is relayed to all other connected clients:
//
//	drcd --port 6969 -v
//
// Bind failures exit with status 1.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/luciancaetano/drc/internal/logging"
	"github.com/luciancaetano/drc/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}
	if opts.version {
		fmt.Fprintf(stdout, "drcd %s\n", Version)
		return 0
	}

	logger := logging.New(stderr, opts.verbosity)

	srv, err := server.New(opts.serverConfig(logger))
	if err != nil {
		logger.WithError(err).Error("Invalid configuration")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start relay")
		return 1
	}

	<-ctx.Done()
	logger.Info("Got stop signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Unclean shutdown")
	}
	return 0
}
