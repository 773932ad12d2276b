package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/equinor/canaryload/internal/canary"
	"github.com/equinor/canaryload/internal/logging"
)

const readHeaderTimeout = 10 * time.Second

type serveOptions struct {
	port       string
	bcryptCost int
	scryptN    int
	logLevel   string
}

func parseServeFlags(args []string, stderr io.Writer) (serveOptions, error) {
	opts := serveOptions{}
	fs := pflag.NewFlagSet("canaryload serve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.port, "port", "", "Port to listen on (env LISTENING_PORT, default "+canary.DefaultPort+")")
	fs.IntVar(&opts.bcryptCost, "bcrypt-cost", canary.DefaultBcryptCost, "bcrypt cost used by /calculatehashesbcrypt")
	fs.IntVar(&opts.scryptN, "scrypt-n", canary.DefaultScryptN, "scrypt N parameter used by /calculatehashesscrypt")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (env LOG_LEVEL)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.port == "" {
		opts.port = strings.TrimSpace(os.Getenv("LISTENING_PORT"))
	}
	if opts.port == "" {
		opts.port = canary.DefaultPort
	}
	return opts, nil
}

// runServe runs the stand-in canary until ctx is cancelled.
func runServe(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseServeFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitConfigError
	}

	logger := logging.New(logging.Options{Level: opts.logLevel, Out: stderr})

	ln, err := net.Listen("tcp", ":"+opts.port)
	if err != nil {
		logger.Error().Err(err).Str("port", opts.port).Msg("unable to listen")
		return exitFailed
	}

	srv := &http.Server{
		Handler: canary.NewHandler(canary.Options{
			BcryptCost: opts.bcryptCost,
			ScryptN:    opts.scryptN,
			Version:    version,
			Logger:     logger,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("canary listening")
	fmt.Fprintf(stdout, "Radix Canary App v %s listening on %s\n", version, ln.Addr())

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server stopped")
			return exitFailed
		}
		return exitOK
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
		return exitFailed
	}
	logger.Info().Msg("canary stopped")
	return exitOK
}
