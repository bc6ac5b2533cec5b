package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/basicio/internal/config"
	"github.com/roach88/basicio/internal/engine"
	"github.com/roach88/basicio/internal/httpapi"
	"github.com/roach88/basicio/internal/ir"
)

// shutdownTimeout bounds how long in-flight imports may run after a signal.
const shutdownTimeout = 30 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr        string
	ProfilePath string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP import API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address; default from BIO_HTTP_ADDR")
	cmd.Flags().StringVar(&opts.ProfilePath, "profile", "", "profile file applied to every import and export")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	settings := opts.Settings
	addr := settings.HTTPAddr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	var profile *ir.Profile
	if opts.ProfilePath != "" {
		p, err := config.LoadProfile(opts.ProfilePath)
		if err != nil {
			return WrapExitError(ExitCommandError, "load profile", err)
		}
		profile = p
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, settings)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer b.Close()

	eng := engine.New(b.repo, engineOptions(settings, b.runs)...)
	srv := httpapi.NewServer(eng, engine.NewExporter(b.repo), httpapi.Options{
		Defaults:     settings.BatchConfig(),
		Profile:      profile,
		TreeField:    settings.TreeField,
		MaxBodyBytes: settings.MaxBodyBytes,
		Runs:         b.runs,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return WrapExitError(ExitCommandError, "http server", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitCommandError, "shutdown", err)
	}
	select {
	case err := <-errCh:
		return err
	case <-shutdownCtx.Done():
		return nil
	}
}
