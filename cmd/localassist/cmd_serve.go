package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"localassist/pkg/httpapi"
	"localassist/pkg/prompts"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: "Serve the assistant and prompt management endpoints until SIGINT or SIGTERM.\n" +
			"If seed_file is configured, its prompts are added to the store while the server starts.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return a.serve(ctx)
		},
	}
}

// serve runs the HTTP server until ctx ends. A configured seed file is applied alongside it;
// a seeding failure stops the server and is returned.
func (a *app) serve(ctx context.Context) error {
	server := httpapi.NewServer(a.loop, a.verifier, a.store, httpapi.Options{
		Mode:        string(a.cfg.Mode),
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Registry:    a.registry,
	})
	addr := net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port))
	shutdownTimeout := time.Duration(a.cfg.Server.ShutdownTimeoutSec) * time.Second

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, addr, shutdownTimeout)
	})
	if a.cfg.SeedFile != "" {
		g.Go(func() error {
			return a.seed(gctx, a.cfg.SeedFile)
		})
	}

	if err := g.Wait(); err != nil {
		return err //nolint:wrapcheck // server and seed errors already carry context
	}
	a.logger.Info("Server stopped")
	return nil
}

func (a *app) seed(ctx context.Context, path string) error {
	seed, err := prompts.LoadSeedFile(path)
	if err != nil {
		return err //nolint:wrapcheck // already names the file
	}
	created, err := seed.Apply(ctx, a.store)
	if err != nil {
		return fmt.Errorf("failed to seed prompts from %s: %w", path, err)
	}
	a.logger.Info("Seeded %d prompts from %s", created, path)
	return nil
}
