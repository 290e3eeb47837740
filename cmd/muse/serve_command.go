package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"muse/internal/api"
	"muse/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bindFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the page API on the configured listen address",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger()
			if err != nil {
				return err
			}

			// One serving process per data dir.
			lock := flock.New(cfg.LockPath())
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire instance lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another muse instance is already serving (lock: %s)", cfg.LockPath())
			}
			defer lock.Unlock()

			components, err := ctx.buildSession(logger)
			if err != nil {
				return err
			}
			defer components.Close()

			bind := bindFlag
			if bind == "" {
				bind = cfg.Paths.APIBind
			}
			listener, err := net.Listen("tcp", bind)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", bind, err)
			}

			server := &http.Server{
				Handler:           api.NewServer(components.sessions, components.store, components.narrator, logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("api server listening",
				logging.String(logging.FieldEventType, "api_listen"),
				logging.String("bind", listener.Addr().String()))
			fmt.Fprintf(cmd.OutOrStdout(), "serving on http://%s\n", listener.Addr())

			group, groupCtx := errgroup.WithContext(runCtx)
			group.Go(func() error {
				if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			group.Go(func() error {
				<-groupCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})

			if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("api server stopped",
				logging.String(logging.FieldEventType, "api_stopped"))
			return nil
		},
	}

	cmd.Flags().StringVar(&bindFlag, "bind", "", "Listen address (defaults to paths.api_bind)")
	return cmd
}
