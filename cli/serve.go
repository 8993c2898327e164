package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mediaforge/logger"
	"mediaforge/routes"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the transcode workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("Starting mediaforge server initialization")
			a, err := openApp(runCtx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			publicKey, err := tokenPublicKey(cfg)
			if err != nil {
				return err
			}

			go a.cleanupRoutine(runCtx)

			srv := &http.Server{
				Addr: cfg.Server.Addr,
				Handler: routes.NewRouter(routes.Deps{
					Jobs:           a.jobs,
					Media:          a.media,
					Failures:       a.failures,
					Selector:       a.selector,
					Publisher:      a.publisher,
					TokenSecret:    cfg.Server.TokenSecret,
					TokenPublicKey: publicKey,
					TokenIssuer:    cfg.Server.TokenIssuer,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}
			if cfg.Server.TokenSecret == "" && publicKey == nil {
				logger.Warn("server.token_secret and server.token_public_key are empty: mutating routes are unauthenticated")
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Infof("mediaforge %s listening on %s", routes.Version(), cfg.Server.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-runCtx.Done():
				logger.Info("Shutdown requested")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Errorf("HTTP shutdown: %v", err)
			}
			if err := a.pool.Shutdown(shutdownCtx); err != nil {
				logger.Errorf("Worker shutdown: %v", err)
			}
			logger.Info("mediaforge stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
