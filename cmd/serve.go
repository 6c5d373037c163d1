package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/layout-annotator/internal/handlers"
	"github.com/lehigh-university-libraries/layout-annotator/internal/utils"
)

func newServeCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start web server for the annotation editor",
		Long: `Starts the annotation editor API on the configured port.

Pages are discovered under data_dir; uploads are written to upload_dir and the
front end is served from static_dir.`,
		Example: `  # Start server on the configured port (7090 by default)
  annotator serve

  # Start server on custom port
  annotator serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if port != "" {
				cfg.Port = port
			}
			if err := utils.EnsureDir(cfg.UploadDir); err != nil {
				return err
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			handler := handlers.New(cfg, store)

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Annotator interface available", "addr", addr, "url", "http://localhost"+addr, "data_dir", cfg.DataDir)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides config)")

	return cmd
}
