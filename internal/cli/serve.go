package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/engram-memory/engram/internal/config"
	"github.com/engram-memory/engram/internal/daemon"
	"github.com/engram-memory/engram/internal/httpapi"
)

func newServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API in the foreground",
		Long: `Serve the Engram HTTP/JSON API until interrupted.

Use 'engram start' to run this as a background daemon instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if host == "" {
				host = a.cfg.HTTPHost
			}
			if port == 0 {
				port = a.cfg.HTTPPort
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Feature flags in the config file reload live; env still wins.
			if err := a.cfg.Flags().Watch(ctx, config.FilePath(), a.logger); err != nil {
				a.logger.Warn("config watch unavailable", "error", err)
			}

			started := time.Now()
			router := httpapi.NewRouter(a.svc, a.hyd, a.logger, func() float64 {
				return time.Since(started).Seconds()
			})

			srv := &http.Server{
				Addr:         fmt.Sprintf("%s:%d", host, port),
				Handler:      router,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()
			a.logger.Info("engram serving", "addr", srv.Addr, "db", a.cfg.DBPath, "version", version)

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve: %w", err)
				}
			case <-ctx.Done():
				a.logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "bind host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}

func supervisor() *daemon.Supervisor {
	cfg := config.Load()
	return &daemon.Supervisor{PIDPath: cfg.PIDPath(), LogPath: cfg.LogPath()}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP API as a background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := supervisor().Start("serve")
			if err != nil {
				return err
			}
			fmt.Printf("Engram daemon started (pid %d).\n", pid)
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := supervisor().Stop(); err != nil {
				return err
			}
			fmt.Println("Engram daemon stopped.")
			return nil
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := supervisor().Restart("serve")
			if err != nil {
				return err
			}
			fmt.Printf("Engram daemon restarted (pid %d).\n", pid)
			return nil
		},
	}
}
