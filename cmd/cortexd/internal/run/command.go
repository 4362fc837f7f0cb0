// Package run implements `cortexd run`: it builds the full app (substrate,
// launcher, role shims, orchestrator, schedulers, HTTP/WebSocket edge) and
// blocks until an interrupt or SIGTERM triggers a graceful stop, per
// spec §4.9's "graceful stop" note.
package run

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/cortexd/cmd/cortexd/internal"
	"github.com/sipeed/cortexd/pkg/app"
	"github.com/sipeed/cortexd/pkg/logger"
)

func NewRunCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the cortexd orchestrator loop and HTTP edge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCmd(configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config.json (default: "+internal.DefaultConfigPath()+")")

	return cmd
}

func runCmd(configPath string) error {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := app.Build(cfg)
	if err != nil {
		return fmt.Errorf("building app: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: a.Server,
	}

	go func() {
		logger.InfoCF("cmd.run", "HTTP edge listening", map[string]any{"port": cfg.Port})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("cmd.run", "HTTP server failed", err, nil)
		}
	}()

	loopDone := make(chan error, 1)
	go func() { loopDone <- a.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.InfoCF("cmd.run", "shutdown signal received", nil)
		if err := a.Orch.Stop(); err != nil {
			logger.WarnCF("cmd.run", "orchestrator stop transition failed", map[string]any{"error": err.Error()})
		}
		<-loopDone
	case err := <-loopDone:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
