package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aegisd/aegis/internal/gateway"
)

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the Aegis gate server",
		RunE:  runServer,
	}

	return cmd
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, workspacePath, err := loadConfigAndWorkspace()
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telegram notifier: %w", err)
	}

	components, err := buildGateComponents(cfg, workspacePath, notifier)
	if err != nil {
		return err
	}
	defer components.close()

	if components.redis != nil {
		if err := components.redis.Ping(ctx); err != nil {
			slog.Warn("principal decision store unreachable, approvals fall back to conversation scope", "addr", cfg.Redis.Addr, "error", err)
		}
	}

	errCh := make(chan error, 2)

	gatewayServer := gateway.New(cfg.Gateway, components.gate, components.suspensions)
	go func() {
		if err := gatewayServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("gateway server failed: %w", err)
		}
	}()

	// Periodically expire overdue suspensions so their conversations can
	// admit new batches again.
	sweepInterval := time.Duration(cfg.Gate.SweepInterval) * time.Minute
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				expired, err := components.gate.ExpireSweep(ctx)
				if err != nil {
					slog.Warn("suspension expiry sweep failed", "error", err)
					continue
				}
				if len(expired) > 0 {
					slog.Info("expired overdue suspensions", "count", len(expired))
				}
			}
		}
	}()

	fmt.Printf("Aegis gate running. Gateway: http://%s\nPress Ctrl+C to stop.\n", gatewayServer.Addr())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		slog.Error("server component failed", "error", runErr)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	slog.Info("shutting down")
	if err := gatewayServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("gateway shutdown failed", "error", err)
	}

	return runErr
}
