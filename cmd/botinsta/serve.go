package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"botinsta/internal/server"
	"botinsta/pkg/auth"
	"botinsta/pkg/bot"
	"botinsta/pkg/config"
	"botinsta/pkg/hashtags"
	"botinsta/pkg/instagram"
	"botinsta/pkg/logger"
	"botinsta/pkg/state"
)

var serveAddr string

// serveCmd runs the dashboard server and resumes persisted jobs
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard server",
	Long: `Run the web dashboard and job engine.

Persisted jobs resume automatically, so restarting the process does not
lose running automation. Stop jobs through the dashboard or the API to
remove them permanently.`,
	Example: `  # Serve on the default address
  botinsta serve

  # Serve on a custom port
  botinsta serve --addr :9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default :8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(map[string]interface{}{
		"addr": serveAddr,
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.GetLogger()

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	records, err := state.NewStore(cfg.Server.StateFile)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}

	tags, err := hashtags.NewStore(cfg.Server.HashtagFile)
	if err != nil {
		return fmt.Errorf("failed to open hashtag store: %w", err)
	}

	client := instagram.NewClient(cfg.Instagram, manager, log)
	hub := server.NewHub(cfg.Server.EventMinInterval, log)
	registry := bot.NewRegistry(client, hub, records, pacingFromConfig(cfg.Pacing), log)

	if err := registry.Resume(); err != nil {
		log.WithError(err).Warn("failed to resume persisted jobs")
	}

	srv := server.New(cfg.Server, registry, tags, manager, hub, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown incomplete")
	}
	// Keeps persisted records so jobs resume on the next boot
	if err := registry.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("some jobs did not stop in time")
	}

	return nil
}

// pacingFromConfig maps configured pacing onto the job engine's type
func pacingFromConfig(p config.PacingConfig) bot.Pacing {
	return bot.Pacing{
		TargetLikes:      p.TargetLikes,
		Window:           p.Window,
		LikeDelay:        p.LikeDelay,
		PollInterval:     p.PollInterval,
		RateLimitPause:   p.RateLimitPause,
		MaxProbeAttempts: p.MaxProbeAttempts,
	}
}
