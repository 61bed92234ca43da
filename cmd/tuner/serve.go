package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/tuner/internal/api"
	"github.com/MikeSquared-Agency/tuner/internal/config"
	"github.com/MikeSquared-Agency/tuner/internal/events"
	"github.com/MikeSquared-Agency/tuner/internal/finetune"
	"github.com/MikeSquared-Agency/tuner/internal/metrics"
	"github.com/MikeSquared-Agency/tuner/internal/session"
	"github.com/MikeSquared-Agency/tuner/web"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the fine-tuning web UI and JSON API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 0, "listen port (default $TUNER_PORT or 8760)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	setupLogging(cfg.LogLevel, os.Stdout)

	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Port = port
	}
	if u, _ := cmd.Flags().GetString("base-url"); u != "" {
		cfg.BaseURL = u
	}
	if key, _ := cmd.Flags().GetString("api-key"); strings.TrimSpace(key) != "" {
		cfg.DefaultAPIKey = key
	}
	cfg.DefaultAPIKey = strings.TrimSpace(cfg.DefaultAPIKey)
	if cfg.SessionSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return fmt.Errorf("generate session secret: %w", err)
		}
		cfg.SessionSecret = secret
		slog.Warn("TUNER_SESSION_SECRET not set, sessions will not survive a restart")
	}

	slog.Info("tuner starting", "port", cfg.Port, "base_url", cfg.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var pub events.Publisher = events.Nop{}
	if cfg.NatsURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		nc, err := events.NewClient(connectCtx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		cancel()
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		pub = nc
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, lifecycle events disabled")
	}
	defer pub.Close()

	client := finetune.NewClient(cfg.BaseURL,
		finetune.WithTimeouts(cfg.RequestTimeout, cfg.UploadTimeout),
		finetune.WithObserver(m),
		finetune.WithLogger(slog.Default()),
	)

	sessions := session.NewStore(finetune.Credential(cfg.DefaultAPIKey))
	go sessions.RunSweeper(ctx, cfg.SessionIdle, time.Minute, slog.Default())

	srv := api.NewServer(api.Options{
		Port:           cfg.Port,
		Client:         client,
		Sessions:       sessions,
		SessionSecret:  cfg.SessionSecret,
		Events:         pub,
		Metrics:        m,
		Assets:         web.Assets(),
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         slog.Default(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	slog.Info("tuner ready", "url", fmt.Sprintf("http://localhost:%d", cfg.Port))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("tuner stopped")
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
