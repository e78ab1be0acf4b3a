// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ulisao/NuevoAnden/internal/api/auth"
	"github.com/ulisao/NuevoAnden/internal/authz"
	"github.com/ulisao/NuevoAnden/internal/bookings"
	"github.com/ulisao/NuevoAnden/internal/config"
	"github.com/ulisao/NuevoAnden/internal/db"
	"github.com/ulisao/NuevoAnden/internal/email"
	"github.com/ulisao/NuevoAnden/internal/payments"
	"github.com/ulisao/NuevoAnden/internal/ratelimit"
	"github.com/ulisao/NuevoAnden/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func configPath() string {
	if path, ok := os.LookupEnv("CONFIG_PATH"); ok {
		return path
	}
	return "config/config.yaml"
}

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.App.Environment)

	database, err := db.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	auth.InitClerk(cfg.Auth.ClerkSecretKey)

	policy := authz.NewPolicy(cfg.Admin.Email)
	service := bookings.NewService(database, policy, cfg)
	gateway := payments.NewClient(cfg.Payments)
	notifier := email.NewBookingNotifier(newSender(cfg), cfg.App.Name)

	// Background sweep releasing slots held by abandoned checkouts.
	sched, err := scheduler.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	if err := scheduler.RegisterPendingSweep(sched, database, cfg.PendingTTL()); err != nil {
		log.Fatal().Err(err).Msg("Failed to register pending sweep")
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Error().Err(err).Msg("Scheduler shutdown failed")
		}
	}()

	server := newServer(cfg, serverDeps{
		service:  service,
		policy:   policy,
		gateway:  gateway,
		notifier: notifier,
		limiter:  ratelimit.New(nil),
	})

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Run server
	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Wait for interrupt signal
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}

// newSender builds the SES sender, or nil when email is not configured.
func newSender(cfg *config.Config) email.Sender {
	if cfg.Email.AccessKeyID == "" || cfg.Email.SecretAccessKey == "" || cfg.Email.Region == "" || cfg.Email.Sender == "" {
		log.Warn().Msg("Email delivery not configured; booking emails disabled")
		return nil
	}
	sender, err := email.NewSESClient(cfg.Email.AccessKeyID, cfg.Email.SecretAccessKey, cfg.Email.Region, cfg.Email.Sender)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize SES client; booking emails disabled")
		return nil
	}
	return sender
}
