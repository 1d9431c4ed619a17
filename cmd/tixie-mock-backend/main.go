// tixie-mock-backend serves the ticketing REST contract from memory, for
// local development of the station and the CLI.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"tixie.local/checkin/internal/mockbackend"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	addr := pflag.String("addr", getEnv("MOCK_ADDR", ":3000"), "listen address")
	publicURL := pflag.String("public-url", getEnv("MOCK_PUBLIC_URL", "http://localhost:5173"), "base URL embedded in ticket QR codes")
	secret := pflag.String("secret", os.Getenv("MOCK_JWT_SECRET"), "HS256 signing key (random when empty)")
	adminEmail := pflag.String("admin-email", getEnv("MOCK_ADMIN_EMAIL", "admin@tixie.local"), "seeded admin account")
	adminPassword := pflag.String("admin-password", getEnv("MOCK_ADMIN_PASSWORD", "admin"), "seeded admin password")
	seedEvent := pflag.Bool("seed-event", false, "create a running event with one ticket")
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	key := []byte(*secret)
	if len(key) == 0 {
		key = []byte(uuid.NewString())
		logger.Warn("MOCK_JWT_SECRET not set, tokens will not survive a restart")
	}

	backend := mockbackend.New(key, mockbackend.WithPublicURL(*publicURL), mockbackend.WithLogger(logger))
	if err := backend.AddUser(*adminEmail, *adminPassword, "Admin", mockbackend.RoleAdmin); err != nil {
		logger.Error("failed to seed admin", "error", err)
		os.Exit(1)
	}
	logger.Info("seeded admin account", "email", *adminEmail)

	if *seedEvent {
		now := time.Now().UTC()
		eventID := backend.AddEvent("Demo night", now.Add(-time.Hour), now.Add(6*time.Hour))
		ticketID, err := backend.AddTicket(eventID)
		if err != nil {
			logger.Error("failed to seed ticket", "error", err)
			os.Exit(1)
		}
		logger.Info("seeded event", "event_id", eventID, "scan_url", backend.ScanURL(ticketID))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: *addr, Handler: backend, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("mock backend listening", "addr", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
