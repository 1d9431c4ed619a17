// checkin-station runs the venue-side scan workflow. Decoded QR payloads are
// read from stdin, one per line (for example piped from `zbarcam --raw`), and
// can also be submitted over the local HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"tixie.local/checkin/broker"
	"tixie.local/checkin/config"
	"tixie.local/checkin/internal/api"
	"tixie.local/checkin/internal/client"
	"tixie.local/checkin/internal/clock"
	"tixie.local/checkin/internal/db"
	"tixie.local/checkin/internal/db/repos"
	"tixie.local/checkin/internal/i18n"
	"tixie.local/checkin/internal/scan"
	"tixie.local/checkin/internal/session"
)

func main() {
	if err := run(); err != nil {
		slog.Error("checkin-station failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flagSet := pflag.NewFlagSet("checkin-station", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "backend base URL (API_URL)")
	flagSet.StringVar(&cfg.StationAddr, "addr", cfg.StationAddr, "station HTTP listen address (STATION_ADDR)")
	flagSet.StringVar(&cfg.Locale, "locale", cfg.Locale, "notice and Accept-Language locale (LOCALE)")
	flagSet.DurationVar(&cfg.ScanCooldown, "cooldown", cfg.ScanCooldown, "minimum gap between scans (SCAN_COOLDOWN)")
	noStdin := flagSet.Bool("no-stdin", false, "do not read scan payloads from stdin")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := session.New(session.NewFileStore(cfg.TokenFile), session.WithLogger(logger))
	if err := sess.Hydrate(); err != nil {
		logger.Warn("stored token could not be decoded, continuing signed out", "error", err)
	}
	if !sess.IsAuthenticated() {
		logger.Warn("no session token, backend calls will be rejected until `ticketctl login` is run")
	}

	backend := client.New(cfg.APIURL,
		client.WithCredentials(sess),
		client.WithLocale(cfg.Locale),
		client.WithTimeout(cfg.HTTPTimeout),
		client.WithLogger(logger),
	)

	journalDB, err := db.NewDB(cfg.JournalDBType, cfg.JournalDBURL)
	if err != nil {
		return err
	}
	defer journalDB.Close()
	journal := repos.NewScanRepository(journalDB)

	printer := i18n.NewPrinter(i18n.Match(cfg.Locale))
	sinks := []scan.Sink{
		scan.LogSink(logger, printer),
		scan.JournalSink(journal, cfg.StationID),
	}

	if cfg.RabbitMQURL != "" {
		b, err := broker.NewBroker(cfg.RabbitMQURL, cfg.BrokerExchange, "topic", logger)
		if err != nil {
			return fmt.Errorf("failed to connect to broker: %w", err)
		}
		defer b.Close()
		sinks = append(sinks, scan.PublisherSink(b, cfg.StationID))
	} else {
		logger.Info("RABBITMQ_URL not set, scan events will not be published")
	}

	validator := scan.NewValidator(backend, clock.NewSystem(),
		scan.WithCooldown(cfg.ScanCooldown),
		scan.WithSinks(sinks...),
		scan.WithLogger(logger),
	)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	api.SetupRoutes(r, api.NewHandler(validator, journal, printer, cfg.StationID, logger))

	srv := &http.Server{
		Addr:              cfg.StationAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("station listening", "addr", cfg.StationAddr, "station_id", cfg.StationID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if !*noStdin {
		go func() {
			if err := validator.Feed(ctx, os.Stdin, nil); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scan feed stopped", "error", err)
			}
			logger.Info("scan feed closed")
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
