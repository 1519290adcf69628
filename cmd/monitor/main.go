package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tranzymon.opentransit.org/internal/app"
	"tranzymon.opentransit.org/internal/appconf"
	"tranzymon.opentransit.org/internal/arrivals"
	"tranzymon.opentransit.org/internal/clock"
	"tranzymon.opentransit.org/internal/config"
	"tranzymon.opentransit.org/internal/live"
	"tranzymon.opentransit.org/internal/logging"
	"tranzymon.opentransit.org/internal/metrics"
	"tranzymon.opentransit.org/internal/models"
	"tranzymon.opentransit.org/internal/poll"
	"tranzymon.opentransit.org/internal/static"
	"tranzymon.opentransit.org/internal/tranzy"
	"tranzymon.opentransit.org/internal/webui"
)

const shutdownGracePeriod = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", config.DefaultPath, "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg.Environment())
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logging.LogError(logger, "failed to build application", err)
		os.Exit(1)
	}

	for _, coordinator := range application.Coordinators {
		coordinator.Start()
	}

	mux := http.NewServeMux()
	webui.New(application).SetRoutes(mux)
	mux.Handle("GET /metrics", application.Metrics.Handler())

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.LogOperation(logger, "starting_http_server", slog.String("addr", cfg.ListenAddr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logging.LogOperation(logger, "shutdown_signal_received")
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logging.LogError(logger, "http server failed", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "http server shutdown failed", err)
	}
	application.Shutdown()
	logging.LogOperation(logger, "shutdown_complete")
}

func newLogger(env appconf.Environment) *slog.Logger {
	level := slog.LevelInfo
	if env == appconf.Development {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func buildApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.Application, error) {
	m := metrics.NewWithLogger(logger)

	clientOpts := []tranzy.Option{tranzy.WithLogger(logger)}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, tranzy.WithBaseURL(cfg.BaseURL))
	}
	client := tranzy.NewClient(cfg.APIKey, cfg.AgencyID, clientOpts...)

	// A bad key or agency pairing is a configuration problem, not
	// something retries will fix, so fail fast. Transient startup errors
	// just get logged; the poll loops will retry on their own.
	if err := client.VerifyConnection(ctx); err != nil {
		var authErr *tranzy.AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		logging.LogError(logger, "connection check failed, continuing anyway", err)
	}

	// One static cache per agency, shared across every monitored stop.
	cache := static.NewCache(client,
		static.WithTTL(cfg.StaticTTL()),
		static.WithLogger(logger))
	fetcher := live.NewFetcher(client, logger)

	// Preload the tables so misconfigured stop ids surface at startup
	// instead of as permanently empty sensors.
	if snap, err := cache.Tables(ctx); err != nil {
		logging.LogError(logger, "static preload failed, coordinators will retry", err)
	} else {
		for _, stop := range cfg.Stops {
			if _, ok := snap.StopByID(stop.StopID()); !ok {
				logger.Warn("configured stop not present in static data",
					slog.String("stop_id", stop.ID))
			}
		}
	}

	coordinators := make(map[models.ID]*poll.Coordinator, len(cfg.Stops))
	for _, stop := range cfg.Stops {
		calc := arrivals.NewCalculator(
			arrivals.WithVehicleTypes(stop.VehicleTypes),
			arrivals.WithLogger(logger))
		coordinators[stop.StopID()] = poll.New(poll.Options{
			StopID:     stop.StopID(),
			StopName:   stop.Name,
			AgencyID:   cfg.AgencyID,
			Tables:     cache,
			Vehicles:   fetcher,
			Calculator: calc,
			Interval:   stop.PollInterval(),
			Logger:     logger,
			Metrics:    m,
		})
	}

	return &app.Application{
		Config:       cfg,
		Logger:       logger,
		Clock:        clock.RealClock{},
		Metrics:      m,
		StaticCache:  cache,
		Coordinators: coordinators,
	}, nil
}
