package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"bustrack/internal/buildinfo"
	"bustrack/internal/config"
	"bustrack/internal/hub"
	"bustrack/internal/metrics"
	"bustrack/internal/rest"
	"bustrack/internal/route"
	"bustrack/internal/trip"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	log.Info().Fields(map[string]any{"build": buildinfo.Info()}).Msg("tracker starting")

	metrics.RegisterDefault()
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn := hub.NewConn(hub.Options{
		Endpoint:             cfg.HubURL,
		Token:                cfg.Token,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		MonitorInterval:      cfg.MonitorInterval,
		LocationInterval:     cfg.LocationInterval,
		Log:                  log,
	})
	restClient := rest.NewClient(cfg.APIBaseURL, cfg.Token, cfg.RequestTimeout, log)
	resolver := route.NewResolver(route.NewOSRMProvider(cfg.RoutingURL, cfg.RequestTimeout), log)
	coord := trip.NewCoordinator(restClient, conn, resolver, cfg.RouteDebounce, log)

	tripID := os.Getenv("TRIP_ID")
	if tripID == "" {
		log.Fatal().Msg("TRIP_ID is required")
	}
	if !hub.ValidTripID(tripID) {
		log.Fatal().Str("trip", tripID).Msg("TRIP_ID is not a canonical guid")
	}

	if err := coord.Focus(ctx, tripID); err != nil {
		log.Fatal().Err(err).Msg("load trip")
	}
	if err := coord.Track(ctx); err != nil {
		// keep the REST snapshot; connectivity may come back
		log.Warn().Err(err).Msg("tracking unavailable, running from snapshot")
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	coord.Close()
	conn.Stop()
}
