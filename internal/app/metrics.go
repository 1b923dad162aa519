package app

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"time"

	"github.com/snapcircle/dmsocket/internal/configtypes"
	"github.com/snapcircle/dmsocket/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const metricsShutdownTimeout = 5 * time.Second

func metricsMux(cfg configtypes.Prometheus, gatherer prometheus.Gatherer) *http.ServeMux {
	prefix := cfg.HandlerPrefix
	if prefix == "" {
		prefix = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(prefix, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog: stdlog.New(&httpErrorLogWriter{Logger: log.Logger}, "", 0),
	}))
	return mux
}

// metricsServer serves Prometheus metrics until ctx is done.
func metricsServer(cfg configtypes.Prometheus, gatherer prometheus.Gatherer) service.Service {
	return service.Func("metrics", func(ctx context.Context) error {
		server := &http.Server{
			Addr:              cfg.Address,
			Handler:           metricsMux(cfg, gatherer),
			ReadHeaderTimeout: 5 * time.Second,
			ErrorLog:          stdlog.New(&httpErrorLogWriter{Logger: log.Logger}, "", 0),
		}
		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("address", cfg.Address).Str("path", cfg.HandlerPrefix).Msg("serving prometheus metrics")
			errCh <- server.ListenAndServe()
		}()
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
			return ctx.Err()
		}
	})
}
