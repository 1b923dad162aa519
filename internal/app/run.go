package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/snapcircle/dmsocket/internal/build"
	"github.com/snapcircle/dmsocket/internal/chat"
	"github.com/snapcircle/dmsocket/internal/config"
	"github.com/snapcircle/dmsocket/internal/credential"
	"github.com/snapcircle/dmsocket/internal/logging"
	"github.com/snapcircle/dmsocket/internal/metrics"
	"github.com/snapcircle/dmsocket/internal/restapi"
	"github.com/snapcircle/dmsocket/internal/service"
	"github.com/snapcircle/dmsocket/internal/tools"
	"github.com/snapcircle/dmsocket/internal/transport"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

const shutdownTimeout = 10 * time.Second

func Run(cmd *cobra.Command, configFile string) {
	dotEnvUsed := false
	if tools.FileExists(".env") {
		err := godotenv.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("error loading .env file")
		}
		dotEnvUsed = true
	}
	cfg, cfgMeta, err := config.GetConfig(cmd, configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error getting config")
	}

	logCloseFn, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatal().Err(err).Msg("error setting up logging")
	}
	if logCloseFn != nil {
		defer logCloseFn()
	}
	if cfgMeta.FileNotFound {
		log.Warn().Msg("config file not found, continue using environment and flag options")
	} else {
		absConfPath, _ := filepath.Abs(configFile)
		log.Info().Str("path", absConfPath).Msg("using config file")
	}
	if dotEnvUsed {
		log.Info().Msg("environment variables have been loaded from .env file")
	}

	if err = cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("error validating config")
	}
	logStartWarnings(cfg, cfgMeta)

	_, _ = maxprocs.Set(maxprocs.Logger(func(s string, i ...interface{}) {
		log.Debug().Msgf(strings.ToLower(s), i...)
	}))

	socketURL, err := cfg.SocketURL()
	if err != nil {
		log.Fatal().Err(err).Msg("error building websocket endpoint")
	}

	userID := cfg.Auth.UserID
	if userID == 0 && cfg.Auth.Token != "" {
		if claims, err := credential.Inspect(cfg.Auth.Token, cfg.Auth.UserIDClaim); err == nil && claims.HasUserID {
			userID = claims.UserID
			log.Info().Int64("user", userID).Msg("user id taken from token claims")
		}
	}

	log.Info().
		Str("version", build.Version).
		Str("runtime", runtime.Version()).
		Int("pid", os.Getpid()).
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Str("endpoint", socketURL).
		Str("namespace", cfg.Socket.Namespace).
		Int64("user", userID).
		Msg("starting dmsocket")

	if build.Version == "0.0.0" {
		log.Warn().Msg("running a development build of dmsocket (version 0.0.0)")
	}

	var registry *metrics.Registry
	if cfg.Prometheus.Enabled {
		registry, err = metrics.New(metrics.Config{Registerer: prometheus.DefaultRegisterer})
		if err != nil {
			log.Fatal().Err(err).Msg("error initializing metrics")
		}
	}

	apiClient := restapi.New(cfg.API.BaseURL, cfg.Auth.Token, &http.Client{Timeout: cfg.API.Timeout.ToDuration()})
	apiClient.Metrics = registry

	manager := chat.NewManager(transport.NewWebSocketDialer(&websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.Socket.HandshakeTimeout.ToDuration(),
	}), chat.Config{
		URL:                  socketURL,
		Namespace:            cfg.Socket.Namespace,
		HandshakeTimeout:     cfg.Socket.HandshakeTimeout.ToDuration(),
		WriteTimeout:         cfg.Socket.WriteTimeout.ToDuration(),
		AckTimeout:           cfg.Socket.AckTimeout.ToDuration(),
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
		ReconnectBaseDelay:   cfg.Reconnect.BaseDelay.ToDuration(),
		TypingQuietPeriod:    cfg.Typing.QuietPeriod.ToDuration(),
		UserIDClaim:          cfg.Auth.UserIDClaim,
		Metrics:              registry,
	})
	defer manager.Disconnect()

	ctx, serviceCancel := context.WithCancel(context.Background())
	defer serviceCancel()

	serviceManager := service.NewManager()
	serviceManager.Register(service.Func("console", NewConsole(manager, apiClient, os.Stdin, os.Stdout).Run))
	if cfg.Prometheus.Enabled {
		serviceManager.Register(metricsServer(cfg.Prometheus, prometheus.DefaultGatherer))
	}

	manager.Connect(userID, cfg.Auth.Token)
	serviceManager.Run(ctx)

	done := make(chan error, 1)
	go func() {
		done <- serviceManager.Wait()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("service error")
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down ...")
		time.AfterFunc(shutdownTimeout, func() {
			log.Fatal().Msg("shutdown timeout reached")
		})
		serviceCancel()
		<-done
	}
	manager.Disconnect()
	log.Info().Msg("bye")
}
