package app

import (
	"strings"
	"time"

	"github.com/snapcircle/dmsocket/internal/config"
	"github.com/snapcircle/dmsocket/internal/credential"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func logStartWarnings(cfg config.Config, cfgMeta config.Meta) {
	if cfg.Auth.Token == "" {
		log.Warn().Msg("auth.token not set, server will most probably reject the connection")
	} else if claims, err := credential.Inspect(cfg.Auth.Token, cfg.Auth.UserIDClaim); err == nil && claims.Expired(time.Now()) {
		log.Warn().Time("expires_at", claims.ExpiresAt).Msg("auth.token already expired")
	}
	if cfg.Auth.HMACSecretKey != "" {
		log.Warn().Msg("auth.hmac_secret_key is only meant for development tokens")
	}
	for _, key := range cfgMeta.UnknownKeys {
		log.Warn().Str("key", key).Msg("unknown key in configuration file")
	}
	for _, key := range cfgMeta.UnknownEnvs {
		log.Warn().Str("var", key).Msg("unknown var in environment")
	}
}

type httpErrorLogWriter struct {
	zerolog.Logger
}

func (w *httpErrorLogWriter) Write(data []byte) (int, error) {
	w.Logger.Warn().Msg(strings.TrimSpace(string(data)))
	return len(data), nil
}
