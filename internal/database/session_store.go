package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stemsi/tricol-console/internal/config"
	"github.com/stemsi/tricol-console/internal/session"
)

// OpenSessionStore builds the configured session backend. The returned
// close function releases the Redis connection, if any.
func OpenSessionStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (session.Store, func(), error) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		rdb, err := NewRedisClient(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return session.NewRedisStore(rdb, cfg.SessionKeyPrefix), func() { _ = rdb.Close() }, nil

	case config.SessionBackendFile, "":
		store, err := session.NewFileStore(cfg.SessionDir)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("dir", cfg.SessionDir).Msg("Session store on local files")
		return store, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}
