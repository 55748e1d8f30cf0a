package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EvilPatrick06/DnD-sub018/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrDisabled is returned by NewDB when no DSN is configured.
var ErrDisabled = errors.New("database disabled")

const (
	// The light history has a single writer, the persist-phase system, plus
	// the occasional Recent read. A few connections cover both.
	maxHistoryConns = 4
	appName         = "perceptiond"
	pingTimeout     = 5 * time.Second
)

// DB is the pool behind the light history log.
type DB struct {
	Pool *pgxpool.Pool
}

// poolConfig sizes the pool for the history writer. Configured limits are
// clamped to [1, maxHistoryConns] and idle connections never exceed the max.
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pc.MaxConns = int32(min(max(cfg.MaxOpenConns, 1), maxHistoryConns))
	pc.MinConns = int32(min(max(cfg.MaxIdleConns, 0), int(pc.MaxConns)))
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if _, set := pc.ConnConfig.RuntimeParams["application_name"]; !set {
		pc.ConnConfig.RuntimeParams["application_name"] = appName
	}
	return pc, nil
}

// NewDB opens the light history pool and checks it answers. An empty DSN
// returns ErrDisabled so the daemon runs without history.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*DB, error) {
	if cfg.DSN == "" {
		return nil, ErrDisabled
	}
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open light history pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("light history database unreachable: %w", err)
	}

	log.Info("light history database connected",
		zap.String("host", pc.ConnConfig.Host),
		zap.String("database", pc.ConnConfig.Database),
		zap.Int32("max_conns", pc.MaxConns),
		zap.String("version_table", VersionTable))
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}
