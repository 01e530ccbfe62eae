// Package builder assembles the turn engine and its collaborators from config.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/park285/handbrain-chess/internal/archive"
	"github.com/park285/handbrain-chess/internal/config"
	"github.com/park285/handbrain-chess/internal/events"
	"github.com/park285/handbrain-chess/internal/handbrain"
	"github.com/park285/handbrain-chess/internal/msgcat"
	"github.com/park285/handbrain-chess/internal/player"
	"github.com/park285/handbrain-chess/internal/rules"
	"github.com/park285/handbrain-chess/internal/store/memstore"
	"github.com/park285/handbrain-chess/internal/store/redisstore"
	"github.com/park285/handbrain-chess/internal/store/sqlitestore"
)

// Players both registers and resolves players.
type Players interface {
	handbrain.Directory
	Register(ctx context.Context, username string) (*handbrain.Player, error)
}

type Deps struct {
	Engine   *handbrain.Engine
	Store    handbrain.Store
	Players  Players
	Messages *msgcat.Catalog
	Events   *events.Hub
	// Relay is set when Redis is configured; the caller runs it.
	Relay *events.RedisRelay

	closers []io.Closer
}

// New wires the configured store backend. Players and cross-instance event
// fan-out live in Redis whenever a Redis URL is configured and stay in process
// otherwise. The Postgres archive is attached only when DatabaseURL is set.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (_ *Deps, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	var rs *redisstore.Store
	if cfg.RedisURL != "" {
		rs, err = redisstore.Open(ctx, cfg.RedisURL, redisstore.Options{TTL: cfg.GameTTL, MaxRetries: cfg.MaxTxRetries})
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		d.closers = append(d.closers, rs)
	}

	switch cfg.StoreBackend {
	case config.BackendRedis:
		d.Store = rs
	case config.BackendSQLite:
		ss, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		d.closers = append(d.closers, ss)
		d.Store = ss
	default:
		d.Store = memstore.New()
	}

	d.Events = events.NewHub(logger)
	opts := handbrain.Options{Logger: logger, OpTimeout: cfg.OpTimeout, Events: d.Events}
	if rs != nil {
		d.Players = player.NewRedisDirectory(rs.Client())
		d.Relay = events.NewRedisRelay(rs.Client(), d.Events, logger)
		opts.Events = d.Relay
	} else {
		d.Players = player.NewMemoryDirectory()
	}

	if cfg.DatabaseURL != "" {
		repo, err := archive.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init archive: %w", err)
		}
		d.closers = append(d.closers, repo)
		opts.Archiver = repo
	}

	d.Messages, err = msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	d.Engine, err = handbrain.NewEngine(d.Store, rules.New(), d.Players, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("hnb_deps_ready",
		zap.String("store", cfg.StoreBackend),
		zap.Bool("redis_players", rs != nil),
		zap.Bool("archive", opts.Archiver != nil),
	)
	return d, nil
}

// Close releases connections in reverse order of creation.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
