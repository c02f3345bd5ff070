package writer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/market-scout/internal/database"
)

// Open returns a saver for a target string:
//
//	timescale                      pool from cfg.Database
//	postgres://... postgresql://...
//	redis://... rediss://...
//	sqlite://path, *.db, *.sqlite
//	*.csv, *.json, *.parquet       file per series
//
// Savers returned by Open own their connections; Close releases them.
func Open(ctx context.Context, target string, cfg WriterConfig, logger *slog.Logger) (Saver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	scheme, rest, hasScheme := strings.Cut(target, "://")
	if hasScheme {
		scheme = strings.ToLower(scheme)
	}

	switch {
	case strings.EqualFold(target, "timescale"):
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect timescale: %w", err)
		}
		return openTimescale(ctx, pool, cfg, logger)

	case hasScheme && (scheme == "postgres" || scheme == "postgresql"):
		pool, err := database.ConnectURL(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return openTimescale(ctx, pool, cfg, logger)

	case hasScheme && (scheme == "redis" || scheme == "rediss"):
		opts, err := redis.ParseURL(target)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		s := NewRedisSaver(client, cfg, logger)
		s.owned = true
		return s, nil

	case hasScheme && scheme == "sqlite":
		return openSQLite(ctx, rest, cfg, logger)

	case hasScheme:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedTarget, scheme)
	}

	switch strings.ToLower(filepath.Ext(target)) {
	case ".db", ".sqlite", ".sqlite3":
		return openSQLite(ctx, target, cfg, logger)
	case "":
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTarget, target)
	}
	return NewFileSaver(target)
}

func openTimescale(ctx context.Context, pool *pgxpool.Pool, cfg WriterConfig, logger *slog.Logger) (Saver, error) {
	s, err := NewTimescaleSaver(pool, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

func openSQLite(ctx context.Context, path string, cfg WriterConfig, logger *slog.Logger) (Saver, error) {
	db, err := database.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLiteSaver(ctx, db, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}
