package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/rickgao/market-scout/internal/model"
)

// RedisSaver stores each series as a JSON document under
// <prefix><instrument>:<bar size>. The latest save for a key wins.
type RedisSaver struct {
	cfg    WriterConfig
	logger *slog.Logger
	client *redis.Client
	owned  bool
}

// NewRedisSaver creates a saver over an existing client. The caller keeps
// ownership of the client.
func NewRedisSaver(client *redis.Client, cfg WriterConfig, logger *slog.Logger) *RedisSaver {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSaver{
		cfg:    cfg,
		logger: logger.With("component", "redis_saver"),
		client: client,
	}
}

// Key returns the key a series is stored under.
func (r *RedisSaver) Key(s model.Series) string {
	return r.cfg.KeyPrefix + s.Request.Instrument + ":" + strings.ReplaceAll(s.Request.BarSize, " ", "")
}

// Save writes the series document with the configured TTL.
func (r *RedisSaver) Save(ctx context.Context, s model.Series) error {
	data, err := json.Marshal(toDoc(s))
	if err != nil {
		return fmt.Errorf("marshal series: %w", err)
	}
	key := r.Key(s)
	if err := r.client.Set(ctx, key, data, r.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	r.logger.Debug("saved series", "key", key, "count", len(s.Bars))
	return nil
}

// Close closes the client if the saver opened it.
func (r *RedisSaver) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}
