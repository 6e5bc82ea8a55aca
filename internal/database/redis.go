package database

import (
	"context"
	"time"

	"github.com/ficore/backend/internal/config"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// NewRedis returns nil when Redis is unreachable; callers treat a nil client
// as "no blacklist, no rate limit".
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis connection failed, continuing without Redis", zap.Error(err))
		rdb.Close()
		return nil
	}

	logger.Info("Redis connection established", zap.String("addr", cfg.Addr()))
	return rdb
}
