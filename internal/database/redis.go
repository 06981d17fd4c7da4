package database

import (
	"context"
	"time"

	"github.com/gigbook/backend/internal/config"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// InitRedis connects the lock/cache client. A nil client is returned when Redis
// is unreachable; callers treat that as "run without distributed locks".
func InitRedis(cfg config.RedisConfig, log *zap.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis connection failed, continuing without redis", zap.Error(err))
		rdb.Close()
		return nil
	}

	log.Info("redis connection established", zap.String("addr", cfg.Addr()))
	return rdb
}
