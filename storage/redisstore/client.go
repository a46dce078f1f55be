package redisstore

import (
	"context"
	"fmt"

	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/storage"
)

// NewClient connects to redis and pings it.
func NewClient(ctx context.Context, cfg storage.RedisConfig, logger logging.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, errors.NewDatabase(err, "ping redis")
	}
	logging.OrNop(logger).Debug("redis connected",
		zap.String("pong", pong),
		zap.String("target", connectionFields(cfg)))
	return client, nil
}

func connectionFields(cfg storage.RedisConfig) string {
	return fmt.Sprintf("addr=%s db=%d password=%s", cfg.Addr(), cfg.DB, redactedPassword(cfg.Password))
}

func redactedPassword(password string) string {
	if password == "" {
		return "<empty>"
	}
	return "[REDACTED]"
}
