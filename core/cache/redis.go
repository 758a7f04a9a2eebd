package cache

import (
	"context"
	"fmt"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/config"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/constants"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"

	"github.com/redis/go-redis/v9"
)

func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis initialized successfully", "addr", cfg.Addr, "db", cfg.DB)
	return client, nil
}
