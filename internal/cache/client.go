package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewClient parses a redis:// URL and verifies the connection.
func NewClient(ctx context.Context, url string, logger *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Error("Failed to ping Redis", zap.String("addr", opts.Addr), zap.Error(err))
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("Connected to Redis", zap.String("addr", opts.Addr))
	return client, nil
}
