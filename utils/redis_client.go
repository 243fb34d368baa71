package utils

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cppla/lifesignal/config"
)

// NewRedis returns a client for the configured Redis, or nil when no host is set.
// Callers treat a nil client as "run without Redis". An unreachable server is logged
// and the client is still returned, since leases and the cache fail open.
func NewRedis(cfg config.AppConfig, logger *zap.Logger) *redis.Client {
	if cfg.RedisHost == "" {
		return nil
	}
	addr := net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort))
	rc := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, leases and cache fail open",
			zap.String("addr", addr), zap.Error(err))
	}
	return rc
}
