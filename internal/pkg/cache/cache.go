package cache

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/PayFox/internal/pkg/config"
)

// SetupCache connects to the Redis/Dragonfly cache server. The client is
// returned even when the ping fails so callers can decide whether to run
// without the cache tier.
func SetupCache(cfg config.CacheConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to cache at %s: %v", cfg.Addr(), err)
		return client, err
	}
	log.Infof("[Cache] Connected to cache: %s", pong)
	return client, nil
}
