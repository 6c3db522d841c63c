package cache

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/PayFox/internal/pkg/config"
)

// limiterDatabase keeps rate-limit counters apart from the payment cache in
// DB 0.
const limiterDatabase = 1

// LimiterStorage returns a Redis-backed fiber.Storage for the rate limiter so
// every instance shares one set of counters.
func LimiterStorage(cfg config.CacheConfig) fiber.Storage {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		log.Warnf("[Cache] Invalid CACHE_PORT %q, using 6379 for the rate limiter", cfg.Port)
		port = 6379
	}

	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     port,
		Password: cfg.Password,
		Database: limiterDatabase,
		Reset:    false,
	})
}
