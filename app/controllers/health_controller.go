package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayFox/internal/pkg/database"
)

const healthCheckTimeout = 2 * time.Second

type HealthController struct {
	db    *gorm.DB
	cache *redis.Client
}

// NewHealthController checks db and, when not nil, the cache.
func NewHealthController(db *gorm.DB, cache *redis.Client) *HealthController {
	return &HealthController{db: db, cache: cache}
}

// HandleHealth reports liveness. The database is required; a cache outage
// only degrades the service.
func (hc *HealthController) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
	defer cancel()

	checks := fiber.Map{"database": "ok"}
	status := "ok"
	code := fiber.StatusOK

	if err := database.Ping(ctx, hc.db); err != nil {
		log.Errorf("[Health] Database ping failed: %v", err)
		checks["database"] = "unavailable"
		status = "unavailable"
		code = fiber.StatusServiceUnavailable
	}

	if hc.cache != nil {
		checks["cache"] = "ok"
		if err := hc.cache.Ping(ctx).Err(); err != nil {
			log.Warnf("[Health] Cache ping failed: %v", err)
			checks["cache"] = "unavailable"
			if code == fiber.StatusOK {
				status = "degraded"
			}
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checks": checks,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
