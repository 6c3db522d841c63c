package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayFox/internal/pkg/apikey"
	"github.com/ManuelReschke/PayFox/internal/pkg/audit"
	"github.com/ManuelReschke/PayFox/internal/pkg/config"
	"github.com/ManuelReschke/PayFox/internal/pkg/gateway"
	"github.com/ManuelReschke/PayFox/internal/pkg/payment"
	"github.com/ManuelReschke/PayFox/internal/pkg/webhook"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are built once in main and shared by all routers.
type Dependencies struct {
	Config        *config.Config
	DB            *gorm.DB
	Cache         *redis.Client
	Orchestrator  *payment.Orchestrator
	Registry      *gateway.Registry
	Authenticator *apikey.Authenticator
	Audit         *audit.Logger
	Webhooks      *webhook.Ingress
	// LimiterStorage backs the /api rate limiter; nil keeps the counters in
	// memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// HttpRouter installs the global request log, so it goes first.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
