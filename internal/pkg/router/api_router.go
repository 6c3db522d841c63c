package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", h.limiter())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	payments := controllers.NewPaymentController(h.deps.Orchestrator)

	// internal lookup, registered before the key check so it stays open
	v1.Post("/payments/info", payments.HandleInfo)

	v1.Use(middleware.APIKeyAuthMiddleware(h.deps.Authenticator))

	v1.Post("/payments/create", payments.HandleCreate)
	v1.Post("/payments/process-:method", payments.HandleProcess)
	v1.Get("/payments", payments.HandleList)
	v1.Get("/payments/statistics", payments.HandleStatistics)
	v1.Get("/payments/:id/status", payments.HandleStatus)
	v1.Post("/payments/:id/cancel", payments.HandleCancel)
	v1.Post("/payments/:id/refund", payments.HandleRefund)

	partners := controllers.NewPartnerController(h.deps.Registry)
	v1.Get("/:partner/status", middleware.RequirePartner("partner"), partners.HandlePartnerStatus)
}

func (h ApiRouter) limiter() fiber.Handler {
	cfg := limiter.Config{
		Max:          120,
		Expiration:   time.Minute,
		KeyGenerator: middleware.ClientIP,
		Storage:      h.deps.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"success": false, "error": "too_many_requests", "message": "Rate limit exceeded"})
		},
	}
	if h.deps.Config != nil && h.deps.Config.RateLimitMax > 0 {
		cfg.Max = h.deps.Config.RateLimitMax
	}
	if h.deps.Config != nil && h.deps.Config.RateLimitWindow > 0 {
		cfg.Expiration = h.deps.Config.RateLimitWindow
	}
	return limiter.New(cfg)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
