package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/internal/pkg/middleware"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// one APILog row per request, including rejected ones
	app.Use(middleware.RequestLogMiddleware(h.deps.Audit))

	health := controllers.NewHealthController(h.deps.DB, h.deps.Cache)
	app.Get("/health", health.HandleHealth)

	// provider callbacks authenticate with the body signature
	webhooks := controllers.NewWebhookController(h.deps.Webhooks)
	app.Post("/webhooks/:provider", webhooks.HandleWebhook)

	form := controllers.NewPaymentFormController(h.deps.Orchestrator)
	app.Get("/payment-form/:id", form.HandleForm)
	app.Post("/payment-form/:id/process", form.HandleProcess)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
