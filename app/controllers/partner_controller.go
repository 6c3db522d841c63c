package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/internal/pkg/gateway"
)

// PartnerController serves integration status for partner-scoped keys.
type PartnerController struct {
	registry *gateway.Registry
}

func NewPartnerController(registry *gateway.Registry) *PartnerController {
	return &PartnerController{registry: registry}
}

// HandlePartnerStatus reports that the integration for :partner is up and
// which payment methods it may request.
func (pc *PartnerController) HandlePartnerStatus(c *fiber.Ctx) error {
	methods := make([]string, 0)
	for _, tag := range pc.registry.Tags() {
		if tag != "" {
			methods = append(methods, tag)
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"partner":    strings.ToLower(c.Params("partner")),
			"status":     "operational",
			"methods":    methods,
			"time":       time.Now().UTC().Format(time.RFC3339),
			"apiVersion": "v1",
		},
	})
}
