package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClientIP determines the caller's address, preferring Cloudflare's header,
// then the first X-Forwarded-For entry, then the socket address. IPv4 mapped
// IPv6 addresses are unwrapped.
func ClientIP(c *fiber.Ctx) string {
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}

	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}

	if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	ipAddr := c.IP()
	if strings.HasPrefix(ipAddr, "::ffff:") && strings.Contains(ipAddr, ".") {
		return strings.TrimPrefix(ipAddr, "::ffff:")
	}
	return ipAddr
}
