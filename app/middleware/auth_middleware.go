// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"crypto/subtle"

	"github.com/aimarket/affiliate-engine/app/dto"
	"github.com/aimarket/affiliate-engine/config"
	"github.com/gofiber/fiber/v3"
)

// AuthMiddleware validates API keys and IP restrictions for protected endpoints
type AuthMiddleware struct {
	security config.SecurityConfig
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(security config.SecurityConfig) *AuthMiddleware {
	return &AuthMiddleware{
		security: security,
	}
}

// Authenticate is the middleware function that validates the API key header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		if !m.security.RequireAPIKey {
			return c.Next()
		}

		key := c.Get(m.security.APIKeyHeader)
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "API key is required",
				Error: dto.ErrorDetail{
					Code: "MISSING_API_KEY",
				},
			})
		}

		if !m.keyAllowed(key) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Invalid API key",
				Error: dto.ErrorDetail{
					Code: "INVALID_API_KEY",
				},
			})
		}

		// Store RequestID for audit logging
		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals("request_id", requestID)
		}

		return c.Next()
	}
}

// RestrictIPs blocks blacklisted addresses and, when a whitelist is set,
// rejects everything outside it.
func (m *AuthMiddleware) RestrictIPs() fiber.Handler {
	return func(c fiber.Ctx) error {
		ip := c.IP()

		for _, blocked := range m.security.IPBlacklist {
			if ip == blocked {
				return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
					Success: false,
					Message: "Access denied",
					Error:   dto.ErrorDetail{Code: "IP_BLOCKED"},
				})
			}
		}

		if len(m.security.IPWhitelist) > 0 {
			allowed := false
			for _, white := range m.security.IPWhitelist {
				if ip == white {
					allowed = true
					break
				}
			}
			if !allowed {
				return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
					Success: false,
					Message: "Access denied",
					Error:   dto.ErrorDetail{Code: "IP_NOT_WHITELISTED"},
				})
			}
		}

		return c.Next()
	}
}

func (m *AuthMiddleware) keyAllowed(key string) bool {
	// Constant-time comparison so key probing does not leak prefix matches.
	match := false
	for _, allowed := range m.security.AllowedAPIKeys {
		if len(allowed) == len(key) && subtle.ConstantTimeCompare([]byte(allowed), []byte(key)) == 1 {
			match = true
		}
	}
	return match
}
