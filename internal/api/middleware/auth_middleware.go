package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/contentops/pkg/utils"
	"github.com/rs/zerolog"
)

type AuthMiddleware struct {
	secretKey string
	log       zerolog.Logger
}

func NewAuthMiddleware(secretKey string, log zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{secretKey: secretKey, log: log}
}

// AuthMiddleware accepts "Authorization: Bearer <jwt>" signed with the secret key.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing bearer token",
			})
		}

		claims, err := utils.ValidateToken(m.secretKey, strings.TrimSpace(tokenString))
		if err != nil {
			m.log.Debug().Err(err).Str("path", c.Path()).Msg("token validation failed")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("operator", claims.Operator)
		return c.Next()
	}
}
