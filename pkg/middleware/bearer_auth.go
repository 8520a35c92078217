package middleware

import (
	"net/http"
	"strings"

	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
	"github.com/Alwanly/cloud-sdk-go/pkg/wrapper"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const ClientIDContextKey = "client_id"

// BearerAuth validates a JWT bearer token issued by the token endpoint and
// stores the caller's client id in fiber locals.
func (a *AuthMiddleware) BearerAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return responseBearerFailed(c, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return responseBearerFailed(c, "malformed authorization header")
		}

		claims, err := a.Token.ValidateToken(parts[1])
		if err != nil {
			logger.AddToContext(c.UserContext(), zap.Error(err), zap.String("path", c.Path()))
			return responseBearerFailed(c, "invalid or expired token")
		}

		c.Locals(ClientIDContextKey, claims.ClientID)
		return c.Next()
	}
}

func responseBearerFailed(c *fiber.Ctx, message string) error {
	res := wrapper.ResponseError(http.StatusUnauthorized, "Unauthorized", message)
	return c.Status(res.Code).JSON(res.Data)
}
