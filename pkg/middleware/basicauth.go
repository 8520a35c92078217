package middleware

import (
	"net/http"
	"strings"

	authentication "github.com/Alwanly/cloud-sdk-go/pkg/auth"
	"github.com/Alwanly/cloud-sdk-go/pkg/wrapper"
	"github.com/gofiber/fiber/v2"
)

type IAuthMiddleware interface {
	// Bearer token issued by the token endpoint
	BearerAuth() fiber.Handler

	// Basic Auth for the admin surface
	BasicAuth() fiber.Handler
}

type AuthMiddleware struct {
	Basic authentication.IBasicAuthService
	Token authentication.ITokenService
}

type AuthConfig func(*AuthOpts)

type AuthOpts struct {
	*authentication.BasicAuthConfig
	TokenService authentication.ITokenService
}

func SetBasicAuth(basicAuthConfig *authentication.BasicAuthConfig) AuthConfig {
	return func(o *AuthOpts) {
		o.BasicAuthConfig = basicAuthConfig
	}
}

func SetTokenService(svc authentication.ITokenService) AuthConfig {
	return func(o *AuthOpts) {
		o.TokenService = svc
	}
}

func NewAuthMiddleware(opts ...AuthConfig) *AuthMiddleware {
	var o AuthOpts
	for _, opt := range opts {
		opt(&o)
	}

	m := &AuthMiddleware{Token: o.TokenService}
	if o.BasicAuthConfig != nil {
		m.Basic = authentication.NewBasicAuthService(o.BasicAuthConfig)
	}
	return m
}

func (a *AuthMiddleware) BasicAuth() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		// get auth from header
		auth := ctx.Get(fiber.HeaderAuthorization)
		if !strings.Contains(auth, "Basic") {
			return responseUnauthorized(ctx, "InvalidAuthenticationInfo", "basic credentials required")
		}

		// decode auth
		username, password := a.Basic.DecodeFromHeader(auth)
		if !a.Basic.Validate(username, password) {
			return responseUnauthorized(ctx, "InvalidAuthenticationInfo", "invalid credentials")
		}
		return ctx.Next()
	}
}

func responseUnauthorized(c *fiber.Ctx, code, message string) error {
	c.Set("WWW-Authenticate", "Basic realm=Restricted")
	res := wrapper.ResponseError(http.StatusUnauthorized, code, message)
	return c.Status(res.Code).JSON(res.Data)
}
