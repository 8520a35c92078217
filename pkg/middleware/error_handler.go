package middleware

import (
	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
	"github.com/Alwanly/cloud-sdk-go/pkg/wrapper"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandler turns unhandled errors into the service error envelope.
func ErrorHandler(log *logger.CanonicalLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		errorCode := "InternalError"
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			if code < 500 {
				errorCode = "BadRequest"
			}
		}

		log.HTTPError(c.Method(), c.Path(), code, err)

		res := wrapper.ResponseError(code, errorCode, err.Error())
		return c.Status(res.Code).JSON(res.Data)
	}
}
