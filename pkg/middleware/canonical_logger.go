package middleware

import (
	"time"

	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// CanonicalLoggerMiddleware emits one log line per request. Handlers and
// usecases enrich the line through the LogContext placed on the user
// context (operation, etag, lease epoch, operation id and so on).
func CanonicalLoggerMiddleware(log *logger.CanonicalLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logCtx := logger.NewLogContext()
		c.Locals("log_context", logCtx)
		c.SetUserContext(logger.WithLogContext(c.UserContext(), logCtx))

		// request id comes from fiber's requestid middleware
		if id, ok := c.Locals("requestid").(string); ok {
			logCtx.AddField(logger.String(logger.FieldRequestID, id))
		}

		start := time.Now()

		// deferred so the line is emitted even when a handler panics and
		// the recover middleware turns it into a 500
		defer func() {
			duration := time.Since(start)
			status := c.Response().StatusCode()

			fields := []zap.Field{
				logger.String("method", c.Method()),
				logger.String("path", c.Path()),
				logger.Int(logger.FieldStatusCode, status),
				logger.Bool(logger.FieldSuccess, status < fiber.StatusBadRequest),
				logger.Duration("duration", duration),
				logger.Int64("bytes_out", int64(len(c.Response().Body()))),
			}
			fields = append(fields, logCtx.Fields()...)

			switch {
			case status >= fiber.StatusInternalServerError:
				log.Error("http_request", fields...)
			case status >= fiber.StatusBadRequest:
				log.Info("http_request_client_error", fields...)
			default:
				log.Info("http_request", fields...)
			}
		}()

		return c.Next()
	}
}
