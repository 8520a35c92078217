package deps

import (
	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
	"github.com/Alwanly/cloud-sdk-go/pkg/middleware"
	"github.com/Alwanly/cloud-sdk-go/pkg/poll"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type App struct {
	Fiber      *fiber.App
	Logger     *logger.CanonicalLogger
	Database   *gorm.DB
	Middleware *middleware.AuthMiddleware
	Runner     poll.Runner
	Metrics    *middleware.HTTPMetrics
}
