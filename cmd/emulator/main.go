package main

// @title           Cloud SDK Service Emulator
// @version         1.0
// @description     Local emulator for the cloud-sdk-go clients. Serves the token endpoint, configuration settings with ETag concurrency, blob leases, and long-running import operations.
// @contact.name   API Support
// @contact.email  support@example.com
// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html
// @host      localhost:8080
// @BasePath  /
// @securityDefinitions.basic  BasicAuth
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/Alwanly/cloud-sdk-go/docs/emulator"
	"github.com/Alwanly/cloud-sdk-go/internal/config"
	"github.com/Alwanly/cloud-sdk-go/internal/emulator/handler"
	authentication "github.com/Alwanly/cloud-sdk-go/pkg/auth"
	"github.com/Alwanly/cloud-sdk-go/pkg/database"
	"github.com/Alwanly/cloud-sdk-go/pkg/deps"
	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
	"github.com/Alwanly/cloud-sdk-go/pkg/middleware"
	"github.com/Alwanly/cloud-sdk-go/pkg/poll"
	swagger "github.com/gofiber/swagger"
)

func main() {
	log, err := logger.NewLoggerFromEnv("emulator")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting emulator service")

	configPath := flag.String("config", "", "path to the yaml config file")
	flag.Parse()

	cfg, err := config.LoadEmulatorConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	log.Info("configuration loaded",
		logger.String("server_addr", cfg.Server.Addr),
		logger.String("database_path", cfg.Database.Path),
		logger.Int("clients", len(cfg.Auth.Clients)),
	)

	tokenSvc, err := authentication.NewTokenService(&authentication.TokenConfig{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		TTL:        cfg.Auth.TokenTTL(),
	})
	if err != nil {
		log.WithError(err).Fatal("failed to initialize token service")
	}

	mid := middleware.NewAuthMiddleware(
		middleware.SetBasicAuth(&authentication.BasicAuthConfig{
			Username: cfg.Auth.AdminUsername,
			Password: cfg.Auth.AdminPassword,
		}),
		middleware.SetTokenService(tokenSvc),
	)
	log.Info("authentication initialized")

	db, err := database.NewSQLiteDB(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	log.Info("database initialized", logger.String("path", cfg.Database.Path))

	if err := database.RunMigrations(db); err != nil {
		log.WithError(err).Fatal("failed to migrate database")
	}
	log.Info("database migrations applied successfully")

	app := fiber.New(fiber.Config{
		AppName:               "Cloud SDK Emulator",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(log),
	})

	registry := prometheus.NewRegistry()
	metrics := middleware.NewHTTPMetrics(registry, "emulator")

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.CanonicalLoggerMiddleware(log))
	app.Use(metrics.Middleware())

	runner := poll.NewRunner(log)

	d := deps.App{
		Fiber:      app,
		Database:   db,
		Logger:     log,
		Middleware: mid,
		Runner:     runner,
		Metrics:    metrics,
	}

	handler.NewHandler(d, cfg)

	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	ctx, cancel := context.WithCancel(context.Background())
	gErr, gCtx := errgroup.WithContext(ctx)

	if err := runner.Start(gCtx); err != nil {
		log.WithError(err).Fatal("failed to start background runner")
	}

	gErr.Go(func() error {
		log.Info("emulator service is running", logger.String("address", cfg.Server.Addr))
		if err := app.Listen(cfg.Server.Addr); err != nil {
			cancel()
			return err
		}
		return nil
	})

	gErr.Go(func() error {
		<-gCtx.Done()

		_ = runner.Stop()

		if err := app.Shutdown(); err != nil {
			log.WithError(err).Error("failed to shutdown fiber app")
			return err
		}

		conn, err := db.DB()
		if err != nil {
			log.WithError(err).Error("failed to get database connection")
			return err
		}
		if err := conn.Close(); err != nil {
			log.WithError(err).Error("failed to close database")
			return err
		}

		return nil
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
		log.Info("listening for shutdown signals")
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := gErr.Wait(); err != nil {
		log.WithError(err).Fatal("emulator service encountered an error")
	}

	log.Info("emulator service stopped gracefully")
}
