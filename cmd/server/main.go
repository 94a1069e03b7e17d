package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fsession "github.com/gofiber/fiber/v2/middleware/session"
	"go.uber.org/zap"

	"cafe-backend/internal/auth"
	"cafe-backend/internal/config"
	"cafe-backend/internal/session"
	"cafe-backend/internal/store"
	"cafe-backend/internal/tableapi"
	"cafe-backend/internal/users"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logger
	zlog, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()
	zlog.Info("config loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("driver", cfg.Database.Driver),
		zap.String("database", cfg.Database.Name))

	// 3. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()
	zlog.Info("database connected")

	// 4. Online-session registry with periodic idle sweep
	registry := session.NewRegistry(time.Duration(cfg.Session.MaxIdleHours)*time.Hour, zlog)
	registry.StartSweeper(time.Duration(cfg.Session.SweepMinutes) * time.Minute)
	defer registry.Stop()

	// 5. Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler(zlog, cfg.Debug),
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: cfg.Debug,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 6. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 7. Authentication surface (not behind the session gate)
	cookies := fsession.New()
	identity := auth.NewClient(cfg.Auth, zlog)
	authHandler := auth.NewHandler(identity, registry, cookies, cfg.JWTSecret, zlog)
	authHandler.Routes(app)

	sessionMW := auth.NewMiddleware(registry, cookies, cfg.JWTSecret).RequireSession()

	// 8. Staff screens (identity-service proxy)
	users.NewHandler(identity, zlog).Routes(app, sessionMW)

	// 9. Generated table controllers
	api := tableapi.NewAPI(db, tableapi.NewSelectCache(db, zlog), tableapi.DisplayColumns, zlog)
	if err := tableapi.Mount(app, api, sessionMW); err != nil {
		zlog.Fatal("route generation failed", zap.Error(err))
	}

	// 10. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	zlog.Info("starting server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// errorHandler maps errors to responses. Internal detail only leaks with
// debug enabled.
func errorHandler(zlog *zap.Logger, debug bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *tableapi.AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(tableapi.ErrorResponse{Error: appErr})
		}

		code := fiber.StatusInternalServerError
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
		}

		zlog.Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err))

		message := "Something broke!"
		if debug {
			message = err.Error()
		}
		return c.Status(code).JSON(tableapi.ErrorResponse{
			Error: tableapi.NewAppError("INTERNAL", code, message),
		})
	}
}
