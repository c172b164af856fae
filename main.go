package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/campuspool/carpool-backend/database"
	"github.com/campuspool/carpool-backend/internal/auth"
	"github.com/campuspool/carpool-backend/internal/config"
	"github.com/campuspool/carpool-backend/internal/logger"
	"github.com/campuspool/carpool-backend/internal/models"
	"github.com/campuspool/carpool-backend/internal/notify"
	"github.com/campuspool/carpool-backend/internal/routes"
	"github.com/campuspool/carpool-backend/internal/services"
	"github.com/campuspool/carpool-backend/internal/storage"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(os.Getenv("INSTANCE_CONNECTION_NAME") == "")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Storage
	var store storage.Store
	var db *storage.DatabaseStore
	if cfg.UseMemoryStore {
		log.Warn("using in-memory storage (not for production)")
		store = storage.NewMemoryStore()
	} else {
		gormDB, err := database.Connect(cfg)
		if err != nil {
			log.Fatalw("database connection failed", "error", err)
		}
		log.Info("database connected")

		if err := gormDB.AutoMigrate(
			&models.User{},
			&models.Vehicle{},
			&models.OTPSession{},
			&models.Ride{},
			&models.RideRequest{},
			&models.RideParticipant{},
		); err != nil {
			log.Fatalw("database migration failed", "error", err)
		}
		log.Info("database migrations completed")

		db = storage.NewDatabaseStore(gormDB)
		store = db
	}

	// OTP delivery channels
	sms, err := notify.NewSMSNotifier(cfg, log)
	if err != nil {
		log.Fatalw("sms notifier setup failed", "error", err)
	}
	email, err := notify.NewEmailNotifier(cfg, log)
	if err != nil {
		log.Fatalw("email notifier setup failed", "error", err)
	}

	// Services
	tokens := auth.NewTokenService(cfg, nil)
	otpService := services.NewOTPService(store, cfg, nil)
	identityService := services.NewIdentityService(store, otpService, tokens, sms, email, cfg, nil)
	rideService := services.NewRideService(store, cfg, nil)

	app := fiber.New(fiber.Config{
		AppName: cfg.AppName,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		status := "healthy"
		statusCode := fiber.StatusOK
		if db != nil {
			if err := db.Ping(); err != nil {
				status = "unhealthy"
				statusCode = fiber.StatusServiceUnavailable
			}
		}
		return c.Status(statusCode).JSON(fiber.Map{
			"status":  status,
			"service": cfg.AppName,
		})
	})

	routes.SetupRoutes(app, store, tokens, identityService, rideService)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutting down")
		_ = app.Shutdown()
	}()

	log.Infow("starting server", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalw("server stopped", "error", err)
	}
}
