package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campuspool/carpool-backend/internal/auth"
	"github.com/campuspool/carpool-backend/internal/handlers"
	"github.com/campuspool/carpool-backend/internal/middleware"
	"github.com/campuspool/carpool-backend/internal/services"
	"github.com/campuspool/carpool-backend/internal/storage"
)

// SetupRoutes configures all API routes
func SetupRoutes(
	app *fiber.App,
	store storage.Store,
	tokens *auth.TokenService,
	identity *services.IdentityService,
	rides *services.RideService,
) {
	authHandler := handlers.NewAuthHandler(identity)
	rideHandler := handlers.NewRideHandler(rides)
	vehicleHandler := handlers.NewVehicleHandler(store)
	userHandler := handlers.NewUserHandler(store)

	requireAuth := middleware.RequireAuth(tokens, store)

	// Passwordless auth flows (public)
	authGroup := app.Group("/auth")
	authGroup.Post("/register/send-otp", authHandler.SendRegistrationOTP)
	authGroup.Post("/register/verify-otp", authHandler.VerifyRegistrationOTP)
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login/send-otp", authHandler.SendLoginOTP)
	authGroup.Post("/login/verify-otp", authHandler.VerifyLoginOTP)

	// Email verification (authenticated)
	authGroup.Post("/email/send-otp", requireAuth, authHandler.SendEmailOTP)
	authGroup.Post("/email/verify-otp", requireAuth, authHandler.VerifyEmailOTP)
	authGroup.Post("/email/confirm", requireAuth, authHandler.ConfirmEmail)

	// Profile
	users := app.Group("/users", requireAuth)
	users.Get("/me", userHandler.Me)
	users.Put("/me", userHandler.UpdateMe)
	users.Delete("/me", userHandler.DeactivateMe)

	// Vehicles
	vehicles := app.Group("/vehicles", requireAuth)
	vehicles.Get("/", vehicleHandler.List)
	vehicles.Post("/", vehicleHandler.Create)
	vehicles.Delete("/:id", vehicleHandler.Delete)

	// Rides; ride-level authorization (driver-only transitions, request
	// handling) lives in the service layer
	ridesGroup := app.Group("/rides", requireAuth)
	ridesGroup.Post("/", rideHandler.Create)
	ridesGroup.Get("/", rideHandler.List)
	ridesGroup.Get("/:id", rideHandler.Get)
	ridesGroup.Patch("/:id/status", rideHandler.UpdateStatus)
	ridesGroup.Post("/:id/request", rideHandler.RequestJoin)
	ridesGroup.Get("/:id/requests", rideHandler.ListRequests)
	ridesGroup.Post("/:id/requests/:requestId", rideHandler.HandleRequest)
	ridesGroup.Post("/:id/verify-pickup", rideHandler.VerifyPickup)
	ridesGroup.Get("/:id/participants", rideHandler.ListParticipants)
}
