package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/itsm-core/internal/api/http/handlers"
	"github.com/spec-kit/itsm-core/internal/identity"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health        *handlers.HealthHandler
	Tickets       *handlers.TicketsHandler
	Notifications *handlers.NotificationsHandler
	TokenManager  *identity.TokenManager
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1", identity.Authenticate(cfg.TokenManager))

	tickets := api.Group("/tickets")
	tickets.Post("", cfg.Tickets.SubmitTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/transitions", cfg.Tickets.Transition)
	tickets.Get("/:id/duplicates", cfg.Tickets.GetDuplicateCandidates)
	tickets.Get("/:id/audit", cfg.Tickets.GetAuditTrail)

	notifications := api.Group("/notifications")
	notifications.Get("", cfg.Notifications.List)
	notifications.Post("/read-all", cfg.Notifications.MarkAllRead)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)
	notifications.Delete("/:id", cfg.Notifications.Delete)
}
