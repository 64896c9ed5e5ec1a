package router

import (
	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/handler"
	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/middleware"
	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/service"
)

// Handlers holds all handler instances needed by the router.
type Handlers struct {
	Election *handler.ElectionHandler
	Vote     *handler.VoteHandler
	Results  *handler.ResultsHandler
	Health   *handler.HealthHandler
}

// Setup configures the middleware stack and all API routes on the given
// Fiber app. Each operation class carries its own rate limiter so vote
// spikes never starve reads or admin traffic.
func Setup(app *fiber.App, h *Handlers, verifier *middleware.ClaimsVerifier, authz *service.AuthzService, corsOrigins string) {
	// Middleware stack (order matters)
	app.Use(recoverer.New())
	app.Use(middleware.NewRequestLogger())
	app.Use(handler.MetricsMiddleware())
	app.Use(middleware.NewCORS(corsOrigins))

	// Probes and metrics (no auth, no rate limit)
	app.Get("/health/live", h.Health.Live)
	app.Get("/health/ready", h.Health.Ready)
	app.Get("/metrics", handler.MetricsHandler())

	readLimit := middleware.NewReadRateLimiter().Handler()
	writeLimit := middleware.NewWriteRateLimiter().Handler()
	voteLimit := middleware.NewVoteRateLimiter().Handler()
	adminLimit := middleware.NewAdminRateLimiter().Handler()

	manager := middleware.RequireRole(verifier, authz, service.RoleManager)
	superAdmin := middleware.RequireRole(verifier, authz, service.RoleSuperAdmin)

	// Public surface
	app.Get("/elections", h.Election.List, readLimit)
	app.Get("/elections/:id", h.Election.Get, readLimit)

	// Token-authenticated vote submission
	app.Post("/elections/:id/vote", h.Vote.Submit, voteLimit)

	// Authenticated surfaces: auth runs before the limiter so limits key on
	// the verified uid, not the caller's IP. Lifecycle writes carry the
	// write-class budget; the /admin group its own.
	app.Post("/elections/:id/open", h.Election.Open, manager, writeLimit)
	app.Post("/elections/:id/close", h.Election.Close, manager, writeLimit)
	app.Get("/elections/:id/results", h.Results.Get, manager, readLimit)
	app.Post("/elections/:id/results/recompute", h.Results.Recompute, manager, writeLimit)

	admin := app.Group("/admin")
	admin.Post("/elections", h.Election.Create, manager, adminLimit)
	admin.Post("/elections/:id/publish", h.Election.Publish, manager, adminLimit)
	admin.Post("/elections/:id/pause", h.Election.Pause, manager, adminLimit)
	admin.Post("/elections/:id/resume", h.Election.Resume, manager, adminLimit)
	admin.Post("/elections/:id/archive", h.Election.Archive, manager, adminLimit)

	// Super-admin only: hard delete and the raw audit trail
	admin.Delete("/elections/:id", h.Election.Delete, superAdmin, adminLimit)
	admin.Get("/elections/:id/audit", h.Results.AuditTrail, superAdmin, adminLimit)
}
