package handler

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/middleware"
	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/model"
	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/service"
)

type auditStore interface {
	Append(ctx context.Context, entry model.AuditLogEntry) error
	ListByElection(ctx context.Context, electionID uuid.UUID) ([]model.AuditLogEntry, error)
}

type ResultsHandler struct {
	tally *service.TallyService
	audit auditStore
}

func NewResultsHandler(tally *service.TallyService, audit auditStore) *ResultsHandler {
	return &ResultsHandler{tally: tally, audit: audit}
}

// Get handles GET /elections/:id/results — post-close only, with the full
// round-by-round trace.
func (h *ResultsHandler) Get(c fiber.Ctx) error {
	electionID, errMsg := middleware.ValidateElectionID(c.Params("id"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	result, err := h.tally.Tally(c.Context(), electionID)
	if err != nil {
		return mapLifecycleError(c, err)
	}
	return c.JSON(result)
}

// Recompute handles POST /elections/:id/results/recompute — the explicit
// cache-bust trigger.
func (h *ResultsHandler) Recompute(c fiber.Ctx) error {
	electionID, errMsg := middleware.ValidateElectionID(c.Params("id"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	result, err := h.tally.Recompute(c.Context(), electionID)
	if err != nil {
		return mapLifecycleError(c, err)
	}

	actor := actorFrom(c)
	entry := model.AuditLogEntry{
		ActionType:    model.ActionTallyRecompute,
		PerformedBy:   actor.UID,
		ElectionID:    &electionID,
		IPHash:        actor.IPHash,
		CorrelationID: uuid.New(),
	}
	if err := h.audit.Append(c.Context(), entry); err != nil {
		log.Warn().Err(err).Str("election_id", electionID.String()).Msg("audit: recompute entry failed")
	}

	Metrics.TalliesRun.Inc()
	return c.JSON(result)
}

// AuditTrail handles GET /admin/elections/:id/audit
func (h *ResultsHandler) AuditTrail(c fiber.Ctx) error {
	electionID, errMsg := middleware.ValidateElectionID(c.Params("id"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	entries, err := h.audit.ListByElection(c.Context(), electionID)
	if err != nil {
		return mapLifecycleError(c, err)
	}
	return c.JSON(fiber.Map{"entries": entries, "count": len(entries)})
}
