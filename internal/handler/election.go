package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/middleware"
	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/model"
	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/service"
)

type electionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Election, error)
	List(ctx context.Context) ([]model.Election, error)
}

type ElectionHandler struct {
	lifecycle *service.LifecycleService
	elections electionReader
}

func NewElectionHandler(lifecycle *service.LifecycleService, elections electionReader) *ElectionHandler {
	return &ElectionHandler{lifecycle: lifecycle, elections: elections}
}

// Get handles GET /elections/:id
func (h *ElectionHandler) Get(c fiber.Ctx) error {
	electionID, errMsg := middleware.ValidateElectionID(c.Params("id"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	e, err := h.elections.GetByID(c.Context(), electionID)
	if err != nil {
		return mapLifecycleError(c, err)
	}
	// Drafts are invisible outside the admin surface.
	if e.Status == model.StatusDraft {
		return middleware.ErrorResponse(c, fiber.StatusNotFound, "NOT_FOUND", "Election not found")
	}
	return c.JSON(e)
}

// List handles GET /elections
func (h *ElectionHandler) List(c fiber.Ctx) error {
	all, err := h.elections.List(c.Context())
	if err != nil {
		return mapLifecycleError(c, err)
	}
	visible := make([]model.Election, 0, len(all))
	for _, e := range all {
		if e.Status != model.StatusDraft {
			visible = append(visible, e)
		}
	}
	return c.JSON(fiber.Map{"elections": visible, "count": len(visible)})
}

// Create handles POST /admin/elections
func (h *ElectionHandler) Create(c fiber.Ctx) error {
	var req model.CreateElectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}

	title, errMsg := middleware.ValidateTitle(req.Title)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}
	req.Title = title

	question, errMsg := middleware.ValidateQuestion(req.Question)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}
	req.Question = question

	for i, a := range req.Answers {
		id, errMsg := middleware.ValidateAnswerID(a.ID)
		if errMsg != "" {
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
		}
		req.Answers[i].ID = id
	}

	e, err := h.lifecycle.Create(c.Context(), req, actorFrom(c))
	if err != nil {
		return mapLifecycleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

// Open handles POST /elections/:id/open — mints one token per eligible
// member and returns the plaintexts exactly once.
func (h *ElectionHandler) Open(c fiber.Ctx) error {
	electionID, errMsg := middleware.ValidateElectionID(c.Params("id"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	var req model.OpenElectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}

	resp, err := h.lifecycle.Open(c.Context(), electionID, req.EligibleMemberCount, actorFrom(c))
	if err != nil {
		return mapLifecycleError(c, err)
	}

	Metrics.TokensIssued.Add(float64(resp.Count))
	return c.JSON(resp)
}

// Publish handles POST /admin/elections/:id/publish
func (h *ElectionHandler) Publish(c fiber.Ctx) error {
	return h.transition(c, model.StatusPublished)
}

// Pause handles POST /admin/elections/:id/pause
func (h *ElectionHandler) Pause(c fiber.Ctx) error {
	return h.transition(c, model.StatusPaused)
}

// Resume handles POST /admin/elections/:id/resume
func (h *ElectionHandler) Resume(c fiber.Ctx) error {
	return h.transition(c, model.StatusOpen)
}

// Close handles POST /elections/:id/close — freezes ballots, enables tally.
func (h *ElectionHandler) Close(c fiber.Ctx) error {
	return h.transition(c, model.StatusClosed)
}

// Archive handles POST /admin/elections/:id/archive
func (h *ElectionHandler) Archive(c fiber.Ctx) error {
	return h.transition(c, model.StatusArchived)
}

// Delete handles DELETE /admin/elections/:id — soft, audit-preserving.
func (h *ElectionHandler) Delete(c fiber.Ctx) error {
	return h.transition(c, model.StatusDeleted)
}

func (h *ElectionHandler) transition(c fiber.Ctx, to model.ElectionStatus) error {
	electionID, errMsg := middleware.ValidateElectionID(c.Params("id"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	if err := h.lifecycle.Transition(c.Context(), electionID, to, actorFrom(c)); err != nil {
		return mapLifecycleError(c, err)
	}
	return c.JSON(fiber.Map{"status": to})
}

// actorFrom reads the authenticated uid set by the auth middleware.
func actorFrom(c fiber.Ctx) service.Actor {
	uid, _ := c.Locals("uid").(string)
	return service.Actor{UID: uid, IPHash: middleware.HashIP(c.IP())}
}

func mapLifecycleError(c fiber.Ctx, err error) error {
	var vErr *model.ValidationError
	var sErr *model.StateError

	switch {
	case errors.As(err, &vErr):
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", vErr.Error())
	case errors.As(err, &sErr):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "ILLEGAL_STATE", sErr.Error())
	case errors.Is(err, model.ErrNotFound):
		return middleware.ErrorResponse(c, fiber.StatusNotFound, "NOT_FOUND", "Election not found")
	case errors.Is(err, model.ErrUnavailable):
		return middleware.ErrorResponse(c, fiber.StatusServiceUnavailable, "UNAVAILABLE", "Try again later")
	default:
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Operation failed")
	}
}
