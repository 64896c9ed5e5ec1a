package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/middleware"
	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/model"
	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/service"
)

type VoteHandler struct {
	svc *service.BallotService
}

func NewVoteHandler(svc *service.BallotService) *VoteHandler {
	return &VoteHandler{svc: svc}
}

// Submit handles POST /elections/:id/vote
// Token failures deliberately share one generic response so callers cannot
// probe which failure mode occurred.
func (h *VoteHandler) Submit(c fiber.Ctx) error {
	electionID, errMsg := middleware.ValidateElectionID(c.Params("id"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	var req model.VoteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}

	tok, errMsg := middleware.ValidateTokenShape(req.Token)
	if errMsg != "" {
		return tokenRejected(c)
	}
	req.Token = tok

	if err := h.svc.Submit(c.Context(), electionID, req); err != nil {
		return mapVoteError(c, err)
	}

	Metrics.BallotsTotal.WithLabelValues("accepted").Inc()
	return c.JSON(model.VoteResponse{Accepted: true})
}

func mapVoteError(c fiber.Ctx, err error) error {
	var vErr *model.ValidationError
	var sErr *model.StateError

	switch {
	case errors.Is(err, model.ErrTokenRejected):
		Metrics.BallotsTotal.WithLabelValues("token_rejected").Inc()
		return tokenRejected(c)
	case errors.As(err, &vErr):
		Metrics.BallotsTotal.WithLabelValues("invalid_shape").Inc()
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BALLOT", vErr.Error())
	case errors.As(err, &sErr):
		Metrics.BallotsTotal.WithLabelValues("wrong_state").Inc()
		return middleware.ErrorResponse(c, fiber.StatusConflict, "ILLEGAL_STATE", sErr.Error())
	case errors.Is(err, model.ErrNotFound):
		return middleware.ErrorResponse(c, fiber.StatusNotFound, "NOT_FOUND", "Election not found")
	case errors.Is(err, model.ErrUnavailable):
		return middleware.ErrorResponse(c, fiber.StatusServiceUnavailable, "UNAVAILABLE", "Try again later")
	default:
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to submit ballot")
	}
}

// tokenRejected is the single uniform response for every token problem.
func tokenRejected(c fiber.Ctx) error {
	return middleware.ErrorResponse(c, fiber.StatusUnprocessableEntity, "BALLOT_REJECTED", "Ballot could not be accepted")
}
