package server

import (
	"strconv"

	"ebantek/internal/models"

	"github.com/gofiber/fiber/v2"
)

// UpdateRequestStatus handles POST /api/requests/:id/status. It drives the
// forward workflow steps (review, verify, approve, progress, complete); the
// permission needed depends on the target status and is checked by the
// service layer.
func (s *Server) UpdateRequestStatus(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}
	id, err := requestIDParam(c)
	if err != nil {
		return nil
	}

	var body struct {
		Status  models.RequestStatus `json:"status"`
		Comment string               `json:"comment"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Format permintaan tidak valid"))
	}

	req, err := s.requestService.UpdateStatus(c.Context(), actor, id, body.Status, body.Comment)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(req)
}

// RejectRequest handles POST /api/requests/:id/reject. A reason is mandatory
// and lands in the audit trail.
func (s *Server) RejectRequest(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}
	id, err := requestIDParam(c)
	if err != nil {
		return nil
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Format permintaan tidak valid"))
	}

	req, err := s.requestService.Reject(c.Context(), actor, id, body.Reason)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(req)
}

// AssignRequest handles POST /api/requests/:id/assign. The assignee must hold
// the technical manager role.
func (s *Server) AssignRequest(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}
	id, err := requestIDParam(c)
	if err != nil {
		return nil
	}

	var body struct {
		AssigneeID uint   `json:"assignee_id"`
		Comment    string `json:"comment"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Format permintaan tidak valid"))
	}
	if body.AssigneeID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Pengelola teknis wajib dipilih"))
	}

	req, err := s.requestService.Assign(c.Context(), actor, id, body.AssigneeID, body.Comment)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(req)
}

// GetAllRequests handles GET /api/requests with an optional ?status= filter
// (staff roles only).
func (s *Server) GetAllRequests(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}

	p := parsePagination(c, 20)
	status := models.RequestStatus(c.Query("status"))
	requests, err := s.requestService.ListAll(c.Context(), actor, status, p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"requests": requests})
}

// GetAssignedRequests handles GET /api/requests/assigned for technical
// managers.
func (s *Server) GetAssignedRequests(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}

	p := parsePagination(c, 20)
	requests, err := s.requestService.ListAssigned(c.Context(), actor, p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"requests": requests})
}

// GetStatistics handles GET /api/requests/statistics. Staff see the global
// aggregate or any ?requester_id= scope; requesters always get their own.
func (s *Server) GetStatistics(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}

	var requesterID *uint
	if raw := c.Query("requester_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Parameter requester_id tidak valid"))
		}
		uid := uint(id)
		requesterID = &uid
	}

	stats, err := s.requestService.Statistics(c.Context(), actor, requesterID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(stats)
}
