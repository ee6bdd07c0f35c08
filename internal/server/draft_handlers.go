package server

import (
	"ebantek/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SaveDraft handles PUT /api/requests/drafts/:key. Drafts are auto-save
// snapshots of not-yet-created requests, stored per user outside the
// workflow.
func (s *Server) SaveDraft(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}

	key := c.Params("key")
	if key == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Kunci draf tidak valid"))
	}

	var body struct {
		ServiceType models.ServiceType `json:"service_type"`
		FormData    models.JSONMap     `json:"form_data"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Format permintaan tidak valid"))
	}

	draft := &models.DraftSnapshot{
		Key:         key,
		ServiceType: body.ServiceType,
		FormData:    body.FormData,
	}
	if err := s.draftRepo.Save(c.Context(), actor.ID, draft); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(draft)
}

// ListDrafts handles GET /api/requests/drafts
func (s *Server) ListDrafts(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}

	drafts, err := s.draftRepo.List(c.Context(), actor.ID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"drafts": drafts})
}

// GetDraft handles GET /api/requests/drafts/:key
func (s *Server) GetDraft(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}

	draft, err := s.draftRepo.Get(c.Context(), actor.ID, c.Params("key"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(draft)
}

// DeleteDraft handles DELETE /api/requests/drafts/:key
func (s *Server) DeleteDraft(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}

	if err := s.draftRepo.Remove(c.Context(), actor.ID, c.Params("key")); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Draf dihapus"})
}
