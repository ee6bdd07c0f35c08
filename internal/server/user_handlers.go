package server

import (
	"ebantek/internal/models"
	"ebantek/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /api/users/me
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}
	return c.JSON(actor)
}

// UpdateMyProfile handles PUT /api/users/me. Email and role are immutable;
// only contact details can change.
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}

	var req struct {
		Name         string `json:"name"`
		Phone        string `json:"phone"`
		Organization string `json:"organization"`
		Position     string `json:"position"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Format permintaan tidak valid"))
	}

	updated, err := s.userService.UpdateProfile(c.Context(), service.UpdateProfileInput{
		UserID:       actor.ID,
		Name:         req.Name,
		Phone:        req.Phone,
		Organization: req.Organization,
		Position:     req.Position,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(updated)
}

// GetAllUsers handles GET /api/users (administrators only).
func (s *Server) GetAllUsers(c *fiber.Ctx) error {
	p := parsePagination(c, 20)
	users, err := s.userService.ListUsers(c.Context(), p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"users": users})
}

// GetTechnicalManagers handles GET /api/users/technical-managers. Heads of
// section pick an assignee from this list.
func (s *Server) GetTechnicalManagers(c *fiber.Ctx) error {
	managers, err := s.userService.ListTechnicalManagers(c.Context())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"users": managers})
}

// GetUserProfile handles GET /api/users/:id (administrators only).
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.userService.GetUserByID(c.Context(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(user)
}
