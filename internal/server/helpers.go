package server

import (
	"errors"

	"ebantek/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const (
	maxPaginationLimit = 100
)

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

// requireActor loads the authenticated user referenced by the userID local.
// On failure it writes a 401 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) requireActor(c *fiber.Ctx) (*models.User, error) {
	userIDVal := c.Locals("userID")
	userID, ok := userIDVal.(uint)
	if !ok || userID == 0 {
		_ = models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Autentikasi diperlukan"))
		return nil, errResponseWritten
	}

	actor, err := s.userRepo.GetByID(c.Context(), userID)
	if err != nil {
		_ = respondServiceError(c, err)
		return nil, errResponseWritten
	}
	return actor, nil
}

// respondServiceError maps a service or repository error onto the HTTP
// response. Application errors carry their own status; anything else is an
// internal error.
func respondServiceError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return models.RespondWithError(c, appErr.HTTPStatus(), appErr)
	}
	return models.RespondWithError(c, fiber.StatusInternalServerError,
		models.NewInternalError(err))
}

// requestIDParam extracts the :id route parameter as a non-empty request ID.
// On failure it writes a 400 JSON response and returns errResponseWritten.
func requestIDParam(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if id == "" {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("ID permohonan tidak valid"))
		return "", errResponseWritten
	}
	return id, nil
}

// parseID extracts a numeric route parameter as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Parameter "+param+" tidak valid"))
		return 0, errResponseWritten
	}
	return uint(id), nil
}
