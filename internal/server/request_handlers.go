package server

import (
	"io"

	"ebantek/internal/models"
	"ebantek/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateRequest handles POST /api/requests
// @Summary Create a request draft
// @Tags requests
// @Accept json
// @Produce json
// @Param request body service.CreateRequestInput true "Request form"
// @Success 201 {object} models.ServiceRequest
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /requests [post]
func (s *Server) CreateRequest(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}

	var in service.CreateRequestInput
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Format permintaan tidak valid"))
	}

	req, err := s.requestService.CreateRequest(c.Context(), actor, in)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// GetMyRequests handles GET /api/requests/me
func (s *Server) GetMyRequests(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}

	p := parsePagination(c, 20)
	status := models.RequestStatus(c.Query("status"))
	requests, err := s.requestService.ListMine(c.Context(), actor, status, p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"requests": requests})
}

// GetRequest handles GET /api/requests/:id
func (s *Server) GetRequest(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}
	id, err := requestIDParam(c)
	if err != nil {
		return nil
	}

	req, err := s.requestService.GetRequest(c.Context(), actor, id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(req)
}

// UpdateRequest handles PUT /api/requests/:id. Only drafts and rejected
// requests accept edits.
func (s *Server) UpdateRequest(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}
	id, err := requestIDParam(c)
	if err != nil {
		return nil
	}

	var in service.UpdateRequestInput
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Format permintaan tidak valid"))
	}

	req, err := s.requestService.UpdateRequest(c.Context(), actor, id, in)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(req)
}

// SubmitRequest handles POST /api/requests/:id/submit. Submission runs the
// full per-service-type validation; violations come back all at once with a
// 422 and leave the request untouched.
func (s *Server) SubmitRequest(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}
	id, err := requestIDParam(c)
	if err != nil {
		return nil
	}

	req, err := s.requestService.Submit(c.Context(), actor, id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(req)
}

// CancelRequest handles POST /api/requests/:id/cancel
func (s *Server) CancelRequest(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}
	id, err := requestIDParam(c)
	if err != nil {
		return nil
	}

	var body struct {
		Comment string `json:"comment"`
	}
	_ = c.BodyParser(&body)

	req, err := s.requestService.Cancel(c.Context(), actor, id, body.Comment)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(req)
}

// DeleteRequest handles DELETE /api/requests/:id (drafts only).
func (s *Server) DeleteRequest(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}
	id, err := requestIDParam(c)
	if err != nil {
		return nil
	}

	if err := s.requestService.DeleteRequest(c.Context(), actor, id); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Permohonan dihapus"})
}

// AddComment handles POST /api/requests/:id/comments
func (s *Server) AddComment(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}
	id, err := requestIDParam(c)
	if err != nil {
		return nil
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Format permintaan tidak valid"))
	}

	comment, err := s.requestService.AddComment(c.Context(), actor, id, body.Text)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// UploadRequestFile handles POST /api/requests/:id/files (multipart). The
// optional "slot" form field fills a named document slot on the request.
func (s *Server) UploadRequestFile(c *fiber.Ctx) error {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil
	}
	id, err := requestIDParam(c)
	if err != nil {
		return nil
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Berkas unggahan tidak ditemukan"))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Berkas unggahan tidak dapat dibaca"))
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Berkas unggahan tidak dapat dibaca"))
	}

	stored, err := s.fileService.Store(service.UploadFileInput{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Content:     content,
		UploaderID:  actor.ID,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	slot := c.FormValue("slot")
	if err := s.requestService.AttachFile(c.Context(), actor, id, stored, slot); err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(stored)
}

// DownloadRequestFile handles GET /api/requests/:id/files/:fileId
func (s *Server) DownloadRequestFile(c *fiber.Ctx) error {
	file, ok := s.authorizeFileAccess(c)
	if !ok {
		return nil
	}

	path, err := s.fileService.Resolve(file.ContentRef)
	if err != nil {
		return respondServiceError(c, err)
	}
	c.Set(fiber.HeaderContentType, file.MimeType)
	return c.SendFile(path)
}

// PreviewRequestFile handles GET /api/requests/:id/files/:fileId/preview.
// Only image uploads carry a generated WebP preview.
func (s *Server) PreviewRequestFile(c *fiber.Ctx) error {
	file, ok := s.authorizeFileAccess(c)
	if !ok {
		return nil
	}

	previewRef := s.fileService.PreviewRef(file)
	if previewRef == "" {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Pratinjau", file.ID))
	}

	path, err := s.fileService.Resolve(previewRef)
	if err != nil {
		return respondServiceError(c, err)
	}
	c.Set(fiber.HeaderContentType, "image/webp")
	return c.SendFile(path)
}

// authorizeFileAccess loads the request (enforcing view access) and the file,
// verifying the file belongs to that request. On failure the response has
// been written and ok is false.
func (s *Server) authorizeFileAccess(c *fiber.Ctx) (*models.RequestFile, bool) {
	actor, err := s.requireActor(c)
	if err != nil {
		return nil, false
	}
	id, err := requestIDParam(c)
	if err != nil {
		return nil, false
	}

	// GetRequest enforces view access for the actor.
	req, err := s.requestService.GetRequest(c.Context(), actor, id)
	if err != nil {
		_ = respondServiceError(c, err)
		return nil, false
	}

	fileID := c.Params("fileId")
	for i := range req.Files {
		if req.Files[i].ID == fileID {
			return &req.Files[i], true
		}
	}

	_ = models.RespondWithError(c, fiber.StatusNotFound,
		models.NewNotFoundError("Berkas", fileID))
	return nil, false
}
