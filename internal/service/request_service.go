// Package service implements the application's business logic layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ebantek/internal/cache"
	"ebantek/internal/middleware"
	"ebantek/internal/models"
	"ebantek/internal/observability"
	"ebantek/internal/repository"
	"ebantek/internal/validation"
)

// StatusNotifier receives status-change events for fan-out to connected
// clients. Implementations must not block the caller.
type StatusNotifier interface {
	StatusChanged(ctx context.Context, req *models.ServiceRequest, from, to models.RequestStatus, actorID uint)
}

// RequestService drives the service-request lifecycle: creation, editing,
// submission, review transitions, assignment and deletion.
type RequestService struct {
	requestRepo repository.RequestRepository
	userRepo    repository.UserRepository
	draftRepo   repository.DraftRepository
	notifier    StatusNotifier
}

// NewRequestService returns a new RequestService. draftRepo and notifier may
// be nil.
func NewRequestService(
	requestRepo repository.RequestRepository,
	userRepo repository.UserRepository,
	draftRepo repository.DraftRepository,
	notifier StatusNotifier,
) *RequestService {
	return &RequestService{
		requestRepo: requestRepo,
		userRepo:    userRepo,
		draftRepo:   draftRepo,
		notifier:    notifier,
	}
}

// CreateRequestInput is the payload for creating a request draft.
type CreateRequestInput struct {
	ServiceType models.ServiceType   `json:"service_type"`
	Applicant   models.ApplicantInfo `json:"applicant"`
	Building    models.BuildingInfo  `json:"building"`
	Documents   models.JSONMap       `json:"documents"`
	Extras      models.JSONMap       `json:"extras"`
}

// UpdateRequestInput carries editable form fields. Only drafts and rejected
// requests accept edits, and only by their owner.
type UpdateRequestInput struct {
	Applicant models.ApplicantInfo `json:"applicant"`
	Building  models.BuildingInfo  `json:"building"`
	Documents models.JSONMap       `json:"documents"`
	Extras    models.JSONMap       `json:"extras"`
}

// CreateRequest creates a new draft owned by the actor.
func (s *RequestService) CreateRequest(ctx context.Context, actor *models.User, in CreateRequestInput) (*models.ServiceRequest, error) {
	if !models.RoleHasPermission(actor.Role, models.PermissionCreateRequest) {
		return nil, models.NewAccessDeniedError("Anda tidak memiliki izin untuk membuat permohonan")
	}
	if !in.ServiceType.Valid() {
		return nil, models.NewValidationError("Jenis layanan tidak dikenal")
	}

	req := &models.ServiceRequest{
		ID:          models.NewRequestID(),
		ServiceType: in.ServiceType,
		RequesterID: actor.ID,
		Status:      models.StatusDraft,
		Version:     1,
		Applicant:   in.Applicant,
		Building:    in.Building,
		Documents:   in.Documents,
		Extras:      in.Extras,
	}
	if req.Documents == nil {
		req.Documents = models.JSONMap{}
	}
	if req.Extras == nil {
		req.Extras = models.JSONMap{}
	}

	if err := s.requestRepo.Create(ctx, req); err != nil {
		return nil, err
	}

	observability.RequestsCreated.WithLabelValues(string(req.ServiceType)).Inc()
	middleware.Logger.InfoContext(ctx, "request created",
		slog.String("request_id", req.ID),
		slog.String("service_type", string(req.ServiceType)),
	)
	return req, nil
}

// GetRequest loads a request with its history, comments and files, enforcing
// visibility rules for the actor.
func (s *RequestService) GetRequest(ctx context.Context, actor *models.User, id string) (*models.ServiceRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, req) {
		return nil, models.NewAccessDeniedError("Anda tidak memiliki akses ke permohonan ini")
	}
	return req, nil
}

// canView implements request visibility: global viewers see everything, owners
// see their own, assignees see what is assigned to them.
func (s *RequestService) canView(actor *models.User, req *models.ServiceRequest) bool {
	if models.RoleHasPermission(actor.Role, models.PermissionViewAllRequests) {
		return true
	}
	if req.RequesterID == actor.ID && models.RoleHasPermission(actor.Role, models.PermissionViewOwnRequests) {
		return true
	}
	if req.AssignedTo != nil && *req.AssignedTo == actor.ID &&
		models.RoleHasPermission(actor.Role, models.PermissionViewAssignedRequests) {
		return true
	}
	return false
}

// isEditable reports whether the request accepts form edits.
func isEditable(status models.RequestStatus) bool {
	return status == models.StatusDraft || status == models.StatusRejected
}

// UpdateRequest applies form edits. Only the owner may edit, and only while
// the request is a draft or was rejected.
func (s *RequestService) UpdateRequest(ctx context.Context, actor *models.User, id string, in UpdateRequestInput) (*models.ServiceRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.RequesterID != actor.ID || !models.RoleHasPermission(actor.Role, models.PermissionEditOwnRequests) {
		return nil, models.NewAccessDeniedError("Hanya pemilik permohonan yang dapat mengubah data")
	}
	if !isEditable(req.Status) {
		return nil, models.NewInvalidStateError(
			fmt.Sprintf("Permohonan dengan status %s tidak dapat diubah", req.Status))
	}

	req.Applicant = in.Applicant
	req.Building = in.Building
	if in.Documents != nil {
		req.Documents = in.Documents
	}
	if in.Extras != nil {
		req.Extras = in.Extras
	}

	if err := s.requestRepo.Update(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Submit validates the request against its service type's rule table and, if
// complete, moves it to SUBMITTED. A failed validation leaves the request
// untouched so submission can be retried after fixing the form.
func (s *RequestService) Submit(ctx context.Context, actor *models.User, id string) (*models.ServiceRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.RequesterID != actor.ID {
		return nil, models.NewAccessDeniedError("Hanya pemilik permohonan yang dapat mengajukan")
	}
	if !models.CanTransition(req.Status, models.StatusSubmitted) {
		return nil, models.NewInvalidStateError(
			fmt.Sprintf("Permohonan dengan status %s tidak dapat diajukan", req.Status))
	}

	if violations := validation.ValidateForSubmission(req); len(violations) > 0 {
		observability.ValidationFailures.WithLabelValues(string(req.ServiceType)).Inc()
		return nil, models.NewValidationFailedError(violations)
	}

	from := req.Status
	now := time.Now()
	req.Status = models.StatusSubmitted
	if req.SubmittedAt == nil {
		req.SubmittedAt = &now
	}

	if err := s.applyTransition(ctx, req, from, models.StatusSubmitted, "", actor.ID); err != nil {
		return nil, err
	}
	s.removeDraftSnapshot(ctx, req.RequesterID, req.ID)
	return req, nil
}

// reviewPermission returns the permission required to move a request into the
// target state. Targets missing from the table are not reachable through
// UpdateStatus.
func reviewPermission(to models.RequestStatus) (models.Permission, bool) {
	switch to {
	case models.StatusUnderReview, models.StatusVerified:
		return models.PermissionVerifyRequests, true
	case models.StatusApproved:
		return models.PermissionFinalApproval, true
	case models.StatusInProgress:
		return models.PermissionUpdateProgress, true
	case models.StatusCompleted:
		return models.PermissionCompleteRequests, true
	default:
		return "", false
	}
}

// UpdateStatus performs a reviewer/worker transition. Submission, rejection,
// cancellation and assignment have their own entry points.
func (s *RequestService) UpdateStatus(ctx context.Context, actor *models.User, id string, to models.RequestStatus, comment string) (*models.ServiceRequest, error) {
	if !to.Valid() {
		return nil, models.NewValidationError("Status tujuan tidak dikenal")
	}

	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	perm, ok := reviewPermission(to)
	if !ok {
		return nil, models.NewValidationError(
			fmt.Sprintf("Status %s tidak dapat dituju melalui operasi ini", to))
	}
	if !models.RoleHasPermission(actor.Role, perm) {
		return nil, models.NewAccessDeniedError("Anda tidak memiliki izin untuk mengubah status ini")
	}

	// Progress and completion belong to the assigned technical manager.
	if to == models.StatusInProgress || to == models.StatusCompleted {
		isAssignee := req.AssignedTo != nil && *req.AssignedTo == actor.ID
		if !isAssignee && !models.RoleHasPermission(actor.Role, models.PermissionManageSystem) {
			return nil, models.NewAccessDeniedError("Hanya pengelola teknis yang ditugaskan yang dapat memperbarui progres")
		}
	}

	if !models.CanTransition(req.Status, to) {
		return nil, models.NewInvalidStateError(
			fmt.Sprintf("Transisi dari %s ke %s tidak diizinkan", req.Status, to))
	}

	from := req.Status
	req.Status = to
	if to == models.StatusCompleted && req.CompletedAt == nil {
		now := time.Now()
		req.CompletedAt = &now
	}

	if err := s.applyTransition(ctx, req, from, to, comment, actor.ID); err != nil {
		return nil, err
	}
	return req, nil
}

// Reject moves a request to REJECTED from any reviewable state. A reason is
// mandatory so the requester knows what to fix before resubmitting.
func (s *RequestService) Reject(ctx context.Context, actor *models.User, id string, reason string) (*models.ServiceRequest, error) {
	if reason == "" {
		return nil, models.NewValidationError("Alasan penolakan wajib diisi")
	}

	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	canReject := models.RoleHasPermission(actor.Role, models.PermissionVerifyRequests) ||
		models.RoleHasPermission(actor.Role, models.PermissionFinalApproval)
	if !canReject {
		return nil, models.NewAccessDeniedError("Anda tidak memiliki izin untuk menolak permohonan")
	}

	if !models.CanTransition(req.Status, models.StatusRejected) {
		return nil, models.NewInvalidStateError(
			fmt.Sprintf("Permohonan dengan status %s tidak dapat ditolak", req.Status))
	}

	from := req.Status
	req.Status = models.StatusRejected

	if err := s.applyTransition(ctx, req, from, models.StatusRejected, reason, actor.ID); err != nil {
		return nil, err
	}
	return req, nil
}

// Cancel withdraws a request. Only the owner may cancel, and only before the
// workflow has moved past review intake.
func (s *RequestService) Cancel(ctx context.Context, actor *models.User, id string, comment string) (*models.ServiceRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.RequesterID != actor.ID && !models.RoleHasPermission(actor.Role, models.PermissionManageSystem) {
		return nil, models.NewAccessDeniedError("Hanya pemilik permohonan yang dapat membatalkan")
	}
	if !models.CanTransition(req.Status, models.StatusCancelled) {
		return nil, models.NewInvalidStateError(
			fmt.Sprintf("Permohonan dengan status %s tidak dapat dibatalkan", req.Status))
	}

	from := req.Status
	req.Status = models.StatusCancelled

	if err := s.applyTransition(ctx, req, from, models.StatusCancelled, comment, actor.ID); err != nil {
		return nil, err
	}
	return req, nil
}

// Assign attaches an approved request to a technical manager and moves it to
// ASSIGNED. The assignment is recorded in the audit trail.
func (s *RequestService) Assign(ctx context.Context, actor *models.User, id string, assigneeID uint, comment string) (*models.ServiceRequest, error) {
	if !models.RoleHasPermission(actor.Role, models.PermissionAssignTechnicalManagers) {
		return nil, models.NewAccessDeniedError("Anda tidak memiliki izin untuk menugaskan pengelola teknis")
	}

	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(req.Status, models.StatusAssigned) {
		return nil, models.NewInvalidStateError(
			fmt.Sprintf("Permohonan dengan status %s tidak dapat ditugaskan", req.Status))
	}

	assignee, err := s.userRepo.GetByID(ctx, assigneeID)
	if err != nil {
		return nil, err
	}
	if assignee.Role != models.RolePengelolaTeknis {
		return nil, models.NewValidationError("Penugasan hanya dapat diberikan kepada pengelola teknis")
	}

	from := req.Status
	now := time.Now()
	req.Status = models.StatusAssigned
	req.AssignedTo = &assignee.ID
	req.AssignedBy = &actor.ID
	if req.AssignedAt == nil {
		req.AssignedAt = &now
	}

	if comment == "" {
		comment = fmt.Sprintf("Ditugaskan kepada %s", assignee.Name)
	}
	if err := s.applyTransition(ctx, req, from, models.StatusAssigned, comment, actor.ID); err != nil {
		return nil, err
	}
	return req, nil
}

// AddComment appends a discussion entry. Commenting requires both the
// permission and visibility of the request.
func (s *RequestService) AddComment(ctx context.Context, actor *models.User, id string, text string) (*models.RequestComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.NewValidationError("Komentar tidak boleh kosong")
	}
	if !models.RoleHasPermission(actor.Role, models.PermissionAddComments) {
		return nil, models.NewAccessDeniedError("Anda tidak memiliki izin untuk menambah komentar")
	}

	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, req) {
		return nil, models.NewAccessDeniedError("Anda tidak memiliki akses ke permohonan ini")
	}

	comment := &models.RequestComment{
		RequestID: req.ID,
		Text:      text,
		AuthorID:  actor.ID,
	}
	if err := s.requestRepo.AppendComment(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// AttachFile links an uploaded file to a request, optionally filling a named
// document slot on the form.
func (s *RequestService) AttachFile(ctx context.Context, actor *models.User, id string, file *models.RequestFile, slot string) error {
	if !models.RoleHasPermission(actor.Role, models.PermissionUploadDocuments) {
		return models.NewAccessDeniedError("Anda tidak memiliki izin untuk mengunggah dokumen")
	}

	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	isOwner := req.RequesterID == actor.ID
	isAssignee := req.AssignedTo != nil && *req.AssignedTo == actor.ID
	if !isOwner && !isAssignee && !models.RoleHasPermission(actor.Role, models.PermissionManageSystem) {
		return models.NewAccessDeniedError("Anda tidak memiliki akses ke permohonan ini")
	}

	file.RequestID = req.ID
	if err := s.requestRepo.AppendFile(ctx, file); err != nil {
		return err
	}

	if slot != "" {
		if req.Documents == nil {
			req.Documents = models.JSONMap{}
		}
		req.Documents[slot] = file.ID
		if err := s.requestRepo.Update(ctx, req); err != nil {
			return err
		}
	}

	observability.FileUploads.WithLabelValues(file.MimeType).Inc()
	return nil
}

// DeleteRequest removes a request permanently. Only draft requests can be
// deleted, and only by their owner.
func (s *RequestService) DeleteRequest(ctx context.Context, actor *models.User, id string) error {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	isOwner := req.RequesterID == actor.ID && models.RoleHasPermission(actor.Role, models.PermissionDeleteOwnDrafts)
	if !isOwner && !models.RoleHasPermission(actor.Role, models.PermissionManageSystem) {
		return models.NewAccessDeniedError("Hanya pemilik permohonan yang dapat menghapus")
	}
	if req.Status != models.StatusDraft {
		return models.NewInvalidStateError("Hanya permohonan berstatus DRAFT yang dapat dihapus")
	}

	if err := s.requestRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.removeDraftSnapshot(ctx, req.RequesterID, req.ID)
	return nil
}

// ListMine returns the actor's own requests, optionally filtered by status.
func (s *RequestService) ListMine(ctx context.Context, actor *models.User, status models.RequestStatus, limit, offset int) ([]models.ServiceRequest, error) {
	if !models.RoleHasPermission(actor.Role, models.PermissionViewOwnRequests) {
		return nil, models.NewAccessDeniedError("Anda tidak memiliki izin untuk melihat permohonan")
	}
	if status != "" {
		if !status.Valid() {
			return nil, models.NewValidationError("Status filter tidak dikenal")
		}
		return s.requestRepo.ListByStatus(ctx, status, &actor.ID, limit, offset)
	}
	return s.requestRepo.ListByRequester(ctx, actor.ID, limit, offset)
}

// ListAssigned returns requests assigned to the actor.
func (s *RequestService) ListAssigned(ctx context.Context, actor *models.User, limit, offset int) ([]models.ServiceRequest, error) {
	if !models.RoleHasPermission(actor.Role, models.PermissionViewAssignedRequests) {
		return nil, models.NewAccessDeniedError("Anda tidak memiliki izin untuk melihat penugasan")
	}
	return s.requestRepo.ListByAssignee(ctx, actor.ID, limit, offset)
}

// ListAll returns every request, optionally filtered by status.
func (s *RequestService) ListAll(ctx context.Context, actor *models.User, status models.RequestStatus, limit, offset int) ([]models.ServiceRequest, error) {
	if !models.RoleHasPermission(actor.Role, models.PermissionViewAllRequests) {
		return nil, models.NewAccessDeniedError("Anda tidak memiliki izin untuk melihat semua permohonan")
	}
	if status != "" {
		if !status.Valid() {
			return nil, models.NewValidationError("Status filter tidak dikenal")
		}
		return s.requestRepo.ListByStatus(ctx, status, nil, limit, offset)
	}
	return s.requestRepo.List(ctx, limit, offset)
}

// Statistics aggregates per-status counts for dashboards. Staff with
// view_statistics get the global aggregate (or any requester's scope);
// requesters get their own scope via view_own_requests. The global aggregate
// is cached briefly because every dashboard load hits it; scoped aggregates
// are cheap per-owner queries and skip the cache.
func (s *RequestService) Statistics(ctx context.Context, actor *models.User, requesterID *uint) (*models.Statistics, error) {
	scope := requesterID
	if !models.RoleHasPermission(actor.Role, models.PermissionViewStatistics) {
		ownScope := scope == nil || *scope == actor.ID
		if !ownScope || !models.RoleHasPermission(actor.Role, models.PermissionViewOwnRequests) {
			return nil, models.NewAccessDeniedError("Anda tidak memiliki izin untuk melihat statistik")
		}
		scope = &actor.ID
	}

	if scope != nil {
		counts, err := s.requestRepo.CountByStatus(ctx, scope)
		if err != nil {
			return nil, err
		}
		stats := buildStatistics(counts)
		return &stats, nil
	}

	var stats models.Statistics
	err := cache.Aside(ctx, cache.StatisticsKey, &stats, cache.StatisticsTTL, func() error {
		counts, err := s.requestRepo.CountByStatus(ctx, nil)
		if err != nil {
			return err
		}
		stats = buildStatistics(counts)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func buildStatistics(counts map[models.RequestStatus]int64) models.Statistics {
	stats := models.Statistics{
		Draft:     counts[models.StatusDraft],
		Submitted: counts[models.StatusSubmitted],
		Completed: counts[models.StatusCompleted],
		Rejected:  counts[models.StatusRejected],
		Cancelled: counts[models.StatusCancelled],
	}
	for _, st := range models.InProgressStatuses {
		stats.InProgress += counts[st]
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats
}

// applyTransition commits the status change and its audit entry atomically,
// then bumps metrics and notifies listeners. The caller's mutation of req is
// only durable when this returns nil.
func (s *RequestService) applyTransition(ctx context.Context, req *models.ServiceRequest, from, to models.RequestStatus, comment string, actorID uint) error {
	tr := &models.StatusTransition{
		RequestID:  req.ID,
		FromStatus: from,
		ToStatus:   to,
		Comment:    comment,
		ActorID:    actorID,
	}
	if err := s.requestRepo.UpdateWithTransition(ctx, req, tr); err != nil {
		return err
	}
	req.StatusHistory = append(req.StatusHistory, *tr)

	observability.RecordStatusTransition(string(from), string(to))
	middleware.Logger.InfoContext(ctx, "request status changed",
		slog.String("request_id", req.ID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)

	if s.notifier != nil {
		s.notifier.StatusChanged(ctx, req, from, to, actorID)
	}
	return nil
}

// removeDraftSnapshot drops the auto-save snapshot keyed by the request id.
/// Best effort: the workflow operation has already succeeded, and most requests
// never had a snapshot in the first place.
func (s *RequestService) removeDraftSnapshot(ctx context.Context, ownerID uint, requestID string) {
	if s.draftRepo == nil {
		return
	}
	if err := s.draftRepo.Remove(ctx, ownerID, requestID); err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) && appErr.Code == models.CodeNotFound {
			return
		}
		middleware.Logger.WarnContext(ctx, "failed to remove draft snapshot",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}
}
