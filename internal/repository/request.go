package repository

import (
	"context"
	"errors"

	"ebantek/internal/cache"
	"ebantek/internal/models"
	"ebantek/internal/observability"

	"gorm.io/gorm"
)

// RequestRepository defines persistence operations for service requests.
type RequestRepository interface {
	Create(ctx context.Context, req *models.ServiceRequest) error
	GetByID(ctx context.Context, id string) (*models.ServiceRequest, error)
	// Update persists the request guarded by its Version column. It returns
	// a conflict error when another writer got there first.
	Update(ctx context.Context, req *models.ServiceRequest) error
	// UpdateWithTransition runs the version-guarded update and the history
	// append in one transaction: a status change never commits without its
	// audit entry.
	UpdateWithTransition(ctx context.Context, req *models.ServiceRequest, tr *models.StatusTransition) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]models.ServiceRequest, error)
	ListByRequester(ctx context.Context, requesterID uint, limit, offset int) ([]models.ServiceRequest, error)
	ListByAssignee(ctx context.Context, assigneeID uint, limit, offset int) ([]models.ServiceRequest, error)
	// ListByStatus filters by status, optionally scoped to one requester.
	ListByStatus(ctx context.Context, status models.RequestStatus, requesterID *uint, limit, offset int) ([]models.ServiceRequest, error)
	AppendTransition(ctx context.Context, tr *models.StatusTransition) error
	AppendComment(ctx context.Context, comment *models.RequestComment) error
	AppendFile(ctx context.Context, file *models.RequestFile) error
	GetFile(ctx context.Context, id string) (*models.RequestFile, error)
	// CountByStatus aggregates per-status counts, optionally scoped to one
	// requester.
	CountByStatus(ctx context.Context, requesterID *uint) (map[models.RequestStatus]int64, error)
}

// errStaleVersion marks a version-guard miss inside a transaction.
var errStaleVersion = errors.New("stale request version")

type requestRepository struct {
	db      *gorm.DB
	repoLog *observability.RepoLogger
}

// NewRequestRepository returns a new RequestRepository implementation.
func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{
		db:      db,
		repoLog: observability.NewRepoLogger("service_requests"),
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func (r *requestRepository) Create(ctx context.Context, req *models.ServiceRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Request", req.ID)
		}
		r.repoLog.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.repoLog.LogWrite(ctx, "create", map[string]interface{}{"request_id": req.ID})
	cache.Invalidate(ctx, cache.StatisticsKey)
	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	err := r.db.WithContext(ctx).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Files").
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Request", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &req, nil
}

func (r *requestRepository) Update(ctx context.Context, req *models.ServiceRequest) error {
	expected := req.Version
	req.Version = expected + 1

	res := r.db.WithContext(ctx).
		Model(&models.ServiceRequest{}).
		Where("id = ? AND version = ?", req.ID, expected).
		Select("*").
		Omit("created_at").
		Updates(req)
	if res.Error != nil {
		req.Version = expected
		r.repoLog.LogError(ctx, res.Error, "update")
		return models.NewInternalError(res.Error)
	}

	if res.RowsAffected == 0 {
		req.Version = expected

		var count int64
		if err := r.db.WithContext(ctx).
			Model(&models.ServiceRequest{}).
			Where("id = ?", req.ID).
			Count(&count).Error; err != nil {
			return models.NewInternalError(err)
		}
		if count == 0 {
			return models.NewNotFoundError("Request", req.ID)
		}
		return models.NewConflictError("Request", req.ID)
	}

	r.repoLog.LogWrite(ctx, "update", map[string]interface{}{
		"request_id": req.ID,
		"version":    req.Version,
	})
	cache.InvalidateRequest(ctx, req.ID)
	return nil
}

func (r *requestRepository) UpdateWithTransition(ctx context.Context, req *models.ServiceRequest, tr *models.StatusTransition) error {
	expected := req.Version
	req.Version = expected + 1

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ServiceRequest{}).
			Where("id = ? AND version = ?", req.ID, expected).
			Select("*").
			Omit("created_at").
			Updates(req)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.ServiceRequest{}).
				Where("id = ?", req.ID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return gorm.ErrRecordNotFound
			}
			return errStaleVersion
		}
		return tx.Create(tr).Error
	})
	if err != nil {
		req.Version = expected
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return models.NewNotFoundError("Request", req.ID)
		case errors.Is(err, errStaleVersion):
			return models.NewConflictError("Request", req.ID)
		}
		r.repoLog.LogError(ctx, err, "update_with_transition")
		return models.NewInternalError(err)
	}

	r.repoLog.LogWrite(ctx, "update_with_transition", map[string]interface{}{
		"request_id": req.ID,
		"version":    req.Version,
		"to_status":  string(tr.ToStatus),
	})
	cache.InvalidateRequest(ctx, req.ID)
	return nil
}

func (r *requestRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("request_id = ?", id).Delete(&models.StatusTransition{}).Error; err != nil {
			return err
		}
		if err := tx.Where("request_id = ?", id).Delete(&models.RequestComment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("request_id = ?", id).Delete(&models.RequestFile{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.ServiceRequest{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Request", id)
		}
		r.repoLog.LogError(ctx, err, "delete")
		return models.NewInternalError(err)
	}

	r.repoLog.LogWrite(ctx, "delete", map[string]interface{}{"request_id": id})
	cache.InvalidateRequest(ctx, id)
	return nil
}

func (r *requestRepository) List(ctx context.Context, limit, offset int) ([]models.ServiceRequest, error) {
	var reqs []models.ServiceRequest
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Offset(offset).
		Find(&reqs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

func (r *requestRepository) ListByRequester(ctx context.Context, requesterID uint, limit, offset int) ([]models.ServiceRequest, error) {
	var reqs []models.ServiceRequest
	if err := r.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Offset(offset).
		Find(&reqs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

func (r *requestRepository) ListByAssignee(ctx context.Context, assigneeID uint, limit, offset int) ([]models.ServiceRequest, error) {
	var reqs []models.ServiceRequest
	if err := r.db.WithContext(ctx).
		Where("assigned_to = ?", assigneeID).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Offset(offset).
		Find(&reqs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

func (r *requestRepository) ListByStatus(ctx context.Context, status models.RequestStatus, requesterID *uint, limit, offset int) ([]models.ServiceRequest, error) {
	q := r.db.WithContext(ctx).Where("status = ?", status)
	if requesterID != nil {
		q = q.Where("requester_id = ?", *requesterID)
	}

	var reqs []models.ServiceRequest
	if err := q.
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Offset(offset).
		Find(&reqs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

func (r *requestRepository) AppendTransition(ctx context.Context, tr *models.StatusTransition) error {
	if err := r.db.WithContext(ctx).Create(tr).Error; err != nil {
		r.repoLog.LogError(ctx, err, "append_transition")
		return models.NewInternalError(err)
	}
	return nil
}

func (r *requestRepository) AppendComment(ctx context.Context, comment *models.RequestComment) error {
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		r.repoLog.LogError(ctx, err, "append_comment")
		return models.NewInternalError(err)
	}
	return nil
}

func (r *requestRepository) AppendFile(ctx context.Context, file *models.RequestFile) error {
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		r.repoLog.LogError(ctx, err, "append_file")
		return models.NewInternalError(err)
	}
	return nil
}

func (r *requestRepository) GetFile(ctx context.Context, id string) (*models.RequestFile, error) {
	var file models.RequestFile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("File", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &file, nil
}

func (r *requestRepository) CountByStatus(ctx context.Context, requesterID *uint) (map[models.RequestStatus]int64, error) {
	type statusCount struct {
		Status models.RequestStatus
		Count  int64
	}

	q := r.db.WithContext(ctx).Model(&models.ServiceRequest{})
	if requesterID != nil {
		q = q.Where("requester_id = ?", *requesterID)
	}

	var rows []statusCount
	if err := q.
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	counts := make(map[models.RequestStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
