package repository

import (
	"context"
	"regexp"
	"testing"

	"ebantek/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestRequestRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()

	req := &models.ServiceRequest{
		ID:          models.NewRequestID(),
		ServiceType: models.ServicePerhitunganNilaiSisa,
		RequesterID: 1,
		Status:      models.StatusDraft,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "service_requests"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Create(ctx, req)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepository_Update_OptimisticLock(t *testing.T) {
	ctx := context.Background()

	t.Run("bumps version on success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewRequestRepository(db)

		req := &models.ServiceRequest{
			ID:          "REQ_abc",
			ServiceType: models.ServiceAssessmentBangunan,
			RequesterID: 1,
			Status:      models.StatusDraft,
			Version:     3,
		}

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "service_requests" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.Update(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, int64(4), req.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version yields conflict", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewRequestRepository(db)

		req := &models.ServiceRequest{
			ID:          "REQ_abc",
			ServiceType: models.ServiceAssessmentBangunan,
			RequesterID: 1,
			Status:      models.StatusDraft,
			Version:     3,
		}

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "service_requests" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
		mock.ExpectQuery(`SELECT count\(\*\) FROM "service_requests"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		err := repo.Update(ctx, req)
		require.Error(t, err)

		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeConflict, appErr.Code)
		assert.Equal(t, int64(3), req.Version, "version must be restored after a failed update")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row yields not found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewRequestRepository(db)

		req := &models.ServiceRequest{
			ID:          "REQ_gone",
			ServiceType: models.ServiceAssessmentBangunan,
			RequesterID: 1,
			Status:      models.StatusDraft,
		}

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "service_requests" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
		mock.ExpectQuery(`SELECT count\(\*\) FROM "service_requests"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		err := repo.Update(ctx, req)
		require.Error(t, err)

		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeNotFound, appErr.Code)
	})
}

func TestRequestRepository_CountByStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("global aggregate", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewRequestRepository(db)

		rows := sqlmock.NewRows([]string{"status", "count"}).
			AddRow("DRAFT", 2).
			AddRow("SUBMITTED", 1).
			AddRow("COMPLETED", 5)
		mock.ExpectQuery(`SELECT status, COUNT\(\*\) as count FROM "service_requests"`).
			WillReturnRows(rows)

		counts, err := repo.CountByStatus(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), counts[models.StatusDraft])
		assert.Equal(t, int64(1), counts[models.StatusSubmitted])
		assert.Equal(t, int64(5), counts[models.StatusCompleted])
		assert.Zero(t, counts[models.StatusRejected])
	})

	t.Run("scoped to one requester", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewRequestRepository(db)

		rows := sqlmock.NewRows([]string{"status", "count"}).
			AddRow("DRAFT", 1)
		mock.ExpectQuery(`SELECT status, COUNT\(\*\) as count FROM "service_requests" WHERE requester_id = \$1`).
			WithArgs(uint(7)).
			WillReturnRows(rows)

		requesterID := uint(7)
		counts, err := repo.CountByStatus(ctx, &requesterID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts[models.StatusDraft])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// setupSqliteDB gives a real database for tests that exercise transactions,
// which sqlmock cannot model faithfully.
func setupSqliteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ServiceRequest{}, &models.StatusTransition{}))
	return db
}

func TestRequestRepository_UpdateWithTransition(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, db *gorm.DB) *models.ServiceRequest {
		t.Helper()
		req := &models.ServiceRequest{
			ID:          models.NewRequestID(),
			ServiceType: models.ServiceAssessmentBangunan,
			RequesterID: 1,
			Status:      models.StatusDraft,
			Version:     1,
		}
		require.NoError(t, db.Create(req).Error)
		return req
	}

	t.Run("commits status and history together", func(t *testing.T) {
		db := setupSqliteDB(t)
		repo := NewRequestRepository(db)

		req := seed(t, db)
		req.Status = models.StatusSubmitted
		err := repo.UpdateWithTransition(ctx, req, &models.StatusTransition{
			RequestID:  req.ID,
			FromStatus: models.StatusDraft,
			ToStatus:   models.StatusSubmitted,
			ActorID:    1,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), req.Version)

		var stored models.ServiceRequest
		require.NoError(t, db.Where("id = ?", req.ID).First(&stored).Error)
		assert.Equal(t, models.StatusSubmitted, stored.Status)
		assert.Equal(t, int64(2), stored.Version)

		var history int64
		require.NoError(t, db.Model(&models.StatusTransition{}).
			Where("request_id = ?", req.ID).Count(&history).Error)
		assert.Equal(t, int64(1), history)
	})

	t.Run("failed history append rolls back the status write", func(t *testing.T) {
		db := setupSqliteDB(t)
		repo := NewRequestRepository(db)

		req := seed(t, db)
		require.NoError(t, db.Migrator().DropTable(&models.StatusTransition{}))

		req.Status = models.StatusSubmitted
		err := repo.UpdateWithTransition(ctx, req, &models.StatusTransition{
			RequestID:  req.ID,
			FromStatus: models.StatusDraft,
			ToStatus:   models.StatusSubmitted,
			ActorID:    1,
		})
		require.Error(t, err)
		assert.Equal(t, int64(1), req.Version, "version must be restored after a failed update")

		var stored models.ServiceRequest
		require.NoError(t, db.Where("id = ?", req.ID).First(&stored).Error)
		assert.Equal(t, models.StatusDraft, stored.Status)
		assert.Equal(t, int64(1), stored.Version)
	})

	t.Run("stale version yields conflict", func(t *testing.T) {
		db := setupSqliteDB(t)
		repo := NewRequestRepository(db)

		req := seed(t, db)
		req.Version = 99
		req.Status = models.StatusSubmitted
		err := repo.UpdateWithTransition(ctx, req, &models.StatusTransition{
			RequestID:  req.ID,
			FromStatus: models.StatusDraft,
			ToStatus:   models.StatusSubmitted,
			ActorID:    1,
		})
		require.Error(t, err)

		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeConflict, appErr.Code)

		var history int64
		require.NoError(t, db.Model(&models.StatusTransition{}).
			Where("request_id = ?", req.ID).Count(&history).Error)
		assert.Zero(t, history)
	})
}

func TestRequestRepository_ListByStatus_RequesterScope(t *testing.T) {
	db := setupSqliteDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()

	mine := &models.ServiceRequest{
		ID:          models.NewRequestID(),
		ServiceType: models.ServiceAssessmentBangunan,
		RequesterID: 1,
		Status:      models.StatusSubmitted,
		Version:     1,
	}
	theirs := &models.ServiceRequest{
		ID:          models.NewRequestID(),
		ServiceType: models.ServiceAssessmentBangunan,
		RequesterID: 2,
		Status:      models.StatusSubmitted,
		Version:     1,
	}
	myDraft := &models.ServiceRequest{
		ID:          models.NewRequestID(),
		ServiceType: models.ServiceAssessmentBangunan,
		RequesterID: 1,
		Status:      models.StatusDraft,
		Version:     1,
	}
	for _, r := range []*models.ServiceRequest{mine, theirs, myDraft} {
		require.NoError(t, db.Create(r).Error)
	}

	all, err := repo.ListByStatus(ctx, models.StatusSubmitted, nil, 20, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	requesterID := uint(1)
	scoped, err := repo.ListByStatus(ctx, models.StatusSubmitted, &requesterID, 20, 0)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, mine.ID, scoped[0].ID)
}

func TestRequestRepository_AppendTransition(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "status_transitions"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	err := repo.AppendTransition(ctx, &models.StatusTransition{
		RequestID:  "REQ_abc",
		FromStatus: models.StatusDraft,
		ToStatus:   models.StatusSubmitted,
		ActorID:    1,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
