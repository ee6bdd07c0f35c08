package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ebantek/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requestRepoStub is an in-memory stub for repository.RequestRepository.
type requestRepoStub struct {
	requests      map[string]*models.ServiceRequest
	transitions   []models.StatusTransition
	comments      []models.RequestComment
	files         []models.RequestFile
	updateCalls   int
	deleteCalls   int
	counts        map[models.RequestStatus]int64
	transitionErr error
}

func newRequestRepoStub() *requestRepoStub {
	return &requestRepoStub{requests: make(map[string]*models.ServiceRequest)}
}

func (s *requestRepoStub) Create(_ context.Context, req *models.ServiceRequest) error {
	s.requests[req.ID] = req
	return nil
}

func (s *requestRepoStub) GetByID(_ context.Context, id string) (*models.ServiceRequest, error) {
	req, ok := s.requests[id]
	if !ok {
		return nil, models.NewNotFoundError("Request", id)
	}
	// Hand back a copy so uncommitted mutations don't leak into the store.
	cp := *req
	return &cp, nil
}

func (s *requestRepoStub) Update(_ context.Context, req *models.ServiceRequest) error {
	if _, ok := s.requests[req.ID]; !ok {
		return models.NewNotFoundError("Request", req.ID)
	}
	s.updateCalls++
	req.Version++
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *requestRepoStub) UpdateWithTransition(_ context.Context, req *models.ServiceRequest, tr *models.StatusTransition) error {
	if _, ok := s.requests[req.ID]; !ok {
		return models.NewNotFoundError("Request", req.ID)
	}
	// All-or-nothing: a failed history append leaves the stored request alone.
	if s.transitionErr != nil {
		return s.transitionErr
	}
	s.updateCalls++
	req.Version++
	cp := *req
	s.requests[req.ID] = &cp
	s.transitions = append(s.transitions, *tr)
	return nil
}

func (s *requestRepoStub) Delete(_ context.Context, id string) error {
	if _, ok := s.requests[id]; !ok {
		return models.NewNotFoundError("Request", id)
	}
	s.deleteCalls++
	delete(s.requests, id)
	return nil
}

func (s *requestRepoStub) List(_ context.Context, _, _ int) ([]models.ServiceRequest, error) {
	var out []models.ServiceRequest
	for _, r := range s.requests {
		out = append(out, *r)
	}
	return out, nil
}

func (s *requestRepoStub) ListByRequester(_ context.Context, requesterID uint, _, _ int) ([]models.ServiceRequest, error) {
	var out []models.ServiceRequest
	for _, r := range s.requests {
		if r.RequesterID == requesterID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *requestRepoStub) ListByAssignee(_ context.Context, assigneeID uint, _, _ int) ([]models.ServiceRequest, error) {
	var out []models.ServiceRequest
	for _, r := range s.requests {
		if r.AssignedTo != nil && *r.AssignedTo == assigneeID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *requestRepoStub) ListByStatus(_ context.Context, status models.RequestStatus, requesterID *uint, _, _ int) ([]models.ServiceRequest, error) {
	var out []models.ServiceRequest
	for _, r := range s.requests {
		if r.Status != status {
			continue
		}
		if requesterID != nil && r.RequesterID != *requesterID {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *requestRepoStub) AppendTransition(_ context.Context, tr *models.StatusTransition) error {
	s.transitions = append(s.transitions, *tr)
	return nil
}

func (s *requestRepoStub) AppendComment(_ context.Context, comment *models.RequestComment) error {
	s.comments = append(s.comments, *comment)
	return nil
}

func (s *requestRepoStub) AppendFile(_ context.Context, file *models.RequestFile) error {
	s.files = append(s.files, *file)
	return nil
}

func (s *requestRepoStub) GetFile(_ context.Context, id string) (*models.RequestFile, error) {
	for i := range s.files {
		if s.files[i].ID == id {
			return &s.files[i], nil
		}
	}
	return nil, models.NewNotFoundError("File", id)
}

func (s *requestRepoStub) CountByStatus(_ context.Context, requesterID *uint) (map[models.RequestStatus]int64, error) {
	if s.counts != nil && requesterID == nil {
		return s.counts, nil
	}
	counts := make(map[models.RequestStatus]int64)
	for _, r := range s.requests {
		if requesterID != nil && r.RequesterID != *requesterID {
			continue
		}
		counts[r.Status]++
	}
	return counts, nil
}

// draftStoreStub records snapshot removals for repository.DraftRepository.
type draftStoreStub struct {
	removed map[string]uint
}

func newDraftStoreStub() *draftStoreStub {
	return &draftStoreStub{removed: make(map[string]uint)}
}

func (s *draftStoreStub) Save(_ context.Context, _ uint, _ *models.DraftSnapshot) error {
	return nil
}

func (s *draftStoreStub) Get(_ context.Context, _ uint, key string) (*models.DraftSnapshot, error) {
	return nil, models.NewNotFoundError("Draft", key)
}

func (s *draftStoreStub) List(_ context.Context, _ uint) ([]models.DraftSnapshot, error) {
	return nil, nil
}

func (s *draftStoreStub) Remove(_ context.Context, userID uint, key string) error {
	s.removed[key] = userID
	return nil
}

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	users map[uint]*models.User
}

func (s *userRepoStub) GetByID(_ context.Context, id uint) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, models.NewNotFoundError("User", id)
	}
	return u, nil
}

func (s *userRepoStub) GetByEmail(_ context.Context, _ string) (*models.User, error) {
	return nil, nil
}
func (s *userRepoStub) Create(_ context.Context, _ *models.User) error { return nil }
func (s *userRepoStub) Update(_ context.Context, _ *models.User) error { return nil }
func (s *userRepoStub) Delete(_ context.Context, _ uint) error         { return nil }
func (s *userRepoStub) List(_ context.Context, _, _ int) ([]models.User, error) {
	return nil, nil
}
func (s *userRepoStub) ListByRole(_ context.Context, _ models.Role) ([]models.User, error) {
	return nil, nil
}

var (
	pemohon    = &models.User{ID: 1, Name: "Budi", Role: models.RolePemohon}
	operator   = &models.User{ID: 2, Name: "Sari", Role: models.RoleOperator}
	kepala     = &models.User{ID: 3, Name: "Agus", Role: models.RoleKepalaSeksi}
	pengelola  = &models.User{ID: 4, Name: "Dewi", Role: models.RolePengelolaTeknis}
	adminUser  = &models.User{ID: 5, Name: "Root", Role: models.RoleAdministrator}
	otherOwner = &models.User{ID: 6, Name: "Tono", Role: models.RolePemohon}
)

func newTestService(repo *requestRepoStub) *RequestService {
	users := &userRepoStub{users: map[uint]*models.User{
		1: pemohon, 2: operator, 3: kepala, 4: pengelola, 5: adminUser, 6: otherOwner,
	}}
	return NewRequestService(repo, users, nil, nil)
}

func newTestServiceWithDrafts(repo *requestRepoStub, drafts *draftStoreStub) *RequestService {
	users := &userRepoStub{users: map[uint]*models.User{
		1: pemohon, 2: operator, 3: kepala, 4: pengelola, 5: adminUser, 6: otherOwner,
	}}
	return NewRequestService(repo, users, drafts, nil)
}

func completeApplicant() models.ApplicantInfo {
	return models.ApplicantInfo{
		OPDName:       "Dinas Pendidikan",
		OPDAddress:    "Jl. Merdeka No. 1",
		ContactPerson: "Budi Santoso",
		Position:      "Kepala Bagian Umum",
		Phone:         "0812-3456-7890",
		Email:         "budi@dinas.go.id",
		Subject:       "Permohonan assessment gedung kantor",
	}
}

func completeBuilding() models.BuildingInfo {
	return models.BuildingInfo{
		Name:      "Gedung Kantor Dinas",
		Location:  "Jl. Merdeka No. 1",
		Function:  "Perkantoran",
		AreaM2:    "1200",
		YearBuilt: "1998",
		Condition: "rusak sedang",
	}
}

func completeDocuments() models.JSONMap {
	return models.JSONMap{
		"surat_permohonan":       "file_1",
		"foto_bangunan_depan":    "file_2",
		"foto_bangunan_belakang": "file_3",
		"foto_bangunan_kanan":    "file_4",
		"foto_bangunan_kiri":     "file_5",
	}
}

func seedDraft(repo *requestRepoStub, owner *models.User) *models.ServiceRequest {
	req := &models.ServiceRequest{
		ID:          models.NewRequestID(),
		ServiceType: models.ServiceAssessmentBangunan,
		RequesterID: owner.ID,
		Status:      models.StatusDraft,
		Version:     1,
		Applicant:   completeApplicant(),
		Building:    completeBuilding(),
		Documents:   completeDocuments(),
	}
	repo.requests[req.ID] = req
	return req
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestCreateRequest(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newTestService(repo)
	ctx := context.Background()

	req, err := svc.CreateRequest(ctx, pemohon, CreateRequestInput{
		ServiceType: models.ServiceTimTeknis,
		Applicant:   completeApplicant(),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(req.ID, "REQ_"))
	assert.Equal(t, models.StatusDraft, req.Status)
	assert.Equal(t, pemohon.ID, req.RequesterID)
	assert.Nil(t, req.SubmittedAt)

	t.Run("unknown service type rejected", func(t *testing.T) {
		_, err := svc.CreateRequest(ctx, pemohon, CreateRequestInput{ServiceType: "LAYANAN_BARU"})
		assertCode(t, err, models.CodeValidationError)
	})

	t.Run("role without create permission rejected", func(t *testing.T) {
		_, err := svc.CreateRequest(ctx, operator, CreateRequestInput{ServiceType: models.ServiceTimTeknis})
		assertCode(t, err, models.CodeAccessDenied)
	})
}

func TestSubmit_ValidationFailureLeavesRequestUntouched(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newTestService(repo)
	ctx := context.Background()

	req := seedDraft(repo, pemohon)
	req.Applicant.Email = ""

	_, err := svc.Submit(ctx, pemohon, req.ID)
	assertCode(t, err, models.CodeValidationFailed)

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	require.NotEmpty(t, appErr.Violations)
	assert.Equal(t, "applicant.email", appErr.Violations[0].Field)
	assert.Equal(t, "Email wajib diisi", appErr.Violations[0].Message)

	// Idempotent failure: no mutation, no history, submission retryable.
	stored := repo.requests[req.ID]
	assert.Equal(t, models.StatusDraft, stored.Status)
	assert.Nil(t, stored.SubmittedAt)
	assert.Zero(t, repo.updateCalls)
	assert.Empty(t, repo.transitions)

	// Fixing the form makes the same call succeed.
	stored.Applicant.Email = "budi@dinas.go.id"
	_, err = svc.Submit(ctx, pemohon, req.ID)
	require.NoError(t, err)
}

func TestSubmit_CollectsAllViolations(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newTestService(repo)

	req := seedDraft(repo, pemohon)
	req.Applicant.OPDName = ""
	req.Building.YearBuilt = ""
	delete(req.Documents, "foto_bangunan_kiri")

	_, err := svc.Submit(context.Background(), pemohon, req.ID)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Len(t, appErr.Violations, 3, "all violations must be reported at once")
}

func TestSubmit_Lifecycle(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newTestService(repo)
	ctx := context.Background()

	req := seedDraft(repo, pemohon)

	submitted, err := svc.Submit(ctx, pemohon, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)
	require.Len(t, repo.transitions, 1)
	assert.Equal(t, models.StatusDraft, repo.transitions[0].FromStatus)
	assert.Equal(t, models.StatusSubmitted, repo.transitions[0].ToStatus)
	assert.Equal(t, pemohon.ID, repo.transitions[0].ActorID)

	t.Run("double submit is an invalid state", func(t *testing.T) {
		_, err := svc.Submit(ctx, pemohon, req.ID)
		assertCode(t, err, models.CodeInvalidState)
		assert.Len(t, repo.transitions, 1, "failed submit must not append history")
	})

	t.Run("only the owner can submit", func(t *testing.T) {
		other := seedDraft(repo, otherOwner)
		_, err := svc.Submit(ctx, pemohon, other.ID)
		assertCode(t, err, models.CodeAccessDenied)
	})
}

func TestSubmit_ResubmissionAfterRejection(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newTestService(repo)
	ctx := context.Background()

	req := seedDraft(repo, pemohon)
	_, err := svc.Submit(ctx, pemohon, req.ID)
	require.NoError(t, err)
	firstSubmittedAt := *repo.requests[req.ID].SubmittedAt

	_, err = svc.UpdateStatus(ctx, operator, req.ID, models.StatusUnderReview, "")
	require.NoError(t, err)
	_, err = svc.Reject(ctx, operator, req.ID, "Dokumen tidak lengkap")
	require.NoError(t, err)

	// The owner may edit while rejected, then resubmit.
	_, err = svc.UpdateRequest(ctx, pemohon, req.ID, UpdateRequestInput{
		Applicant: completeApplicant(),
		Building:  completeBuilding(),
		Documents: completeDocuments(),
	})
	require.NoError(t, err)

	resubmitted, err := svc.Submit(ctx, pemohon, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, resubmitted.Status)
	assert.Equal(t, firstSubmittedAt, *resubmitted.SubmittedAt, "submittedAt is set once")

	last := repo.transitions[len(repo.transitions)-1]
	assert.Equal(t, models.StatusRejected, last.FromStatus)
	assert.Equal(t, models.StatusSubmitted, last.ToStatus)
}

func TestUpdateStatus_TransitionTable(t *testing.T) {
	ctx := context.Background()

	t.Run("operator reviews and verifies", func(t *testing.T) {
		repo := newRequestRepoStub()
		svc := newTestService(repo)
		req := seedDraft(repo, pemohon)
		_, err := svc.Submit(ctx, pemohon, req.ID)
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, operator, req.ID, models.StatusUnderReview, "")
		require.NoError(t, err)
		updated, err := svc.UpdateStatus(ctx, operator, req.ID, models.StatusVerified, "Dokumen lengkap")
		require.NoError(t, err)
		assert.Equal(t, models.StatusVerified, updated.Status)
		assert.Len(t, repo.transitions, 3, "exactly one history entry per transition")
	})

	t.Run("skipping review is rejected", func(t *testing.T) {
		repo := newRequestRepoStub()
		svc := newTestService(repo)
		req := seedDraft(repo, pemohon)
		_, err := svc.Submit(ctx, pemohon, req.ID)
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, operator, req.ID, models.StatusVerified, "")
		assertCode(t, err, models.CodeInvalidState)
	})

	t.Run("operator cannot approve", func(t *testing.T) {
		repo := newRequestRepoStub()
		svc := newTestService(repo)
		req := seedDraft(repo, pemohon)
		_, err := svc.Submit(ctx, pemohon, req.ID)
		require.NoError(t, err)
		_, err = svc.UpdateStatus(ctx, operator, req.ID, models.StatusUnderReview, "")
		require.NoError(t, err)
		_, err = svc.UpdateStatus(ctx, operator, req.ID, models.StatusVerified, "")
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, operator, req.ID, models.StatusApproved, "")
		assertCode(t, err, models.CodeAccessDenied)

		_, err = svc.UpdateStatus(ctx, kepala, req.ID, models.StatusApproved, "")
		require.NoError(t, err)
	})

	t.Run("submitted target is not reachable here", func(t *testing.T) {
		repo := newRequestRepoStub()
		svc := newTestService(repo)
		req := seedDraft(repo, pemohon)

		_, err := svc.UpdateStatus(ctx, adminUser, req.ID, models.StatusSubmitted, "")
		assertCode(t, err, models.CodeValidationError)
	})
}

// advanceToApproved walks a freshly seeded request to APPROVED.
func advanceToApproved(t *testing.T, svc *RequestService, repo *requestRepoStub) *models.ServiceRequest {
	t.Helper()
	ctx := context.Background()

	req := seedDraft(repo, pemohon)
	_, err := svc.Submit(ctx, pemohon, req.ID)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, operator, req.ID, models.StatusUnderReview, "")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, operator, req.ID, models.StatusVerified, "")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, kepala, req.ID, models.StatusApproved, "")
	require.NoError(t, err)
	return repo.requests[req.ID]
}

func TestAssign(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns a technical manager", func(t *testing.T) {
		repo := newRequestRepoStub()
		svc := newTestService(repo)
		req := advanceToApproved(t, svc, repo)

		assigned, err := svc.Assign(ctx, kepala, req.ID, pengelola.ID, "")
		require.NoError(t, err)
		assert.Equal(t, models.StatusAssigned, assigned.Status)
		require.NotNil(t, assigned.AssignedTo)
		assert.Equal(t, pengelola.ID, *assigned.AssignedTo)
		require.NotNil(t, assigned.AssignedBy)
		assert.Equal(t, kepala.ID, *assigned.AssignedBy)
		assert.NotNil(t, assigned.AssignedAt)

		last := repo.transitions[len(repo.transitions)-1]
		assert.Contains(t, last.Comment, pengelola.Name, "auto comment names the assignee")
	})

	t.Run("assignee must be a technical manager", func(t *testing.T) {
		repo := newRequestRepoStub()
		svc := newTestService(repo)
		req := advanceToApproved(t, svc, repo)

		_, err := svc.Assign(ctx, kepala, req.ID, operator.ID, "")
		assertCode(t, err, models.CodeValidationError)
	})

	t.Run("requires approved status", func(t *testing.T) {
		repo := newRequestRepoStub()
		svc := newTestService(repo)
		req := seedDraft(repo, pemohon)

		_, err := svc.Assign(ctx, kepala, req.ID, pengelola.ID, "")
		assertCode(t, err, models.CodeInvalidState)
	})

	t.Run("operator may not assign", func(t *testing.T) {
		repo := newRequestRepoStub()
		svc := newTestService(repo)
		req := advanceToApproved(t, svc, repo)

		_, err := svc.Assign(ctx, operator, req.ID, pengelola.ID, "")
		assertCode(t, err, models.CodeAccessDenied)
	})
}

func TestProgressAndCompletion(t *testing.T) {
	ctx := context.Background()
	repo := newRequestRepoStub()
	svc := newTestService(repo)

	req := advanceToApproved(t, svc, repo)
	_, err := svc.Assign(ctx, kepala, req.ID, pengelola.ID, "")
	require.NoError(t, err)

	t.Run("only the assignee works the request", func(t *testing.T) {
		other := &models.User{ID: 99, Role: models.RolePengelolaTeknis}
		_, err := svc.UpdateStatus(ctx, other, req.ID, models.StatusInProgress, "")
		assertCode(t, err, models.CodeAccessDenied)
	})

	_, err = svc.UpdateStatus(ctx, pengelola, req.ID, models.StatusInProgress, "Mulai survei lapangan")
	require.NoError(t, err)

	completed, err := svc.UpdateStatus(ctx, pengelola, req.ID, models.StatusCompleted, "Laporan diserahkan")
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)
	firstCompletedAt := *completed.CompletedAt

	t.Run("completed is terminal", func(t *testing.T) {
		_, err := svc.UpdateStatus(ctx, pengelola, req.ID, models.StatusInProgress, "")
		assertCode(t, err, models.CodeInvalidState)
		assert.Equal(t, firstCompletedAt, *repo.requests[req.ID].CompletedAt)
	})
}

func TestReject_RequiresReason(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newTestService(repo)

	req := seedDraft(repo, pemohon)
	_, err := svc.Submit(context.Background(), pemohon, req.ID)
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), operator, req.ID, "")
	assertCode(t, err, models.CodeValidationError)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels a submitted request", func(t *testing.T) {
		repo := newRequestRepoStub()
		svc := newTestService(repo)
		req := seedDraft(repo, pemohon)
		_, err := svc.Submit(ctx, pemohon, req.ID)
		require.NoError(t, err)

		cancelled, err := svc.Cancel(ctx, pemohon, req.ID, "Tidak jadi")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)
	})

	t.Run("cancel after review intake is rejected", func(t *testing.T) {
		repo := newRequestRepoStub()
		svc := newTestService(repo)
		req := advanceToApproved(t, svc, repo)

		_, err := svc.Cancel(ctx, pemohon, req.ID, "")
		assertCode(t, err, models.CodeInvalidState)
	})

	t.Run("non-owner may not cancel", func(t *testing.T) {
		repo := newRequestRepoStub()
		svc := newTestService(repo)
		req := seedDraft(repo, pemohon)

		_, err := svc.Cancel(ctx, otherOwner, req.ID, "")
		assertCode(t, err, models.CodeAccessDenied)
	})
}

func TestDeleteRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("owner deletes a draft", func(t *testing.T) {
		repo := newRequestRepoStub()
		svc := newTestService(repo)
		req := seedDraft(repo, pemohon)

		require.NoError(t, svc.DeleteRequest(ctx, pemohon, req.ID))
		assert.Equal(t, 1, repo.deleteCalls)
	})

	t.Run("non-draft cannot be deleted", func(t *testing.T) {
		repo := newRequestRepoStub()
		svc := newTestService(repo)
		req := seedDraft(repo, pemohon)
		_, err := svc.Submit(ctx, pemohon, req.ID)
		require.NoError(t, err)

		err = svc.DeleteRequest(ctx, pemohon, req.ID)
		assertCode(t, err, models.CodeInvalidState)
	})

	t.Run("non-owner cannot delete", func(t *testing.T) {
		repo := newRequestRepoStub()
		svc := newTestService(repo)
		req := seedDraft(repo, pemohon)

		err := svc.DeleteRequest(ctx, otherOwner, req.ID)
		assertCode(t, err, models.CodeAccessDenied)
	})
}

func TestVisibility(t *testing.T) {
	ctx := context.Background()
	repo := newRequestRepoStub()
	svc := newTestService(repo)
	req := seedDraft(repo, pemohon)

	t.Run("owner sees own request", func(t *testing.T) {
		_, err := svc.GetRequest(ctx, pemohon, req.ID)
		assert.NoError(t, err)
	})

	t.Run("operator sees everything", func(t *testing.T) {
		_, err := svc.GetRequest(ctx, operator, req.ID)
		assert.NoError(t, err)
	})

	t.Run("other requester is denied", func(t *testing.T) {
		_, err := svc.GetRequest(ctx, otherOwner, req.ID)
		assertCode(t, err, models.CodeAccessDenied)
	})

	t.Run("unassigned technical manager is denied", func(t *testing.T) {
		_, err := svc.GetRequest(ctx, pengelola, req.ID)
		assertCode(t, err, models.CodeAccessDenied)
	})
}

func TestStatistics(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newTestService(repo)

	repo.counts = map[models.RequestStatus]int64{
		models.StatusDraft:       2,
		models.StatusSubmitted:   3,
		models.StatusUnderReview: 1,
		models.StatusVerified:    1,
		models.StatusApproved:    1,
		models.StatusAssigned:    2,
		models.StatusInProgress:  4,
		models.StatusCompleted:   7,
		models.StatusRejected:    1,
		models.StatusCancelled:   1,
	}

	stats, err := svc.Statistics(context.Background(), operator, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(23), stats.Total)
	assert.Equal(t, int64(2), stats.Draft)
	assert.Equal(t, int64(3), stats.Submitted)
	assert.Equal(t, int64(9), stats.InProgress, "in-progress spans review through execution")
	assert.Equal(t, int64(7), stats.Completed)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Equal(t, int64(1), stats.Cancelled)
}

func TestStatistics_OwnerScope(t *testing.T) {
	ctx := context.Background()
	repo := newRequestRepoStub()
	svc := newTestService(repo)

	seedDraft(repo, pemohon)
	seedDraft(repo, pemohon)
	seedDraft(repo, otherOwner)

	t.Run("requester gets own-scoped statistics", func(t *testing.T) {
		stats, err := svc.Statistics(ctx, pemohon, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.Total)
		assert.Equal(t, int64(2), stats.Draft)
	})

	t.Run("requester asking for own scope explicitly", func(t *testing.T) {
		stats, err := svc.Statistics(ctx, pemohon, &pemohon.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.Total)
	})

	t.Run("requester may not read another owner's scope", func(t *testing.T) {
		_, err := svc.Statistics(ctx, pemohon, &otherOwner.ID)
		assertCode(t, err, models.CodeAccessDenied)
	})

	t.Run("staff may scope to any requester", func(t *testing.T) {
		stats, err := svc.Statistics(ctx, operator, &otherOwner.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Total)
	})

	t.Run("technical manager has neither permission", func(t *testing.T) {
		_, err := svc.Statistics(ctx, pengelola, nil)
		assertCode(t, err, models.CodeAccessDenied)
	})
}

func TestListMine_StatusFilter(t *testing.T) {
	ctx := context.Background()
	repo := newRequestRepoStub()
	svc := newTestService(repo)

	seedDraft(repo, pemohon)
	submitted := seedDraft(repo, pemohon)
	_, err := svc.Submit(ctx, pemohon, submitted.ID)
	require.NoError(t, err)
	// Another owner's submitted request must not leak into the filter.
	foreign := seedDraft(repo, otherOwner)
	_, err = svc.Submit(ctx, otherOwner, foreign.ID)
	require.NoError(t, err)

	all, err := svc.ListMine(ctx, pemohon, "", 20, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := svc.ListMine(ctx, pemohon, models.StatusSubmitted, 20, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, submitted.ID, filtered[0].ID)
	assert.Equal(t, pemohon.ID, filtered[0].RequesterID)

	t.Run("unknown status filter rejected", func(t *testing.T) {
		_, err := svc.ListMine(ctx, pemohon, "ARCHIVED", 20, 0)
		assertCode(t, err, models.CodeValidationError)
	})
}

func TestSubmit_RemovesDraftSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newRequestRepoStub()
	drafts := newDraftStoreStub()
	svc := newTestServiceWithDrafts(repo, drafts)

	req := seedDraft(repo, pemohon)
	_, err := svc.Submit(ctx, pemohon, req.ID)
	require.NoError(t, err)

	owner, ok := drafts.removed[req.ID]
	require.True(t, ok, "the auto-save snapshot keyed by the request id is dropped")
	assert.Equal(t, pemohon.ID, owner)
}

func TestDeleteRequest_RemovesDraftSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newRequestRepoStub()
	drafts := newDraftStoreStub()
	svc := newTestServiceWithDrafts(repo, drafts)

	req := seedDraft(repo, pemohon)
	require.NoError(t, svc.DeleteRequest(ctx, pemohon, req.ID))

	owner, ok := drafts.removed[req.ID]
	require.True(t, ok)
	assert.Equal(t, pemohon.ID, owner)

	t.Run("failed delete leaves the snapshot alone", func(t *testing.T) {
		other := seedDraft(repo, pemohon)
		other.Status = models.StatusSubmitted

		err := svc.DeleteRequest(ctx, pemohon, other.ID)
		assertCode(t, err, models.CodeInvalidState)
		_, removed := drafts.removed[other.ID]
		assert.False(t, removed)
	})
}

func TestSubmit_FailedHistoryAppendSurfaces(t *testing.T) {
	ctx := context.Background()
	repo := newRequestRepoStub()
	svc := newTestService(repo)

	req := seedDraft(repo, pemohon)
	repo.transitionErr = models.NewInternalError(errors.New("insert failed"))

	_, err := svc.Submit(ctx, pemohon, req.ID)
	assertCode(t, err, models.CodeInternal)

	stored := repo.requests[req.ID]
	assert.Equal(t, models.StatusDraft, stored.Status, "status and history commit together")
	assert.Empty(t, repo.transitions)
}

func TestAddComment(t *testing.T) {
	ctx := context.Background()
	repo := newRequestRepoStub()
	svc := newTestService(repo)
	req := seedDraft(repo, pemohon)

	comment, err := svc.AddComment(ctx, operator, req.ID, "Mohon lengkapi foto")
	require.NoError(t, err)
	assert.Equal(t, operator.ID, comment.AuthorID)
	require.Len(t, repo.comments, 1)

	t.Run("empty comment rejected", func(t *testing.T) {
		_, err := svc.AddComment(ctx, operator, req.ID, "")
		assertCode(t, err, models.CodeValidationError)
	})

	t.Run("stranger cannot comment", func(t *testing.T) {
		_, err := svc.AddComment(ctx, otherOwner, req.ID, "hi")
		assertCode(t, err, models.CodeAccessDenied)
	})
}
