package seed

import (
	"testing"

	"ebantek/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSeedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.ServiceRequest{},
		&models.StatusTransition{},
		&models.RequestComment{},
		&models.RequestFile{},
	))
	return db
}

func TestDemoData(t *testing.T) {
	db := setupSeedDB(t)
	s := NewSeeder(db)

	require.NoError(t, s.DemoData(10))

	// One account per role, all with the demo password
	var users []models.User
	require.NoError(t, db.Find(&users).Error)
	require.Len(t, users, 5)

	roles := make(map[models.Role]bool)
	for _, u := range users {
		roles[u.Role] = true
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(DemoPassword)))
	}
	assert.Len(t, roles, 5)

	// Requests spread across the workflow states
	var requests []models.ServiceRequest
	require.NoError(t, db.Find(&requests).Error)
	require.Len(t, requests, 10)

	statuses := make(map[models.RequestStatus]bool)
	for _, r := range requests {
		statuses[r.Status] = true
		assert.Contains(t, r.ID, "REQ_")
		if r.Status != models.StatusDraft {
			assert.NotNil(t, r.SubmittedAt, string(r.Status))
		}
		if r.Status == models.StatusAssigned || r.Status == models.StatusInProgress ||
			r.Status == models.StatusCompleted {
			assert.NotNil(t, r.AssignedTo, string(r.Status))
		}
	}
	assert.True(t, statuses[models.StatusDraft])
	assert.True(t, statuses[models.StatusCompleted])

	// Audit trails exist and start from DRAFT
	var transitions []models.StatusTransition
	require.NoError(t, db.Order("request_id, created_at").Find(&transitions).Error)
	require.NotEmpty(t, transitions)

	firstPerRequest := make(map[string]models.RequestStatus)
	for _, tr := range transitions {
		if _, seen := firstPerRequest[tr.RequestID]; !seen {
			firstPerRequest[tr.RequestID] = tr.FromStatus
		}
	}
	for id, from := range firstPerRequest {
		assert.Equal(t, models.StatusDraft, from, id)
	}
}

func TestDemoData_Idempotent(t *testing.T) {
	db := setupSeedDB(t)
	s := NewSeeder(db)

	require.NoError(t, s.DemoData(4))
	require.NoError(t, s.DemoData(4))

	var userCount, reqCount int64
	require.NoError(t, db.Model(&models.User{}).Count(&userCount).Error)
	require.NoError(t, db.Model(&models.ServiceRequest{}).Count(&reqCount).Error)
	assert.Equal(t, int64(5), userCount)
	assert.Equal(t, int64(4), reqCount)
}

func TestBuildRequest_BuildingTypesCarryPhotos(t *testing.T) {
	db := setupSeedDB(t)
	s := NewSeeder(db)
	requester := &models.User{ID: 1, Organization: "Dinas PUPR"}

	// BuildRequest picks a random service type; loop until both families seen
	sawBuilding := false
	sawPlain := false
	for i := 0; i < 200 && !(sawBuilding && sawPlain); i++ {
		req := s.BuildRequest(requester, models.StatusDraft)
		require.NotEmpty(t, req.Documents.GetString("surat_permohonan"))

		isBuilding := req.ServiceType == models.ServicePerhitunganNilaiSisa ||
			req.ServiceType == models.ServiceAssessmentBangunan
		if isBuilding {
			sawBuilding = true
			assert.NotEmpty(t, req.Documents.GetString("foto_bangunan_depan"))
			assert.NotEmpty(t, req.Building.Name)
		} else {
			sawPlain = true
			assert.Empty(t, req.Documents.GetString("foto_bangunan_depan"))
		}
	}
	assert.True(t, sawBuilding)
	assert.True(t, sawPlain)
}
