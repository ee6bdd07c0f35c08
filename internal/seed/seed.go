// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"ebantek/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DemoPassword is the shared password for every seeded demo account.
const DemoPassword = "Ebantek123!"

// demoAccounts is one well-known account per role so every dashboard can be
// exercised right after seeding.
var demoAccounts = []models.User{
	{Name: "Pemohon Demo", Email: "pemohon@demo.go.id", Role: models.RolePemohon,
		Organization: "Dinas Pendidikan"},
	{Name: "Pengelola Teknis Demo", Email: "pengelola@demo.go.id", Role: models.RolePengelolaTeknis,
		Organization: "Dinas PUPR", Position: "Pengelola Teknis"},
	{Name: "Operator Demo", Email: "operator@demo.go.id", Role: models.RoleOperator,
		Organization: "Dinas PUPR", Position: "Staf Verifikasi"},
	{Name: "Kepala Seksi Demo", Email: "kepala@demo.go.id", Role: models.RoleKepalaSeksi,
		Organization: "Dinas PUPR", Position: "Kepala Seksi Bangunan Gedung"},
	{Name: "Administrator Demo", Email: "admin@demo.go.id", Role: models.RoleAdministrator,
		Organization: "Dinas PUPR", Position: "Administrator Sistem"},
}

// Seeder populates the database with demo accounts and requests.
type Seeder struct {
	db  *gorm.DB
	rng *rand.Rand
}

// NewSeeder creates a Seeder bound to the provided Gorm DB.
func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		db:  db,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DemoData seeds one account per role plus a spread of requests across the
// workflow states. Idempotent: existing demo accounts are reused.
func (s *Seeder) DemoData(requestsPerApplicant int) error {
	users, err := s.ensureDemoAccounts()
	if err != nil {
		return err
	}

	pemohon := users[models.RolePemohon]
	pengelola := users[models.RolePengelolaTeknis]
	operator := users[models.RoleOperator]
	kepala := users[models.RoleKepalaSeksi]

	var existing int64
	if err := s.db.Model(&models.ServiceRequest{}).
		Where("requester_id = ?", pemohon.ID).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		log.Printf("seed: %d demo requests already present, skipping", existing)
		return nil
	}

	statuses := []models.RequestStatus{
		models.StatusDraft,
		models.StatusSubmitted,
		models.StatusUnderReview,
		models.StatusVerified,
		models.StatusApproved,
		models.StatusAssigned,
		models.StatusInProgress,
		models.StatusCompleted,
		models.StatusRejected,
		models.StatusCancelled,
	}

	for i := 0; i < requestsPerApplicant; i++ {
		status := statuses[i%len(statuses)]
		req := s.BuildRequest(pemohon, status)

		switch status {
		case models.StatusAssigned, models.StatusInProgress, models.StatusCompleted:
			req.AssignedTo = &pengelola.ID
			req.AssignedBy = &kepala.ID
			at := req.CreatedAt.Add(48 * time.Hour)
			req.AssignedAt = &at
		}

		if err := s.db.Create(req).Error; err != nil {
			return fmt.Errorf("seed request: %w", err)
		}
		if err := s.seedHistory(req, operator, kepala, pengelola); err != nil {
			return err
		}
	}

	log.Printf("seed: created %d demo requests", requestsPerApplicant)
	return nil
}

// ensureDemoAccounts creates the per-role demo accounts if missing.
func (s *Seeder) ensureDemoAccounts() (map[models.Role]*models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	out := make(map[models.Role]*models.User, len(demoAccounts))
	for _, tmpl := range demoAccounts {
		user := tmpl
		user.Password = string(hashed)
		user.Phone = gofakeit.Numerify("08##########")
		user.IsEmailVerified = true

		var found models.User
		err := s.db.Where("email = ?", user.Email).First(&found).Error
		switch {
		case err == nil:
			existing := found
			out[existing.Role] = &existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := s.db.Create(&user).Error; err != nil {
				return nil, fmt.Errorf("seed account %s: %w", user.Email, err)
			}
			created := user
			out[created.Role] = &created
		default:
			return nil, err
		}
	}
	return out, nil
}

// BuildRequest constructs an unsaved request in the given status with a
// plausible filled-in form.
func (s *Seeder) BuildRequest(requester *models.User, status models.RequestStatus) *models.ServiceRequest {
	serviceType := models.ServiceTypes[s.rng.Intn(len(models.ServiceTypes))]

	created := time.Now().Add(-time.Duration(s.rng.Intn(60*24)) * time.Hour)
	req := &models.ServiceRequest{
		ID:          models.NewRequestID(),
		ServiceType: serviceType,
		RequesterID: requester.ID,
		Status:      status,
		Version:     1,
		CreatedAt:   created,
		Applicant: models.ApplicantInfo{
			OPDName:       requester.Organization,
			OPDAddress:    gofakeit.Street() + ", " + gofakeit.City(),
			ContactPerson: gofakeit.Name(),
			Position:      "Kepala Bidang Sarana",
			Phone:         gofakeit.Numerify("08##########"),
			Email:         gofakeit.Email(),
			Subject:       "Permohonan " + string(serviceType),
		},
		Documents: models.JSONMap{"surat_permohonan": models.NewFileID()},
		Extras:    models.JSONMap{},
	}

	if serviceType == models.ServicePerhitunganNilaiSisa || serviceType == models.ServiceAssessmentBangunan {
		req.Building = models.BuildingInfo{
			Name:      "Gedung " + gofakeit.LastName(),
			Location:  gofakeit.Street() + ", " + gofakeit.City(),
			Function:  "Kantor",
			AreaM2:    fmt.Sprintf("%d", 200+s.rng.Intn(4800)),
			YearBuilt: fmt.Sprintf("%d", 1980+s.rng.Intn(40)),
			Condition: []string{"Baik", "Rusak Ringan", "Rusak Berat"}[s.rng.Intn(3)],
		}
		for _, slot := range []string{"foto_bangunan_depan", "foto_bangunan_belakang",
			"foto_bangunan_kanan", "foto_bangunan_kiri"} {
			req.Documents[slot] = models.NewFileID()
		}
	}

	if status != models.StatusDraft {
		at := created.Add(time.Hour)
		req.SubmittedAt = &at
	}
	if status == models.StatusCompleted {
		at := created.Add(30 * 24 * time.Hour)
		req.CompletedAt = &at
	}

	return req
}

// seedHistory writes the audit trail entries leading up to the request's
// current status.
func (s *Seeder) seedHistory(req *models.ServiceRequest, operator, kepala, pengelola *models.User) error {
	type step struct {
		to    models.RequestStatus
		actor uint
	}

	paths := map[models.RequestStatus][]step{
		models.StatusSubmitted: {
			{models.StatusSubmitted, req.RequesterID}},
		models.StatusUnderReview: {
			{models.StatusSubmitted, req.RequesterID},
			{models.StatusUnderReview, operator.ID}},
		models.StatusVerified: {
			{models.StatusSubmitted, req.RequesterID},
			{models.StatusUnderReview, operator.ID},
			{models.StatusVerified, operator.ID}},
		models.StatusApproved: {
			{models.StatusSubmitted, req.RequesterID},
			{models.StatusUnderReview, operator.ID},
			{models.StatusVerified, operator.ID},
			{models.StatusApproved, kepala.ID}},
		models.StatusAssigned: {
			{models.StatusSubmitted, req.RequesterID},
			{models.StatusUnderReview, operator.ID},
			{models.StatusVerified, operator.ID},
			{models.StatusApproved, kepala.ID},
			{models.StatusAssigned, kepala.ID}},
		models.StatusInProgress: {
			{models.StatusSubmitted, req.RequesterID},
			{models.StatusUnderReview, operator.ID},
			{models.StatusVerified, operator.ID},
			{models.StatusApproved, kepala.ID},
			{models.StatusAssigned, kepala.ID},
			{models.StatusInProgress, pengelola.ID}},
		models.StatusCompleted: {
			{models.StatusSubmitted, req.RequesterID},
			{models.StatusUnderReview, operator.ID},
			{models.StatusVerified, operator.ID},
			{models.StatusApproved, kepala.ID},
			{models.StatusAssigned, kepala.ID},
			{models.StatusInProgress, pengelola.ID},
			{models.StatusCompleted, pengelola.ID}},
		models.StatusRejected: {
			{models.StatusSubmitted, req.RequesterID},
			{models.StatusUnderReview, operator.ID},
			{models.StatusRejected, operator.ID}},
		models.StatusCancelled: {
			{models.StatusSubmitted, req.RequesterID},
			{models.StatusCancelled, req.RequesterID}},
	}

	from := models.StatusDraft
	at := req.CreatedAt
	for _, st := range paths[req.Status] {
		at = at.Add(time.Duration(1+s.rng.Intn(24)) * time.Hour)
		comment := ""
		if st.to == models.StatusRejected {
			comment = "Dokumen tidak lengkap"
		}
		tr := &models.StatusTransition{
			RequestID:  req.ID,
			FromStatus: from,
			ToStatus:   st.to,
			Comment:    comment,
			ActorID:    st.actor,
			CreatedAt:  at,
		}
		if err := s.db.Create(tr).Error; err != nil {
			return fmt.Errorf("seed transition: %w", err)
		}
		from = st.to
	}
	return nil
}
