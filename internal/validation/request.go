// Package validation holds input checks and the per-service-type submission
// rule sets for service requests.
package validation

import (
	"regexp"
	"strings"

	"ebantek/internal/models"
)

var (
	emailRegex      = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	phoneDigitRegex = regexp.MustCompile(`^\d+$`)
	phoneStripper   = strings.NewReplacer(" ", "", "-", "")
)

// rule is one submission requirement. check returns true when satisfied.
type rule struct {
	field   string
	message string
	check   func(r *models.ServiceRequest) bool
}

func required(field, message string, get func(r *models.ServiceRequest) string) rule {
	return rule{
		field:   field,
		message: message,
		check: func(r *models.ServiceRequest) bool {
			return strings.TrimSpace(get(r)) != ""
		},
	}
}

// document requires an uploaded file reference in the given document slot.
func document(slot, message string) rule {
	return rule{
		field:   "documents." + slot,
		message: message,
		check: func(r *models.ServiceRequest) bool {
			return r.Documents.GetString(slot) != ""
		},
	}
}

// applicantRules apply to every service type: the OPD contact block plus the
// formal request letter.
var applicantRules = []rule{
	required("applicant.opd_name", "Nama OPD/Instansi wajib diisi",
		func(r *models.ServiceRequest) string { return r.Applicant.OPDName }),
	required("applicant.opd_address", "Alamat OPD/Instansi wajib diisi",
		func(r *models.ServiceRequest) string { return r.Applicant.OPDAddress }),
	required("applicant.contact_person", "Nama Penanggung Jawab wajib diisi",
		func(r *models.ServiceRequest) string { return r.Applicant.ContactPerson }),
	required("applicant.position", "Jabatan wajib diisi",
		func(r *models.ServiceRequest) string { return r.Applicant.Position }),
	required("applicant.phone", "Nomor Telepon wajib diisi",
		func(r *models.ServiceRequest) string { return r.Applicant.Phone }),
	required("applicant.email", "Email wajib diisi",
		func(r *models.ServiceRequest) string { return r.Applicant.Email }),
	required("applicant.subject", "Perihal Maksud dan Tujuan wajib diisi",
		func(r *models.ServiceRequest) string { return r.Applicant.Subject }),
	document("surat_permohonan", "Surat Permohonan wajib diupload"),
	{
		field:   "applicant.email",
		message: "Format email tidak valid",
		check: func(r *models.ServiceRequest) bool {
			email := strings.TrimSpace(r.Applicant.Email)
			return email == "" || emailRegex.MatchString(email)
		},
	},
	{
		field:   "applicant.phone",
		message: "Format nomor telepon tidak valid",
		check: func(r *models.ServiceRequest) bool {
			phone := strings.TrimSpace(r.Applicant.Phone)
			return phone == "" || phoneDigitRegex.MatchString(phoneStripper.Replace(phone))
		},
	},
}

// buildingRules apply to the building-centric service types.
var buildingRules = []rule{
	required("building.name", "Nama Bangunan wajib diisi",
		func(r *models.ServiceRequest) string { return r.Building.Name }),
	required("building.location", "Lokasi Bangunan wajib diisi",
		func(r *models.ServiceRequest) string { return r.Building.Location }),
	required("building.function", "Fungsi Bangunan wajib diisi",
		func(r *models.ServiceRequest) string { return r.Building.Function }),
	required("building.area_m2", "Luas Bangunan wajib diisi",
		func(r *models.ServiceRequest) string { return r.Building.AreaM2 }),
	required("building.year_built", "Tahun Dibangun wajib diisi",
		func(r *models.ServiceRequest) string { return r.Building.YearBuilt }),
	required("building.condition", "Kondisi Saat Ini wajib dipilih",
		func(r *models.ServiceRequest) string { return r.Building.Condition }),
	document("foto_bangunan_depan", "Foto Tampak Depan wajib diupload"),
	document("foto_bangunan_belakang", "Foto Tampak Belakang wajib diupload"),
	document("foto_bangunan_kanan", "Foto Tampak Kanan wajib diupload"),
	document("foto_bangunan_kiri", "Foto Tampak Kiri wajib diupload"),
}

// submissionRules dispatches the rule set by service type. The two fully
// building-centric services carry the technical block; the rest only need the
// applicant block and the request letter.
var submissionRules = map[models.ServiceType][]rule{
	models.ServicePerhitunganNilaiSisa: concat(applicantRules, buildingRules),
	models.ServiceAssessmentBangunan:   concat(applicantRules, buildingRules),
	models.ServiceUsulanPembiayaan:     applicantRules,
	models.ServiceTimTeknis:            applicantRules,
	models.ServicePenelitiKontrak:      applicantRules,
	models.ServicePendampinganPHOFHO:   applicantRules,
	models.ServicePengelolaTeknis:      applicantRules,
}

func concat(sets ...[]rule) []rule {
	var out []rule
	for _, set := range sets {
		out = append(out, set...)
	}
	return out
}

// ValidateForSubmission checks every rule for the request's service type and
// returns all violations, never failing fast, so the caller can surface the
// complete list at once. Pure: the request is not touched.
func ValidateForSubmission(r *models.ServiceRequest) []models.RuleViolation {
	rules, ok := submissionRules[r.ServiceType]
	if !ok {
		return []models.RuleViolation{{
			Field:   "service_type",
			Message: "Jenis layanan tidak dikenal",
		}}
	}

	var violations []models.RuleViolation
	for _, rl := range rules {
		if !rl.check(r) {
			violations = append(violations, models.RuleViolation{
				Field:   rl.field,
				Message: rl.message,
			})
		}
	}
	return violations
}
