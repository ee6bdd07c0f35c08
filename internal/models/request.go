package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestStatus defines lifecycle states for service requests.
type RequestStatus string

const (
	// StatusDraft is the unique initial state; freely editable by its owner.
	StatusDraft RequestStatus = "DRAFT"
	// StatusSubmitted indicates the request passed validation and awaits review.
	StatusSubmitted RequestStatus = "SUBMITTED"
	// StatusUnderReview indicates an operator picked the request up.
	StatusUnderReview RequestStatus = "UNDER_REVIEW"
	// StatusVerified indicates the operator confirmed the submission is complete.
	StatusVerified RequestStatus = "VERIFIED"
	// StatusApproved indicates the section head approved the request.
	StatusApproved RequestStatus = "APPROVED"
	// StatusAssigned indicates a technical manager was assigned.
	StatusAssigned RequestStatus = "ASSIGNED"
	// StatusInProgress indicates the technical manager started the work.
	StatusInProgress RequestStatus = "IN_PROGRESS"
	// StatusCompleted is terminal: the service was delivered.
	StatusCompleted RequestStatus = "COMPLETED"
	// StatusRejected is terminal except for the explicit resubmission path.
	StatusRejected RequestStatus = "REJECTED"
	// StatusCancelled is terminal: withdrawn before completion.
	StatusCancelled RequestStatus = "CANCELLED"
)

// ServiceType identifies which construction-assistance service a request asks
// for. The set is closed: each type fixes the request's field set and
// submission rules.
type ServiceType string

const (
	ServicePerhitunganNilaiSisa ServiceType = "PERHITUNGAN_NILAI_SISA"
	ServiceAssessmentBangunan   ServiceType = "ASSESSMENT_BANGUNAN"
	ServiceUsulanPembiayaan     ServiceType = "USULAN_PEMBIAYAAN"
	ServiceTimTeknis            ServiceType = "TIM_TEKNIS"
	ServicePenelitiKontrak      ServiceType = "PENELITI_KONTRAK"
	ServicePendampinganPHOFHO   ServiceType = "PENDAMPINGAN_PHO_FHO"
	ServicePengelolaTeknis      ServiceType = "PENGELOLA_TEKNIS"
)

// ServiceTypes lists all known service types in a stable order.
var ServiceTypes = []ServiceType{
	ServicePerhitunganNilaiSisa,
	ServiceAssessmentBangunan,
	ServiceUsulanPembiayaan,
	ServiceTimTeknis,
	ServicePenelitiKontrak,
	ServicePendampinganPHOFHO,
	ServicePengelolaTeknis,
}

// Valid reports whether t is one of the known service types.
func (t ServiceType) Valid() bool {
	for _, known := range ServiceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// allowedTransitions is the explicit transition table. The source system let
// privileged actors jump between arbitrary states; here every transition must
// be listed. REJECTED -> SUBMITTED is the resubmission path.
var allowedTransitions = map[RequestStatus][]RequestStatus{
	StatusDraft:       {StatusSubmitted, StatusCancelled},
	StatusSubmitted:   {StatusUnderReview, StatusRejected, StatusCancelled},
	StatusUnderReview: {StatusVerified, StatusRejected},
	StatusVerified:    {StatusApproved, StatusRejected},
	StatusApproved:    {StatusAssigned},
	StatusAssigned:    {StatusInProgress},
	StatusInProgress:  {StatusCompleted},
	StatusRejected:    {StatusSubmitted},
	StatusCompleted:   {},
	StatusCancelled:   {},
}

// CanTransition reports whether the transition from -> to is permitted.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the permitted next states for a status.
func AllowedTransitions(from RequestStatus) []RequestStatus {
	next := allowedTransitions[from]
	out := make([]RequestStatus, len(next))
	copy(out, next)
	return out
}

// IsTerminal reports whether no outbound transitions exist for the status.
// REJECTED allows resubmission, so it is not terminal here even though the
// workflow treats it as an end state when the requester gives up.
func (s RequestStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Valid reports whether s is one of the ten defined states.
func (s RequestStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// ApplicantInfo is the OPD/agency contact block shared by every service type.
type ApplicantInfo struct {
	OPDName       string `gorm:"size:160" json:"opd_name"`
	OPDAddress    string `gorm:"size:255" json:"opd_address"`
	ContactPerson string `gorm:"size:120" json:"contact_person"`
	Position      string `gorm:"size:120" json:"position"`
	Phone         string `gorm:"size:30" json:"phone"`
	Email         string `gorm:"size:160" json:"email"`
	Subject       string `gorm:"type:text" json:"subject"`
}

// BuildingInfo is the technical data block used by the building-centric
// service types (residual value calculation, building assessment).
type BuildingInfo struct {
	Name       string `gorm:"size:160" json:"name"`
	Location   string `gorm:"size:255" json:"location"`
	Function   string `gorm:"size:120" json:"function"`
	AreaM2     string `gorm:"size:40" json:"area_m2"`
	YearBuilt  string `gorm:"size:10" json:"year_built"`
	Condition  string `gorm:"size:60" json:"condition"`
	ExtraNotes string `gorm:"type:text" json:"extra_notes"`
}

// ServiceRequest is a citizen/OPD service request moving through the approval
// workflow. The status column is the single source of truth for where the
// request sits; statusHistory, comments and files are append-only.
type ServiceRequest struct {
	ID          string      `gorm:"primaryKey;size:44" json:"id"`
	ServiceType ServiceType `gorm:"type:varchar(40);not null;index" json:"service_type"`
	RequesterID uint        `gorm:"not null;index" json:"requester_id"`
	Requester   *User       `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`

	Status RequestStatus `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	// Version guards against lost updates: every write must match the version
	// it read and bumps it by one.
	Version int64 `gorm:"not null;default:1" json:"version"`

	Applicant ApplicantInfo `gorm:"embedded;embeddedPrefix:applicant_" json:"applicant"`
	Building  BuildingInfo  `gorm:"embedded;embeddedPrefix:building_" json:"building"`

	// Documents maps a document slot (e.g. "surat_permohonan",
	// "foto_bangunan_depan") to the ID of an uploaded file.
	Documents JSONMap `gorm:"type:jsonb" json:"documents"`
	// Extras holds service-type-specific fields outside the shared blocks.
	Extras JSONMap `gorm:"type:jsonb" json:"extras"`

	AssignedTo   *uint      `gorm:"index" json:"assigned_to"`
	AssignedBy   *uint      `json:"assigned_by"`
	AssignedAt   *time.Time `json:"assigned_at"`
	SubmittedAt  *time.Time `json:"submitted_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	StatusHistory []StatusTransition `gorm:"foreignKey:RequestID" json:"status_history,omitempty"`
	Comments      []RequestComment   `gorm:"foreignKey:RequestID" json:"comments,omitempty"`
	Files         []RequestFile      `gorm:"foreignKey:RequestID" json:"files,omitempty"`
}

// StatusTransition is one append-only audit trail entry. Entries are never
// edited, truncated or reordered.
type StatusTransition struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	RequestID  string        `gorm:"size:44;not null;index" json:"request_id"`
	FromStatus RequestStatus `gorm:"type:varchar(20);not null" json:"from"`
	ToStatus   RequestStatus `gorm:"type:varchar(20);not null" json:"to"`
	Comment    string        `gorm:"type:text" json:"comment"`
	ActorID    uint          `gorm:"not null" json:"actor_id"`
	CreatedAt  time.Time     `json:"timestamp"`
}

// RequestComment is a discussion entry attached to a request.
type RequestComment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RequestID string    `gorm:"size:44;not null;index" json:"request_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	AuthorID  uint      `gorm:"not null" json:"author_id"`
	CreatedAt time.Time `json:"timestamp"`
}

// RequestFile is a stored reference to an uploaded document. The backend never
// keeps raw bytes on the request; ContentRef points into the file store.
type RequestFile struct {
	ID         string    `gorm:"primaryKey;size:44" json:"id"`
	RequestID  string    `gorm:"size:44;not null;index" json:"request_id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	MimeType   string    `gorm:"size:100" json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	ContentRef string    `gorm:"size:255;not null" json:"content_ref"`
	UploadedAt time.Time `gorm:"autoCreateTime" json:"uploaded_at"`
}

// NewRequestID generates a globally unique request identifier.
func NewRequestID() string {
	return "REQ_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewFileID generates a unique identifier for an uploaded file.
func NewFileID() string {
	return "file_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Statistics is the per-status aggregate for dashboards. InProgress covers
// every state between submission and completion.
type Statistics struct {
	Total      int64 `json:"total"`
	Draft      int64 `json:"draft"`
	Submitted  int64 `json:"submitted"`
	InProgress int64 `json:"in_progress"`
	Completed  int64 `json:"completed"`
	Rejected   int64 `json:"rejected"`
	Cancelled  int64 `json:"cancelled"`
}

// InProgressStatuses are the states aggregated into Statistics.InProgress.
var InProgressStatuses = []RequestStatus{
	StatusUnderReview,
	StatusVerified,
	StatusApproved,
	StatusAssigned,
	StatusInProgress,
}

// DraftSnapshot is an auto-saved form snapshot for a not-yet-created request.
// Snapshots live in a separate keyed store per owner and are plain bookkeeping,
// not part of the workflow state machine.
type DraftSnapshot struct {
	Key         string      `json:"key"`
	ServiceType ServiceType `json:"service_type"`
	FormData    JSONMap     `json:"form_data"`
	SavedAt     time.Time   `json:"saved_at"`
}
