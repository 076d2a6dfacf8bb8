package result

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Oluwataye/Seeklab-sub001/internal/domain/template"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/auth"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusReview     Status = "review"
	StatusRejected   Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusReview, StatusRejected:
		return true
	}
	return false
}

// ResultData is the entered result along with the template fields it was
// validated against.
type ResultData struct {
	TemplateID   string                   `json:"template_id"`
	TemplateName string                   `json:"template_name"`
	Fields       []template.TemplateField `json:"fields"`
	Values       map[string]string        `json:"values"`
	Timestamp    time.Time                `json:"timestamp"`
	EnteredBy    string                   `json:"entered_by"`
}

// Template rebuilds the template snapshot the values were entered against.
func (d *ResultData) Template() *template.ResultTemplate {
	return &template.ResultTemplate{ID: d.TemplateID, Name: d.TemplateName, Fields: d.Fields}
}

type ScientistReview struct {
	Approved   bool      `json:"approved"`
	Comments   string    `json:"comments"`
	ReviewedBy string    `json:"reviewed_by"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

// ReviewAction names an entry in a result's review history.
type ReviewAction string

const (
	ActionReviewed ReviewAction = "reviewed"
	ActionRejected ReviewAction = "rejected"
)

type ReviewEntry struct {
	ID         uuid.UUID    `db:"id" json:"id"`
	ResultID   uuid.UUID    `db:"result_id" json:"result_id"`
	Action     ReviewAction `db:"action" json:"action"`
	Approved   bool         `db:"approved" json:"approved"`
	Comments   string       `db:"comments" json:"comments"`
	ReviewedBy string       `db:"reviewed_by" json:"reviewed_by"`
	ReviewedAt time.Time    `db:"reviewed_at" json:"reviewed_at"`
}

type Result struct {
	ID              uuid.UUID        `db:"id" json:"id"`
	PatientID       string           `db:"patient_id" json:"patient_id"`
	TestType        string           `db:"test_type" json:"test_type"`
	AccessCode      string           `db:"access_code" json:"access_code"`
	Status          Status           `db:"status" json:"status"`
	ResultData      *ResultData      `db:"result_data" json:"result_data,omitempty"`
	ScientistReview *ScientistReview `db:"scientist_review" json:"scientist_review,omitempty"`
	RejectionReason *string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ReviewHistory   []ReviewEntry    `db:"-" json:"review_history,omitempty"`
	Version         int              `db:"version" json:"version"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
	ExpiresAt       time.Time        `db:"expires_at" json:"expires_at"`
}

// Approved reports whether a scientist has approved the result.
func (r *Result) Approved() bool {
	return r.ScientistReview != nil && r.ScientistReview.Approved
}

// DisplayStatus is what a patient is shown for a result.
type DisplayStatus string

const (
	DisplayPending     DisplayStatus = "Pending"
	DisplayPreliminary DisplayStatus = "Preliminary"
	DisplayVerified    DisplayStatus = "Verified"
)

// Display derives the patient-facing status from the presence of data and
// the approval flag alone.
func Display(r *Result) DisplayStatus {
	switch {
	case r.ResultData != nil && r.Approved():
		return DisplayVerified
	case r.ResultData != nil:
		return DisplayPreliminary
	default:
		return DisplayPending
	}
}

// CanEdit reports whether role may change the result data. Approved results
// are closed to technicians.
func CanEdit(role auth.Role, r *Result) bool {
	return role != auth.RoleTechnician || !r.Approved()
}

func CanDelete(role auth.Role) bool {
	return role == auth.RoleAdmin || role == auth.RoleScientist
}

func canReview(role auth.Role) bool {
	return role == auth.RoleAdmin || role == auth.RoleScientist
}

// NextOnSubmit returns the status a result moves to when data is entered.
// An approved review is retained when a scientist or admin revises values.
func NextOnSubmit(r *Result, role auth.Role) (Status, error) {
	if !CanEdit(role, r) {
		return "", apperr.Forbidden("approved results cannot be edited by technicians")
	}
	switch r.Status {
	case StatusPending, StatusInProgress, StatusCompleted:
		return StatusInProgress, nil
	case StatusReview:
		if r.Approved() {
			return StatusReview, nil
		}
		return StatusInProgress, nil
	}
	return "", apperr.InvalidState("cannot enter data on a %s result", r.Status)
}

// NextOnFinalize moves entered data to completed.
func NextOnFinalize(r *Result) (Status, error) {
	if r.Status != StatusInProgress || r.ResultData == nil {
		return "", apperr.InvalidState("only in-progress results with data can be finalized, result is %s", r.Status)
	}
	return StatusCompleted, nil
}

// NextOnReview checks a review may be recorded and returns review. Any
// status carrying data can be reviewed, a rejected result included.
func NextOnReview(r *Result, role auth.Role) (Status, error) {
	if !canReview(role) {
		return "", apperr.Forbidden("only scientists can review results")
	}
	switch r.Status {
	case StatusInProgress, StatusCompleted, StatusReview, StatusRejected:
	default:
		return "", apperr.InvalidState("cannot review a %s result", r.Status)
	}
	if r.ResultData == nil {
		return "", apperr.InvalidState("result has no data to review")
	}
	return StatusReview, nil
}

// NextOnReject allows rejecting a reviewed result that is not approved.
func NextOnReject(r *Result, role auth.Role) (Status, error) {
	if !canReview(role) {
		return "", apperr.Forbidden("only scientists can reject results")
	}
	if r.Status != StatusReview || r.Approved() {
		return "", apperr.InvalidState("only unapproved results under review can be rejected, result is %s", r.Status)
	}
	return StatusRejected, nil
}

// Filter narrows ListResults. Zero values match everything.
type Filter struct {
	PatientID string
	Status    Status
	TestType  string
}

func (f Filter) validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return apperr.NewValidation("status", "unknown result status")
	}
	return nil
}

func (f Filter) Matches(r *Result) bool {
	if f.PatientID != "" && f.PatientID != r.PatientID {
		return false
	}
	if f.Status != "" && f.Status != r.Status {
		return false
	}
	if f.TestType != "" && !strings.EqualFold(f.TestType, r.TestType) {
		return false
	}
	return true
}
