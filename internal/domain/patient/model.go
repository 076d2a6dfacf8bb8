package patient

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
)

// PersonalDetails are the patient-supplied identity and contact fields.
type PersonalDetails struct {
	FirstName      string `db:"first_name" json:"first_name"`
	LastName       string `db:"last_name" json:"last_name"`
	DateOfBirth    string `db:"date_of_birth" json:"date_of_birth"`
	Gender         string `db:"gender" json:"gender,omitempty"`
	ContactNumber  string `db:"contact_number" json:"contact_number"`
	ContactAddress string `db:"contact_address" json:"contact_address"`
	Email          string `db:"email" json:"email,omitempty"`
}

// NextOfKin is the patient's emergency contact.
type NextOfKin struct {
	FirstName      string `db:"kin_first_name" json:"first_name"`
	LastName       string `db:"kin_last_name" json:"last_name"`
	Relationship   string `db:"kin_relationship" json:"relationship"`
	ContactNumber  string `db:"kin_contact_number" json:"contact_number"`
	ContactAddress string `db:"kin_contact_address" json:"contact_address"`
	Email          string `db:"kin_email" json:"email,omitempty"`
}

type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID string    `db:"patient_id" json:"patient_id"`
	PersonalDetails
	Kin       NextOfKin `json:"kin"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const dateLayout = "2006-01-02"

func (d *PersonalDetails) normalize() {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.DateOfBirth = strings.TrimSpace(d.DateOfBirth)
	d.Gender = strings.ToLower(strings.TrimSpace(d.Gender))
	d.ContactNumber = strings.TrimSpace(d.ContactNumber)
	d.ContactAddress = strings.TrimSpace(d.ContactAddress)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
}

func (k *NextOfKin) normalize() {
	k.FirstName = strings.TrimSpace(k.FirstName)
	k.LastName = strings.TrimSpace(k.LastName)
	k.Relationship = strings.TrimSpace(k.Relationship)
	k.ContactNumber = strings.TrimSpace(k.ContactNumber)
	k.ContactAddress = strings.TrimSpace(k.ContactAddress)
	k.Email = strings.ToLower(strings.TrimSpace(k.Email))
}

func checkName(ve *apperr.ValidationError, field, v string) {
	if len([]rune(v)) < 2 {
		ve.Add(field, "must be at least 2 characters")
	}
}

func checkContact(ve *apperr.ValidationError, prefix, number, address, email string) {
	if len(number) < 10 {
		ve.Add(prefix+"contact_number", "must be at least 10 characters")
	}
	if address == "" {
		ve.Add(prefix+"contact_address", "required")
	}
	if email != "" && !emailPattern.MatchString(email) {
		ve.Add(prefix+"email", "invalid email address")
	}
}

// Validate normalizes and checks registration input. now bounds the date of
// birth.
func Validate(personal *PersonalDetails, kin *NextOfKin, now time.Time) error {
	personal.normalize()
	kin.normalize()

	ve := &apperr.ValidationError{}
	checkName(ve, "first_name", personal.FirstName)
	checkName(ve, "last_name", personal.LastName)
	if dob, err := time.Parse(dateLayout, personal.DateOfBirth); err != nil {
		ve.Add("date_of_birth", "must be a YYYY-MM-DD date")
	} else if dob.After(now) {
		ve.Add("date_of_birth", "must not be in the future")
	}
	checkContact(ve, "", personal.ContactNumber, personal.ContactAddress, personal.Email)

	checkName(ve, "kin.first_name", kin.FirstName)
	checkName(ve, "kin.last_name", kin.LastName)
	if kin.Relationship == "" {
		ve.Add("kin.relationship", "required")
	}
	checkContact(ve, "kin.", kin.ContactNumber, kin.ContactAddress, kin.Email)
	return ve.OrNil()
}

var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewPatientID returns an external id of the form SLP-<YYMM>-<6 chars>.
func NewPatientID(now time.Time) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate patient id: %w", err)
	}
	return fmt.Sprintf("SLP-%s-%s", now.Format("0601"), idEncoding.EncodeToString(b)[:6]), nil
}

// Matches reports whether the patient matches a case-insensitive substring
// query over id, names, contact number and email.
func (p *Patient) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	for _, v := range []string{p.PatientID, p.FirstName, p.LastName, p.FullName(), p.ContactNumber, p.Email} {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}
