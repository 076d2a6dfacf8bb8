package accesscode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Alphabet omits characters that are easy to misread: I, L, O, 0 and 1.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	MinLength     = 6
	DefaultLength = 10
	DefaultTTL    = 72 * time.Hour
)

type AccessCode struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Code         string     `db:"code" json:"code"`
	PatientID    string     `db:"patient_id" json:"patient_id"`
	ResultID     uuid.UUID  `db:"result_id" json:"result_id"`
	TestType     string     `db:"test_type" json:"test_type"`
	PaymentID    *uuid.UUID `db:"payment_id" json:"payment_id,omitempty"`
	IssuedBy     string     `db:"issued_by" json:"issued_by"`
	IssuedAt     time.Time  `db:"issued_at" json:"issued_at"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt    *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	SessionCount int        `db:"session_count" json:"session_count"`
}

// Active reports whether the code can still be redeemed at now. A code is
// still valid at the exact instant it expires.
func (a *AccessCode) Active(now time.Time) bool {
	return a.RevokedAt == nil && !now.After(a.ExpiresAt)
}

// GenerateCode draws length characters uniformly from Alphabet.
func GenerateCode(length int) (string, error) {
	if length < MinLength {
		return "", fmt.Errorf("access code length %d below minimum %d", length, MinLength)
	}
	max := big.NewInt(int64(len(Alphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate access code: %w", err)
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode trims and upper-cases patient input.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// IssueOptions controls IssueAccessCode.
type IssueOptions struct {
	BypassPaymentCheck bool       `json:"bypass_payment_check"`
	PaymentID          *uuid.UUID `json:"payment_id,omitempty"`
	NotifyPatient      bool       `json:"notify_patient"`
}

// Listing is an access code with its derived active flag.
type Listing struct {
	*AccessCode
	Active bool `json:"active"`
}
