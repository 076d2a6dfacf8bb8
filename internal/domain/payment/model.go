package payment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
)

type Method string

const (
	MethodBankTransfer Method = "bank_transfer"
	MethodCardPayment  Method = "card_payment"
	MethodCash         Method = "cash"
	MethodPOS          Method = "pos"
	MethodMobileMoney  Method = "mobile_money"
)

func (m Method) Valid() bool {
	switch m {
	case MethodBankTransfer, MethodCardPayment, MethodCash, MethodPOS, MethodMobileMoney:
		return true
	}
	return false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusVerified  Status = "verified"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusVerified, StatusFailed:
		return true
	}
	return false
}

// transitions lists the forward moves allowed from each status. verified and
// failed are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusVerified, StatusFailed},
	StatusVerified:  {},
	StatusFailed:    {},
}

// CanTransition reports whether a payment may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DefaultCurrency is applied when a payment is recorded without one.
const DefaultCurrency = "NGN"

type Payment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       string     `db:"patient_id" json:"patient_id"`
	Amount          int64      `db:"amount" json:"amount"`
	Currency        string     `db:"currency" json:"currency"`
	Method          Method     `db:"method" json:"payment_method"`
	ReferenceNumber string     `db:"reference_number" json:"reference_number"`
	Status          Status     `db:"status" json:"status"`
	TransactionID   *string    `db:"transaction_id" json:"transaction_id,omitempty"`
	RecordedBy      string     `db:"recorded_by" json:"recorded_by"`
	VerifiedBy      *string    `db:"verified_by" json:"verified_by,omitempty"`
	FailureReason   *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	ConsumedBy      *uuid.UUID `db:"consumed_by" json:"consumed_by,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	VerifiedAt      *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Consumed reports whether the payment already authorized an access code.
func (p *Payment) Consumed() bool {
	return p.ConsumedBy != nil
}

// RecordInput is the data needed to record a payment.
type RecordInput struct {
	PatientID       string `json:"patient_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Method          Method `json:"payment_method"`
	ReferenceNumber string `json:"reference_number"`
	TransactionID   string `json:"transaction_id"`
}

func (in *RecordInput) normalize() {
	in.PatientID = strings.TrimSpace(in.PatientID)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = DefaultCurrency
	}
	in.ReferenceNumber = strings.TrimSpace(in.ReferenceNumber)
	in.TransactionID = strings.TrimSpace(in.TransactionID)
}

func (in *RecordInput) validate() error {
	ve := &apperr.ValidationError{}
	if in.PatientID == "" {
		ve.Add("patient_id", "required")
	}
	if in.Amount <= 0 {
		ve.Add("amount", "must be a positive amount")
	}
	if !in.Method.Valid() {
		ve.Add("payment_method", "unknown payment method")
	}
	if in.ReferenceNumber == "" {
		ve.Add("reference_number", "required")
	}
	if len(in.Currency) != 3 {
		ve.Add("currency", "must be a three-letter currency code")
	}
	return ve.OrNil()
}

// InitialStatus is the status a newly recorded payment starts in. Bank
// transfers wait for confirmation; electronic captures are complete once the
// gateway transaction id is known; cash is complete on receipt.
func InitialStatus(m Method, transactionID string) Status {
	switch m {
	case MethodCash:
		return StatusCompleted
	case MethodCardPayment, MethodPOS, MethodMobileMoney:
		if transactionID != "" {
			return StatusCompleted
		}
	}
	return StatusPending
}

// Filter narrows ListPayments. Zero values match everything.
type Filter struct {
	Reference string
	PatientID string
	Status    Status
	Method    Method
}

func (f Filter) validate() error {
	ve := &apperr.ValidationError{}
	if f.Status != "" && !f.Status.Valid() {
		ve.Add("status", "unknown payment status")
	}
	if f.Method != "" && !f.Method.Valid() {
		ve.Add("method", "unknown payment method")
	}
	return ve.OrNil()
}

// Matches applies the filter to a single payment.
func (f Filter) Matches(p *Payment) bool {
	if f.Reference != "" && !strings.EqualFold(f.Reference, p.ReferenceNumber) {
		return false
	}
	if f.PatientID != "" && f.PatientID != p.PatientID {
		return false
	}
	if f.Status != "" && f.Status != p.Status {
		return false
	}
	if f.Method != "" && f.Method != p.Method {
		return false
	}
	return true
}
