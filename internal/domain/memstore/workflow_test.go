package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Oluwataye/Seeklab-sub001/internal/domain/accesscode"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/disclosure"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/patient"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/payment"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/result"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/template"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/auth"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/notification"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/sessionstore"
)

var (
	receptionist = auth.Actor{ID: "u-rec", Name: "Front Desk", Role: auth.RoleReceptionist}
	accountant   = auth.Actor{ID: "u-acc", Name: "Accounts", Role: auth.RoleAccountant}
	technician   = auth.Actor{ID: "u-tech", Name: "Bench Tech", Role: auth.RoleTechnician}
	scientist    = auth.Actor{ID: "u-sci", Name: "Dr Okafor", Role: auth.RoleScientist}
)

func TestLabWorkflow(t *testing.T) {
	ctx := context.Background()
	notes := &notification.Recorder{}
	svc := New().Wire(notes, accesscode.Config{TTL: 72 * time.Hour, Length: 10}, zerolog.Nop())
	sessions := disclosure.NewService(svc.AccessCodes, svc.Results, svc.Templates, sessionstore.NewMemoryStore(), zerolog.Nop())

	ada, err := svc.Patients.RegisterPatient(ctx, patient.PersonalDetails{
		FirstName: "Ada", LastName: "Obi", DateOfBirth: "1990-01-01",
		ContactNumber: "08012345678", ContactAddress: "1 Main St",
	}, patient.NextOfKin{
		FirstName: "Chidi", LastName: "Obi", Relationship: "Brother",
		ContactNumber: "08087654321", ContactAddress: "1 Main St",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err = svc.AccessCodes.IssueAccessCode(ctx, ada.PatientID, template.BasicMetabolicPanel, accesscode.IssueOptions{}, receptionist)
	if !errors.Is(err, apperr.ErrPaymentRequired) {
		t.Fatalf("expected payment required before payment, got %v", err)
	}

	p, err := svc.Payments.RecordPayment(ctx, payment.RecordInput{
		PatientID: ada.PatientID, Amount: 1000, Method: payment.MethodBankTransfer, ReferenceNumber: "REF-1",
	}, receptionist)
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if p.Status != payment.StatusPending {
		t.Fatalf("expected pending payment, got %s", p.Status)
	}
	if _, err := svc.Payments.ConfirmPayment(ctx, p.ID, accountant, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if p, err = svc.Payments.VerifyPayment(ctx, p.ID, accountant); err != nil || p.Status != payment.StatusVerified {
		t.Fatalf("verify: %v", err)
	}

	issued, err := svc.AccessCodes.IssueAccessCode(ctx, ada.PatientID, template.BasicMetabolicPanel,
		accesscode.IssueOptions{NotifyPatient: true}, receptionist)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	code := issued.AccessCode.Code

	view, err := sessions.Open(ctx, code)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if view.State != disclosure.StateActive || view.Disclosure.Status != result.DisplayPending || len(view.Disclosure.Fields) != 0 {
		t.Errorf("expected pending disclosure, got %+v", view.Disclosure)
	}

	rid := issued.Result.ID
	if _, err := svc.Results.SubmitResultData(ctx, rid, template.BasicMetabolicPanel, map[string]string{"Glucose": "95"}, technician, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	view, err = sessions.View(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	d := view.Disclosure
	if d.Status != result.DisplayPreliminary || !d.Preliminary || d.Review != nil {
		t.Errorf("expected preliminary disclosure, got %+v", d)
	}
	if len(d.Fields) != 1 || d.Fields[0].Flag != template.FlagNormal || d.Fields[0].Unit != "mg/dL" {
		t.Errorf("unexpected fields %+v", d.Fields)
	}

	if _, err := svc.Results.SubmitReview(ctx, rid, result.ReviewInput{Approved: true, Comments: "Normal fasting glucose"}, scientist, nil); err != nil {
		t.Fatalf("review: %v", err)
	}
	view, _ = sessions.View(ctx, view.SessionID)
	if view.Disclosure.Status != result.DisplayVerified || view.Disclosure.Review.Comments != "Normal fasting glucose" {
		t.Errorf("expected verified disclosure, got %+v", view.Disclosure)
	}

	_, err = svc.Results.SubmitResultData(ctx, rid, template.BasicMetabolicPanel, map[string]string{"Glucose": "99"}, technician, nil)
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected technician edit of approved result to be forbidden, got %v", err)
	}

	for _, typ := range []notification.EventType{
		notification.EventPatientRegistered, notification.EventPaymentVerified,
		notification.EventAccessCodeIssued, notification.EventResultApproved,
	} {
		if len(notes.OfType(typ)) != 1 {
			t.Errorf("expected one %s event, got %d", typ, len(notes.OfType(typ)))
		}
	}
}

func TestMemStore_PaymentAuthorizesOneCode(t *testing.T) {
	ctx := context.Background()
	svc := New().Wire(nil, accesscode.Config{}, zerolog.Nop())
	p, _ := svc.Patients.RegisterPatient(ctx, patient.PersonalDetails{
		FirstName: "Ada", LastName: "Obi", DateOfBirth: "1990-01-01",
		ContactNumber: "08012345678", ContactAddress: "1 Main St",
	}, patient.NextOfKin{
		FirstName: "Chidi", LastName: "Obi", Relationship: "Brother",
		ContactNumber: "08087654321", ContactAddress: "1 Main St",
	})
	pay, _ := svc.Payments.RecordPayment(ctx, payment.RecordInput{
		PatientID: p.PatientID, Amount: 500, Method: payment.MethodCash, ReferenceNumber: "CASH-1",
	}, receptionist)
	if pay.Status != payment.StatusCompleted {
		svc.Payments.ConfirmPayment(ctx, pay.ID, accountant, "")
	}
	svc.Payments.VerifyPayment(ctx, pay.ID, accountant)

	if _, err := svc.AccessCodes.IssueAccessCode(ctx, p.PatientID, template.LipidPanel, accesscode.IssueOptions{}, receptionist); err != nil {
		t.Fatalf("first issue: %v", err)
	}
	_, err := svc.AccessCodes.IssueAccessCode(ctx, p.PatientID, template.Urinalysis, accesscode.IssueOptions{}, receptionist)
	if !errors.Is(err, apperr.ErrPaymentRequired) {
		t.Errorf("expected consumed payment to refuse a second code, got %v", err)
	}
	stored, _ := svc.Payments.GetPayment(ctx, pay.ID)
	if !stored.Consumed() {
		t.Error("expected payment to be consumed")
	}
}
