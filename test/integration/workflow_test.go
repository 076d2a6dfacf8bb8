//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Oluwataye/Seeklab-sub001/internal/domain/accesscode"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/disclosure"
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

func verifiedPayment(t *testing.T, ctx context.Context, l *lab, patientID, ref string) *payment.Payment {
	t.Helper()
	p, err := l.payments.RecordPayment(ctx, payment.RecordInput{
		PatientID: patientID, Amount: 1500, Method: payment.MethodBankTransfer, ReferenceNumber: ref,
	}, receptionist)
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if _, err := l.payments.ConfirmPayment(ctx, p.ID, accountant, "TX-"+ref); err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	p, err = l.payments.VerifyPayment(ctx, p.ID, accountant)
	if err != nil {
		t.Fatalf("verify payment: %v", err)
	}
	return p
}

func TestLabWorkflow_Postgres(t *testing.T) {
	ctx := context.Background()
	tenant := uniqueTenantID("lab")
	createTenantSchema(t, ctx, tenant)
	defer dropTenantSchema(t, ctx, tenant)

	sessions, err := sessionstore.NewRedisStore(globalDB.RedisURL)
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	defer sessions.Close()

	notes := &notification.Recorder{}
	l := newLab(globalDB.Pool, notes)
	disclose := disclosure.NewService(l.accessCodes, l.results, l.templates, sessions, zerolog.Nop())

	err = withTenantConn(ctx, globalDB.Pool, tenant, func(ctx context.Context) error {
		ada := registerTestPatient(t, ctx, l, "Ada", "Obi")

		_, err := l.accessCodes.IssueAccessCode(ctx, ada.PatientID, template.BasicMetabolicPanel, accesscode.IssueOptions{}, receptionist)
		if !errors.Is(err, apperr.ErrPaymentRequired) {
			t.Fatalf("expected payment required, got %v", err)
		}

		pay := verifiedPayment(t, ctx, l, ada.PatientID, "REF-1")
		issued, err := l.accessCodes.IssueAccessCode(ctx, ada.PatientID, template.BasicMetabolicPanel, accesscode.IssueOptions{}, receptionist)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		stored, _ := l.payments.GetPayment(ctx, pay.ID)
		if !stored.Consumed() {
			t.Error("expected the payment to be consumed by the issued code")
		}

		_, err = l.accessCodes.IssueAccessCode(ctx, ada.PatientID, template.BasicMetabolicPanel,
			accesscode.IssueOptions{BypassPaymentCheck: true}, auth.Actor{ID: "adm", Name: "Admin", Role: auth.RoleAdmin})
		if !errors.Is(err, apperr.ErrConflict) {
			t.Errorf("expected a second active code for the same test to conflict, got %v", err)
		}

		view, err := disclose.Open(ctx, issued.AccessCode.Code)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if view.Disclosure.Status != result.DisplayPending {
			t.Errorf("expected pending, got %s", view.Disclosure.Status)
		}

		rid := issued.Result.ID
		r, err := l.results.SubmitResultData(ctx, rid, "", map[string]string{"Glucose": "95", "Sodium": "140"}, technician, nil)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		stale := r.Version - 1
		if _, err := l.results.SubmitResultData(ctx, rid, "", map[string]string{"Glucose": "96"}, technician, &stale); !errors.Is(err, apperr.ErrConflict) {
			t.Errorf("expected stale version to conflict, got %v", err)
		}

		if _, err := l.results.SubmitReview(ctx, rid, result.ReviewInput{Approved: true, Comments: "Normal"}, scientist, nil); err != nil {
			t.Fatalf("review: %v", err)
		}
		got, err := l.results.GetResult(ctx, rid)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if result.Display(got) != result.DisplayVerified || len(got.ReviewHistory) != 1 {
			t.Errorf("expected verified result with one review entry, got %s and %d entries", result.Display(got), len(got.ReviewHistory))
		}

		view, err = disclose.View(ctx, view.SessionID)
		if err != nil {
			t.Fatalf("view: %v", err)
		}
		if view.Disclosure.Status != result.DisplayVerified || len(view.Disclosure.Fields) != 2 {
			t.Errorf("unexpected verified disclosure %+v", view.Disclosure)
		}

		codes, err := l.accessCodes.ListForPatient(ctx, ada.PatientID)
		if err != nil {
			t.Fatalf("list codes: %v", err)
		}
		if len(codes) != 1 || codes[0].SessionCount != 1 {
			t.Errorf("expected one code redeemed once, got %+v", codes)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(notes.OfType(notification.EventResultApproved)) != 1 {
		t.Errorf("expected one result approved event, got %d", len(notes.OfType(notification.EventResultApproved)))
	}
}

func TestReissueAccessCode_Postgres(t *testing.T) {
	ctx := context.Background()
	tenant := uniqueTenantID("reissue")
	createTenantSchema(t, ctx, tenant)
	defer dropTenantSchema(t, ctx, tenant)

	l := newLab(globalDB.Pool, nil)
	err := withTenantConn(ctx, globalDB.Pool, tenant, func(ctx context.Context) error {
		p := registerTestPatient(t, ctx, l, "Bola", "Ade")
		verifiedPayment(t, ctx, l, p.PatientID, "REF-9")
		issued, err := l.accessCodes.IssueAccessCode(ctx, p.PatientID, template.LipidPanel, accesscode.IssueOptions{}, receptionist)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}

		fresh, err := l.accessCodes.ReissueAccessCode(ctx, issued.Result.ID, receptionist)
		if err != nil {
			t.Fatalf("reissue: %v", err)
		}
		if fresh.Code == issued.AccessCode.Code || fresh.PaymentID == nil {
			t.Errorf("expected a new code carrying the payment, got %+v", fresh)
		}
		if _, _, err := l.accessCodes.RedeemAccessCode(ctx, issued.AccessCode.Code); !errors.Is(err, apperr.ErrExpired) {
			t.Errorf("expected the old code to be revoked, got %v", err)
		}
		r, _, err := l.accessCodes.RedeemAccessCode(ctx, fresh.Code)
		if err != nil || r.ID != issued.Result.ID || r.AccessCode != fresh.Code {
			t.Errorf("expected the new code to open the same result, got %+v, %v", r, err)
		}

		if err := l.results.DeleteResult(ctx, issued.Result.ID, auth.Actor{ID: "adm", Name: "Admin", Role: auth.RoleAdmin}); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, _, err := l.accessCodes.RedeemAccessCode(ctx, fresh.Code); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected codes to go with the deleted result, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
