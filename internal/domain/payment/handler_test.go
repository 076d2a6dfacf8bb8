package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"

	"github.com/Oluwataye/Seeklab-sub001/internal/platform/auth"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/reporting"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func withActor(req *http.Request, a auth.Actor) *http.Request {
	return req.WithContext(auth.WithActor(req.Context(), a))
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError with %d, got %v", code, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestHandler_RecordPayment(t *testing.T) {
	h, e := newTestHandler()
	body := `{"patient_id":"SLP-2603-ADA001","amount":1000,"payment_method":"bank_transfer","reference_number":"REF-1"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), clerk)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.RecordPayment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var p Payment
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Status != StatusPending || p.Method != MethodBankTransfer {
		t.Errorf("unexpected payment %+v", p)
	}

	req = withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), clerk)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	expectStatus(t, h.RecordPayment(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest)
}

func TestHandler_VerifyPayment(t *testing.T) {
	h, e := newTestHandler()
	ctx := context.Background()
	p, _ := h.svc.RecordPayment(ctx, bankTransfer("REF-1"), clerk)

	call := func(fn echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
		req := withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)), accountant)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(p.ID.String())
		return rec, fn(c)
	}

	_, err := call(h.VerifyPayment)
	expectStatus(t, err, http.StatusUnprocessableEntity)

	if _, err := call(h.ConfirmPayment); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	rec, err := call(h.VerifyPayment)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	var verified Payment
	json.Unmarshal(rec.Body.Bytes(), &verified)
	if verified.Status != StatusVerified {
		t.Errorf("expected verified, got %s", verified.Status)
	}

	_, err = call(h.VerifyPayment)
	expectStatus(t, err, http.StatusConflict)
}

func TestHandler_VerifyPayment_BadID(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectStatus(t, h.VerifyPayment(c), http.StatusBadRequest)
}

func TestHandler_ListPayments(t *testing.T) {
	h, e := newTestHandler()
	h.svc.RecordPayment(context.Background(), bankTransfer("REF-1"), clerk)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments?status=pending", nil)
	rec := httptest.NewRecorder()
	if err := h.ListPayments(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []Payment `json:"data"`
		Total int       `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 {
		t.Errorf("expected 1 pending payment, got %d", body.Total)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/payments?method=cheque", nil)
	expectStatus(t, h.ListPayments(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest)
}

func TestHandler_ExportLedger(t *testing.T) {
	h, e := newTestHandler()
	ctx := context.Background()
	h.svc.RecordPayment(ctx, bankTransfer("REF-1"), clerk)
	h.svc.RecordPayment(ctx, RecordInput{PatientID: "SLP-2603-ADA001", Amount: 250, Method: MethodPOS, ReferenceNumber: "POS-1", TransactionID: "T-1"}, clerk)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/export", nil)
	rec := httptest.NewRecorder()
	if err := h.ExportLedger(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != reporting.ContentTypeXLSX {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "payments-20260314.xlsx") {
		t.Errorf("unexpected content disposition %q", cd)
	}

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Payments")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][5] != "Reference" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[2][7] != "T-1" {
		t.Errorf("expected transaction id in POS row, got %v", rows[2])
	}
}
