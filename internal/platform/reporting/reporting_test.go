package reporting

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"
)

func TestPredefinedMeasures(t *testing.T) {
	expectedIDs := []string{
		"payments-by-status",
		"revenue-by-method",
		"results-by-status",
		"review-backlog",
		"access-code-usage",
	}
	if len(PredefinedMeasures) != len(expectedIDs) {
		t.Fatalf("expected %d predefined measures, got %d", len(expectedIDs), len(PredefinedMeasures))
	}
	for i, expectedID := range expectedIDs {
		if PredefinedMeasures[i].ID != expectedID {
			t.Errorf("expected measure[%d].ID = %s, got %s", i, expectedID, PredefinedMeasures[i].ID)
		}
	}
}

func TestPredefinedMeasures_HaveSQL(t *testing.T) {
	for _, m := range PredefinedMeasures {
		if m.SQL == "" || m.Name == "" || m.Description == "" {
			t.Errorf("measure %s is incomplete", m.ID)
		}
	}
}

func TestFindMeasure(t *testing.T) {
	if m := FindMeasure("results-by-status"); m == nil || m.Name != "Results by Status" {
		t.Errorf("expected results-by-status measure, got %+v", m)
	}
	if m := FindMeasure("nonexistent"); m != nil {
		t.Error("expected nil for nonexistent measure")
	}
}

func TestEvaluateMeasure_NotFound(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/measures/nope/evaluate", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")

	err := NewHandler(nil).EvaluateMeasure(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestMeasureReport_Sheet(t *testing.T) {
	report := MeasureReport{
		MeasureID:   "payments-by-status",
		MeasureName: "Payments by Status",
		Columns:     []string{"status", "total", "amount"},
		Results: []map[string]interface{}{
			{"status": "pending", "total": int64(2), "amount": int64(30000)},
			{"status": "verified", "total": int64(5), "amount": int64(125000)},
		},
	}

	sh := report.Sheet()
	if sh.Name != "Payments by Status" || len(sh.Columns) != 3 || len(sh.Rows) != 2 {
		t.Fatalf("unexpected sheet %+v", sh)
	}
	if sh.Rows[1][0] != "verified" || sh.Rows[1][2] != int64(125000) {
		t.Errorf("unexpected row %v", sh.Rows[1])
	}
}

func TestTruncateSheetName(t *testing.T) {
	long := "A very long report name that exceeds the limit"
	if got := truncateSheetName(long); len(got) != 31 {
		t.Errorf("expected 31 characters, got %d", len(got))
	}
	if got := truncateSheetName("Short"); got != "Short" {
		t.Errorf("expected Short, got %s", got)
	}
}

func TestBuildXLSX_RoundTrip(t *testing.T) {
	at := time.Date(2026, 2, 3, 9, 30, 0, 0, time.UTC)
	data, err := BuildXLSX(Sheet{
		Name: "Payments",
		Columns: []Column{
			{Header: "Reference", Width: 20},
			{Header: "Amount"},
			{Header: "Recorded At"},
		},
		Rows: [][]any{
			{"TRX-001", int64(15000), at},
			{"TRX-002", int64(7500), nil},
		},
	})
	if err != nil {
		t.Fatalf("BuildXLSX() error: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != "Payments" {
		t.Fatalf("unexpected sheets %v", sheets)
	}

	rows, err := f.GetRows("Payments")
	if err != nil {
		t.Fatalf("GetRows() error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Reference" || rows[0][2] != "Recorded At" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "TRX-001" || rows[1][1] != "15000" || rows[1][2] != "2026-02-03 09:30:00" {
		t.Errorf("unexpected first row %v", rows[1])
	}
	if len(rows[2]) != 2 {
		t.Errorf("expected nil cell to be left empty, got %v", rows[2])
	}
}

func TestBuildXLSX_NoSheets(t *testing.T) {
	if _, err := BuildXLSX(); err == nil {
		t.Error("expected error for empty workbook")
	}
}

func TestServeXLSX(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	err := ServeXLSX(c, "ledger.xlsx", Sheet{Name: "Ledger", Columns: []Column{{Header: "A"}}})
	if err != nil {
		t.Fatalf("ServeXLSX() error: %v", err)
	}
	if rec.Header().Get(echo.HeaderContentType) != ContentTypeXLSX {
		t.Errorf("unexpected content type %q", rec.Header().Get(echo.HeaderContentType))
	}
	if rec.Header().Get(echo.HeaderContentDisposition) != `attachment; filename="ledger.xlsx"` {
		t.Errorf("unexpected disposition %q", rec.Header().Get(echo.HeaderContentDisposition))
	}
	if rec.Body.Len() == 0 {
		t.Error("expected workbook body")
	}
}
