package template

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/Oluwataye/Seeklab-sub001/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(newTestService()), echo.New()
}

func TestHandler_ListTemplates(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListTemplates(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []ResultTemplate
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != len(BuiltIns()) {
		t.Errorf("expected %d templates, got %d", len(BuiltIns()), len(items))
	}
}

func TestHandler_GetTemplate_NotFound(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("no-such-template")

	err := h.GetTemplate(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_CreateTemplate(t *testing.T) {
	h, e := newTestHandler()
	body := `{"name":"Vitamin D","category":"Chemistry","fields":[{"name":"25-OH Vitamin D","kind":"number","unit":"ng/mL","reference_range":"30-100","required":true}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithActor(req.Context(), auth.Actor{ID: "u1", Name: "Dr. Ade", Role: auth.RoleScientist}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateTemplate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created ResultTemplate
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.CreatedBy != "Dr. Ade" || created.BuiltIn {
		t.Errorf("unexpected template %+v", created)
	}
}

func TestHandler_CreateTemplate_Invalid(t *testing.T) {
	h, e := newTestHandler()
	body := `{"name":"Blood Group","fields":[{"name":"Group","kind":"options"}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.CreateTemplate(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
