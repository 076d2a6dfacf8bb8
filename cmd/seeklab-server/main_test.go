package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Oluwataye/Seeklab-sub001/internal/config"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/accesscode"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/notification"
)

// ---------------------------------------------------------------------------
// resolveSigningKey tests
// ---------------------------------------------------------------------------

func TestResolveSigningKey_FromEnv(t *testing.T) {
	want := make([]byte, 32)
	for i := range want {
		want[i] = byte(i)
	}
	hexStr := hex.EncodeToString(want)

	key, err := resolveSigningKey(hexStr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hex.EncodeToString(key) != hexStr {
		t.Errorf("key mismatch: got %x, want %x", key, want)
	}
}

func TestResolveSigningKey_Empty(t *testing.T) {
	key, err := resolveSigningKey("")
	if err != nil || key != nil {
		t.Errorf("expected no key and no error, got %x, %v", key, err)
	}
}

func TestResolveSigningKey_InvalidHex(t *testing.T) {
	if _, err := resolveSigningKey("not-valid-hex!!!"); err == nil {
		t.Fatal("expected error for invalid hex, got nil")
	}
}

func TestResolveSigningKey_TooShort(t *testing.T) {
	if _, err := resolveSigningKey(hex.EncodeToString([]byte("short"))); err == nil {
		t.Fatal("expected error for a short key, got nil")
	}
}

// ---------------------------------------------------------------------------
// migrationSource tests
// ---------------------------------------------------------------------------

func TestMigrationSource_Embedded(t *testing.T) {
	files, err := fs.Glob(migrationSource(""), "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("expected embedded migrations")
	}
}

func TestMigrationSource_Directory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_extra.sql"), []byte("SELECT 1;"), 0o644); err != nil {
		t.Fatal(err)
	}
	files, _ := fs.Glob(migrationSource(dir), "*.sql")
	if len(files) != 1 || files[0] != "001_extra.sql" {
		t.Errorf("expected the on-disk migration, got %v", files)
	}
}

func TestWireMemory(t *testing.T) {
	svc := wireMemory(notification.NopNotifier{}, accesscode.Config{}, zerolog.Nop())
	if svc.templates == nil || svc.patients == nil || svc.payments == nil || svc.results == nil || svc.accessCodes == nil {
		t.Errorf("expected every service to be wired, got %+v", svc)
	}
}

// ---------------------------------------------------------------------------
// ipExtractor / newDispatcher tests
// ---------------------------------------------------------------------------

func TestIPExtractor_IgnoresForwardedHeadersByDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/results/access", nil)
	req.RemoteAddr = "203.0.113.7:4242"
	req.Header.Set(echo.HeaderXForwardedFor, "198.51.100.1")

	if got := ipExtractor(&config.Config{})(req); got != "203.0.113.7" {
		t.Errorf("expected the peer address, got %q", got)
	}

	req.RemoteAddr = "10.0.0.2:4242"
	if got := ipExtractor(&config.Config{TrustProxy: true})(req); got != "198.51.100.1" {
		t.Errorf("expected the forwarded address behind a trusted proxy, got %q", got)
	}
}

func TestNewDispatcher_SMSCarriesLabName(t *testing.T) {
	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg struct {
			Body string `json:"body"`
		}
		json.NewDecoder(r.Body).Decode(&msg)
		bodies <- msg.Body
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"m-1","status":"queued"}`))
	}))
	defer srv.Close()

	d, cleanup := newDispatcher(&config.Config{SMSGatewayURL: srv.URL, LabName: "Ikeja Diagnostics"}, zerolog.Nop())
	defer cleanup()

	d.Notify(context.Background(), notification.Event{
		Type:      notification.EventAccessCodeIssued,
		Recipient: "+2348012345678",
		Data:      map[string]string{"patient_name": "Ada Obi", "test_type": "lipid-panel", "access_code": "K7MPQ2XHRT", "expires_at": "2026-03-04 10:00"},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	select {
	case body := <-bodies:
		if !strings.Contains(body, "your Ikeja Diagnostics access code") {
			t.Errorf("expected the lab name in the sms, got %q", body)
		}
	default:
		t.Fatal("expected one sms to reach the gateway")
	}
}
