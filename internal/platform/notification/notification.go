// Package notification delivers fire-and-forget lifecycle events: staff
// events go to an MQTT broker, patient-addressed events go out as SMS
// rendered from templates. Delivery failures are logged, never returned.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventPatientRegistered EventType = "patient.registered"
	EventPaymentVerified   EventType = "payment.verified"
	EventResultApproved    EventType = "result.approved"
	EventAccessCodeIssued  EventType = "access_code.issued"
)

// Event is a single notification. Subject is the id of the entity the event
// is about. Recipient, when set, is the patient phone number an SMS goes to.
type Event struct {
	Type       EventType         `json:"type"`
	TenantID   string            `json:"tenant_id"`
	Subject    string            `json:"subject"`
	Data       map[string]string `json:"data,omitempty"`
	Recipient  string            `json:"-"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Notifier accepts events for delivery. Notify must not block on delivery
// and never reports delivery errors to the caller.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}

// Recorder keeps every event in memory. Used in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of the given type.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template is a patient-facing message.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

const (
	TemplateAccessCodeIssued = "access-code-issued"
	TemplateResultReady      = "result-ready"
)

// TemplateEngine renders {{key}} placeholders in registered templates.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateAccessCodeIssued,
			Name:    "Access Code Issued",
			Subject: "Your {{lab_name}} result access code",
			Body:    "Dear {{patient_name}}, your {{lab_name}} access code for the {{test_type}} result is {{access_code}}. It is valid until {{expires_at}}.",
		},
		{
			ID:      TemplateResultReady,
			Name:    "Result Ready",
			Subject: "Your {{lab_name}} result is ready",
			Body:    "Dear {{patient_name}}, your {{test_type}} result from {{lab_name}} has been verified. Use your access code to view it.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body), nil
}
