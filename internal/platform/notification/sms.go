package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// SMSGatewayConfig configures the HTTP SMS relay.
type SMSGatewayConfig struct {
	BaseURL  string
	Token    string
	SenderID string
	Timeout  time.Duration
}

// SMSGateway posts messages to an HTTP SMS relay:
//
//	POST /messages {"to": "...", "from": "...", "body": "..."}
//
// A non-2xx status or a body with "status" other than "accepted"/"queued" is
// treated as a failure.
type SMSGateway struct {
	client   *resty.Client
	senderID string
}

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

type smsResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func NewSMSGateway(cfg SMSGatewayConfig) *SMSGateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &SMSGateway{client: client, senderID: cfg.SenderID}
}

func (g *SMSGateway) SendSMS(ctx context.Context, to, body string) error {
	if to == "" {
		return errors.New("sms: empty recipient")
	}

	var out smsResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(smsRequest{To: to, From: g.senderID, Body: body}).
		SetResult(&out).
		SetError(&out).
		Post("/messages")
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode(), out.Message)
	}
	switch out.Status {
	case "accepted", "queued", "":
		return nil
	default:
		return fmt.Errorf("sms gateway rejected message: %s %s", out.Status, out.Message)
	}
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

// SendSMS records the call and optionally returns an error.
func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}
