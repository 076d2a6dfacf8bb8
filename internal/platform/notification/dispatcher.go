package notification

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// privateKeys never leave the process on the staff event bus.
var privateKeys = map[string]bool{
	"access_code":  true,
	"patient_name": true,
}

// smsTemplates maps patient-addressed events to the message they produce.
var smsTemplates = map[EventType]string{
	EventAccessCodeIssued: TemplateAccessCodeIssued,
	EventResultApproved:   TemplateResultReady,
}

// DispatcherConfig wires the delivery channels. A nil Publisher or SMS
// sender disables that channel.
type DispatcherConfig struct {
	Publisher   Publisher
	SMS         SMSSender
	Templates   *TemplateEngine
	TopicPrefix string
	LabName     string
	Timeout     time.Duration
}

// Dispatcher delivers events on background goroutines bounded by a timeout.
type Dispatcher struct {
	cfg    DispatcherConfig
	logger zerolog.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	if cfg.Templates == nil {
		cfg.Templates = NewTemplateEngine()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "seeklab"
	}
	return &Dispatcher{
		cfg:    cfg,
		logger: logger.With().Str("component", "notification").Logger(),
		now:    time.Now,
	}
}

// Topic returns the MQTT topic for an event: <prefix>/<tenant>/<type>.
func (d *Dispatcher) Topic(ev Event) string {
	tenant := ev.TenantID
	if tenant == "" {
		tenant = "default"
	}
	return strings.Join([]string{d.cfg.TopicPrefix, tenant, string(ev.Type)}, "/")
}

// Notify schedules delivery and returns immediately. The request context only
// contributes its values; cancellation of the request does not abort delivery.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = d.now().UTC()
	}
	base := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(base, d.cfg.Timeout)
		defer cancel()
		d.deliver(ctx, ev)
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	log := d.logger.With().
		Str("event", string(ev.Type)).
		Str("tenant_id", ev.TenantID).
		Str("subject", ev.Subject).
		Logger()

	if d.cfg.Publisher != nil {
		payload, err := json.Marshal(publicView(ev))
		if err == nil {
			err = d.cfg.Publisher.Publish(ctx, d.Topic(ev), payload)
		}
		if err != nil {
			log.Warn().Err(err).Msg("event publish failed")
		}
	}

	tplID, patientFacing := smsTemplates[ev.Type]
	if d.cfg.SMS == nil || !patientFacing || ev.Recipient == "" {
		return
	}
	data := map[string]string{"lab_name": d.cfg.LabName}
	for k, v := range ev.Data {
		data[k] = v
	}
	_, body, err := d.cfg.Templates.Render(tplID, data)
	if err != nil {
		log.Warn().Err(err).Msg("sms render failed")
		return
	}
	if err := d.cfg.SMS.SendSMS(ctx, ev.Recipient, body); err != nil {
		log.Warn().Err(err).Msg("sms delivery failed")
	}
}

func publicView(ev Event) Event {
	out := ev
	out.Data = make(map[string]string, len(ev.Data))
	for k, v := range ev.Data {
		if !privateKeys[k] {
			out.Data[k] = v
		}
	}
	return out
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
