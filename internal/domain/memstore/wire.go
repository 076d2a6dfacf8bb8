package memstore

import (
	"github.com/rs/zerolog"

	"github.com/Oluwataye/Seeklab-sub001/internal/domain/accesscode"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/patient"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/payment"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/result"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/template"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/notification"
)

// Services is the staff-side service graph over one DB.
type Services struct {
	Templates   *template.Service
	Patients    *patient.Service
	Payments    *payment.Service
	Results     *result.Service
	AccessCodes *accesscode.Service
}

func (d *DB) Wire(notifier notification.Notifier, codes accesscode.Config, logger zerolog.Logger) *Services {
	templates := template.NewService(d.Templates(), logger)
	patients := patient.NewService(d.Patients(), notifier, logger)
	payments := payment.NewService(d.Payments(), patients, notifier, logger)
	results := result.NewService(d.Results(), templates, patients, d, notifier, logger)
	return &Services{
		Templates:   templates,
		Patients:    patients,
		Payments:    payments,
		Results:     results,
		AccessCodes: accesscode.NewService(d.AccessCodes(), patients, templates, payments, results, d, notifier, codes, logger),
	}
}
