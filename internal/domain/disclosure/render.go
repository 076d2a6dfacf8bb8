package disclosure

import (
	"time"

	"github.com/google/uuid"

	"github.com/Oluwataye/Seeklab-sub001/internal/domain/result"
	"github.com/Oluwataye/Seeklab-sub001/internal/domain/template"
)

const (
	noticePending     = "Your result is being processed. Please check back later."
	noticePreliminary = "These results are preliminary and have not yet been verified by a scientist."
)

// FieldValue is one rendered measurement.
type FieldValue struct {
	Name           string             `json:"name"`
	Value          string             `json:"value"`
	Unit           string             `json:"unit,omitempty"`
	ReferenceRange string             `json:"reference_range,omitempty"`
	Flag           template.RangeFlag `json:"flag,omitempty"`
}

// Review is the scientist sign-off shown on verified results.
type Review struct {
	Comments   string    `json:"comments,omitempty"`
	ReviewedBy string    `json:"reviewed_by"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

// Disclosure is the patient-facing rendering of a result.
type Disclosure struct {
	ResultID                 uuid.UUID            `json:"result_id"`
	PatientID                string               `json:"patient_id"`
	TestType                 string               `json:"test_type"`
	TestName                 string               `json:"test_name,omitempty"`
	Status                   result.DisplayStatus `json:"status"`
	Preliminary              bool                 `json:"preliminary"`
	Notice                   string               `json:"notice,omitempty"`
	Fields                   []FieldValue         `json:"fields,omitempty"`
	Review                   *Review              `json:"review,omitempty"`
	InterpretationGuidelines string               `json:"interpretation_guidelines,omitempty"`
	EnteredAt                *time.Time           `json:"entered_at,omitempty"`
}

// Render builds what a patient may see of r. tmpl supplies interpretation
// guidelines and may be nil; field metadata comes from the snapshot stored
// with the values.
func Render(r *result.Result, tmpl *template.ResultTemplate) Disclosure {
	d := Disclosure{
		ResultID:  r.ID,
		PatientID: r.PatientID,
		TestType:  r.TestType,
		Status:    result.Display(r),
	}
	if d.Status == result.DisplayPending {
		d.Notice = noticePending
		return d
	}

	data := r.ResultData
	snapshot := data.Template()
	flags := template.Flags(snapshot, data.Values)
	d.TestName = data.TemplateName
	d.EnteredAt = &data.Timestamp
	for _, f := range data.Fields {
		v, ok := data.Values[f.Name]
		if !ok || v == "" {
			continue
		}
		d.Fields = append(d.Fields, FieldValue{
			Name:           f.Name,
			Value:          v,
			Unit:           f.Unit,
			ReferenceRange: f.ReferenceRange,
			Flag:           flags[f.Name],
		})
	}

	if d.Status == result.DisplayPreliminary {
		d.Preliminary = true
		d.Notice = noticePreliminary
		return d
	}

	rv := r.ScientistReview
	d.Review = &Review{Comments: rv.Comments, ReviewedBy: rv.ReviewedBy, ReviewedAt: rv.ReviewedAt}
	if tmpl != nil {
		d.InterpretationGuidelines = tmpl.InterpretationGuidelines
	}
	return d
}
