package result

import (
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/reporting"
)

const maxExportRows = 5000

// WorklistSheet lays results out as the laboratory worklist.
func WorklistSheet(items []*Result) reporting.Sheet {
	sh := reporting.Sheet{
		Name: "Results",
		Columns: []reporting.Column{
			{Header: "Result ID", Width: 38},
			{Header: "Patient ID", Width: 18},
			{Header: "Test Type", Width: 28},
			{Header: "Status", Width: 12},
			{Header: "Display", Width: 12},
			{Header: "Entered By", Width: 20},
			{Header: "Reviewed By", Width: 20},
			{Header: "Created At", Width: 20},
			{Header: "Code Expires", Width: 20},
		},
	}
	for _, r := range items {
		row := []any{
			r.ID.String(), r.PatientID, r.TestType, string(r.Status), string(Display(r)),
			nil, nil, r.CreatedAt, r.ExpiresAt,
		}
		if r.ResultData != nil {
			row[5] = r.ResultData.EnteredBy
		}
		if r.ScientistReview != nil {
			row[6] = r.ScientistReview.ReviewedBy
		}
		sh.Rows = append(sh.Rows, row)
	}
	return sh
}
