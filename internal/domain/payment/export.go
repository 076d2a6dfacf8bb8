package payment

import (
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/reporting"
)

// maxExportRows caps a single ledger export.
const maxExportRows = 5000

// LedgerSheet lays payments out as the accounts ledger worksheet.
func LedgerSheet(items []*Payment) reporting.Sheet {
	sh := reporting.Sheet{
		Name: "Payments",
		Columns: []reporting.Column{
			{Header: "Payment ID", Width: 38},
			{Header: "Patient ID", Width: 18},
			{Header: "Amount"},
			{Header: "Currency"},
			{Header: "Method", Width: 16},
			{Header: "Reference", Width: 20},
			{Header: "Status", Width: 12},
			{Header: "Transaction ID", Width: 22},
			{Header: "Recorded By", Width: 20},
			{Header: "Verified By", Width: 20},
			{Header: "Recorded At", Width: 20},
			{Header: "Verified At", Width: 20},
		},
	}
	for _, p := range items {
		row := []any{
			p.ID.String(), p.PatientID, p.Amount, p.Currency, string(p.Method),
			p.ReferenceNumber, string(p.Status), nil, p.RecordedBy, nil, p.CreatedAt, nil,
		}
		if p.TransactionID != nil {
			row[7] = *p.TransactionID
		}
		if p.VerifiedBy != nil {
			row[9] = *p.VerifiedBy
		}
		if p.VerifiedAt != nil {
			row[11] = *p.VerifiedAt
		}
		sh.Rows = append(sh.Rows, row)
	}
	return sh
}
