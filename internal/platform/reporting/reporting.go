// Package reporting evaluates operational measures over a tenant schema and
// renders tabular exports as XLSX workbooks.
package reporting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/Oluwataye/Seeklab-sub001/internal/platform/auth"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/db"
)

// MeasureDefinition defines a reporting measure with its SQL query.
type MeasureDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"-"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Columns     []string                 `json:"columns"`
	Results     []map[string]interface{} `json:"results"`
}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "payments-by-status",
		Name:        "Payments by Status",
		Description: "Count and total amount of payments per status",
		SQL:         `SELECT status, COUNT(*) AS total, COALESCE(SUM(amount), 0) AS amount FROM payment GROUP BY status ORDER BY status`,
	},
	{
		ID:          "revenue-by-method",
		Name:        "Verified Revenue by Method",
		Description: "Sum of verified payment amounts per payment method and currency",
		SQL:         `SELECT method, currency, COUNT(*) AS total, COALESCE(SUM(amount), 0) AS amount FROM payment WHERE status = 'verified' GROUP BY method, currency ORDER BY amount DESC`,
	},
	{
		ID:          "results-by-status",
		Name:        "Results by Status",
		Description: "Number of results in each lifecycle status",
		SQL:         `SELECT status, COUNT(*) AS total FROM result GROUP BY status ORDER BY status`,
	},
	{
		ID:          "review-backlog",
		Name:        "Review Backlog",
		Description: "Results with data entered that have not been approved, by test type",
		SQL:         `SELECT test_type, COUNT(*) AS total, MIN(updated_at) AS oldest FROM result WHERE result_data IS NOT NULL AND COALESCE((scientist_review->>'approved')::boolean, false) = false AND status <> 'rejected' GROUP BY test_type ORDER BY total DESC`,
	},
	{
		ID:          "access-code-usage",
		Name:        "Access Code Usage",
		Description: "Issued, redeemed and expired access codes",
		SQL:         `SELECT COUNT(*) AS issued, COUNT(*) FILTER (WHERE session_count > 0) AS redeemed, COUNT(*) FILTER (WHERE revoked_at IS NOT NULL OR expires_at < NOW()) AS inactive FROM access_code`,
	},
}

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewHandler creates a new reporting handler.
func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool, now: time.Now}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole(auth.RoleAccountant, auth.RoleScientist))
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's SQL against the tenant schema. With
// ?format=xlsx the report is returned as a workbook.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	ctx := c.Request().Context()
	var q querier = h.pool
	if conn := db.ConnFromContext(ctx); conn != nil {
		q = conn
	}

	cols, results, err := executeSQL(ctx, q, measure.SQL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "measure evaluation failed")
	}

	report := MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: h.now().UTC(),
		Columns:     cols,
		Results:     results,
	}

	if c.QueryParam("format") == "xlsx" {
		return ServeXLSX(c, measure.ID+".xlsx", report.Sheet())
	}
	return c.JSON(http.StatusOK, report)
}

// Sheet lays the report out as a worksheet in column order.
func (r MeasureReport) Sheet() Sheet {
	sh := Sheet{Name: truncateSheetName(r.MeasureName)}
	for _, col := range r.Columns {
		sh.Columns = append(sh.Columns, Column{Header: col, Width: 18})
	}
	for _, row := range r.Results {
		values := make([]any, len(r.Columns))
		for i, col := range r.Columns {
			values[i] = row[col]
		}
		sh.Rows = append(sh.Rows, values)
	}
	return sh
}

// Excel limits sheet names to 31 characters.
func truncateSheetName(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	return name
}

func executeSQL(ctx context.Context, q querier, sql string) ([]string, []map[string]interface{}, error) {
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	cols := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		cols[i] = fd.Name
	}

	results := []map[string]interface{}{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return cols, results, rows.Err()
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
