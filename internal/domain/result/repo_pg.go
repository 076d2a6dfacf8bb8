package result

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Oluwataye/Seeklab-sub001/internal/platform/apperr"
	"github.com/Oluwataye/Seeklab-sub001/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type resultRepoPG struct{ pool *pgxpool.Pool }

func NewResultRepoPG(pool *pgxpool.Pool) ResultRepository {
	return &resultRepoPG{pool: pool}
}

func (r *resultRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const resultCols = `id, patient_id, test_type, access_code, status, result_data, scientist_review,
	rejection_reason, version, created_at, updated_at, expires_at`

func (r *resultRepoPG) scanRow(row pgx.Row) (*Result, error) {
	var (
		res          Result
		data, review []byte
	)
	err := row.Scan(&res.ID, &res.PatientID, &res.TestType, &res.AccessCode, &res.Status, &data, &review,
		&res.RejectionReason, &res.Version, &res.CreatedAt, &res.UpdatedAt, &res.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		res.ResultData = &ResultData{}
		if err := json.Unmarshal(data, res.ResultData); err != nil {
			return nil, fmt.Errorf("decode result data: %w", err)
		}
	}
	if len(review) > 0 {
		res.ScientistReview = &ScientistReview{}
		if err := json.Unmarshal(review, res.ScientistReview); err != nil {
			return nil, fmt.Errorf("decode scientist review: %w", err)
		}
	}
	return &res, nil
}

// jsonOrNull encodes v, mapping a nil pointer to SQL NULL.
func jsonOrNull[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (r *resultRepoPG) Create(ctx context.Context, res *Result) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	res.Version = 1
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO result (id, patient_id, test_type, access_code, status, expires_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		res.ID, res.PatientID, res.TestType, res.AccessCode, res.Status, res.ExpiresAt, res.Version,
	).Scan(&res.CreatedAt, &res.UpdatedAt)
}

func (r *resultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Result, error) {
	res, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+resultCols+` FROM result WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("result")
	}
	return res, err
}

func (r *resultRepoPG) Update(ctx context.Context, res *Result, expectedVersion int) error {
	data, err := jsonOrNull(res.ResultData)
	if err != nil {
		return fmt.Errorf("encode result data: %w", err)
	}
	review, err := jsonOrNull(res.ScientistReview)
	if err != nil {
		return fmt.Errorf("encode scientist review: %w", err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE result SET access_code=$3, status=$4, result_data=$5, scientist_review=$6,
			rejection_reason=$7, expires_at=$8, version=version+1, updated_at=NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		res.ID, expectedVersion, res.AccessCode, res.Status, data, review,
		res.RejectionReason, res.ExpiresAt,
	).Scan(&res.Version, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Conflict(fmt.Sprintf("result %s was modified concurrently", res.ID))
	}
	return err
}

func (r *resultRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM result WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("result")
	}
	return nil
}

func (r *resultRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Result, int, error) {
	query := `SELECT ` + resultCols + ` FROM result WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM result WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PatientID != "" {
		query += fmt.Sprintf(` AND patient_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, f.PatientID)
		idx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.TestType != "" {
		query += fmt.Sprintf(` AND LOWER(test_type) = LOWER($%d)`, idx)
		countQuery += fmt.Sprintf(` AND LOWER(test_type) = LOWER($%d)`, idx)
		args = append(args, f.TestType)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Result
	for rows.Next() {
		res, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, res)
	}
	return items, total, rows.Err()
}

func (r *resultRepoPG) AppendReview(ctx context.Context, e *ReviewEntry) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO result_review (id, result_id, action, approved, comments, reviewed_by, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ResultID, e.Action, e.Approved, e.Comments, e.ReviewedBy, e.ReviewedAt)
	return err
}

func (r *resultRepoPG) ListReviews(ctx context.Context, resultID uuid.UUID) ([]ReviewEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, result_id, action, approved, comments, reviewed_by, reviewed_at
		FROM result_review WHERE result_id = $1 ORDER BY reviewed_at, id`, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReviewEntry
	for rows.Next() {
		var e ReviewEntry
		if err := rows.Scan(&e.ID, &e.ResultID, &e.Action, &e.Approved, &e.Comments, &e.ReviewedBy, &e.ReviewedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
