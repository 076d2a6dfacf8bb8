package accesscode

import (
	"context"
	"errors"
	"time"

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

type accessCodeRepoPG struct{ pool *pgxpool.Pool }

func NewAccessCodeRepoPG(pool *pgxpool.Pool) AccessCodeRepository {
	return &accessCodeRepoPG{pool: pool}
}

func (r *accessCodeRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const accessCodeCols = `id, code, patient_id, result_id, test_type, payment_id, issued_by,
	issued_at, expires_at, revoked_at, session_count`

func (r *accessCodeRepoPG) scanRow(row pgx.Row) (*AccessCode, error) {
	var a AccessCode
	err := row.Scan(&a.ID, &a.Code, &a.PatientID, &a.ResultID, &a.TestType, &a.PaymentID, &a.IssuedBy,
		&a.IssuedAt, &a.ExpiresAt, &a.RevokedAt, &a.SessionCount)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts the code. A code collision yields ErrCodeTaken without
// aborting an enclosing transaction.
func (r *accessCodeRepoPG) Create(ctx context.Context, a *AccessCode) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO access_code (id, code, patient_id, result_id, test_type, payment_id, issued_by, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO NOTHING
		RETURNING id`,
		a.ID, a.Code, a.PatientID, a.ResultID, a.TestType, a.PaymentID, a.IssuedBy, a.IssuedAt, a.ExpiresAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrCodeTaken
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflict("an active access code already exists for this patient and test type")
	}
	return err
}

func (r *accessCodeRepoPG) GetByCode(ctx context.Context, code string) (*AccessCode, error) {
	a, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+accessCodeCols+` FROM access_code WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("access code")
	}
	return a, err
}

func (r *accessCodeRepoPG) GetUnrevoked(ctx context.Context, patientID, testType string) (*AccessCode, error) {
	a, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `
		SELECT `+accessCodeCols+` FROM access_code
		WHERE patient_id = $1 AND test_type = $2 AND revoked_at IS NULL
		FOR UPDATE`, patientID, testType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *accessCodeRepoPG) GetUnrevokedForResult(ctx context.Context, resultID uuid.UUID) (*AccessCode, error) {
	a, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `
		SELECT `+accessCodeCols+` FROM access_code
		WHERE result_id = $1 AND revoked_at IS NULL
		ORDER BY issued_at DESC LIMIT 1
		FOR UPDATE`, resultID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *accessCodeRepoPG) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE access_code SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("access code")
	}
	return nil
}

func (r *accessCodeRepoPG) IncrementSessionCount(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE access_code SET session_count = session_count + 1 WHERE id = $1`, id)
	return err
}

func (r *accessCodeRepoPG) ListForPatient(ctx context.Context, patientID string) ([]*AccessCode, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+accessCodeCols+` FROM access_code WHERE patient_id = $1 ORDER BY issued_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AccessCode
	for rows.Next() {
		a, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
