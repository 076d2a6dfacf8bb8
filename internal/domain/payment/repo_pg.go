package payment

import (
	"context"
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

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepoPG{pool: pool}
}

func (r *paymentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const paymentCols = `id, patient_id, amount, currency, method, reference_number, status,
	transaction_id, recorded_by, verified_by, failure_reason, consumed_by,
	created_at, completed_at, verified_at, updated_at`

func (r *paymentRepoPG) scanRow(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.PatientID, &p.Amount, &p.Currency, &p.Method, &p.ReferenceNumber, &p.Status,
		&p.TransactionID, &p.RecordedBy, &p.VerifiedBy, &p.FailureReason, &p.ConsumedBy,
		&p.CreatedAt, &p.CompletedAt, &p.VerifiedAt, &p.UpdatedAt)
	return &p, err
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payment (id, patient_id, amount, currency, method, reference_number, status,
			transaction_id, recorded_by, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.Amount, p.Currency, p.Method, p.ReferenceNumber, p.Status,
		p.TransactionID, p.RecordedBy, p.CompletedAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.NewValidation("reference_number", "already used for this patient and payment method")
	}
	return err
}

func (r *paymentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+paymentCols+` FROM payment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("payment")
	}
	return p, err
}

func (r *paymentRepoPG) UpdateStatus(ctx context.Context, p *Payment, from Status) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE payment SET status=$3, transaction_id=$4, verified_by=$5, failure_reason=$6,
			completed_at=$7, verified_at=$8, updated_at=NOW()
		WHERE id = $1 AND status = $2
		RETURNING updated_at`,
		p.ID, from, p.Status, p.TransactionID, p.VerifiedBy, p.FailureReason,
		p.CompletedAt, p.VerifiedAt,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Conflict(fmt.Sprintf("payment %s is no longer %s", p.ID, from))
	}
	return err
}

func (r *paymentRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Payment, int, error) {
	query := `SELECT ` + paymentCols + ` FROM payment WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM payment WHERE 1=1`
	var args []interface{}
	idx := 1

	add := func(clause string, v interface{}) {
		query += fmt.Sprintf(clause, idx)
		countQuery += fmt.Sprintf(clause, idx)
		args = append(args, v)
		idx++
	}
	if f.Reference != "" {
		add(` AND LOWER(reference_number) = LOWER($%d)`, f.Reference)
	}
	if f.PatientID != "" {
		add(` AND patient_id = $%d`, f.PatientID)
	}
	if f.Status != "" {
		add(` AND status = $%d`, f.Status)
	}
	if f.Method != "" {
		add(` AND method = $%d`, f.Method)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	items, err := r.query(ctx, query, args...)
	return items, total, err
}

func (r *paymentRepoPG) ListUnconsumedVerified(ctx context.Context, patientID string) ([]*Payment, error) {
	return r.query(ctx, `SELECT `+paymentCols+` FROM payment
		WHERE patient_id = $1 AND status = 'verified' AND consumed_by IS NULL
		ORDER BY verified_at, created_at`, patientID)
}

func (r *paymentRepoPG) Consume(ctx context.Context, paymentID, accessCodeID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE payment SET consumed_by = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'verified' AND consumed_by IS NULL`,
		paymentID, accessCodeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("payment already authorized another access code")
	}
	return nil
}

func (r *paymentRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
