package template

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

type templateRepoPG struct{ pool *pgxpool.Pool }

func NewTemplateRepoPG(pool *pgxpool.Pool) TemplateRepository {
	return &templateRepoPG{pool: pool}
}

func (r *templateRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const templateCols = `id, name, category, fields, interpretation_guidelines, created_by, created_at`

func (r *templateRepoPG) scanRow(row pgx.Row) (*ResultTemplate, error) {
	var (
		t      ResultTemplate
		id     uuid.UUID
		fields []byte
	)
	if err := row.Scan(&id, &t.Name, &t.Category, &fields, &t.InterpretationGuidelines, &t.CreatedBy, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.ID = id.String()
	if err := json.Unmarshal(fields, &t.Fields); err != nil {
		return nil, fmt.Errorf("decode template fields: %w", err)
	}
	return &t, nil
}

func (r *templateRepoPG) Create(ctx context.Context, t *ResultTemplate) error {
	id := uuid.New()
	fields, err := json.Marshal(t.Fields)
	if err != nil {
		return fmt.Errorf("encode template fields: %w", err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO result_template (id, name, category, fields, interpretation_guidelines, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		id, t.Name, t.Category, fields, t.InterpretationGuidelines, t.CreatedBy).Scan(&t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.NewValidation("name", "a template with this name already exists")
		}
		return err
	}
	t.ID = id.String()
	return nil
}

func (r *templateRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ResultTemplate, error) {
	t, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+templateCols+` FROM result_template WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("template")
	}
	return t, err
}

func (r *templateRepoPG) List(ctx context.Context) ([]*ResultTemplate, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+templateCols+` FROM result_template ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ResultTemplate
	for rows.Next() {
		t, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}
