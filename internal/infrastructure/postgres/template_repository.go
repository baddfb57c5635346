package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/workflow"
)

// TemplateRepository implements workflow.Repository.
type TemplateRepository struct {
	pool *pgxpool.Pool
}

func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

// Save upserts by template id. The registry rejects ids already in use,
// so a conflict here only comes from a retried write.
func (r *TemplateRepository) Save(ctx context.Context, rec *workflow.Record) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO workflow_templates
		(template_id, version, name, definition, created_at, created_by)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (template_id) DO UPDATE
		SET version=EXCLUDED.version, name=EXCLUDED.name, definition=EXCLUDED.definition,
		    created_at=EXCLUDED.created_at, created_by=EXCLUDED.created_by
		RETURNING id
	`, rec.TemplateID, rec.Version, rec.Name, rec.Definition, rec.CreatedAt, rec.CreatedBy)
	return row.Scan(&rec.ID)
}

func (r *TemplateRepository) GetByID(ctx context.Context, templateID string) (*workflow.Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, template_id, version, name, definition, created_at, created_by
		FROM workflow_templates
		WHERE template_id=$1
	`, templateID)
	return scanTemplate(row)
}

func (r *TemplateRepository) List(ctx context.Context) ([]*workflow.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, template_id, version, name, definition, created_at, created_by
		FROM workflow_templates
		ORDER BY template_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []*workflow.Record
	for rows.Next() {
		rec, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanTemplate(row pgx.Row) (*workflow.Record, error) {
	var rec workflow.Record
	var definition json.RawMessage
	if err := row.Scan(&rec.ID, &rec.TemplateID, &rec.Version, &rec.Name, &definition, &rec.CreatedAt, &rec.CreatedBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.Definition = definition
	return &rec, nil
}
