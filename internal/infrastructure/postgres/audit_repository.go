package postgres

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/audit"
)

// AuditRepository implements audit.Repository.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Append(ctx context.Context, entry *audit.AuditEntry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return err
	}
	var metadata []byte
	if entry.Metadata != nil {
		if metadata, err = json.Marshal(entry.Metadata); err != nil {
			return err
		}
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO workflow_audit_entries
		(occurred_at, operation, user_id, content_uid, template_id, success, changes, error, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.Timestamp, entry.Operation, entry.UserID, entry.ContentUID, entry.TemplateID, entry.Success, changes, entry.Error, metadata)
	return err
}

func (r *AuditRepository) Query(ctx context.Context, filter audit.QueryFilter) ([]*audit.AuditEntry, error) {
	query := `SELECT occurred_at, operation, user_id, content_uid, template_id, success, changes, error, metadata FROM workflow_audit_entries`
	args := []interface{}{}
	idx := 1
	if filter.StartTime != nil {
		query += addWhere(query) + " occurred_at >= $" + itoa(idx)
		args = append(args, *filter.StartTime)
		idx++
	}
	if filter.EndTime != nil {
		query += addWhere(query) + " occurred_at <= $" + itoa(idx)
		args = append(args, *filter.EndTime)
		idx++
	}
	if filter.UserID != nil {
		query += addWhere(query) + " user_id=$" + itoa(idx)
		args = append(args, *filter.UserID)
		idx++
	}
	if filter.ContentUID != nil {
		query += addWhere(query) + " content_uid=$" + itoa(idx)
		args = append(args, *filter.ContentUID)
		idx++
	}
	if filter.TemplateID != nil {
		query += addWhere(query) + " template_id=$" + itoa(idx)
		args = append(args, *filter.TemplateID)
		idx++
	}
	if filter.Operation != nil {
		query += addWhere(query) + " operation=$" + itoa(idx)
		args = append(args, string(*filter.Operation))
		idx++
	}
	if filter.Success != nil {
		query += addWhere(query) + " success=$" + itoa(idx)
		args = append(args, *filter.Success)
	}
	query += " ORDER BY occurred_at DESC, id DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*audit.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanAuditEntry(row pgx.Row) (*audit.AuditEntry, error) {
	var e audit.AuditEntry
	var op string
	var changes, metadata []byte
	if err := row.Scan(&e.Timestamp, &op, &e.UserID, &e.ContentUID, &e.TemplateID, &e.Success, &changes, &e.Error, &metadata); err != nil {
		return nil, err
	}
	e.Operation = audit.OperationKind(op)
	e.Timestamp = e.Timestamp.UTC()
	e.Changes = []audit.Change{}
	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &e.Changes); err != nil {
			return nil, err
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func addWhere(query string) string {
	if strings.Contains(query, " WHERE ") {
		return " AND"
	}
	return " WHERE"
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
