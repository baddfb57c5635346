package workflow

import (
	"context"
	"encoding/json"
	"time"
)

// Record is a persisted runtime template.
type Record struct {
	ID         int64           `json:"id"`
	TemplateID string          `json:"templateId"`
	Version    string          `json:"version"`
	Name       string          `json:"name"`
	Definition json.RawMessage `json:"definition"`
	CreatedAt  time.Time       `json:"createdAt"`
	CreatedBy  *string         `json:"createdBy,omitempty"`
}

// Repository defines runtime template persistence.
type Repository interface {
	Save(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, templateID string) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
}
