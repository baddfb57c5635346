package audit

import (
	"context"
	"time"
)

// OperationKind classifies an audit entry.
type OperationKind string

const (
	OperationApplyTemplate     OperationKind = "apply_template"
	OperationRemoveTemplate    OperationKind = "remove_template"
	OperationExecuteTransition OperationKind = "execute_transition"
	OperationBulkApply         OperationKind = "bulk_apply"
	OperationBulkRemove        OperationKind = "bulk_remove"
	OperationPermissionCheck   OperationKind = "permission_check"
	OperationValidationFailure OperationKind = "validation_failure"
)

// Valid reports whether k is a known operation kind.
func (k OperationKind) Valid() bool {
	switch k {
	case OperationApplyTemplate, OperationRemoveTemplate, OperationExecuteTransition,
		OperationBulkApply, OperationBulkRemove, OperationPermissionCheck, OperationValidationFailure:
		return true
	}
	return false
}

// Change records a single field modified by an operation.
type Change struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"old_value,omitempty"`
	NewValue interface{} `json:"new_value,omitempty"`
}

// AuditEntry is an append-only record of one operation.
type AuditEntry struct {
	Timestamp  time.Time              `json:"timestamp"`
	Operation  OperationKind          `json:"operation"`
	UserID     string                 `json:"user_id"`
	ContentUID string                 `json:"content_uid"`
	TemplateID *string                `json:"template_id,omitempty"`
	Success    bool                   `json:"success"`
	Changes    []Change               `json:"changes"`
	Error      *string                `json:"error,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewEntry starts an entry for op.
func NewEntry(op OperationKind, userID, contentUID string) *AuditEntry {
	return &AuditEntry{
		Timestamp:  time.Now().UTC(),
		Operation:  op,
		UserID:     userID,
		ContentUID: contentUID,
		Changes:    []Change{},
	}
}

// WithTemplate sets the template id.
func (e *AuditEntry) WithTemplate(templateID string) *AuditEntry {
	if templateID != "" {
		e.TemplateID = &templateID
	}
	return e
}

// AddChange appends a change.
func (e *AuditEntry) AddChange(field string, oldValue, newValue interface{}) *AuditEntry {
	e.Changes = append(e.Changes, Change{Field: field, OldValue: oldValue, NewValue: newValue})
	return e
}

// SetMeta sets a metadata key.
func (e *AuditEntry) SetMeta(key string, value interface{}) *AuditEntry {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Succeed marks the entry successful.
func (e *AuditEntry) Succeed() *AuditEntry {
	e.Success = true
	e.Error = nil
	return e
}

// Fail marks the entry failed with err.
func (e *AuditEntry) Fail(err error) *AuditEntry {
	e.Success = false
	if err != nil {
		msg := err.Error()
		e.Error = &msg
	}
	return e
}

// QueryFilter selects audit entries. Nil fields match everything.
type QueryFilter struct {
	StartTime  *time.Time
	EndTime    *time.Time
	UserID     *string
	ContentUID *string
	TemplateID *string
	Operation  *OperationKind
	Success    *bool
	Limit      int
}

// Matches reports whether e passes every set field of f. Time bounds are inclusive.
func (f QueryFilter) Matches(e *AuditEntry) bool {
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	if f.UserID != nil && e.UserID != *f.UserID {
		return false
	}
	if f.ContentUID != nil && e.ContentUID != *f.ContentUID {
		return false
	}
	if f.TemplateID != nil && (e.TemplateID == nil || *e.TemplateID != *f.TemplateID) {
		return false
	}
	if f.Operation != nil && e.Operation != *f.Operation {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	return true
}

// Summary aggregates a window of entries.
type Summary struct {
	TotalOperations      int                   `json:"total_operations"`
	SuccessfulOperations int                   `json:"successful_operations"`
	FailedOperations     int                   `json:"failed_operations"`
	SuccessRate          float64               `json:"success_rate"`
	OperationsByType     map[OperationKind]int `json:"operations_by_type"`
	UniqueUsers          int                   `json:"unique_users"`
	UniqueTemplates      int                   `json:"unique_templates"`
	Start                *time.Time            `json:"start,omitempty"`
	End                  *time.Time            `json:"end,omitempty"`
}

// Summarize computes a Summary over entries. SuccessRate is a percentage.
func Summarize(entries []*AuditEntry) *Summary {
	s := &Summary{OperationsByType: make(map[OperationKind]int)}
	users := make(map[string]struct{})
	templates := make(map[string]struct{})
	for _, e := range entries {
		s.TotalOperations++
		if e.Success {
			s.SuccessfulOperations++
		} else {
			s.FailedOperations++
		}
		s.OperationsByType[e.Operation]++
		if e.UserID != "" {
			users[e.UserID] = struct{}{}
		}
		if e.TemplateID != nil {
			templates[*e.TemplateID] = struct{}{}
		}
		ts := e.Timestamp
		if s.Start == nil || ts.Before(*s.Start) {
			s.Start = &ts
		}
		if s.End == nil || ts.After(*s.End) {
			end := ts
			s.End = &end
		}
	}
	s.UniqueUsers = len(users)
	s.UniqueTemplates = len(templates)
	if s.TotalOperations > 0 {
		s.SuccessRate = float64(s.SuccessfulOperations) / float64(s.TotalOperations) * 100
	}
	return s
}

// Logger records entries on behalf of business operations. Log never fails
// the caller.
type Logger interface {
	Log(ctx context.Context, entry *AuditEntry)
}

// Repository is an append-only audit sink that can be queried.
// Query returns matching entries in storage order and ignores Limit;
// ordering and limiting happen in the service.
type Repository interface {
	Append(ctx context.Context, entry *AuditEntry) error
	Query(ctx context.Context, filter QueryFilter) ([]*AuditEntry, error)
}
