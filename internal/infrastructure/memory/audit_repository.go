package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/audit"
)

// AuditRepository keeps audit entries in memory. Stored entries are private
// copies, so callers cannot alter them after Append or through Query results.
type AuditRepository struct {
	mu      sync.Mutex
	entries []audit.AuditEntry
}

// NewAuditRepository creates an empty repository.
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// Append stores a copy of entry.
func (r *AuditRepository) Append(_ context.Context, entry *audit.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, cloneEntry(entry))
	return nil
}

// Query returns copies of the entries matching filter in insertion order.
// Ordering and limits are left to the audit service.
func (r *AuditRepository) Query(_ context.Context, filter audit.QueryFilter) ([]*audit.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*audit.AuditEntry
	for i := range r.entries {
		if filter.Matches(&r.entries[i]) {
			e := cloneEntry(&r.entries[i])
			out = append(out, &e)
		}
	}
	return out, nil
}

// Len returns the number of stored entries.
func (r *AuditRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// cloneEntry copies the entry and its top-level reference fields. Metadata
// values are copied by assignment.
func cloneEntry(in *audit.AuditEntry) audit.AuditEntry {
	out := *in
	out.Changes = slices.Clone(in.Changes)
	out.Metadata = maps.Clone(in.Metadata)
	if in.TemplateID != nil {
		id := *in.TemplateID
		out.TemplateID = &id
	}
	if in.Error != nil {
		msg := *in.Error
		out.Error = &msg
	}
	return out
}
