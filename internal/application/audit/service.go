package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/audit"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// Recorder counts logged operations. Satisfied by the metrics collector.
type Recorder interface {
	ObserveOperation(operation string, success bool)
}

// Service handles audit log operations
type Service struct {
	repo     audit.Repository
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a new audit service. recorder may be nil.
func NewService(repo audit.Repository, recorder Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		recorder: recorder,
		logger:   logger.With().Str("service", "audit").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Log writes an entry and logs, rather than returns, any failure.
// Business operations never fail because the audit sink did.
func (s *Service) Log(ctx context.Context, entry *audit.AuditEntry) {
	if err := s.LogSync(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("operation", string(entry.Operation)).
			Str("content_uid", entry.ContentUID).
			Str("user_id", entry.UserID).
			Msg("failed to write audit entry")
	}
}

// LogSync writes an entry and returns any failure.
func (s *Service) LogSync(ctx context.Context, entry *audit.AuditEntry) error {
	if entry == nil {
		return fmt.Errorf("audit entry is nil")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	if entry.Changes == nil {
		entry.Changes = []audit.Change{}
	}

	// Detached so a cancelled request still leaves its record.
	if err := s.repo.Append(context.WithoutCancel(ctx), entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	if s.recorder != nil {
		s.recorder.ObserveOperation(string(entry.Operation), entry.Success)
	}

	s.logger.Debug().
		Str("operation", string(entry.Operation)).
		Str("content_uid", entry.ContentUID).
		Str("user_id", entry.UserID).
		Bool("success", entry.Success).
		Msg("audit entry written")
	return nil
}

// Query returns matching entries newest first, limited.
func (s *Service) Query(ctx context.Context, filter audit.QueryFilter) ([]*audit.AuditEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	entries, err := s.query(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Summary aggregates every entry matching filter, ignoring its limit.
func (s *Service) Summary(ctx context.Context, filter audit.QueryFilter) (*audit.Summary, error) {
	entries, err := s.query(ctx, filter)
	if err != nil {
		return nil, err
	}
	return audit.Summarize(entries), nil
}

func (s *Service) query(ctx context.Context, filter audit.QueryFilter) ([]*audit.AuditEntry, error) {
	filter.Limit = 0
	entries, err := s.repo.Query(ctx, filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to query audit entries")
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	matched := make([]*audit.AuditEntry, 0, len(entries))
	for _, e := range entries {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	return matched, nil
}
