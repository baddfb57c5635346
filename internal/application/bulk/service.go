package bulk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/curriculum-hub/curriculum-hub/internal/application/rolemap"
	appworkflow "github.com/curriculum-hub/curriculum-hub/internal/application/workflow"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/audit"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/content"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/errs"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/role"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/workflow"
)

// Applier applies and removes templates on single content items.
type Applier interface {
	Apply(ctx context.Context, req appworkflow.ApplyRequest) (*appworkflow.ApplicationResult, error)
	Remove(ctx context.Context, req appworkflow.RemoveRequest) (*appworkflow.RemovalResult, error)
}

// ItemRecorder receives aggregate item outcomes.
type ItemRecorder interface {
	ObserveBulkItems(succeeded, failed int)
}

// Options bounds fan-out.
type Options struct {
	DefaultConcurrency int
	MaxConcurrency     int
}

// Service fans template operations out across content items.
type Service struct {
	applier  Applier
	content  content.System
	mapper   *rolemap.Mapper
	audit    audit.Logger
	recorder ItemRecorder
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a bulk orchestrator. recorder may be nil.
func NewService(applier Applier, system content.System, mapper *rolemap.Mapper, auditLog audit.Logger, recorder ItemRecorder, opts Options, logger zerolog.Logger) *Service {
	if opts.DefaultConcurrency <= 0 {
		opts.DefaultConcurrency = 5
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 20
	}
	if opts.DefaultConcurrency > opts.MaxConcurrency {
		opts.DefaultConcurrency = opts.MaxConcurrency
	}
	return &Service{
		applier:  applier,
		content:  system,
		mapper:   mapper,
		audit:    auditLog,
		recorder: recorder,
		opts:     opts,
		logger:   logger.With().Str("service", "bulk").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ApplyItem is one content item in a bulk apply.
type ApplyItem struct {
	ContentUID      string
	RoleAssignments map[role.Internal][]string
	Force           bool
}

// ApplyRequest applies Template to every item.
type ApplyRequest struct {
	Template      *workflow.Template
	Items         []ApplyItem
	UserID        string
	MaxConcurrent int
}

// RemoveRequest removes templates from every listed item.
type RemoveRequest struct {
	ContentUIDs   []string
	RestoreBackup bool
	UserID        string
	MaxConcurrent int
}

// ItemResult is the outcome for a single content item. Result holds the
// per-item application or removal result on success.
type ItemResult struct {
	ContentUID string      `json:"contentUid"`
	Success    bool        `json:"success"`
	Result     interface{} `json:"result,omitempty"`
	ErrorKind  string      `json:"errorKind,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Result aggregates a bulk run. SuccessfulCount+FailedCount always equals
// TotalItems and Results follows input order.
type Result struct {
	TemplateID      string        `json:"templateId,omitempty"`
	TotalItems      int           `json:"totalItems"`
	SuccessfulCount int           `json:"successfulCount"`
	FailedCount     int           `json:"failedCount"`
	SuccessRate     float64       `json:"successRate"`
	Results         []ItemResult  `json:"results"`
	StartedAt       time.Time     `json:"startedAt"`
	Duration        time.Duration `json:"duration"`
}

func (s *Service) limit(requested int) int {
	switch {
	case requested <= 0:
		return s.opts.DefaultConcurrency
	case requested > s.opts.MaxConcurrency:
		return s.opts.MaxConcurrency
	default:
		return requested
	}
}

func checkUnique(op string, uids []string) error {
	seen := make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		if strings.TrimSpace(uid) == "" {
			return errs.E(errs.KindValidation, op, "content uid is required for every item")
		}
		if _, dup := seen[uid]; dup {
			return errs.E(errs.KindValidation, op, "duplicate content uid: "+uid)
		}
		seen[uid] = struct{}{}
	}
	return nil
}

// checkTemplate runs structural and role validation once for the whole batch.
func (s *Service) checkTemplate(op string, tpl *workflow.Template) error {
	if tpl == nil {
		return errs.E(errs.KindValidation, op, "template is required")
	}
	if err := workflow.Validate(tpl); err != nil {
		return errs.Wrap(errs.KindInvalidWorkflow, op, err, "template failed validation")
	}
	if res := s.mapper.ValidateTemplateRoles(tpl); !res.Valid {
		return errs.E(errs.KindValidation, op, strings.Join(res.Errors, "; "))
	}
	return nil
}

// run executes fn for every index with at most n in flight. fn owns slot i.
func run(ctx context.Context, total, n int, fn func(ctx context.Context, i int)) {
	var g errgroup.Group
	g.SetLimit(n)
	for i := 0; i < total; i++ {
		i := i
		g.Go(func() error {
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

func itemFailure(uid string, err error) ItemResult {
	return ItemResult{
		ContentUID: uid,
		ErrorKind:  string(errs.KindOf(err)),
		Error:      err.Error(),
	}
}

func (s *Service) finish(res *Result) {
	for _, r := range res.Results {
		if r.Success {
			res.SuccessfulCount++
		} else {
			res.FailedCount++
		}
	}
	if res.TotalItems > 0 {
		res.SuccessRate = float64(res.SuccessfulCount) / float64(res.TotalItems) * 100
	}
	res.Duration = s.now().Sub(res.StartedAt)
	if s.recorder != nil {
		s.recorder.ObserveBulkItems(res.SuccessfulCount, res.FailedCount)
	}
}

func failedUIDs(results []ItemResult) []string {
	out := []string{}
	for _, r := range results {
		if !r.Success {
			out = append(out, r.ContentUID)
		}
	}
	return out
}

// BulkApply validates the template once and applies it to every item. A
// failing item never stops the others.
func (s *Service) BulkApply(ctx context.Context, req ApplyRequest) (*Result, error) {
	const op = "bulk.BulkApply"
	uids := make([]string, len(req.Items))
	for i, it := range req.Items {
		uids[i] = it.ContentUID
	}

	if err := s.precheck(ctx, op, req.Template, uids, req.UserID); err != nil {
		return nil, err
	}

	n := s.limit(req.MaxConcurrent)
	res := &Result{
		TemplateID: req.Template.ID,
		TotalItems: len(req.Items),
		Results:    make([]ItemResult, len(req.Items)),
		StartedAt:  s.now(),
	}
	s.logger.Info().
		Str("template_id", req.Template.ID).
		Int("items", len(req.Items)).
		Int("max_concurrent", n).
		Str("user_id", req.UserID).
		Msg("bulk apply started")

	run(ctx, len(req.Items), n, func(ctx context.Context, i int) {
		item := req.Items[i]
		applied, err := s.applier.Apply(ctx, appworkflow.ApplyRequest{
			ContentUID:      item.ContentUID,
			Template:        req.Template,
			RoleAssignments: item.RoleAssignments,
			Force:           item.Force,
			UserID:          req.UserID,
		})
		if err != nil {
			res.Results[i] = itemFailure(item.ContentUID, err)
			return
		}
		res.Results[i] = ItemResult{ContentUID: item.ContentUID, Success: true, Result: applied}
	})
	s.finish(res)

	entry := audit.NewEntry(audit.OperationBulkApply, req.UserID, "").
		WithTemplate(req.Template.ID).
		SetMeta("total_items", res.TotalItems).
		SetMeta("successful_count", res.SuccessfulCount).
		SetMeta("failed_count", res.FailedCount).
		SetMeta("max_concurrent", n).
		SetMeta("failed_content_uids", failedUIDs(res.Results))
	s.audit.Log(ctx, entry.Succeed())

	s.logger.Info().
		Str("template_id", req.Template.ID).
		Int("succeeded", res.SuccessfulCount).
		Int("failed", res.FailedCount).
		Dur("duration", res.Duration).
		Msg("bulk apply finished")
	return res, nil
}

// precheck rejects the whole batch before any item runs.
func (s *Service) precheck(ctx context.Context, op string, tpl *workflow.Template, uids []string, userID string) error {
	err := s.checkTemplate(op, tpl)
	if err == nil {
		err = checkUnique(op, uids)
	}
	if err == nil {
		return nil
	}
	entry := audit.NewEntry(audit.OperationValidationFailure, userID, "").
		SetMeta("operation", string(audit.OperationBulkApply)).
		SetMeta("total_items", len(uids))
	if tpl != nil {
		entry.WithTemplate(tpl.ID)
	}
	s.audit.Log(ctx, entry.Fail(err))
	return err
}

// BulkRemove removes templates from every listed item with the same isolation
// as BulkApply.
func (s *Service) BulkRemove(ctx context.Context, req RemoveRequest) (*Result, error) {
	const op = "bulk.BulkRemove"
	if err := checkUnique(op, req.ContentUIDs); err != nil {
		return nil, err
	}

	n := s.limit(req.MaxConcurrent)
	res := &Result{
		TotalItems: len(req.ContentUIDs),
		Results:    make([]ItemResult, len(req.ContentUIDs)),
		StartedAt:  s.now(),
	}
	run(ctx, len(req.ContentUIDs), n, func(ctx context.Context, i int) {
		uid := req.ContentUIDs[i]
		removed, err := s.applier.Remove(ctx, appworkflow.RemoveRequest{
			ContentUID:    uid,
			RestoreBackup: req.RestoreBackup,
			UserID:        req.UserID,
		})
		if err != nil {
			res.Results[i] = itemFailure(uid, err)
			return
		}
		res.Results[i] = ItemResult{ContentUID: uid, Success: true, Result: removed}
	})
	s.finish(res)

	entry := audit.NewEntry(audit.OperationBulkRemove, req.UserID, "").
		SetMeta("total_items", res.TotalItems).
		SetMeta("successful_count", res.SuccessfulCount).
		SetMeta("failed_count", res.FailedCount).
		SetMeta("restore_backup", req.RestoreBackup).
		SetMeta("failed_content_uids", failedUIDs(res.Results))
	s.audit.Log(ctx, entry.Succeed())

	s.logger.Info().
		Int("succeeded", res.SuccessfulCount).
		Int("failed", res.FailedCount).
		Dur("duration", res.Duration).
		Msg("bulk remove finished")
	return res, nil
}

// ItemCheck is the read-only readiness of one content item.
type ItemCheck struct {
	ContentUID  string   `json:"contentUid"`
	Exists      bool     `json:"exists"`
	CanManage   bool     `json:"canManage"`
	HasTemplate bool     `json:"hasTemplate"`
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
}

// Validation reports whether a template could be applied to a set of items.
type Validation struct {
	TemplateID     string                   `json:"templateId,omitempty"`
	TemplateValid  bool                     `json:"templateValid"`
	TemplateErrors []string                 `json:"templateErrors"`
	RoleValidation rolemap.ValidationResult `json:"roleValidation"`
	Items          []ItemCheck              `json:"items"`
	AllValid       bool                     `json:"allValid"`
}

// ValidateTemplateForContent checks the template once and each item for
// existence and workflow-management rights. Nothing is mutated.
func (s *Service) ValidateTemplateForContent(ctx context.Context, tpl *workflow.Template, uids []string, userID string) (*Validation, error) {
	const op = "bulk.ValidateTemplateForContent"
	if tpl == nil {
		return nil, errs.E(errs.KindValidation, op, "template is required")
	}
	out := &Validation{
		TemplateID:     tpl.ID,
		TemplateValid:  true,
		TemplateErrors: []string{},
		Items:          make([]ItemCheck, 0, len(uids)),
	}
	if err := workflow.Validate(tpl); err != nil {
		out.TemplateValid = false
		var invalid *workflow.InvalidWorkflowError
		if errors.As(err, &invalid) {
			out.TemplateErrors = append(out.TemplateErrors, invalid.Violations...)
		} else {
			out.TemplateErrors = append(out.TemplateErrors, err.Error())
		}
	}
	out.RoleValidation = s.mapper.ValidateTemplateRoles(tpl)
	if !out.RoleValidation.Valid {
		out.TemplateValid = false
	}

	out.AllValid = out.TemplateValid
	for _, uid := range uids {
		check := s.checkItem(ctx, uid, userID)
		if !check.Valid {
			out.AllValid = false
		}
		out.Items = append(out.Items, check)
	}
	return out, nil
}

func (s *Service) checkItem(ctx context.Context, uid, userID string) ItemCheck {
	check := ItemCheck{ContentUID: uid, Errors: []string{}, Warnings: []string{}}
	summary, err := s.content.GetContentByUID(ctx, uid)
	if err != nil {
		check.Errors = append(check.Errors, fmt.Sprintf("content lookup failed: %v", err))
		return check
	}
	if summary == nil {
		check.Errors = append(check.Errors, "content not found")
		return check
	}
	check.Exists = true

	roles, err := s.content.GetUserRolesForContent(ctx, uid, userID)
	if err != nil {
		check.Errors = append(check.Errors, fmt.Sprintf("role lookup failed: %v", err))
	} else {
		check.CanManage = s.mapper.CheckCompatibility(roles, role.Publisher)
		if !check.CanManage {
			check.Errors = append(check.Errors, "user cannot manage workflows on this item")
		}
	}

	meta, err := summary.TemplateMetadata()
	switch {
	case err != nil:
		check.Warnings = append(check.Warnings, "existing template metadata is unreadable")
	case meta != nil:
		check.HasTemplate = true
		check.Warnings = append(check.Warnings, fmt.Sprintf("template %s already applied, force is required", meta.TemplateID))
	}

	check.Valid = len(check.Errors) == 0
	return check
}
