package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/curriculum-hub/curriculum-hub/internal/application/rolemap"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/audit"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/content"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/errs"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/role"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/workflow"
)

const defaultRollbackTimeout = 30 * time.Second

// Service applies workflow templates to content items.
type Service struct {
	content         content.System
	mapper          *rolemap.Mapper
	audit           audit.Logger
	logger          zerolog.Logger
	now             func() time.Time
	rollbackTimeout time.Duration
}

// NewService creates a workflow application service.
func NewService(system content.System, mapper *rolemap.Mapper, auditLog audit.Logger, logger zerolog.Logger) *Service {
	return &Service{
		content:         system,
		mapper:          mapper,
		audit:           auditLog,
		logger:          logger.With().Str("service", "workflow").Logger(),
		now:             func() time.Time { return time.Now().UTC() },
		rollbackTimeout: defaultRollbackTimeout,
	}
}

// ApplyRequest applies Template to ContentUID.
type ApplyRequest struct {
	ContentUID      string
	Template        *workflow.Template
	RoleAssignments map[role.Internal][]string
	Force           bool
	UserID          string
}

// ApplicationResult describes a successful application.
type ApplicationResult struct {
	ContentUID         string              `json:"contentUid"`
	TemplateID         string              `json:"templateId"`
	TemplateVersion    string              `json:"templateVersion"`
	WorkflowID         string              `json:"workflowId"`
	InitialState       string              `json:"initialState"`
	RoleAssignments    map[string][]string `json:"roleAssignments"`
	PreviousWorkflowID string              `json:"previousWorkflowId"`
	PreviousState      string              `json:"previousState"`
	Replaced           bool                `json:"replaced"`
	Warnings           []string            `json:"warnings"`
	AppliedAt          time.Time           `json:"appliedAt"`
}

// RemoveRequest removes the applied template from ContentUID.
type RemoveRequest struct {
	ContentUID    string
	RestoreBackup bool
	UserID        string
}

// RemovalResult describes a successful removal.
type RemovalResult struct {
	ContentUID         string   `json:"contentUid"`
	TemplateID         string   `json:"templateId"`
	RemovedWorkflowID  string   `json:"removedWorkflowId"`
	BackupRestored     bool     `json:"backupRestored"`
	RestoredWorkflowID string   `json:"restoredWorkflowId,omitempty"`
	RestoredState      string   `json:"restoredState,omitempty"`
	Warnings           []string `json:"warnings"`
}

// Status is the applied template and the live workflow of a content item.
type Status struct {
	ContentUID string                    `json:"contentUid"`
	Title      string                    `json:"title"`
	Template   *content.TemplateMetadata `json:"template"`
	Workflow   *content.WorkflowInfo     `json:"workflow"`
}

// WorkflowID derives the native workflow id for a template on a content item.
func WorkflowID(templateID, contentUID string) string {
	return "tmpl-" + templateID + "-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(templateID+":"+contentUID)).String()
}

// Apply validates the template, backs up the current workflow, installs the
// template's native workflow and role assignments, and sets the initial state.
// Any failure after the backup is rolled back before returning.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (*ApplicationResult, error) {
	const op = "workflow.Apply"
	entry := audit.NewEntry(audit.OperationApplyTemplate, req.UserID, req.ContentUID)
	fail := func(err error) (*ApplicationResult, error) {
		s.audit.Log(ctx, entry.Fail(err))
		return nil, err
	}
	if req.Template == nil {
		return fail(errs.E(errs.KindValidation, op, "template is required"))
	}
	tpl := req.Template
	entry.WithTemplate(tpl.ID).SetMeta("force", req.Force)

	summary, err := s.content.GetContentByUID(ctx, req.ContentUID)
	if err != nil {
		return fail(errs.Wrap(errs.KindExternalService, op, err, "failed to look up content"))
	}
	if summary == nil {
		return fail(errs.E(errs.KindNotFound, op, "content not found: "+req.ContentUID))
	}
	existing, err := summary.TemplateMetadata()
	if err != nil {
		return fail(errs.Wrap(errs.KindInternal, op, err, "failed to decode template metadata"))
	}
	if existing != nil && !req.Force {
		return fail(errs.E(errs.KindConflict, op, fmt.Sprintf("template %s already applied to %s", existing.TemplateID, req.ContentUID)))
	}

	if err := workflow.Validate(tpl); err != nil {
		return fail(errs.Wrap(errs.KindInvalidWorkflow, op, err, ""))
	}
	roleCheck := s.mapper.ValidateTemplateRoles(tpl)
	if !roleCheck.Valid {
		return fail(errs.E(errs.KindValidation, op, strings.Join(roleCheck.Errors, "; ")))
	}
	assignCheck := s.mapper.ValidateRoleAssignments(req.RoleAssignments)
	if !assignCheck.Valid {
		return fail(errs.E(errs.KindValidation, op, strings.Join(assignCheck.Errors, "; ")))
	}
	external, err := s.mapper.BuildExternalRoleAssignments(req.RoleAssignments)
	if err != nil {
		return fail(errs.Wrap(errs.KindValidation, op, err, "invalid role assignments"))
	}

	info, err := s.content.GetWorkflowInfo(ctx, req.ContentUID)
	if err != nil {
		return fail(errs.Wrap(errs.KindExternalService, op, err, "failed to read current workflow"))
	}
	previous := content.BackupInfo{
		OriginalWorkflowID: info.WorkflowID,
		OriginalState:      info.State,
		History:            info.History,
	}
	backup := &previous
	if existing != nil && existing.BackupInfo != nil {
		backup = existing.BackupInfo
	}

	workflowID := WorkflowID(tpl.ID, req.ContentUID)
	def := s.BuildDefinition(tpl, workflowID)
	initial := tpl.InitialState()
	now := s.now()
	meta := &content.TemplateMetadata{
		TemplateID:      tpl.ID,
		TemplateVersion: tpl.Version,
		RoleAssignments: roleAssignmentKeys(req.RoleAssignments),
		WorkflowID:      workflowID,
		AppliedAt:       now,
		AppliedBy:       req.UserID,
		BackupInfo:      backup,
	}

	st := &applyState{}
	if err := s.install(ctx, req.ContentUID, workflowID, def, external, meta, initial.ID, st); err != nil {
		orig := errs.Wrap(errs.KindExternalService, op, err, "failed to apply template")
		rbErr := s.rollback(ctx, req.ContentUID, previous, existing, workflowID, st)
		entry.SetMeta("rolled_back", rbErr == nil)
		if rbErr != nil {
			s.logger.Error().Err(rbErr).
				Str("content_uid", req.ContentUID).
				Str("template_id", tpl.ID).
				AnErr("original_error", err).
				Msg("rollback failed")
			return fail(errs.WithRollbackFailure(orig, rbErr))
		}
		s.logger.Warn().Err(err).
			Str("content_uid", req.ContentUID).
			Str("template_id", tpl.ID).
			Msg("template application rolled back")
		return fail(orig)
	}

	if existing != nil && existing.WorkflowID != "" && existing.WorkflowID != workflowID &&
		existing.WorkflowID != backup.OriginalWorkflowID {
		if err := s.content.DeleteWorkflow(ctx, existing.WorkflowID); err != nil {
			s.logger.Warn().Err(err).
				Str("content_uid", req.ContentUID).
				Str("workflow_id", existing.WorkflowID).
				Msg("best-effort cleanup of replaced workflow failed")
		}
	}

	entry.AddChange("workflow_id", info.WorkflowID, workflowID)
	entry.AddChange("state", info.State, initial.ID)
	for _, ext := range sortedRoleKeys(external) {
		entry.AddChange("local_roles."+ext, nil, external[ext])
	}
	entry.AddChange("metadata."+content.MetadataKey, previousTemplateID(existing), tpl.ID)
	entry.SetMeta("workflow_id", workflowID)
	s.audit.Log(ctx, entry.Succeed())

	s.logger.Info().
		Str("content_uid", req.ContentUID).
		Str("template_id", tpl.ID).
		Str("workflow_id", workflowID).
		Str("user_id", req.UserID).
		Msg("template applied")

	warnings := append(append([]string{}, roleCheck.Warnings...), assignCheck.Warnings...)
	return &ApplicationResult{
		ContentUID:         req.ContentUID,
		TemplateID:         tpl.ID,
		TemplateVersion:    tpl.Version,
		WorkflowID:         workflowID,
		InitialState:       initial.ID,
		RoleAssignments:    external,
		PreviousWorkflowID: info.WorkflowID,
		PreviousState:      info.State,
		Replaced:           existing != nil,
		Warnings:           warnings,
		AppliedAt:          now,
	}, nil
}

// applyState tracks which install steps completed.
type applyState struct {
	created bool
}

func (s *Service) install(ctx context.Context, uid, workflowID string, def *content.WorkflowDefinition, external map[string][]string, meta *content.TemplateMetadata, initial string, st *applyState) error {
	if err := s.content.CreateWorkflow(ctx, workflowID, def); err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	st.created = true
	if err := s.content.AssignWorkflowToContent(ctx, uid, workflowID); err != nil {
		return fmt.Errorf("assign workflow: %w", err)
	}
	for _, ext := range sortedRoleKeys(external) {
		if err := s.content.AssignLocalRoles(ctx, uid, ext, external[ext]); err != nil {
			return fmt.Errorf("assign role %s: %w", ext, err)
		}
	}
	if err := s.content.UpdateContentMetadata(ctx, uid, map[string]interface{}{content.MetadataKey: meta}); err != nil {
		return fmt.Errorf("store template metadata: %w", err)
	}
	if err := s.content.SetWorkflowState(ctx, uid, initial); err != nil {
		return fmt.Errorf("set initial state: %w", err)
	}
	return nil
}

// rollback restores the workflow attachment and metadata seen before Apply.
// Every step is attempted; failures are joined. Removing the created native
// definition is best-effort and never part of the returned error.
func (s *Service) rollback(ctx context.Context, uid string, previous content.BackupInfo, existing *content.TemplateMetadata, workflowID string, st *applyState) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.rollbackTimeout)
	defer cancel()

	var failures []error
	if err := s.content.AssignWorkflowToContent(rctx, uid, previous.OriginalWorkflowID); err != nil {
		failures = append(failures, fmt.Errorf("restore workflow %q: %w", previous.OriginalWorkflowID, err))
	}
	if err := s.content.SetWorkflowState(rctx, uid, previous.OriginalState); err != nil {
		failures = append(failures, fmt.Errorf("restore state %q: %w", previous.OriginalState, err))
	}
	var restored interface{}
	if existing != nil {
		restored = existing
	}
	if err := s.content.UpdateContentMetadata(rctx, uid, map[string]interface{}{content.MetadataKey: restored}); err != nil {
		failures = append(failures, fmt.Errorf("restore template metadata: %w", err))
	}

	if st.created && workflowID != previous.OriginalWorkflowID {
		if err := s.content.DeleteWorkflow(rctx, workflowID); err != nil {
			s.logger.Warn().Err(err).
				Str("content_uid", uid).
				Str("workflow_id", workflowID).
				Msg("best-effort cleanup of native workflow failed")
		}
	}
	return errors.Join(failures...)
}

// Remove deletes the template metadata and, when asked, restores the workflow
// captured at application time. Deleting the native definition is best-effort.
func (s *Service) Remove(ctx context.Context, req RemoveRequest) (*RemovalResult, error) {
	const op = "workflow.Remove"
	entry := audit.NewEntry(audit.OperationRemoveTemplate, req.UserID, req.ContentUID).
		SetMeta("restore_backup", req.RestoreBackup)
	fail := func(err error) (*RemovalResult, error) {
		s.audit.Log(ctx, entry.Fail(err))
		return nil, err
	}

	summary, err := s.content.GetContentByUID(ctx, req.ContentUID)
	if err != nil {
		return fail(errs.Wrap(errs.KindExternalService, op, err, "failed to look up content"))
	}
	if summary == nil {
		return fail(errs.E(errs.KindNotFound, op, "content not found: "+req.ContentUID))
	}
	meta, err := summary.TemplateMetadata()
	if err != nil {
		return fail(errs.Wrap(errs.KindInternal, op, err, "failed to decode template metadata"))
	}
	if meta == nil {
		return fail(errs.E(errs.KindNotFound, op, "template not applied to "+req.ContentUID))
	}
	entry.WithTemplate(meta.TemplateID)

	restoring := req.RestoreBackup && meta.BackupInfo != nil
	var live *content.WorkflowInfo
	if restoring {
		// Captured before any mutation so a failed restore can put it back.
		live, err = s.content.GetWorkflowInfo(ctx, req.ContentUID)
		if err != nil {
			return fail(errs.Wrap(errs.KindExternalService, op, err, "failed to read workflow"))
		}
	}

	if err := s.content.UpdateContentMetadata(ctx, req.ContentUID, map[string]interface{}{content.MetadataKey: nil}); err != nil {
		return fail(errs.Wrap(errs.KindExternalService, op, err, "failed to delete template metadata"))
	}
	entry.AddChange("metadata."+content.MetadataKey, meta.TemplateID, nil)

	result := &RemovalResult{
		ContentUID:        req.ContentUID,
		TemplateID:        meta.TemplateID,
		RemovedWorkflowID: meta.WorkflowID,
		Warnings:          []string{},
	}

	if restoring {
		backup := meta.BackupInfo
		if attached, err := s.restore(ctx, req.ContentUID, backup); err != nil {
			orig := errs.Wrap(errs.KindExternalService, op, err, "failed to restore backup")
			if rbErr := s.reinstate(ctx, req.ContentUID, meta, live, attached); rbErr != nil {
				s.logger.Error().Err(rbErr).Str("content_uid", req.ContentUID).Msg("failed to reinstate template workflow")
				return fail(errs.WithRollbackFailure(orig, rbErr))
			}
			return fail(orig)
		}
		result.BackupRestored = true
		result.RestoredWorkflowID = backup.OriginalWorkflowID
		result.RestoredState = backup.OriginalState
		entry.AddChange("workflow_id", meta.WorkflowID, backup.OriginalWorkflowID)
		entry.AddChange("state", nil, backup.OriginalState)
	} else {
		if req.RestoreBackup {
			result.Warnings = append(result.Warnings, "no backup recorded; workflow detached")
		}
		if err := s.content.AssignWorkflowToContent(ctx, req.ContentUID, ""); err != nil {
			return fail(errs.Wrap(errs.KindExternalService, op, err, "failed to detach workflow"))
		}
		entry.AddChange("workflow_id", meta.WorkflowID, "")
	}

	if meta.WorkflowID != "" && (meta.BackupInfo == nil || meta.WorkflowID != meta.BackupInfo.OriginalWorkflowID) {
		if err := s.content.DeleteWorkflow(ctx, meta.WorkflowID); err != nil {
			s.logger.Warn().Err(err).
				Str("content_uid", req.ContentUID).
				Str("workflow_id", meta.WorkflowID).
				Msg("best-effort cleanup of native workflow failed")
			result.Warnings = append(result.Warnings, "native workflow "+meta.WorkflowID+" was not deleted")
		}
	}

	s.audit.Log(ctx, entry.Succeed())
	s.logger.Info().
		Str("content_uid", req.ContentUID).
		Str("template_id", meta.TemplateID).
		Bool("backup_restored", result.BackupRestored).
		Msg("template removed")
	return result, nil
}

// restore re-attaches the backed-up workflow and state. attached reports
// whether the workflow assignment went through before any failure.
func (s *Service) restore(ctx context.Context, uid string, backup *content.BackupInfo) (attached bool, err error) {
	if err := s.content.AssignWorkflowToContent(ctx, uid, backup.OriginalWorkflowID); err != nil {
		return false, fmt.Errorf("restore workflow: %w", err)
	}
	if err := s.content.SetWorkflowState(ctx, uid, backup.OriginalState); err != nil {
		return true, fmt.Errorf("restore state: %w", err)
	}
	return true, nil
}

// reinstate undoes a partial restore: the template workflow and its
// pre-remove state go back on the item, then the metadata. Every step is
// attempted and failures are joined.
func (s *Service) reinstate(ctx context.Context, uid string, meta *content.TemplateMetadata, live *content.WorkflowInfo, attached bool) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.rollbackTimeout)
	defer cancel()

	var failures []error
	if attached {
		if err := s.content.AssignWorkflowToContent(rctx, uid, live.WorkflowID); err != nil {
			failures = append(failures, fmt.Errorf("reattach workflow %s: %w", live.WorkflowID, err))
		} else {
			current, err := s.content.GetWorkflowInfo(rctx, uid)
			if err != nil || current.State != live.State {
				if err := s.content.SetWorkflowState(rctx, uid, live.State); err != nil {
					failures = append(failures, fmt.Errorf("restore state %s: %w", live.State, err))
				}
			}
		}
	}
	if err := s.content.UpdateContentMetadata(rctx, uid, map[string]interface{}{content.MetadataKey: meta}); err != nil {
		failures = append(failures, fmt.Errorf("restore metadata: %w", err))
	}
	return errors.Join(failures...)
}

// Status returns the applied template record and the live workflow info.
func (s *Service) Status(ctx context.Context, contentUID string) (*Status, error) {
	const op = "workflow.Status"
	summary, err := s.content.GetContentByUID(ctx, contentUID)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalService, op, err, "failed to look up content")
	}
	if summary == nil {
		return nil, errs.E(errs.KindNotFound, op, "content not found: "+contentUID)
	}
	meta, err := summary.TemplateMetadata()
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, op, err, "failed to decode template metadata")
	}
	info, err := s.content.GetWorkflowInfo(ctx, contentUID)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalService, op, err, "failed to read workflow")
	}
	return &Status{ContentUID: contentUID, Title: summary.Title, Template: meta, Workflow: info}, nil
}

// BuildDefinition translates a template into the content system's native
// workflow shape. Transitions are guarded by the required role and Manager.
func (s *Service) BuildDefinition(tpl *workflow.Template, workflowID string) *content.WorkflowDefinition {
	matrix := s.mapper.BuildPermissionMatrix(tpl)
	def := &content.WorkflowDefinition{
		ID:          workflowID,
		Title:       tpl.Name,
		Description: tpl.Description,
		States:      make([]content.StateDefinition, 0, len(tpl.States)),
		Transitions: make([]content.TransitionDefinition, 0, len(tpl.Transitions)),
	}
	if initial := tpl.InitialState(); initial != nil {
		def.InitialState = initial.ID
	}
	for _, st := range tpl.States {
		exits := []string{}
		for _, tr := range tpl.TransitionsFrom(st.ID) {
			exits = append(exits, tr.ID)
		}
		def.States = append(def.States, content.StateDefinition{
			ID:          st.ID,
			Title:       st.Title,
			Type:        string(st.Type),
			Transitions: exits,
			Permissions: matrix[st.ID],
		})
	}
	for _, tr := range tpl.Transitions {
		guards := []string{role.ExternalManager}
		if ext, err := s.mapper.ExternalRole(tr.RequiredRole); err == nil && ext != role.ExternalManager {
			guards = append(guards, ext)
		}
		sort.Strings(guards)
		def.Transitions = append(def.Transitions, content.TransitionDefinition{
			ID:         tr.ID,
			Title:      tr.Title,
			From:       tr.From,
			To:         tr.To,
			GuardRoles: guards,
		})
	}
	return def
}

func roleAssignmentKeys(in map[role.Internal][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for r, users := range in {
		out[string(r)] = append([]string(nil), users...)
	}
	return out
}

func sortedRoleKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func previousTemplateID(existing *content.TemplateMetadata) interface{} {
	if existing == nil {
		return nil
	}
	return existing.TemplateID
}
