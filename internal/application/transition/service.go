package transition

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/curriculum-hub/curriculum-hub/internal/application/rolemap"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/audit"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/content"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/errs"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/role"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/workflow"
)

// TemplateSource resolves applied templates by id.
type TemplateSource interface {
	Get(id string) (*workflow.Template, error)
}

// Service executes workflow transitions on content items.
type Service struct {
	content   content.System
	templates TemplateSource
	mapper    *rolemap.Mapper
	audit     audit.Logger
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a transition executor.
func NewService(system content.System, templates TemplateSource, mapper *rolemap.Mapper, auditLog audit.Logger, logger zerolog.Logger) *Service {
	return &Service{
		content:   system,
		templates: templates,
		mapper:    mapper,
		audit:     auditLog,
		logger:    logger.With().Str("service", "transition").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ExecuteRequest moves ContentUID along TransitionID on behalf of UserID.
// SkipPermissionCheck bypasses the transition guard for administrators only;
// anyone else is denied.
type ExecuteRequest struct {
	ContentUID          string
	TransitionID        string
	UserID              string
	Comments            string
	SkipPermissionCheck bool
}

// TransitionResult describes an executed transition.
type TransitionResult struct {
	ContentUID   string               `json:"contentUid"`
	TransitionID string               `json:"transitionId"`
	FromState    string               `json:"fromState"`
	ToState      string               `json:"toState"`
	Actor        string               `json:"actor"`
	Comments     string               `json:"comments,omitempty"`
	HistoryEntry content.HistoryEntry `json:"historyEntry"`
	ExecutedAt   time.Time            `json:"executedAt"`
	Warnings     []string             `json:"warnings"`
}

// UserPermissions is what a user may do on a content item right now.
type UserPermissions struct {
	ContentUID           string                   `json:"contentUid"`
	TemplateID           string                   `json:"templateId"`
	CurrentState         string                   `json:"currentState"`
	UserRoles            []string                 `json:"userRoles"`
	AvailableActions     []role.Action            `json:"availableActions"`
	AvailableTransitions []content.TransitionInfo `json:"availableTransitions"`
}

type loaded struct {
	meta *content.TemplateMetadata
	tpl  *workflow.Template
	info *content.WorkflowInfo
}

func (s *Service) load(ctx context.Context, op, uid string) (*loaded, error) {
	summary, err := s.content.GetContentByUID(ctx, uid)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalService, op, err, "failed to look up content")
	}
	if summary == nil {
		return nil, errs.E(errs.KindNotFound, op, "content not found: "+uid)
	}
	meta, err := summary.TemplateMetadata()
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, op, err, "failed to decode template metadata")
	}
	if meta == nil {
		return nil, errs.E(errs.KindNotFound, op, "no template applied to "+uid)
	}
	tpl, err := s.templates.Get(meta.TemplateID)
	if err != nil {
		return nil, err
	}
	info, err := s.content.GetWorkflowInfo(ctx, uid)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalService, op, err, "failed to read workflow")
	}
	return &loaded{meta: meta, tpl: tpl, info: info}, nil
}

// Execute checks permission and conditions, then delegates the state change
// to the content system and records the transition in the template history.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*TransitionResult, error) {
	const op = "transition.Execute"
	entry := audit.NewEntry(audit.OperationExecuteTransition, req.UserID, req.ContentUID).
		SetMeta("transition_id", req.TransitionID)
	fail := func(err error) (*TransitionResult, error) {
		s.audit.Log(ctx, entry.Fail(err))
		return nil, err
	}

	st, err := s.load(ctx, op, req.ContentUID)
	if err != nil {
		return fail(err)
	}
	entry.WithTemplate(st.meta.TemplateID)

	tr := st.tpl.Transition(req.TransitionID)
	if tr == nil {
		return fail(errs.E(errs.KindValidation, op, fmt.Sprintf("unknown transition %s for template %s", req.TransitionID, st.tpl.ID)))
	}
	if tr.From != st.info.State {
		return fail(errs.E(errs.KindValidation, op, fmt.Sprintf("transition %s is not available in state %s", tr.ID, st.info.State)))
	}

	var roles []string
	if req.SkipPermissionCheck {
		roles, err = s.authorizeOverride(ctx, op, req, tr)
	} else {
		roles, err = s.authorize(ctx, op, req, tr)
	}
	if err != nil {
		return fail(err)
	}

	cc := ConditionContext{
		Comments:        req.Comments,
		ReviewerCount:   len(uniqueUsers(st.meta.RoleAssignments[string(role.Reviewer)])),
		CurrentState:    st.info.State,
		UserID:          req.UserID,
		UserRoleCount:   len(roles),
		TemplateID:      st.tpl.ID,
		TemplateVersion: st.tpl.Version,
	}
	if err := CheckConditions(tr.Conditions, cc); err != nil {
		return fail(errs.Wrap(errs.KindValidation, op, err, "transition condition failed"))
	}

	outcome, err := s.content.ExecuteWorkflowTransition(ctx, req.ContentUID, tr.ID, req.Comments)
	if err != nil {
		return fail(errs.Wrap(errs.KindExternalService, op, err, "failed to execute transition"))
	}

	now := s.now()
	history := content.HistoryEntry{
		Action:    tr.ID,
		FromState: st.info.State,
		ToState:   outcome.NewState,
		Actor:     req.UserID,
		Comments:  req.Comments,
		Time:      now,
	}
	result := &TransitionResult{
		ContentUID:   req.ContentUID,
		TransitionID: tr.ID,
		FromState:    st.info.State,
		ToState:      outcome.NewState,
		Actor:        req.UserID,
		Comments:     req.Comments,
		HistoryEntry: history,
		ExecutedAt:   now,
		Warnings:     []string{},
	}

	// The state change already happened; a history write failure is reported, not raised.
	if warning := s.recordHistory(ctx, req.ContentUID, st.meta.WorkflowID, history); warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}

	entry.AddChange("state", st.info.State, outcome.NewState)
	if req.Comments != "" {
		entry.SetMeta("comments", req.Comments)
	}
	s.audit.Log(ctx, entry.Succeed())

	s.logger.Info().
		Str("content_uid", req.ContentUID).
		Str("transition_id", tr.ID).
		Str("from_state", result.FromState).
		Str("to_state", result.ToState).
		Str("user_id", req.UserID).
		Msg("transition executed")
	return result, nil
}

// recordHistory appends e to the item's template record. The record is
// re-read first so a concurrent removal or re-application is not undone;
// the write is skipped when the record no longer names workflowID.
func (s *Service) recordHistory(ctx context.Context, uid, workflowID string, e content.HistoryEntry) string {
	log := s.logger.With().Str("content_uid", uid).Str("transition_id", e.Action).Logger()

	summary, err := s.content.GetContentByUID(ctx, uid)
	if err != nil || summary == nil {
		log.Warn().Err(err).Msg("failed to re-read content before recording history")
		return "transition history was not recorded"
	}
	meta, err := summary.TemplateMetadata()
	if err != nil {
		log.Warn().Err(err).Msg("failed to decode template metadata before recording history")
		return "transition history was not recorded"
	}
	if meta == nil || meta.WorkflowID != workflowID {
		log.Warn().Str("workflow_id", workflowID).Msg("template record changed during transition, history skipped")
		return "template was removed or replaced during the transition; history was not recorded"
	}

	meta.AppendHistory(e)
	if err := s.content.UpdateContentMetadata(ctx, uid, map[string]interface{}{content.MetadataKey: meta}); err != nil {
		log.Warn().Err(err).Msg("failed to record transition history")
		return "transition history was not recorded"
	}
	return ""
}

// authorize resolves the user's roles and asks the content system whether the
// user may run tr. Any missing data denies.
func (s *Service) authorize(ctx context.Context, op string, req ExecuteRequest, tr *workflow.Transition) ([]string, error) {
	check := audit.NewEntry(audit.OperationPermissionCheck, req.UserID, req.ContentUID).
		SetMeta("transition_id", tr.ID).
		SetMeta("required_role", string(tr.RequiredRole))
	deny := func(err error) ([]string, error) {
		s.audit.Log(ctx, check.Fail(err))
		return nil, err
	}

	roles, err := s.content.GetUserRolesForContent(ctx, req.ContentUID, req.UserID)
	if err != nil {
		return deny(errs.Wrap(errs.KindExternalService, op, err, "failed to resolve user roles"))
	}
	check.SetMeta("user_roles", roles)
	if len(roles) == 0 {
		return deny(errs.E(errs.KindPermissionDenied, op, fmt.Sprintf("user %s has no roles on %s", req.UserID, req.ContentUID)))
	}
	allowed, err := s.content.CanUserExecuteTransition(ctx, req.ContentUID, tr.ID, req.UserID)
	if err != nil {
		return deny(errs.Wrap(errs.KindExternalService, op, err, "failed to check transition permission"))
	}
	if !allowed {
		s.logger.Warn().
			Str("content_uid", req.ContentUID).
			Str("transition_id", tr.ID).
			Str("user_id", req.UserID).
			Msg("transition denied")
		return deny(errs.E(errs.KindPermissionDenied, op, fmt.Sprintf("user %s may not execute %s", req.UserID, tr.ID)))
	}
	s.audit.Log(ctx, check.Succeed())
	return roles, nil
}

// authorizeOverride admits a request that bypasses the transition guard only
// when the user's roles on the item reach administrator level.
func (s *Service) authorizeOverride(ctx context.Context, op string, req ExecuteRequest, tr *workflow.Transition) ([]string, error) {
	check := audit.NewEntry(audit.OperationPermissionCheck, req.UserID, req.ContentUID).
		SetMeta("transition_id", tr.ID).
		SetMeta("override", true)
	deny := func(err error) ([]string, error) {
		s.audit.Log(ctx, check.Fail(err))
		return nil, err
	}

	roles, err := s.content.GetUserRolesForContent(ctx, req.ContentUID, req.UserID)
	if err != nil {
		return deny(errs.Wrap(errs.KindExternalService, op, err, "failed to resolve user roles"))
	}
	check.SetMeta("user_roles", roles)
	if !s.mapper.CheckCompatibility(roles, role.Administrator) {
		s.logger.Warn().
			Str("content_uid", req.ContentUID).
			Str("transition_id", tr.ID).
			Str("user_id", req.UserID).
			Msg("permission override denied")
		return deny(errs.E(errs.KindPermissionDenied, op,
			fmt.Sprintf("user %s may not skip the permission check on %s", req.UserID, req.ContentUID)))
	}
	s.audit.Log(ctx, check.Succeed())
	return roles, nil
}

// UserPermissions lists the actions and transitions available to userID in the
// current state. Read-only.
func (s *Service) UserPermissions(ctx context.Context, contentUID, userID string) (*UserPermissions, error) {
	const op = "transition.UserPermissions"
	st, err := s.load(ctx, op, contentUID)
	if err != nil {
		return nil, err
	}
	roles, err := s.content.GetUserRolesForContent(ctx, contentUID, userID)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalService, op, err, "failed to resolve user roles")
	}

	held := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		held[r] = struct{}{}
	}
	actions := make(map[role.Action]struct{})
	grant := func(p workflow.Permission) {
		ext, err := s.mapper.ExternalRole(p.Role)
		if err != nil {
			return
		}
		if _, ok := held[ext]; !ok {
			return
		}
		for _, a := range p.Actions {
			actions[a] = struct{}{}
		}
	}
	if state := st.tpl.State(st.info.State); state != nil {
		for _, p := range state.Permissions {
			grant(p)
		}
	}
	for _, p := range st.tpl.DefaultPermissions {
		grant(p)
	}
	available := make([]role.Action, 0, len(actions))
	for a := range actions {
		available = append(available, a)
	}
	role.SortActions(available)

	transitions := []content.TransitionInfo{}
	if len(roles) > 0 {
		for _, candidate := range st.info.Transitions {
			ok, err := s.content.CanUserExecuteTransition(ctx, contentUID, candidate.ID, userID)
			if err != nil {
				s.logger.Warn().Err(err).
					Str("content_uid", contentUID).
					Str("transition_id", candidate.ID).
					Msg("permission check failed, hiding transition")
				continue
			}
			if ok {
				transitions = append(transitions, candidate)
			}
		}
	}

	if roles == nil {
		roles = []string{}
	}
	sort.Strings(roles)
	return &UserPermissions{
		ContentUID:           contentUID,
		TemplateID:           st.tpl.ID,
		CurrentState:         st.info.State,
		UserRoles:            roles,
		AvailableActions:     available,
		AvailableTransitions: transitions,
	}, nil
}

func uniqueUsers(users []string) map[string]struct{} {
	out := make(map[string]struct{}, len(users))
	for _, u := range users {
		if u != "" {
			out[u] = struct{}{}
		}
	}
	return out
}
