package transition

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appaudit "github.com/curriculum-hub/curriculum-hub/internal/application/audit"
	"github.com/curriculum-hub/curriculum-hub/internal/application/registry"
	"github.com/curriculum-hub/curriculum-hub/internal/application/rolemap"
	appworkflow "github.com/curriculum-hub/curriculum-hub/internal/application/workflow"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/audit"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/content"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/errs"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/role"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/workflow"
	"github.com/curriculum-hub/curriculum-hub/internal/infrastructure/memory"
)

type fixture struct {
	svc       *Service
	workflows *appworkflow.Service
	templates *registry.Registry
	system    *memory.ContentSystem
	auditLog  *memory.AuditRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	system := memory.NewContentSystem()
	system.AddContent("doc-1", "Fractions unit", "simple_publication", "private")
	repo := memory.NewAuditRepository()
	auditSvc := appaudit.NewService(repo, nil, zerolog.Nop())
	mapper := rolemap.NewMapper(zerolog.Nop())
	templates, err := registry.NewWithBuiltins(nil, zerolog.Nop())
	require.NoError(t, err)
	return &fixture{
		svc:       NewService(system, templates, mapper, auditSvc, zerolog.Nop()),
		workflows: appworkflow.NewService(system, mapper, auditSvc, zerolog.Nop()),
		templates: templates,
		system:    system,
		auditLog:  repo,
	}
}

func (f *fixture) apply(t *testing.T, templateID string, roles map[role.Internal][]string) {
	t.Helper()
	tpl, err := f.templates.Get(templateID)
	require.NoError(t, err)
	_, err = f.workflows.Apply(context.Background(), appworkflow.ApplyRequest{
		ContentUID: "doc-1", Template: tpl, RoleAssignments: roles, UserID: "admin",
	})
	require.NoError(t, err)
}

func (f *fixture) state(t *testing.T) string {
	t.Helper()
	info, err := f.system.GetWorkflowInfo(context.Background(), "doc-1")
	require.NoError(t, err)
	return info.State
}

func (f *fixture) metadata(t *testing.T) *content.TemplateMetadata {
	t.Helper()
	sum, err := f.system.GetContentByUID(context.Background(), "doc-1")
	require.NoError(t, err)
	meta, err := sum.TemplateMetadata()
	require.NoError(t, err)
	return meta
}

func (f *fixture) entries(t *testing.T, op audit.OperationKind, success bool) []*audit.AuditEntry {
	t.Helper()
	out, err := f.auditLog.Query(context.Background(), audit.QueryFilter{Operation: &op, Success: &success})
	require.NoError(t, err)
	return out
}

func simpleRoles() map[role.Internal][]string {
	return map[role.Internal][]string{
		role.Author: {"u1"},
		role.Editor: {"e1"},
	}
}

func TestExecute_SubmitThenApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.apply(t, workflow.TemplateSimpleReview, simpleRoles())

	res, err := f.svc.Execute(ctx, ExecuteRequest{ContentUID: "doc-1", TransitionID: "submit", UserID: "u1", Comments: "ready"})
	require.NoError(t, err)
	assert.Equal(t, "draft", res.FromState)
	assert.Equal(t, "review", res.ToState)
	assert.Equal(t, "u1", res.HistoryEntry.Actor)
	assert.Empty(t, res.Warnings)

	res, err = f.svc.Execute(ctx, ExecuteRequest{ContentUID: "doc-1", TransitionID: "approve", UserID: "e1"})
	require.NoError(t, err)
	assert.Equal(t, "published", res.ToState)
	assert.Equal(t, "published", f.state(t))

	meta := f.metadata(t)
	require.Len(t, meta.History, 2)
	assert.Equal(t, "submit", meta.History[0].Action)
	assert.Equal(t, "ready", meta.History[0].Comments)
	assert.Equal(t, "e1", meta.History[1].Actor)

	executed := f.entries(t, audit.OperationExecuteTransition, true)
	require.Len(t, executed, 2)
	require.NotNil(t, executed[0].TemplateID)
	assert.Equal(t, workflow.TemplateSimpleReview, *executed[0].TemplateID)
	assert.Equal(t, []audit.Change{{Field: "state", OldValue: "draft", NewValue: "review"}}, executed[0].Changes)
	assert.Len(t, f.entries(t, audit.OperationPermissionCheck, true), 2)
}

func TestExecute_PermissionDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.apply(t, workflow.TemplateSimpleReview, simpleRoles())
	_, err := f.svc.Execute(ctx, ExecuteRequest{ContentUID: "doc-1", TransitionID: "submit", UserID: "u1"})
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, ExecuteRequest{ContentUID: "doc-1", TransitionID: "approve", UserID: "u1"})

	assert.Equal(t, errs.KindPermissionDenied, errs.KindOf(err))
	assert.Equal(t, "review", f.state(t))
	assert.Len(t, f.metadata(t).History, 1)

	denied := f.entries(t, audit.OperationPermissionCheck, false)
	require.Len(t, denied, 1)
	assert.Equal(t, "u1", denied[0].UserID)
	assert.Equal(t, "approve", denied[0].Metadata["transition_id"])
	assert.Len(t, f.entries(t, audit.OperationExecuteTransition, false), 1)
}

func TestExecute_UserWithoutRolesIsDenied(t *testing.T) {
	f := newFixture(t)
	f.apply(t, workflow.TemplateSimpleReview, simpleRoles())

	_, err := f.svc.Execute(context.Background(), ExecuteRequest{ContentUID: "doc-1", TransitionID: "submit", UserID: "stranger"})

	assert.Equal(t, errs.KindPermissionDenied, errs.KindOf(err))
	assert.Equal(t, "draft", f.state(t))
}

func TestExecute_ManagerMayRunAnyTransition(t *testing.T) {
	f := newFixture(t)
	f.apply(t, workflow.TemplateSimpleReview, simpleRoles())
	f.system.GrantGlobalRole("boss", role.ExternalManager)

	res, err := f.svc.Execute(context.Background(), ExecuteRequest{ContentUID: "doc-1", TransitionID: "submit", UserID: "boss"})

	require.NoError(t, err)
	assert.Equal(t, "review", res.ToState)
}

func TestExecute_SkipPermissionCheck(t *testing.T) {
	f := newFixture(t)
	f.apply(t, workflow.TemplateSimpleReview, simpleRoles())
	f.system.GrantGlobalRole("system", role.ExternalManager)
	f.system.FailOn(memory.MethodCanExecute, "doc-1", errors.New("guard must not be consulted"))

	_, err := f.svc.Execute(context.Background(), ExecuteRequest{
		ContentUID: "doc-1", TransitionID: "submit", UserID: "system", SkipPermissionCheck: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "review", f.state(t))
	checks := f.entries(t, audit.OperationPermissionCheck, true)
	require.Len(t, checks, 1)
	assert.Equal(t, true, checks[0].Metadata["override"])
}

func TestExecute_SkipPermissionCheckRequiresAdministrator(t *testing.T) {
	ctx := context.Background()

	for _, userID := range []string{"u1", "e1", "stranger"} {
		t.Run(userID, func(t *testing.T) {
			f := newFixture(t)
			f.apply(t, workflow.TemplateSimpleReview, simpleRoles())

			_, err := f.svc.Execute(ctx, ExecuteRequest{
				ContentUID: "doc-1", TransitionID: "submit", UserID: userID, SkipPermissionCheck: true,
			})

			assert.Equal(t, errs.KindPermissionDenied, errs.KindOf(err))
			assert.Equal(t, "draft", f.state(t))
			denied := f.entries(t, audit.OperationPermissionCheck, false)
			require.Len(t, denied, 1)
			assert.Equal(t, true, denied[0].Metadata["override"])
		})
	}
}

func TestExecute_InvalidRequests(t *testing.T) {
	ctx := context.Background()

	t.Run("no template applied", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Execute(ctx, ExecuteRequest{ContentUID: "doc-1", TransitionID: "submit", UserID: "u1"})
		assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
	})

	t.Run("unknown content", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Execute(ctx, ExecuteRequest{ContentUID: "missing", TransitionID: "submit", UserID: "u1"})
		assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
	})

	t.Run("unknown transition", func(t *testing.T) {
		f := newFixture(t)
		f.apply(t, workflow.TemplateSimpleReview, simpleRoles())
		_, err := f.svc.Execute(ctx, ExecuteRequest{ContentUID: "doc-1", TransitionID: "teleport", UserID: "u1"})
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	})

	t.Run("transition from another state", func(t *testing.T) {
		f := newFixture(t)
		f.apply(t, workflow.TemplateSimpleReview, simpleRoles())
		_, err := f.svc.Execute(ctx, ExecuteRequest{ContentUID: "doc-1", TransitionID: "approve", UserID: "e1"})
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))
		assert.Equal(t, "draft", f.state(t))
	})

	t.Run("content system failure", func(t *testing.T) {
		f := newFixture(t)
		f.apply(t, workflow.TemplateSimpleReview, simpleRoles())
		f.system.FailOn(memory.MethodExecute, "doc-1", errors.New("backend down"))
		_, err := f.svc.Execute(ctx, ExecuteRequest{ContentUID: "doc-1", TransitionID: "submit", UserID: "u1"})
		assert.Equal(t, errs.KindExternalService, errs.KindOf(err))
		assert.Empty(t, f.metadata(t).History)
	})
}

func TestExecute_HistoryWriteFailureIsAWarning(t *testing.T) {
	f := newFixture(t)
	f.apply(t, workflow.TemplateSimpleReview, simpleRoles())
	f.system.FailOn(memory.MethodUpdateMetadata, "doc-1", errors.New("metadata store read-only"))

	res, err := f.svc.Execute(context.Background(), ExecuteRequest{ContentUID: "doc-1", TransitionID: "submit", UserID: "u1"})

	require.NoError(t, err)
	assert.Equal(t, []string{"transition history was not recorded"}, res.Warnings)
	assert.Equal(t, "review", f.state(t))
}

// removeDuringTransition drops the template record right after the content
// system performs the transition, as a concurrent Remove would.
type removeDuringTransition struct {
	content.System
}

func (r *removeDuringTransition) ExecuteWorkflowTransition(ctx context.Context, uid, transitionID, comments string) (*content.TransitionOutcome, error) {
	out, err := r.System.ExecuteWorkflowTransition(ctx, uid, transitionID, comments)
	if err != nil {
		return nil, err
	}
	return out, r.System.UpdateContentMetadata(ctx, uid, map[string]interface{}{content.MetadataKey: nil})
}

func TestExecute_HistoryDoesNotResurrectRemovedRecord(t *testing.T) {
	f := newFixture(t)
	f.apply(t, workflow.TemplateSimpleReview, simpleRoles())
	svc := NewService(&removeDuringTransition{System: f.system}, f.templates, rolemap.NewMapper(zerolog.Nop()),
		appaudit.NewService(f.auditLog, nil, zerolog.Nop()), zerolog.Nop())

	res, err := svc.Execute(context.Background(), ExecuteRequest{ContentUID: "doc-1", TransitionID: "submit", UserID: "u1"})

	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "removed or replaced")
	assert.Nil(t, f.metadata(t))
}

func TestExecute_CurriculumConditions(t *testing.T) {
	ctx := context.Background()
	submit := func(t *testing.T, f *fixture) {
		t.Helper()
		_, err := f.svc.Execute(ctx, ExecuteRequest{ContentUID: "doc-1", TransitionID: "submit", UserID: "u1"})
		require.NoError(t, err)
	}

	t.Run("endorse needs comments", func(t *testing.T) {
		f := newFixture(t)
		f.apply(t, workflow.TemplateCurriculumApproval, map[role.Internal][]string{
			role.Author:   {"u1"},
			role.Reviewer: {"r1", "r2"},
		})
		submit(t, f)

		_, err := f.svc.Execute(ctx, ExecuteRequest{ContentUID: "doc-1", TransitionID: "endorse", UserID: "r1"})
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))
		assert.Equal(t, "peer_review", f.state(t))

		res, err := f.svc.Execute(ctx, ExecuteRequest{ContentUID: "doc-1", TransitionID: "endorse", UserID: "r1", Comments: "sound pedagogy"})
		require.NoError(t, err)
		assert.Equal(t, "committee_review", res.ToState)
	})

	t.Run("endorse needs two reviewers", func(t *testing.T) {
		f := newFixture(t)
		f.apply(t, workflow.TemplateCurriculumApproval, map[role.Internal][]string{
			role.Author:   {"u1"},
			role.Reviewer: {"r1"},
		})
		submit(t, f)

		_, err := f.svc.Execute(ctx, ExecuteRequest{ContentUID: "doc-1", TransitionID: "endorse", UserID: "r1", Comments: "ok"})
		require.Error(t, err)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))
		assert.Contains(t, err.Error(), "at least 2 reviewers")
	})
}

func TestUserPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.apply(t, workflow.TemplateSimpleReview, simpleRoles())

	author, err := f.svc.UserPermissions(ctx, "doc-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "draft", author.CurrentState)
	assert.Equal(t, []string{role.ExternalOwner}, author.UserRoles)
	assert.Equal(t, []role.Action{role.ActionEdit, role.ActionSubmit, role.ActionView}, author.AvailableActions)
	require.Len(t, author.AvailableTransitions, 1)
	assert.Equal(t, "submit", author.AvailableTransitions[0].ID)

	editor, err := f.svc.UserPermissions(ctx, "doc-1", "e1")
	require.NoError(t, err)
	assert.Empty(t, editor.AvailableActions)
	assert.Empty(t, editor.AvailableTransitions)

	stranger, err := f.svc.UserPermissions(ctx, "doc-1", "nobody")
	require.NoError(t, err)
	assert.Equal(t, []string{}, stranger.UserRoles)
	assert.Empty(t, stranger.AvailableTransitions)
}
