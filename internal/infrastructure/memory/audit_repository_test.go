package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/audit"
)

func TestAuditRepository_EntriesAreImmutableAfterAppend(t *testing.T) {
	repo := NewAuditRepository()
	ctx := context.Background()

	entry := audit.NewEntry(audit.OperationApplyTemplate, "admin", "doc-1").
		WithTemplate("simple_review").
		AddChange("state", "private", "draft").
		SetMeta("force", false).
		Fail(errors.New("role service unavailable"))
	require.NoError(t, repo.Append(ctx, entry))

	entry.Metadata["force"] = true
	entry.Metadata["injected"] = "x"
	entry.Changes[0].NewValue = "published"
	*entry.TemplateID = "other"
	*entry.Error = "rewritten"

	got, err := repo.Query(ctx, audit.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]interface{}{"force": false}, got[0].Metadata)
	assert.Equal(t, "draft", got[0].Changes[0].NewValue)
	assert.Equal(t, "simple_review", *got[0].TemplateID)
	assert.Equal(t, "role service unavailable", *got[0].Error)

	got[0].Metadata["force"] = true
	got[0].Changes[0].NewValue = "archived"

	again, err := repo.Query(ctx, audit.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, false, again[0].Metadata["force"])
	assert.Equal(t, "draft", again[0].Changes[0].NewValue)
	assert.Equal(t, 1, repo.Len())
}

func TestAuditRepository_QueryFilters(t *testing.T) {
	repo := NewAuditRepository()
	ctx := context.Background()
	require.NoError(t, repo.Append(ctx, audit.NewEntry(audit.OperationApplyTemplate, "admin", "doc-1").Succeed()))
	require.NoError(t, repo.Append(ctx, audit.NewEntry(audit.OperationRemoveTemplate, "admin", "doc-2").Succeed()))

	op := audit.OperationRemoveTemplate
	got, err := repo.Query(ctx, audit.QueryFilter{Operation: &op})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "doc-2", got[0].ContentUID)
}
