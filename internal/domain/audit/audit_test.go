package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryFilter_Matches(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := NewEntry(OperationApplyTemplate, "u1", "doc-1").WithTemplate("simple_review").Succeed()
	entry.Timestamp = base

	before := base.Add(-time.Hour)
	after := base.Add(time.Hour)
	user := "u1"
	other := "u2"
	tpl := "simple_review"
	op := OperationRemoveTemplate
	failed := false

	assert.True(t, QueryFilter{}.Matches(entry))
	assert.True(t, QueryFilter{StartTime: &base, EndTime: &base}.Matches(entry))
	assert.True(t, QueryFilter{StartTime: &before, EndTime: &after, UserID: &user, TemplateID: &tpl}.Matches(entry))
	assert.False(t, QueryFilter{StartTime: &after}.Matches(entry))
	assert.False(t, QueryFilter{EndTime: &before}.Matches(entry))
	assert.False(t, QueryFilter{UserID: &other}.Matches(entry))
	assert.False(t, QueryFilter{Operation: &op}.Matches(entry))
	assert.False(t, QueryFilter{Success: &failed}.Matches(entry))

	noTemplate := NewEntry(OperationPermissionCheck, "u1", "doc-1")
	assert.False(t, QueryFilter{TemplateID: &tpl}.Matches(noTemplate))
}

func TestSummarize(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := []*AuditEntry{
		NewEntry(OperationApplyTemplate, "u1", "a").WithTemplate("simple_review").Succeed(),
		NewEntry(OperationApplyTemplate, "u2", "b").WithTemplate("editorial_review").Fail(errors.New("boom")),
		NewEntry(OperationExecuteTransition, "u1", "a").WithTemplate("simple_review").Succeed(),
		NewEntry(OperationPermissionCheck, "u3", "a").Fail(nil),
	}
	for i, e := range entries {
		e.Timestamp = t0.Add(time.Duration(i) * time.Minute)
	}

	s := Summarize(entries)

	assert.Equal(t, 4, s.TotalOperations)
	assert.Equal(t, 2, s.SuccessfulOperations)
	assert.Equal(t, 2, s.FailedOperations)
	assert.InDelta(t, 50.0, s.SuccessRate, 0.001)
	assert.Equal(t, 2, s.OperationsByType[OperationApplyTemplate])
	assert.Equal(t, 3, s.UniqueUsers)
	assert.Equal(t, 2, s.UniqueTemplates)
	require.NotNil(t, s.Start)
	require.NotNil(t, s.End)
	assert.Equal(t, t0, *s.Start)
	assert.Equal(t, t0.Add(3*time.Minute), *s.End)
	require.NotNil(t, entries[1].Error)
	assert.Equal(t, "boom", *entries[1].Error)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)

	assert.Zero(t, s.TotalOperations)
	assert.Zero(t, s.SuccessRate)
	assert.Nil(t, s.Start)
}
