package auditfile

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/audit"
)

func newRepo(t *testing.T) (*Repository, string) {
	t.Helper()
	dir := t.TempDir()
	r, err := New(Options{Dir: dir, MaxSizeMB: 1, MaxBackups: 3}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, dir
}

func TestRepository_ConcurrentAppendsStayWholeLines(t *testing.T) {
	r, dir := newRepo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := audit.NewEntry(audit.OperationExecuteTransition, fmt.Sprintf("u%d", i%5), fmt.Sprintf("doc-%d", i)).Succeed()
			e.AddChange("state", "draft", "review")
			assert.NoError(t, r.Append(ctx, e))
		}(i)
	}
	wg.Wait()

	f, err := os.Open(filepath.Join(dir, fileName))
	require.NoError(t, err)
	defer f.Close()
	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var raw map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &raw))
		assert.Contains(t, raw, "content_uid")
		lines++
	}
	assert.Equal(t, 50, lines)

	all, err := r.Query(ctx, audit.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 50)

	user := "u1"
	mine, err := r.Query(ctx, audit.QueryFilter{UserID: &user})
	require.NoError(t, err)
	assert.Len(t, mine, 10)
}

func TestRepository_QueryReadsRotatedFiles(t *testing.T) {
	r, dir := newRepo(t)
	ctx := context.Background()

	first := audit.NewEntry(audit.OperationApplyTemplate, "u1", "doc-1").WithTemplate("simple_review").Succeed()
	require.NoError(t, r.Append(ctx, first))
	require.NoError(t, r.out.Rotate())
	second := audit.NewEntry(audit.OperationRemoveTemplate, "u1", "doc-1").WithTemplate("simple_review").Succeed()
	require.NoError(t, r.Append(ctx, second))

	files, err := r.files()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(dir, fileName), files[1])

	got, err := r.Query(ctx, audit.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, audit.OperationApplyTemplate, got[0].Operation)
	assert.Equal(t, audit.OperationRemoveTemplate, got[1].Operation)
	assert.Equal(t, "simple_review", *got[1].TemplateID)
}

func TestRepository_SkipsMalformedLines(t *testing.T) {
	r, dir := newRepo(t)
	ctx := context.Background()
	require.NoError(t, r.Append(ctx, audit.NewEntry(audit.OperationPermissionCheck, "u1", "doc-1")))

	f, err := os.OpenFile(filepath.Join(dir, fileName), os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	since := time.Now().Add(-time.Minute)
	got, err := r.Query(ctx, audit.QueryFilter{StartTime: &since})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNew_RequiresDir(t *testing.T) {
	_, err := New(Options{}, zerolog.Nop())
	assert.Error(t, err)
}
