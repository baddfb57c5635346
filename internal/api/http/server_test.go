package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appAudit "github.com/curriculum-hub/curriculum-hub/internal/application/audit"
	appBulk "github.com/curriculum-hub/curriculum-hub/internal/application/bulk"
	"github.com/curriculum-hub/curriculum-hub/internal/application/registry"
	"github.com/curriculum-hub/curriculum-hub/internal/application/rolemap"
	appTransition "github.com/curriculum-hub/curriculum-hub/internal/application/transition"
	appWorkflow "github.com/curriculum-hub/curriculum-hub/internal/application/workflow"
	"github.com/curriculum-hub/curriculum-hub/internal/infrastructure/memory"
)

type routeRecorder struct {
	mu     sync.Mutex
	routes []string
}

func (r *routeRecorder) ObserveHTTP(method, route string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, method+" "+route)
}

type testEnv struct {
	handler  http.Handler
	system   *memory.ContentSystem
	recorder *routeRecorder
}

func newTestEnv(t *testing.T, authDisabled bool) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	system := memory.NewContentSystem()
	system.AddContent("doc-1", "Fractions unit", "simple_publication", "private")
	system.AddContent("doc-2", "Decimals unit", "simple_publication", "private")
	system.AddContent("doc-3", "Percentages unit", "simple_publication", "private")

	auditSvc := appAudit.NewService(memory.NewAuditRepository(), nil, logger)
	mapper := rolemap.NewMapper(logger)
	templates, err := registry.NewWithBuiltins(nil, logger)
	require.NoError(t, err)
	workflows := appWorkflow.NewService(system, mapper, auditSvc, logger)
	recorder := &routeRecorder{}

	srv := NewServer(Deps{
		Templates:    templates,
		Mapper:       mapper,
		Workflows:    workflows,
		Transitions:  appTransition.NewService(system, templates, mapper, auditSvc, logger),
		Bulk:         appBulk.NewService(workflows, system, mapper, auditSvc, nil, appBulk.Options{}, logger),
		Audit:        auditSvc,
		Metrics:      recorder,
		JWTSecret:    []byte("test-secret"),
		AuthDisabled: authDisabled,
		Logger:       logger,
	})
	return &testEnv{handler: srv.Router(), system: system, recorder: recorder}
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func signToken(t *testing.T, secret []byte, method jwt.SigningMethod, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

var scenarioAssignments = map[string][]string{"author": {"u1"}, "editor": {"e1"}}

func TestHealthzIsPublic(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_BearerToken(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/v1/templates", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for name, token := range map[string]string{
		"wrong secret": signToken(t, []byte("other"), jwt.SigningMethodHS256, "u1"),
		"no subject":   signToken(t, []byte("test-secret"), jwt.SigningMethodHS256, ""),
	} {
		req := httptest.NewRequest(http.MethodGet, "/v1/templates", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec = httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/templates", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, []byte("test-secret"), jwt.SigningMethodHS256, "u1"))
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["templates"], 3)
}

func TestAuth_DevHeader(t *testing.T) {
	env := newTestEnv(t, true)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/roles", "", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/roles", "admin", nil).Code)
}

func TestApplyAndTransition(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/v1/templates/simple_review/apply", "admin",
		map[string]interface{}{"contentUid": "doc-1", "roleAssignments": scenarioAssignments})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "draft", decode(t, rec)["initialState"])

	rec = env.do(t, http.MethodPost, "/v1/templates/simple_review/apply", "admin",
		map[string]interface{}{"contentUid": "doc-1", "roleAssignments": scenarioAssignments})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decode(t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/v1/content/doc-1/transitions", "u1", map[string]interface{}{"transitionId": "submit"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "review", decode(t, rec)["toState"])

	rec = env.do(t, http.MethodPost, "/v1/content/doc-1/transitions", "u1", map[string]interface{}{"transitionId": "approve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/content/doc-1/transitions", "u1",
		map[string]interface{}{"transitionId": "approve", "validatePermissions": false})
	assert.Equal(t, http.StatusForbidden, rec.Code, "only administrators may skip the permission check")

	rec = env.do(t, http.MethodGet, "/v1/content/doc-1/permissions", "e1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "review", decode(t, rec)["currentState"])

	rec = env.do(t, http.MethodGet, "/v1/content/doc-1/workflow", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/v1/content/doc-1/workflow", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info, err := env.system.GetWorkflowInfo(t.Context(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "simple_publication", info.WorkflowID)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/v1/templates/missing/apply", "admin", map[string]interface{}{"contentUid": "doc-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/templates/simple_review/apply", "admin", map[string]interface{}{"roleAssignments": scenarioAssignments})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/templates/simple_review/apply", "admin", map[string]interface{}{"contentUid": "doc-1", "bogus": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/templates/simple_review/apply", "admin",
		map[string]interface{}{"contentUid": "doc-1", "roleAssignments": map[string][]string{"janitor": {"x"}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", decode(t, rec)["error"])

	env.system.FailOn(memory.MethodGetContent, "doc-2", errors.New("backend down"))
	rec = env.do(t, http.MethodPost, "/v1/templates/simple_review/apply", "admin", map[string]interface{}{"contentUid": "doc-2"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/content/doc-1/transitions", "u1", map[string]interface{}{"transitionId": "submit", "contentUid": "doc-9"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTemplate(t *testing.T) {
	env := newTestEnv(t, true)
	tpl := map[string]interface{}{
		"id": "quick_check", "name": "Quick Check", "version": "1",
		"states": []map[string]interface{}{
			{"id": "draft", "title": "Draft", "type": "draft", "isInitial": true},
			{"id": "done", "title": "Done", "type": "published", "isFinal": true},
		},
		"transitions": []map[string]interface{}{
			{"id": "finish", "title": "Finish", "fromState": "draft", "toState": "done", "requiredRole": "editor"},
		},
	}

	rec := env.do(t, http.MethodPost, "/v1/templates", "admin", tpl)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/templates/quick_check/permission-matrix", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	tpl["version"] = "2"
	rec = env.do(t, http.MethodPost, "/v1/templates", "admin", tpl)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "CONFLICT", decode(t, rec)["error"])

	tpl["version"] = "1"
	tpl["id"] = "broken"
	tpl["states"] = []map[string]interface{}{{"id": "draft", "title": "Draft", "type": "draft"}}
	rec = env.do(t, http.MethodPost, "/v1/templates", "admin", tpl)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "INVALID_WORKFLOW", body["error"])
	assert.Contains(t, body["violations"], "no initial state")
}

func TestBulkAndAudit(t *testing.T) {
	env := newTestEnv(t, true)
	env.system.FailOn(memory.MethodAssignLocalRoles, "doc-3", errors.New("role service offline"))

	items := []map[string]interface{}{
		{"contentUid": "doc-1", "roleAssignments": scenarioAssignments},
		{"contentUid": "doc-2", "roleAssignments": scenarioAssignments},
		{"contentUid": "doc-3", "roleAssignments": scenarioAssignments},
	}
	rec := env.do(t, http.MethodPost, "/v1/bulk/apply", "admin",
		map[string]interface{}{"templateId": "simple_review", "items": items, "maxConcurrent": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 3, body["totalItems"])
	assert.EqualValues(t, 2, body["successfulCount"])
	assert.EqualValues(t, 1, body["failedCount"])

	rec = env.do(t, http.MethodGet, "/v1/audit?operation=bulk_apply", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	rec = env.do(t, http.MethodGet, "/v1/audit?operation=launch", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/audit/summary?success=false", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total_operations"])

	rec = env.do(t, http.MethodPost, "/v1/bulk/remove", "admin",
		map[string]interface{}{"contentUids": []string{"doc-1", "doc-2"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["successfulCount"])

	assert.Contains(t, env.recorder.routes, "POST /v1/bulk/apply")
}
