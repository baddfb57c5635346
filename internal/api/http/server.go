package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	appAudit "github.com/curriculum-hub/curriculum-hub/internal/application/audit"
	appBulk "github.com/curriculum-hub/curriculum-hub/internal/application/bulk"
	"github.com/curriculum-hub/curriculum-hub/internal/application/registry"
	"github.com/curriculum-hub/curriculum-hub/internal/application/rolemap"
	appTransition "github.com/curriculum-hub/curriculum-hub/internal/application/transition"
	appWorkflow "github.com/curriculum-hub/curriculum-hub/internal/application/workflow"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/errs"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/workflow"
)

// HTTPRecorder receives per-request measurements.
type HTTPRecorder interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// Deps are the services exposed over HTTP.
type Deps struct {
	Templates   *registry.Registry
	Mapper      *rolemap.Mapper
	Workflows   *appWorkflow.Service
	Transitions *appTransition.Service
	Bulk        *appBulk.Service
	Audit       *appAudit.Service

	// Optional.
	Metrics        HTTPRecorder
	MetricsHandler http.Handler

	JWTSecret    []byte
	AuthDisabled bool
	Logger       zerolog.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	templates      *registry.Registry
	mapper         *rolemap.Mapper
	workflowSvc    *appWorkflow.Service
	transitionSvc  *appTransition.Service
	bulkSvc        *appBulk.Service
	auditSvc       *appAudit.Service
	metrics        HTTPRecorder
	metricsHandler http.Handler
	jwtSecret      []byte
	authDisabled   bool
	validate       *validator.Validate
	logger         zerolog.Logger
}

func NewServer(d Deps) *Server {
	return &Server{
		templates:      d.Templates,
		mapper:         d.Mapper,
		workflowSvc:    d.Workflows,
		transitionSvc:  d.Transitions,
		bulkSvc:        d.Bulk,
		auditSvc:       d.Audit,
		metrics:        d.Metrics,
		metricsHandler: d.MetricsHandler,
		jwtSecret:      d.JWTSecret,
		authDisabled:   d.AuthDisabled,
		validate:       validator.New(),
		logger:         d.Logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.listTemplates)
			r.Post("/", s.createTemplate)
			r.Get("/{templateId}", s.getTemplate)
			r.Get("/{templateId}/permission-matrix", s.getPermissionMatrix)
			r.Post("/{templateId}/apply", s.applyTemplate)
			r.Post("/{templateId}/validate", s.validateTemplateForContent)
		})

		r.Route("/bulk", func(r chi.Router) {
			r.Post("/apply", s.bulkApply)
			r.Post("/remove", s.bulkRemove)
		})

		r.Route("/content/{contentUid}", func(r chi.Router) {
			r.Get("/workflow", s.getContentWorkflow)
			r.Delete("/workflow", s.removeTemplate)
			r.Post("/transitions", s.executeTransition)
			r.Get("/permissions", s.getUserPermissions)
		})

		r.Get("/audit", s.queryAudit)
		r.Get("/audit/summary", s.auditSummary)
		r.Get("/roles", s.listRoles)
	})

	return r
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondServiceError maps an error kind to its status code.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case errs.KindInvalidWorkflow, errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindConflict:
		status = http.StatusConflict
	case errs.KindPermissionDenied:
		status = http.StatusForbidden
	case errs.KindExternalService:
		status = http.StatusBadGateway
	}
	body := map[string]interface{}{
		"error":   string(kind),
		"message": err.Error(),
	}
	var invalid *workflow.InvalidWorkflowError
	if errors.As(err, &invalid) {
		body["violations"] = invalid.Violations
	}
	var rb *errs.RollbackError
	if errors.As(err, &rb) {
		body["rollbackError"] = rb.Rollback.Error()
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	respondJSON(w, status, body)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeAndValidate decodes the body and runs validator tags on it.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := decodeBody(r, v); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		respondError(w, http.StatusBadRequest, string(errs.KindValidation), err.Error())
		return false
	}
	return true
}

func parseOptionalBool(r *http.Request, key string, def bool) (bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}
