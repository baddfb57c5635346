package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/audit"
)

func parseAuditFilter(r *http.Request) (audit.QueryFilter, error) {
	q := r.URL.Query()
	var f audit.QueryFilter
	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid start: %w", err)
		}
		f.StartTime = &t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid end: %w", err)
		}
		f.EndTime = &t
	}
	if v := q.Get("user_id"); v != "" {
		f.UserID = &v
	}
	if v := q.Get("content_uid"); v != "" {
		f.ContentUID = &v
	}
	if v := q.Get("template_id"); v != "" {
		f.TemplateID = &v
	}
	if v := q.Get("operation"); v != "" {
		op := audit.OperationKind(v)
		if !op.Valid() {
			return f, fmt.Errorf("unknown operation %q", v)
		}
		f.Operation = &op
	}
	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid success: %w", err)
		}
		f.Success = &b
	}
	if v := q.Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("invalid limit: %w", err)
		}
		f.Limit = l
	}
	return f, nil
}

func (s *Server) queryAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	entries, err := s.auditSvc.Query(r.Context(), filter)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) auditSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	summary, err := s.auditSvc.Summary(r.Context(), filter)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"mappings":  s.mapper.Mappings(),
		"hierarchy": s.mapper.RoleHierarchy(),
	})
}
