package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	appWorkflow "github.com/curriculum-hub/curriculum-hub/internal/application/workflow"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/errs"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/role"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/workflow"
)

type applyTemplateRequest struct {
	ContentUID      string              `json:"contentUid" validate:"required"`
	RoleAssignments map[string][]string `json:"roleAssignments"`
	Force           bool                `json:"force,omitempty"`
}

type validateContentRequest struct {
	ContentUIDs []string `json:"contentUids" validate:"required,min=1,dive,required"`
}

type templateSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
	Category    string `json:"category,omitempty"`
	States      int    `json:"states"`
	Transitions int    `json:"transitions"`
}

func toInternalAssignments(in map[string][]string) map[role.Internal][]string {
	out := make(map[role.Internal][]string, len(in))
	for r, users := range in {
		out[role.Internal(strings.TrimSpace(r))] = users
	}
	return out
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	list := s.templates.List()
	out := make([]templateSummary, 0, len(list))
	for _, t := range list {
		out = append(out, templateSummary{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			Version:     t.Version,
			Category:    t.Category,
			States:      len(t.States),
			Transitions: len(t.Transitions),
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"templates": out})
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.templates.Get(chi.URLParam(r, "templateId"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"template":       tpl,
		"roleValidation": s.mapper.ValidateTemplateRoles(tpl),
	})
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl workflow.Template
	if err := decodeBody(r, &tpl); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if err := workflow.Validate(&tpl); err != nil {
		s.respondServiceError(w, errs.Wrap(errs.KindInvalidWorkflow, "httpapi.createTemplate", err, ""))
		return
	}
	roles := s.mapper.ValidateTemplateRoles(&tpl)
	if !roles.Valid {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":          string(errs.KindValidation),
			"message":        strings.Join(roles.Errors, "; "),
			"roleValidation": roles,
		})
		return
	}
	saved, err := s.templates.Save(r.Context(), tpl, userIDFromContext(r.Context()))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"template":       saved,
		"roleValidation": roles,
	})
}

func (s *Server) getPermissionMatrix(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.templates.Get(chi.URLParam(r, "templateId"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"templateId": tpl.ID,
		"matrix":     s.mapper.BuildPermissionMatrix(tpl),
	})
}

func (s *Server) applyTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.templates.Get(chi.URLParam(r, "templateId"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	var req applyTemplateRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	res, err := s.workflowSvc.Apply(r.Context(), appWorkflow.ApplyRequest{
		ContentUID:      req.ContentUID,
		Template:        tpl,
		RoleAssignments: toInternalAssignments(req.RoleAssignments),
		Force:           req.Force,
		UserID:          userIDFromContext(r.Context()),
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) validateTemplateForContent(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.templates.Get(chi.URLParam(r, "templateId"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	var req validateContentRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	res, err := s.bulkSvc.ValidateTemplateForContent(r.Context(), tpl, req.ContentUIDs, userIDFromContext(r.Context()))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
