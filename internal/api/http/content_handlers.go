package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	appTransition "github.com/curriculum-hub/curriculum-hub/internal/application/transition"
	appWorkflow "github.com/curriculum-hub/curriculum-hub/internal/application/workflow"
)

type transitionRequest struct {
	ContentUID          string `json:"contentUid,omitempty"`
	TransitionID        string `json:"transitionId" validate:"required"`
	Comments            string `json:"comments,omitempty" validate:"max=4000"`
	ValidatePermissions *bool  `json:"validatePermissions,omitempty"`
}

func (s *Server) getContentWorkflow(w http.ResponseWriter, r *http.Request) {
	status, err := s.workflowSvc.Status(r.Context(), chi.URLParam(r, "contentUid"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) removeTemplate(w http.ResponseWriter, r *http.Request) {
	restore, err := parseOptionalBool(r, "restore_backup", true)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid restore_backup")
		return
	}
	res, err := s.workflowSvc.Remove(r.Context(), appWorkflow.RemoveRequest{
		ContentUID:    chi.URLParam(r, "contentUid"),
		RestoreBackup: restore,
		UserID:        userIDFromContext(r.Context()),
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) executeTransition(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "contentUid")
	var req transitionRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if req.ContentUID != "" && req.ContentUID != uid {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "contentUid does not match the path")
		return
	}
	validate := true
	if req.ValidatePermissions != nil {
		validate = *req.ValidatePermissions
	}
	res, err := s.transitionSvc.Execute(r.Context(), appTransition.ExecuteRequest{
		ContentUID:          uid,
		TransitionID:        req.TransitionID,
		UserID:              userIDFromContext(r.Context()),
		Comments:            req.Comments,
		SkipPermissionCheck: !validate,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) getUserPermissions(w http.ResponseWriter, r *http.Request) {
	res, err := s.transitionSvc.UserPermissions(r.Context(), chi.URLParam(r, "contentUid"), userIDFromContext(r.Context()))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
