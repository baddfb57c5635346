package httpapi

import (
	"net/http"

	appBulk "github.com/curriculum-hub/curriculum-hub/internal/application/bulk"
)

type bulkApplyItem struct {
	ContentUID      string              `json:"contentUid" validate:"required"`
	RoleAssignments map[string][]string `json:"roleAssignments"`
	Force           bool                `json:"force,omitempty"`
}

type bulkApplyRequest struct {
	TemplateID    string          `json:"templateId" validate:"required"`
	Items         []bulkApplyItem `json:"items" validate:"required,min=1,dive"`
	MaxConcurrent int             `json:"maxConcurrent,omitempty" validate:"gte=0"`
}

type bulkRemoveRequest struct {
	ContentUIDs   []string `json:"contentUids" validate:"required,min=1,dive,required"`
	RestoreBackup *bool    `json:"restoreBackup,omitempty"`
	MaxConcurrent int      `json:"maxConcurrent,omitempty" validate:"gte=0"`
}

func (s *Server) bulkApply(w http.ResponseWriter, r *http.Request) {
	var req bulkApplyRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	tpl, err := s.templates.Get(req.TemplateID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	items := make([]appBulk.ApplyItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = appBulk.ApplyItem{
			ContentUID:      it.ContentUID,
			RoleAssignments: toInternalAssignments(it.RoleAssignments),
			Force:           it.Force,
		}
	}
	res, err := s.bulkSvc.BulkApply(r.Context(), appBulk.ApplyRequest{
		Template:      tpl,
		Items:         items,
		UserID:        userIDFromContext(r.Context()),
		MaxConcurrent: req.MaxConcurrent,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) bulkRemove(w http.ResponseWriter, r *http.Request) {
	var req bulkRemoveRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	restore := true
	if req.RestoreBackup != nil {
		restore = *req.RestoreBackup
	}
	res, err := s.bulkSvc.BulkRemove(r.Context(), appBulk.RemoveRequest{
		ContentUIDs:   req.ContentUIDs,
		RestoreBackup: restore,
		UserID:        userIDFromContext(r.Context()),
		MaxConcurrent: req.MaxConcurrent,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
