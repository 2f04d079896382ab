package management

import (
	"fmt"
	"net/http"

	"github.com/CaioWing/Tether/internal/api/response"
	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/service"
)

type AuditHandler struct {
	auditSvc *service.AuditService
}

func NewAuditHandler(auditSvc *service.AuditService) *AuditHandler {
	return &AuditHandler{auditSvc: auditSvc}
}

// List serves the audit trail. Deployment transitions are recorded with
// resource=deployment, so ?resource_id=<deployment id> returns one run's
// history.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := response.ParsePagination(r)
	filter := domain.AuditFilter{Page: page, PerPage: perPage}

	q := r.URL.Query()
	for param, dst := range map[string]**string{
		"actor":       &filter.Actor,
		"action":      &filter.Action,
		"resource":    &filter.Resource,
		"resource_id": &filter.ResourceID,
	} {
		if v := q.Get(param); v != "" {
			*dst = &v
		}
	}

	switch order := q.Get("order"); order {
	case "", "asc", "desc":
		filter.SortOrder = order
	default:
		response.ServiceError(w, fmt.Errorf("%w: order must be asc or desc", domain.ErrInvalidInput), "", "failed to list audit log")
		return
	}

	entries, total, err := h.auditSvc.List(r.Context(), filter)
	if err != nil {
		response.ServiceError(w, err, "audit log not found", "failed to list audit log")
		return
	}

	response.Paginated(w, http.StatusOK, entries, page, perPage, total)
}
