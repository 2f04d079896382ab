package management

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/CaioWing/Tether/internal/api/response"
	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/service"
)

type DeploymentHandler struct {
	deploySvc    *service.DeploymentService
	orchestrator *service.Orchestrator
}

func NewDeploymentHandler(deploySvc *service.DeploymentService, orchestrator *service.Orchestrator) *DeploymentHandler {
	return &DeploymentHandler{deploySvc: deploySvc, orchestrator: orchestrator}
}

type createDeploymentRequest struct {
	PayloadID string `json:"payload_id"`
	DeviceID  string `json:"device_id"`
	// Run starts the deployment immediately after creating it.
	Run bool `json:"run"`
}

func (h *DeploymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payloadID, err := uuid.Parse(req.PayloadID)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid payload_id")
		return
	}
	deviceID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid device_id")
		return
	}

	deployment, err := h.deploySvc.Create(r.Context(), service.CreateDeploymentInput{
		PayloadID: payloadID,
		DeviceID:  deviceID,
	})
	if err != nil {
		response.ServiceError(w, err, "payload or device not found", "failed to create deployment")
		return
	}

	if req.Run {
		if err := h.orchestrator.Start(r.Context(), deployment.ID); err != nil {
			response.ServiceError(w, err, "deployment not found", "failed to start deployment")
			return
		}
		w.Header().Set("Location", "/api/v1/management/deployments/"+deployment.ID.String())
		response.Accepted(w, deployment)
		return
	}

	response.JSON(w, http.StatusCreated, deployment)
}

func (h *DeploymentHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := response.ParsePagination(r)
	q := r.URL.Query()

	filter := domain.DeploymentFilter{
		Page:      page,
		PerPage:   perPage,
		SortBy:    q.Get("sort"),
		SortOrder: q.Get("order"),
	}

	if s := q.Get("status"); s != "" {
		status := domain.DeploymentStatus(s)
		filter.Status = &status
	}
	for key, dst := range map[string]**uuid.UUID{"device_id": &filter.DeviceID, "payload_id": &filter.PayloadID} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "invalid "+key)
			return
		}
		*dst = &id
	}

	deployments, total, err := h.deploySvc.List(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to list deployments")
		return
	}

	response.Paginated(w, http.StatusOK, deployments, page, perPage, total)
}

func (h *DeploymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid deployment id")
		return
	}

	deployment, err := h.deploySvc.GetByID(r.Context(), id)
	if err != nil {
		response.ServiceError(w, err, "deployment not found", "failed to get deployment")
		return
	}

	response.JSON(w, http.StatusOK, struct {
		*domain.Deployment
		Running bool `json:"running"`
	}{deployment, h.orchestrator.Running(id)})
}

// Run starts a pending deployment in the background and answers 202. The
// device claim happens before the response, so a busy device is a 409.
func (h *DeploymentHandler) Run(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid deployment id")
		return
	}

	if err := h.orchestrator.Start(r.Context(), id); err != nil {
		response.ServiceError(w, err, "deployment not found", "failed to start deployment")
		return
	}

	w.Header().Set("Location", "/api/v1/management/deployments/"+id.String())
	response.Accepted(w, map[string]string{"id": id.String(), "status": "started"})
}

func (h *DeploymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid deployment id")
		return
	}

	if err := h.orchestrator.Cancel(r.Context(), id); err != nil {
		response.ServiceError(w, err, "deployment not found", "failed to cancel deployment")
		return
	}

	response.NoContent(w)
}

func (h *DeploymentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deploySvc.GetStats(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	response.JSON(w, http.StatusOK, stats)
}
