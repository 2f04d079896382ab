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

type DeviceHandler struct {
	deviceSvc *service.DeviceService
}

func NewDeviceHandler(deviceSvc *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceSvc: deviceSvc}
}

type registerDeviceRequest struct {
	Name           string `json:"name"`
	ConnectionType string `json:"connection_type"`
	IPAddress      string `json:"ip_address"`
	SerialPort     string `json:"serial_port"`
}

func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	device, err := h.deviceSvc.Register(r.Context(), service.RegisterDeviceInput{
		Name:           req.Name,
		ConnectionType: domain.ConnectionType(req.ConnectionType),
		IPAddress:      req.IPAddress,
		SerialPort:     req.SerialPort,
	})
	if err != nil {
		response.ServiceError(w, err, "device not found", "failed to register device")
		return
	}

	response.JSON(w, http.StatusCreated, device)
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := response.ParsePagination(r)
	q := r.URL.Query()

	filter := domain.DeviceFilter{
		Page:      page,
		PerPage:   perPage,
		SortBy:    q.Get("sort"),
		SortOrder: q.Get("order"),
	}

	if s := q.Get("status"); s != "" {
		status := domain.DeviceStatus(s)
		filter.Status = &status
	}
	if ct := q.Get("connection_type"); ct != "" {
		connType := domain.ConnectionType(ct)
		filter.ConnectionType = &connType
	}

	devices, total, err := h.deviceSvc.List(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to list devices")
		return
	}

	response.Paginated(w, http.StatusOK, devices, page, perPage, total)
}

func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid device id")
		return
	}

	device, err := h.deviceSvc.GetByID(r.Context(), id)
	if err != nil {
		response.ServiceError(w, err, "device not found", "failed to get device")
		return
	}

	response.JSON(w, http.StatusOK, device)
}

type updateDeviceRequest struct {
	Name       *string `json:"name"`
	IPAddress  *string `json:"ip_address"`
	SerialPort *string `json:"serial_port"`
}

// Update changes name or transport address. A busy device is refused with 409.
func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid device id")
		return
	}

	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	device, err := h.deviceSvc.Update(r.Context(), id, service.UpdateDeviceInput{
		Name:       req.Name,
		IPAddress:  req.IPAddress,
		SerialPort: req.SerialPort,
	})
	if err != nil {
		response.ServiceError(w, err, "device not found", "failed to update device")
		return
	}

	response.JSON(w, http.StatusOK, device)
}

func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid device id")
		return
	}

	if err := h.deviceSvc.Delete(r.Context(), id); err != nil {
		response.ServiceError(w, err, "device not found", "failed to delete device")
		return
	}

	response.NoContent(w)
}

func (h *DeviceHandler) Count(w http.ResponseWriter, r *http.Request) {
	counts, err := h.deviceSvc.CountByStatus(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to count devices")
		return
	}

	response.JSON(w, http.StatusOK, counts)
}
