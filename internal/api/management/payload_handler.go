package management

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/CaioWing/Tether/internal/api/response"
	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/service"
)

type PayloadHandler struct {
	payloadSvc *service.PayloadService
}

func NewPayloadHandler(payloadSvc *service.PayloadService) *PayloadHandler {
	return &PayloadHandler{payloadSvc: payloadSvc}
}

func (h *PayloadHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := response.ParsePagination(r)
	q := r.URL.Query()

	filter := domain.PayloadFilter{
		Page:      page,
		PerPage:   perPage,
		SortBy:    q.Get("sort"),
		SortOrder: q.Get("order"),
	}
	if name := q.Get("name"); name != "" {
		filter.Name = &name
	}

	payloads, total, err := h.payloadSvc.List(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to list payloads")
		return
	}

	response.Paginated(w, http.StatusOK, payloads, page, perPage, total)
}

func (h *PayloadHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid payload id")
		return
	}

	payload, err := h.payloadSvc.GetByID(r.Context(), id)
	if err != nil {
		response.ServiceError(w, err, "payload not found", "failed to get payload")
		return
	}

	response.JSON(w, http.StatusOK, payload)
}

// Upload stores a new payload version from a multipart form with fields
// name, version, description and the script under "script".
func (h *PayloadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxScriptSize+64<<10)
	if err := r.ParseMultipartForm(service.MaxScriptSize); err != nil {
		response.Error(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, _, err := r.FormFile("script")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "script is required")
		return
	}
	defer file.Close()

	payload, err := h.payloadSvc.Create(r.Context(), service.CreatePayloadInput{
		Name:        r.FormValue("name"),
		Version:     r.FormValue("version"),
		Description: r.FormValue("description"),
		Script:      file,
	})
	if err != nil {
		response.ServiceError(w, err, "payload not found", "failed to create payload")
		return
	}

	response.JSON(w, http.StatusCreated, payload)
}

func (h *PayloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid payload id")
		return
	}

	reader, payload, err := h.payloadSvc.OpenScript(r.Context(), id)
	if err != nil {
		response.ServiceError(w, err, "payload not found", "failed to open payload")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.sh"`, payload.Name, payload.Version))
	w.Header().Set("X-Checksum-SHA256", payload.ChecksumSHA256)
	w.Header().Set("Content-Length", strconv.FormatInt(payload.Size, 10))
	io.Copy(w, reader)
}

// Delete refuses with 409 while any deployment references the payload.
func (h *PayloadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid payload id")
		return
	}

	if err := h.payloadSvc.Delete(r.Context(), id); err != nil {
		response.ServiceError(w, err, "payload not found", "failed to delete payload")
		return
	}

	response.NoContent(w)
}
