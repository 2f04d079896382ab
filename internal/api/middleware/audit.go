package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/service"
)

const managementPrefix = "/api/v1/management/"

// AuditLog returns a middleware that records successful mutating
// management API actions.
func AuditLog(auditSvc *service.AuditService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				return
			}
			if rw.status >= 400 {
				return
			}

			action, resource := classifyRequest(r.Method, r.URL.Path)
			if action == "" {
				return
			}

			actor := "anonymous"
			if op := Operator(r.Context()); op != "" {
				actor = op
			}

			entry := &domain.AuditEntry{
				Actor:     actor,
				ActorType: domain.ActorManagement,
				Action:    action,
				Resource:  resource,
				IPAddress: r.RemoteAddr,
				Details:   map[string]any{"method": r.Method, "path": r.URL.Path, "status": rw.status},
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				entry.ResourceID = rctx.URLParam("id")
			}

			auditSvc.Log(r.Context(), entry)
		})
	}
}

func classifyRequest(method, path string) (action, resource string) {
	p := strings.TrimPrefix(path, managementPrefix)
	p = strings.TrimPrefix(p, "ops/")

	switch {
	case strings.HasPrefix(p, "devices") && method == http.MethodPost:
		return "device.register", "device"
	case strings.HasPrefix(p, "devices") && method == http.MethodPatch:
		return "device.update", "device"
	case strings.HasPrefix(p, "devices") && method == http.MethodDelete:
		return "device.delete", "device"
	case strings.HasPrefix(p, "payloads") && method == http.MethodPost:
		return "payload.upload", "payload"
	case strings.HasPrefix(p, "payloads") && method == http.MethodDelete:
		return "payload.delete", "payload"
	case strings.HasPrefix(p, "deployments") && strings.HasSuffix(p, "/cancel"):
		return "deployment.cancel", "deployment"
	case strings.HasPrefix(p, "deployments") && (strings.HasSuffix(p, "/run") || strings.HasSuffix(p, "/deploy")):
		return "deployment.run", "deployment"
	case strings.HasPrefix(p, "deployments") && method == http.MethodPost:
		return "deployment.create", "deployment"
	case strings.HasPrefix(p, "diagnostics"):
		return "diagnostics.run", "device"
	default:
		return "", ""
	}
}
