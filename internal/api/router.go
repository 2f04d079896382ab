package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/CaioWing/Tether/internal/api/management"
	"github.com/CaioWing/Tether/internal/api/middleware"
	"github.com/CaioWing/Tether/internal/api/ops"
	"github.com/CaioWing/Tether/internal/api/response"
	"github.com/CaioWing/Tether/internal/auth"
	"github.com/CaioWing/Tether/internal/diagnostics"
	"github.com/CaioWing/Tether/internal/metrics"
	"github.com/CaioWing/Tether/internal/service"
)

type RouterDeps struct {
	DeviceSvc     *service.DeviceService
	PayloadSvc    *service.PayloadService
	DeploymentSvc *service.DeploymentService
	AuditSvc      *service.AuditService
	Orchestrator  *service.Orchestrator
	Diagnostics   *diagnostics.Engine
	JWTManager    *auth.JWTManager
	Admin         *auth.Admin
	Metrics       *metrics.Metrics
	CORSOrigins   string
	Logger        *slog.Logger
	Version       string
}

// NewRouter builds the HTTP handler. ctx bounds background work owned by the
// router, such as rate limiter housekeeping.
func NewRouter(ctx context.Context, deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.Metrics.Middleware())

	// CORS
	origins := strings.Split(deps.CORSOrigins, ",")
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Checksum-SHA256", "Content-Disposition", "Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	authHandler := management.NewAuthHandler(deps.JWTManager, deps.Admin)
	deviceHandler := management.NewDeviceHandler(deps.DeviceSvc)
	payloadHandler := management.NewPayloadHandler(deps.PayloadSvc)
	deploymentHandler := management.NewDeploymentHandler(deps.DeploymentSvc, deps.Orchestrator)
	auditHandler := management.NewAuditHandler(deps.AuditSvc)

	limiter := middleware.NewRateLimiter(ctx, 30, 60)

	r.Route("/api/v1/management", func(r chi.Router) {
		r.Use(limiter.Middleware())

		// Login (no auth required)
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ManagementAuth(deps.JWTManager))
			r.Post("/auth/refresh", authHandler.Refresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.ManagementAuth(deps.JWTManager))
			r.Use(middleware.AuditLog(deps.AuditSvc))

			// Devices
			r.Get("/devices", deviceHandler.List)
			r.Post("/devices", deviceHandler.Register)
			r.Get("/devices/count", deviceHandler.Count)
			r.Get("/devices/{id}", deviceHandler.Get)
			r.Patch("/devices/{id}", deviceHandler.Update)
			r.Delete("/devices/{id}", deviceHandler.Delete)

			// Payloads
			r.Get("/payloads", payloadHandler.List)
			r.Post("/payloads", payloadHandler.Upload)
			r.Get("/payloads/{id}", payloadHandler.Get)
			r.Get("/payloads/{id}/download", payloadHandler.Download)
			r.Delete("/payloads/{id}", payloadHandler.Delete)

			// Deployments
			r.Get("/deployments", deploymentHandler.List)
			r.Post("/deployments", deploymentHandler.Create)
			r.Get("/deployments/statistics", deploymentHandler.Stats)
			r.Get("/deployments/{id}", deploymentHandler.Get)
			r.Post("/deployments/{id}/run", deploymentHandler.Run)
			r.Post("/deployments/{id}/cancel", deploymentHandler.Cancel)

			// Audit Log
			r.Get("/audit", auditHandler.List)

			// Typed operator endpoints with an OpenAPI document at /ops/openapi.
			hcfg := huma.DefaultConfig("Tether Ops API", deps.Version)
			hcfg.OpenAPIPath = "/ops/openapi"
			hcfg.DocsPath = ""
			hcfg.SchemasPath = "/ops/schemas"
			hcfg.Servers = []*huma.Server{{URL: "/api/v1/management"}}
			ops.Register(humachi.New(r, hcfg), "/ops", deps.Diagnostics, deps.Orchestrator)
		})
	})

	return r
}
