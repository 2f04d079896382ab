package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/lifecycle"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware())
	r.Get("/devices/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices/"+uuid.NewString(), nil))
	}

	body := scrape(t, m)
	assert.Contains(t, body, `tether_http_requests_total{method="GET",route="/devices/{id}",status="404"} 2`)
	assert.Contains(t, body, "tether_http_active_requests 0")
}

func TestRunFinished_CountsByStatus(t *testing.T) {
	m := New()
	m.RunFinished(domain.DeploymentStatusCompleted, 2*time.Second)
	m.RunFinished(domain.DeploymentStatusFailed, time.Second)
	m.RunFinished(domain.DeploymentStatusFailed, time.Second)

	body := scrape(t, m)
	assert.Contains(t, body, `tether_deploy_runs_total{status="completed"} 1`)
	assert.Contains(t, body, `tether_deploy_runs_total{status="failed"} 2`)
	assert.Contains(t, body, `tether_deploy_run_duration_seconds_count{status="failed"} 2`)
}

func TestTransitionObserver(t *testing.T) {
	m := New()
	var observe lifecycle.Observer = m.TransitionObserver()
	observe(context.Background(), uuid.New(), domain.DeploymentStatusPending, domain.DeploymentStatusConnected, lifecycle.EventOpened, nil)

	assert.Contains(t, scrape(t, m), `tether_deploy_transitions_total{from="pending",to="connected"} 1`)
}
