package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	ActorManagement = "management"
	ActorSystem     = "system"
)

// AuditEntry records an operator action or an orchestrator transition.
type AuditEntry struct {
	ID         uuid.UUID      `json:"id"`
	Actor      string         `json:"actor"`
	ActorType  string         `json:"actor_type"`
	Action     string         `json:"action"`   // device.register, deployment.transition, ...
	Resource   string         `json:"resource"` // device, payload, deployment
	ResourceID string         `json:"resource_id"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

type AuditFilter struct {
	Actor      *string
	Action     *string
	Resource   *string
	ResourceID *string
	Page       int
	PerPage    int
	SortOrder  string
}

type AuditRepository interface {
	Create(ctx context.Context, entry *AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]*AuditEntry, int, error)
}
