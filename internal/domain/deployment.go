package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type DeploymentStatus string

const (
	DeploymentStatusPending   DeploymentStatus = "pending"
	DeploymentStatusConnected DeploymentStatus = "connected"
	DeploymentStatusExecuting DeploymentStatus = "executing"
	DeploymentStatusCompleted DeploymentStatus = "completed"
	DeploymentStatusFailed    DeploymentStatus = "failed"
)

func (s DeploymentStatus) Terminal() bool {
	return s == DeploymentStatusCompleted || s == DeploymentStatusFailed
}

// Active reports whether the deployment currently owns its device.
func (s DeploymentStatus) Active() bool {
	return s == DeploymentStatusConnected || s == DeploymentStatusExecuting
}

type Deployment struct {
	ID         uuid.UUID        `json:"id"`
	PayloadID  uuid.UUID        `json:"payload_id"`
	DeviceID   uuid.UUID        `json:"device_id"`
	Status     DeploymentStatus `json:"status"`
	Result     *string          `json:"result"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

type DeploymentFilter struct {
	Status    *DeploymentStatus
	DeviceID  *uuid.UUID
	PayloadID *uuid.UUID
	Page      int
	PerPage   int
	SortBy    string
	SortOrder string
}

type DeploymentStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Connected int `json:"connected"`
	Executing int `json:"executing"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Add counts n deployments in status.
func (s *DeploymentStats) Add(status DeploymentStatus, n int) {
	s.Total += n
	switch status {
	case DeploymentStatusPending:
		s.Pending += n
	case DeploymentStatusConnected:
		s.Connected += n
	case DeploymentStatusExecuting:
		s.Executing += n
	case DeploymentStatusCompleted:
		s.Completed += n
	case DeploymentStatusFailed:
		s.Failed += n
	}
}

type DeploymentRepository interface {
	Create(ctx context.Context, deployment *Deployment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Deployment, error)
	List(ctx context.Context, filter DeploymentFilter) ([]*Deployment, int, error)
	// Transition moves the deployment from one status to another in a single
	// conditional write. It fails with ErrConflict when the stored status is no
	// longer from. result is stored only when non-nil.
	Transition(ctx context.Context, id uuid.UUID, from, to DeploymentStatus, result *string) error
	// ListActive returns deployments persisted as connected or executing.
	ListActive(ctx context.Context) ([]*Deployment, error)
	GetStats(ctx context.Context) (*DeploymentStats, error)
}
