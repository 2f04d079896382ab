package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/CaioWing/Tether/internal/domain"
)

// DeploymentService manages deployment records. Running them is the
// Orchestrator's job.
type DeploymentService struct {
	deployRepo  domain.DeploymentRepository
	deviceRepo  domain.DeviceRepository
	payloadRepo domain.PayloadRepository
	log         *slog.Logger
}

func NewDeploymentService(
	deployRepo domain.DeploymentRepository,
	deviceRepo domain.DeviceRepository,
	payloadRepo domain.PayloadRepository,
	log *slog.Logger,
) *DeploymentService {
	return &DeploymentService{
		deployRepo:  deployRepo,
		deviceRepo:  deviceRepo,
		payloadRepo: payloadRepo,
		log:         log,
	}
}

type CreateDeploymentInput struct {
	PayloadID uuid.UUID
	DeviceID  uuid.UUID
}

// Create records a pending deployment of a payload to a device.
func (s *DeploymentService) Create(ctx context.Context, input CreateDeploymentInput) (*domain.Deployment, error) {
	if input.PayloadID == uuid.Nil || input.DeviceID == uuid.Nil {
		return nil, fmt.Errorf("%w: payload_id and device_id are required", domain.ErrInvalidInput)
	}

	if _, err := s.payloadRepo.GetByID(ctx, input.PayloadID); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	if _, err := s.deviceRepo.GetByID(ctx, input.DeviceID); err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}

	deployment := &domain.Deployment{
		PayloadID: input.PayloadID,
		DeviceID:  input.DeviceID,
		Status:    domain.DeploymentStatusPending,
	}
	if err := s.deployRepo.Create(ctx, deployment); err != nil {
		return nil, fmt.Errorf("create deployment: %w", err)
	}

	s.log.Info("deployment created", "id", deployment.ID, "payload", input.PayloadID, "device", input.DeviceID)
	return deployment, nil
}

func (s *DeploymentService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Deployment, error) {
	return s.deployRepo.GetByID(ctx, id)
}

func (s *DeploymentService) List(ctx context.Context, filter domain.DeploymentFilter) ([]*domain.Deployment, int, error) {
	return s.deployRepo.List(ctx, filter)
}

func (s *DeploymentService) GetStats(ctx context.Context) (*domain.DeploymentStats, error) {
	return s.deployRepo.GetStats(ctx)
}
