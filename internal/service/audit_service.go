package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/lifecycle"
)

type AuditService struct {
	repo domain.AuditRepository
	log  *slog.Logger
}

func NewAuditService(repo domain.AuditRepository, log *slog.Logger) *AuditService {
	return &AuditService{repo: repo, log: log}
}

// Log records an audit event. It is fire-and-forget: errors are logged but not propagated.
func (s *AuditService) Log(ctx context.Context, entry *domain.AuditEntry) {
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.log.Warn("failed to write audit log", "action", entry.Action, "err", err)
	}
}

func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, int, error) {
	return s.repo.List(ctx, filter)
}

// TransitionObserver records every persisted deployment transition.
func (s *AuditService) TransitionObserver() lifecycle.Observer {
	return func(ctx context.Context, id uuid.UUID, from, to domain.DeploymentStatus, event lifecycle.Event, result *string) {
		details := map[string]any{
			"from":  string(from),
			"to":    string(to),
			"event": string(event),
		}
		if result != nil {
			details["result"] = *result
		}
		s.Log(context.WithoutCancel(ctx), &domain.AuditEntry{
			Actor:      "orchestrator",
			ActorType:  domain.ActorSystem,
			Action:     "deployment.transition",
			Resource:   "deployment",
			ResourceID: id.String(),
			Details:    details,
		})
	}
}
