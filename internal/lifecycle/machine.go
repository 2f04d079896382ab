package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/CaioWing/Tether/internal/domain"
)

// Observer is notified after a transition has been persisted.
type Observer func(ctx context.Context, id uuid.UUID, from, to domain.DeploymentStatus, event Event, result *string)

// Machine applies transitions to persisted deployments. A transition is
// visible only once the conditional repository write has succeeded.
type Machine struct {
	repo      domain.DeploymentRepository
	observers []Observer
}

func NewMachine(repo domain.DeploymentRepository, observers ...Observer) *Machine {
	return &Machine{repo: repo, observers: observers}
}

// Apply computes the next status for event and persists it. result must be
// non-empty when the transition ends in failed and is ignored for
// non-terminal targets.
func (m *Machine) Apply(ctx context.Context, id uuid.UUID, from domain.DeploymentStatus, event Event, result string) (domain.DeploymentStatus, error) {
	to, err := Next(from, event)
	if err != nil {
		return from, err
	}

	var res *string
	if to.Terminal() {
		result = strings.TrimSpace(result)
		if to == domain.DeploymentStatusFailed && result == "" {
			return from, fmt.Errorf("%w: %s", ErrMissingResult, event)
		}
		res = &result
	}

	if err := m.repo.Transition(ctx, id, from, to, res); err != nil {
		switch {
		case errors.Is(err, domain.ErrConflict):
			return from, fmt.Errorf("transition %s -> %s: %w", from, to, err)
		case errors.Is(err, domain.ErrStore):
			return from, err
		default:
			// A vanished record or an unclassified driver error both leave the
			// last persisted state authoritative.
			return from, fmt.Errorf("%w: transition %s -> %s: %v", domain.ErrStore, from, to, err)
		}
	}

	for _, o := range m.observers {
		o(ctx, id, from, to, event, res)
	}
	return to, nil
}
