// Package lifecycle holds the deployment state machine: the transition table
// and the Machine that applies transitions through the deployment repository.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/CaioWing/Tether/internal/domain"
)

type Event string

const (
	EventOpened          Event = "opened"
	EventOpenFailed      Event = "open_failed"
	EventAcknowledged    Event = "acknowledged"
	EventSendFailed      Event = "send_failed"
	EventSucceeded       Event = "succeeded"
	EventExecutionFailed Event = "execution_failed"
	EventCancelled       Event = "cancelled"
	EventInterrupted     Event = "interrupted"
)

var (
	ErrInvalidTransition = errors.New("invalid deployment transition")
	ErrTerminal          = errors.New("deployment is terminal")
	ErrMissingResult     = errors.New("failed transition requires a result")
)

type edge struct {
	from  domain.DeploymentStatus
	event Event
}

var table = map[edge]domain.DeploymentStatus{
	{domain.DeploymentStatusPending, EventOpened}:            domain.DeploymentStatusConnected,
	{domain.DeploymentStatusPending, EventOpenFailed}:        domain.DeploymentStatusFailed,
	{domain.DeploymentStatusConnected, EventAcknowledged}:    domain.DeploymentStatusExecuting,
	{domain.DeploymentStatusConnected, EventSendFailed}:      domain.DeploymentStatusFailed,
	{domain.DeploymentStatusExecuting, EventSucceeded}:       domain.DeploymentStatusCompleted,
	{domain.DeploymentStatusExecuting, EventExecutionFailed}: domain.DeploymentStatusFailed,
}

// Next returns the status reached from 'from' on event.
func Next(from domain.DeploymentStatus, event Event) (domain.DeploymentStatus, error) {
	if from.Terminal() {
		return from, fmt.Errorf("%w: %s", ErrTerminal, from)
	}
	// Cancellation and restart recovery fail any live deployment.
	if event == EventCancelled || event == EventInterrupted {
		switch from {
		case domain.DeploymentStatusPending, domain.DeploymentStatusConnected, domain.DeploymentStatusExecuting:
			return domain.DeploymentStatusFailed, nil
		}
	}
	to, ok := table[edge{from, event}]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, from, event)
	}
	return to, nil
}

// Targets lists every status reachable from 'from' in one step.
func Targets(from domain.DeploymentStatus) []domain.DeploymentStatus {
	seen := map[domain.DeploymentStatus]bool{}
	var out []domain.DeploymentStatus
	for _, ev := range Events() {
		to, err := Next(from, ev)
		if err != nil || seen[to] {
			continue
		}
		seen[to] = true
		out = append(out, to)
	}
	return out
}

func Events() []Event {
	return []Event{
		EventOpened, EventOpenFailed, EventAcknowledged, EventSendFailed,
		EventSucceeded, EventExecutionFailed, EventCancelled, EventInterrupted,
	}
}
