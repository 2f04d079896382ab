package diagnostics

import (
	"fmt"
	"maps"

	"github.com/CaioWing/Tether/internal/domain"
)

// Walkthrough feeds operator answers into the engine one check at a time.
type Walkthrough struct {
	engine *Engine
	req    Request
	checks []Check
}

func NewWalkthrough(engine *Engine, ct domain.ConnectionType, address string) (*Walkthrough, error) {
	checks, err := engine.Checks(ct)
	if err != nil {
		return nil, err
	}
	return &Walkthrough{
		engine: engine,
		req: Request{
			ConnectionType: ct,
			Address:        address,
			Attestations:   make(map[string]bool),
		},
		checks: checks,
	}, nil
}

// Next returns the first attested check the operator has not answered yet.
func (w *Walkthrough) Next() (Check, bool) {
	for _, c := range w.checks {
		if c.Kind != KindAttested {
			continue
		}
		if _, answered := w.req.Attestations[c.ID]; !answered {
			return c, true
		}
	}
	return Check{}, false
}

func (w *Walkthrough) Attest(checkID string, resolved bool) error {
	for _, c := range w.checks {
		if c.ID != checkID {
			continue
		}
		if c.Kind != KindAttested {
			return fmt.Errorf("%w: check %q is evaluated automatically", domain.ErrInvalidInput, checkID)
		}
		w.req.Attestations[checkID] = resolved
		return nil
	}
	return fmt.Errorf("%w: unknown check %q", domain.ErrInvalidInput, checkID)
}

func (w *Walkthrough) Results() ([]CheckResult, error) {
	return w.engine.Run(w.Request())
}

// Request returns a copy of the accumulated request.
func (w *Walkthrough) Request() Request {
	req := w.req
	req.Attestations = maps.Clone(w.req.Attestations)
	return req
}
