// Package diagnostics evaluates the connection troubleshooting checklist.
//
// Engine.Run is pure: given the same request and runtime facts it returns the
// same ordered results. It never dials the device and never retries.
// Walkthrough is the interactive layer that collects operator answers.
package diagnostics

import (
	"fmt"

	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/transport"
)

type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeFail    Outcome = "fail"
	OutcomeUnknown Outcome = "unknown"
)

// Request describes what to diagnose. Address is the IP address for network
// devices and the serial port name for usb devices. Attestations maps
// attested check ids to whether the operator reports them resolved.
type Request struct {
	ConnectionType domain.ConnectionType `json:"connection_type"`
	Address        string                `json:"address,omitempty"`
	Attestations   map[string]bool       `json:"attestations,omitempty"`
}

type CheckResult struct {
	CheckID     string  `json:"check_id"`
	Title       string  `json:"title"`
	Kind        Kind    `json:"kind"`
	Outcome     Outcome `json:"outcome"`
	Remediation string  `json:"remediation,omitempty"`
	Prompt      string  `json:"prompt,omitempty"`
	// BlockedBy names the first earlier failed check, if any.
	BlockedBy string `json:"blocked_by,omitempty"`
}

type Engine struct {
	catalog Catalog
	env     transport.CapabilityProbe
}

// NewEngine builds an engine over the embedded checklist.
func NewEngine(env transport.CapabilityProbe) (*Engine, error) {
	cat, err := ParseCatalog(defaultChecklist)
	if err != nil {
		return nil, err
	}
	return NewEngineWithCatalog(env, cat), nil
}

func NewEngineWithCatalog(env transport.CapabilityProbe, cat Catalog) *Engine {
	return &Engine{catalog: cat, env: env}
}

// Checks returns the ordered checklist for a connection type.
func (e *Engine) Checks(ct domain.ConnectionType) ([]Check, error) {
	checks, ok := e.catalog[ct]
	if !ok {
		return nil, fmt.Errorf("%w: unknown connection type %q", domain.ErrInvalidInput, ct)
	}
	return checks, nil
}

func (e *Engine) Run(req Request) ([]CheckResult, error) {
	checks, err := e.Checks(req.ConnectionType)
	if err != nil {
		return nil, err
	}

	results := make([]CheckResult, 0, len(checks))
	var firstFailure string
	for _, c := range checks {
		r := CheckResult{
			CheckID:   c.ID,
			Title:     c.Title,
			Kind:      c.Kind,
			Prompt:    c.Prompt,
			BlockedBy: firstFailure,
		}

		switch c.Kind {
		case KindAutomatic:
			r.Outcome = probes[c.Probe](e.env, req)
		case KindAttested:
			r.Outcome = OutcomeUnknown
			if resolved, ok := req.Attestations[c.ID]; ok {
				r.Outcome = OutcomeFail
				if resolved {
					r.Outcome = OutcomePass
				}
			}
		}

		if r.Outcome != OutcomePass {
			r.Remediation = c.Remediation
		}
		if r.Outcome == OutcomeFail && firstFailure == "" {
			firstFailure = c.ID
		}
		results = append(results, r)
	}
	return results, nil
}

// Passed reports whether every check in results passed.
func Passed(results []CheckResult) bool {
	for _, r := range results {
		if r.Outcome != OutcomePass {
			return false
		}
	}
	return true
}
