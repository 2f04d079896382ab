package diagnostics

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/CaioWing/Tether/internal/domain"
)

//go:embed checklist.yaml
var defaultChecklist []byte

type Kind string

const (
	KindAutomatic Kind = "automatic"
	KindAttested  Kind = "attested"
)

// Check is one catalog entry.
type Check struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Kind        Kind   `yaml:"kind" json:"kind"`
	Probe       string `yaml:"probe,omitempty" json:"-"`
	Prompt      string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Remediation string `yaml:"remediation" json:"remediation"`
}

// Catalog holds the ordered checklist for each connection type.
type Catalog map[domain.ConnectionType][]Check

// ParseCatalog decodes and validates a checklist document.
func ParseCatalog(data []byte) (Catalog, error) {
	var raw map[string][]Check
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse checklist: %w", err)
	}

	cat := make(Catalog, len(raw))
	for key, checks := range raw {
		ct := domain.ConnectionType(key)
		if !ct.Valid() {
			return nil, fmt.Errorf("checklist: unknown connection type %q", key)
		}
		seen := make(map[string]bool, len(checks))
		for i, c := range checks {
			if err := validateCheck(c); err != nil {
				return nil, fmt.Errorf("checklist %s[%d]: %w", key, i, err)
			}
			if seen[c.ID] {
				return nil, fmt.Errorf("checklist %s: duplicate check %q", key, c.ID)
			}
			seen[c.ID] = true
			checks[i].Remediation = strings.TrimSpace(c.Remediation)
		}
		cat[ct] = checks
	}
	return cat, nil
}

func validateCheck(c Check) error {
	if c.ID == "" || c.Title == "" {
		return fmt.Errorf("id and title are required")
	}
	if strings.TrimSpace(c.Remediation) == "" {
		return fmt.Errorf("check %q has no remediation", c.ID)
	}
	switch c.Kind {
	case KindAutomatic:
		if _, ok := probes[c.Probe]; !ok {
			return fmt.Errorf("check %q: unknown probe %q", c.ID, c.Probe)
		}
	case KindAttested:
		if c.Prompt == "" {
			return fmt.Errorf("check %q: attested checks need a prompt", c.ID)
		}
	default:
		return fmt.Errorf("check %q: unknown kind %q", c.ID, c.Kind)
	}
	return nil
}
