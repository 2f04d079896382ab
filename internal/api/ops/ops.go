// Package ops registers the typed operator endpoints (connection diagnostics
// and synchronous deploy runs) on a huma API, which also publishes their
// OpenAPI description.
package ops

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/CaioWing/Tether/internal/diagnostics"
	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/service"
)

// Deployer runs one deployment to completion.
type Deployer interface {
	Deploy(ctx context.Context, id uuid.UUID) (service.TerminalStatus, error)
}

type DiagnosticsInput struct {
	Body struct {
		ConnectionType string          `json:"connection_type" enum:"network,usb" doc:"Transport to diagnose"`
		Address        string          `json:"address,omitempty" doc:"IP address or serial port name"`
		Attestations   map[string]bool `json:"attestations,omitempty" doc:"Operator answers keyed by check id; true means resolved"`
	}
}

type DiagnosticsOutput struct {
	Body struct {
		Passed  bool                      `json:"passed"`
		Results []diagnostics.CheckResult `json:"results"`
	}
}

type ChecksInput struct {
	ConnectionType string `path:"connection_type" enum:"network,usb"`
}

type ChecksOutput struct {
	Body []diagnostics.Check
}

type DeployInput struct {
	ID string `path:"id" format:"uuid" doc:"Deployment id"`
}

type DeployOutput struct {
	Body service.TerminalStatus
}

// Register adds the operations under prefix.
func Register(api huma.API, prefix string, engine *diagnostics.Engine, deployer Deployer) {
	huma.Register(api, huma.Operation{
		OperationID: "list-diagnostic-checks",
		Method:      http.MethodGet,
		Path:        prefix + "/diagnostics/{connection_type}/checks",
		Summary:     "List the ordered checklist for a connection type",
		Tags:        []string{"diagnostics"},
	}, func(ctx context.Context, in *ChecksInput) (*ChecksOutput, error) {
		checks, err := engine.Checks(domain.ConnectionType(in.ConnectionType))
		if err != nil {
			return nil, toHTTP(err)
		}
		return &ChecksOutput{Body: checks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-diagnostics",
		Method:      http.MethodPost,
		Path:        prefix + "/diagnostics",
		Summary:     "Evaluate every check for a connection type",
		Description: "Automatic checks are probed on this host; attested checks take the operator's answers. Unanswered attested checks report unknown.",
		Tags:        []string{"diagnostics"},
	}, func(ctx context.Context, in *DiagnosticsInput) (*DiagnosticsOutput, error) {
		results, err := engine.Run(diagnostics.Request{
			ConnectionType: domain.ConnectionType(in.Body.ConnectionType),
			Address:        in.Body.Address,
			Attestations:   in.Body.Attestations,
		})
		if err != nil {
			return nil, toHTTP(err)
		}
		out := &DiagnosticsOutput{}
		out.Body.Passed = diagnostics.Passed(results)
		out.Body.Results = results
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deploy",
		Method:      http.MethodPost,
		Path:        prefix + "/deployments/{id}/deploy",
		Summary:     "Run a pending deployment and wait for its terminal status",
		Tags:        []string{"deployments"},
	}, func(ctx context.Context, in *DeployInput) (*DeployOutput, error) {
		id, err := uuid.Parse(in.ID)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid deployment id")
		}
		ts, err := deployer.Deploy(ctx, id)
		if err != nil {
			return nil, toHTTP(err)
		}
		return &DeployOutput{Body: ts}, nil
	})
}

func toHTTP(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, domain.ErrConflict):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, domain.ErrStore):
		return huma.Error503ServiceUnavailable(err.Error())
	default:
		return huma.Error500InternalServerError("internal error")
	}
}
