package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/CaioWing/Tether/internal/app"
	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/service"
)

func deploymentsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "deployments", Short: "Manage deployments"}
	cmd.AddCommand(deploymentsListCmd())
	cmd.AddCommand(deploymentsCreateCmd())
	return cmd
}

func deploymentsListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deployments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				filter := domain.DeploymentFilter{PerPage: 100}
				if status != "" {
					s := domain.DeploymentStatus(status)
					filter.Status = &s
				}
				deployments, _, err := a.Deployments.List(ctx, filter)
				if err != nil {
					return err
				}
				return printDeployments(stdout(cmd), deployments)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func deploymentsCreateCmd() *cobra.Command {
	var deviceArg, payloadArg string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pending deployment of a payload to a device",
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, err := parseID(deviceArg)
			if err != nil {
				return err
			}
			payloadID, err := parseID(payloadArg)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Deployments.Create(ctx, service.CreateDeploymentInput{PayloadID: payloadID, DeviceID: deviceID})
				if err != nil {
					return err
				}
				return printDeployments(stdout(cmd), []*domain.Deployment{d})
			})
		},
	}
	cmd.Flags().StringVar(&deviceArg, "device", "", "device id")
	cmd.Flags().StringVar(&payloadArg, "payload", "", "payload id")
	_ = cmd.MarkFlagRequired("device")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

// runOutcome is one row of a batch deploy.
type runOutcome struct {
	ID     uuid.UUID                `json:"id"`
	Status domain.DeploymentStatus `json:"status,omitempty"`
	Result string                  `json:"result,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

// Deployer is the part of the orchestrator a batch run needs.
type Deployer interface {
	Deploy(ctx context.Context, id uuid.UUID) (service.TerminalStatus, error)
}

// deployAll runs every deployment with at most parallel in flight. Each
// deployment targets its own device claim, so one failure does not stop the
// others; the returned outcomes keep the order of ids.
func deployAll(ctx context.Context, d Deployer, ids []uuid.UUID, parallel int) []runOutcome {
	out := make([]runOutcome, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			ts, err := d.Deploy(gctx, id)
			row := runOutcome{ID: id, Status: ts.Status, Result: ts.Result}
			if err != nil {
				row.Error = err.Error()
			}
			mu.Lock()
			out[i] = row
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func deployCmd() *cobra.Command {
	var parallel int
	cmd := &cobra.Command{
		Use:   "deploy ID [ID...]",
		Short: "Run pending deployments and wait for their terminal status",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uuid.UUID, 0, len(args))
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			if parallel < 1 {
				return fmt.Errorf("%w: --parallel must be at least 1", domain.ErrInvalidInput)
			}

			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				outcomes := deployAll(ctx, a.Orchestrator, ids, parallel)

				w := stdout(cmd)
				if viper.GetBool("json") {
					if err := printJSON(w, outcomes); err != nil {
						return err
					}
				} else {
					t := newTable(w, table.Row{"Deployment", "Status", "Result"})
					for _, o := range outcomes {
						detail := o.Result
						if o.Error != "" {
							detail = "error: " + o.Error
						}
						t.AppendRow(table.Row{o.ID, o.Status, detail})
					}
					t.Render()
				}

				var errs []error
				for _, o := range outcomes {
					if o.Error != "" || o.Status != domain.DeploymentStatusCompleted {
						errs = append(errs, fmt.Errorf("deployment %s did not complete", o.ID))
					}
				}
				return errors.Join(errs...)
			})
		},
	}
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "maximum deployments in flight")
	return cmd
}
