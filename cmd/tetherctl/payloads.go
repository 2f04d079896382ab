package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/CaioWing/Tether/internal/app"
	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/service"
)

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q is not a valid id", domain.ErrInvalidInput, s)
	}
	return id, nil
}

func payloadsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "payloads", Short: "Manage payload scripts"}
	cmd.AddCommand(payloadsListCmd())
	cmd.AddCommand(payloadsAddCmd())
	return cmd
}

func payloadsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List payload versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				payloads, _, err := a.Payloads.List(ctx, domain.PayloadFilter{PerPage: 100})
				if err != nil {
					return err
				}
				return printPayloads(stdout(cmd), payloads)
			})
		},
	}
}

func payloadsAddCmd() *cobra.Command {
	var in service.CreatePayloadInput
	cmd := &cobra.Command{
		Use:   "add NAME VERSION SCRIPT",
		Short: "Store a new payload version from a script file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[2])
			if err != nil {
				return err
			}
			defer f.Close()

			in.Name, in.Version, in.Script = args[0], args[1], f
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Payloads.Create(ctx, in)
				if err != nil {
					return err
				}
				return printPayloads(stdout(cmd), []*domain.Payload{p})
			})
		},
	}
	cmd.Flags().StringVar(&in.Description, "description", "", "free-form description")
	return cmd
}
