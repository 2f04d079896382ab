package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CaioWing/Tether/internal/app"
	"github.com/CaioWing/Tether/internal/transport"
)

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports visible to this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := transport.RuntimeProbe{}.Ports()
			if err != nil {
				return fmt.Errorf("enumerate serial ports: %w", err)
			}
			if len(ports) == 0 {
				fmt.Fprintln(stdout(cmd), "no serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintln(stdout(cmd), p)
			}
			return nil
		},
	}
}

func recoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Fail deployments left active by a crashed process and free busy devices",
		Long: `recover marks every deployment persisted as connected or executing as failed
and resets busy devices to offline. Run it only when no server is using the
same database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Orchestrator.Recover(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout(cmd), "%d interrupted deployments marked failed\n", n)
				return nil
			})
		},
	}
}
