package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/CaioWing/Tether/internal/app"
	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/service"
)

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "devices", Short: "Manage devices"}
	cmd.AddCommand(devicesListCmd())
	cmd.AddCommand(devicesAddCmd())
	cmd.AddCommand(devicesRemoveCmd())
	return cmd
}

func devicesListCmd() *cobra.Command {
	var status, connType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				filter := domain.DeviceFilter{PerPage: 100, SortBy: "name", SortOrder: "asc"}
				if status != "" {
					s := domain.DeviceStatus(status)
					filter.Status = &s
				}
				if connType != "" {
					ct := domain.ConnectionType(connType)
					filter.ConnectionType = &ct
				}
				devices, _, err := a.Devices.List(ctx, filter)
				if err != nil {
					return err
				}
				return printDevices(stdout(cmd), devices)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (online, offline, busy)")
	cmd.Flags().StringVar(&connType, "type", "", "filter by connection type (network, usb)")
	return cmd
}

func devicesAddCmd() *cobra.Command {
	var in service.RegisterDeviceInput
	var connType string
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Register a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			in.ConnectionType = domain.ConnectionType(connType)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Devices.Register(ctx, in)
				if err != nil {
					return err
				}
				return printDevices(stdout(cmd), []*domain.Device{d})
			})
		},
	}
	cmd.Flags().StringVar(&connType, "type", string(domain.ConnectionNetwork), "connection type (network, usb)")
	cmd.Flags().StringVar(&in.IPAddress, "ip", "", "device IP address (network)")
	cmd.Flags().StringVar(&in.SerialPort, "port", "", "serial port name (usb)")
	return cmd
}

func devicesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a device that is not busy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Devices.Delete(ctx, id)
			})
		},
	}
}
