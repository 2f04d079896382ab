package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ConnectionType string

const (
	ConnectionNetwork ConnectionType = "network"
	ConnectionUSB     ConnectionType = "usb"
)

func (c ConnectionType) Valid() bool {
	return c == ConnectionNetwork || c == ConnectionUSB
}

type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
	DeviceStatusBusy    DeviceStatus = "busy"
)

type Device struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	ConnectionType ConnectionType `json:"connection_type"`
	Status         DeviceStatus   `json:"status"`
	IPAddress      string         `json:"ip_address,omitempty"`
	SerialPort     string         `json:"serial_port,omitempty"`
	LastSeen       *time.Time     `json:"last_seen"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Address returns the transport address selected by the connection type.
func (d *Device) Address() string {
	if d.ConnectionType == ConnectionUSB {
		return d.SerialPort
	}
	return d.IPAddress
}

type DeviceFilter struct {
	Status         *DeviceStatus
	ConnectionType *ConnectionType
	Page           int
	PerPage        int
	SortBy         string
	SortOrder      string
}

type DeviceRepository interface {
	Create(ctx context.Context, device *Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*Device, error)
	List(ctx context.Context, filter DeviceFilter) ([]*Device, int, error)
	// UpdateDetails changes name and transport address. Fails with ErrConflict
	// while the device is busy.
	UpdateDetails(ctx context.Context, id uuid.UUID, name, ipAddress, serialPort string) error
	// Claim atomically marks the device busy. Fails with ErrConflict when it
	// already is.
	Claim(ctx context.Context, id uuid.UUID) error
	// Release sets a non-busy status and records lastSeen when non-nil.
	Release(ctx context.Context, id uuid.UUID, status DeviceStatus, lastSeen *time.Time) error
	TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error
	// ReleaseAllBusy resets every busy device to status and returns how many changed.
	ReleaseAllBusy(ctx context.Context, status DeviceStatus) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
	CountByStatus(ctx context.Context) (map[DeviceStatus]int, error)
}
