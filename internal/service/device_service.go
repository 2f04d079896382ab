package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/CaioWing/Tether/internal/domain"
)

type DeviceService struct {
	repo domain.DeviceRepository
	log  *slog.Logger
}

func NewDeviceService(repo domain.DeviceRepository, log *slog.Logger) *DeviceService {
	return &DeviceService{repo: repo, log: log}
}

type RegisterDeviceInput struct {
	Name           string
	ConnectionType domain.ConnectionType
	IPAddress      string
	SerialPort     string
}

// Register adds a device. New devices start offline until a deployment
// reaches them.
func (s *DeviceService) Register(ctx context.Context, input RegisterDeviceInput) (*domain.Device, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if !input.ConnectionType.Valid() {
		return nil, fmt.Errorf("%w: connection_type must be network or usb", domain.ErrInvalidInput)
	}
	ip, port, err := normalizeAddress(input.ConnectionType, input.IPAddress, input.SerialPort)
	if err != nil {
		return nil, err
	}

	device := &domain.Device{
		Name:           name,
		ConnectionType: input.ConnectionType,
		Status:         domain.DeviceStatusOffline,
		IPAddress:      ip,
		SerialPort:     port,
	}
	if err := s.repo.Create(ctx, device); err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}

	s.log.Info("device registered", "id", device.ID, "type", device.ConnectionType, "address", device.Address())
	return device, nil
}

type UpdateDeviceInput struct {
	Name       *string
	IPAddress  *string
	SerialPort *string
}

// Update edits name and address. The connection type is fixed at
// registration and a busy device cannot be edited.
func (s *DeviceService) Update(ctx context.Context, id uuid.UUID, input UpdateDeviceInput) (*domain.Device, error) {
	device, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if device.Status == domain.DeviceStatusBusy {
		return nil, fmt.Errorf("%w: device %s is busy", domain.ErrConflict, id)
	}

	name, ip, port := device.Name, device.IPAddress, device.SerialPort
	if input.Name != nil {
		name = strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", domain.ErrInvalidInput)
		}
	}
	if input.IPAddress != nil {
		ip = *input.IPAddress
	}
	if input.SerialPort != nil {
		port = *input.SerialPort
	}
	ip, port, err = normalizeAddress(device.ConnectionType, ip, port)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateDetails(ctx, id, name, ip, port); err != nil {
		return nil, err
	}
	s.log.Info("device updated", "id", id)
	return s.repo.GetByID(ctx, id)
}

func (s *DeviceService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Device, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *DeviceService) List(ctx context.Context, filter domain.DeviceFilter) ([]*domain.Device, int, error) {
	return s.repo.List(ctx, filter)
}

// Delete removes a device. Busy devices are refused.
func (s *DeviceService) Delete(ctx context.Context, id uuid.UUID) error {
	device, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if device.Status == domain.DeviceStatusBusy {
		return fmt.Errorf("%w: device %s is busy", domain.ErrConflict, id)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("device deleted", "id", id)
	return nil
}

func (s *DeviceService) CountByStatus(ctx context.Context) (map[domain.DeviceStatus]int, error) {
	return s.repo.CountByStatus(ctx)
}

// normalizeAddress keeps exactly the address field the connection type uses.
// IP syntax is left to diagnostics so that a bad address can still be stored
// and then fixed.
func normalizeAddress(ct domain.ConnectionType, ip, port string) (string, string, error) {
	ip, port = strings.TrimSpace(ip), strings.TrimSpace(port)
	switch ct {
	case domain.ConnectionNetwork:
		if ip == "" {
			return "", "", fmt.Errorf("%w: ip_address is required for network devices", domain.ErrInvalidInput)
		}
		return ip, "", nil
	case domain.ConnectionUSB:
		if port == "" {
			return "", "", fmt.Errorf("%w: serial_port is required for usb devices", domain.ErrInvalidInput)
		}
		return "", port, nil
	default:
		return "", "", fmt.Errorf("%w: unknown connection type %q", domain.ErrInvalidInput, ct)
	}
}
