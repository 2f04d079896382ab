package transport

import (
	"go.bug.st/serial"

	"github.com/CaioWing/Tether/internal/domain"
)

// CapabilityProbe reports what the current runtime can reach.
type CapabilityProbe interface {
	Available(t domain.ConnectionType) bool
	Ports() ([]string, error)
}

// RuntimeProbe probes the host: sockets are always available, serial is
// available when the OS lets us enumerate ports.
type RuntimeProbe struct{}

func (RuntimeProbe) Available(t domain.ConnectionType) bool {
	switch t {
	case domain.ConnectionNetwork:
		return true
	case domain.ConnectionUSB:
		_, err := serial.GetPortsList()
		return err == nil
	default:
		return false
	}
}

func (RuntimeProbe) Ports() ([]string, error) {
	return serial.GetPortsList()
}
