package transport

import (
	"context"
	"errors"
	"io"

	"go.bug.st/serial"

	"github.com/CaioWing/Tether/internal/domain"
)

// SerialDialer acquires a local serial port for usb-attached devices.
type SerialDialer struct {
	BaudRate int
	// open defaults to serial.Open.
	open func(name string, mode *serial.Mode) (serial.Port, error)
}

func (d *SerialDialer) Dial(ctx context.Context, device *domain.Device) (io.ReadWriteCloser, error) {
	name := device.SerialPort
	if name == "" {
		return nil, &ConnectionError{Reason: ReasonAddress, Address: name, Err: errors.New("no serial port configured")}
	}

	mode := &serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if mode.BaudRate == 0 {
		mode.BaudRate = DefaultBaudRate
	}
	open := d.open
	if open == nil {
		open = serial.Open
	}

	type result struct {
		port serial.Port
		err  error
	}
	done := make(chan result, 1)
	go func() {
		p, err := open(name, mode)
		done <- result{p, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, &ConnectionError{Reason: classifyPortError(r.err), Address: name, Err: r.err}
		}
		return r.port, nil
	case <-ctx.Done():
		// Release the port if the driver hands it over after we gave up.
		go func() {
			if r := <-done; r.err == nil {
				r.port.Close()
			}
		}()
		reason := ReasonTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			reason = ReasonUnreachable
		}
		return nil, &ConnectionError{Reason: reason, Address: name, Err: ctx.Err()}
	}
}

func classifyPortError(err error) Reason {
	var pe *serial.PortError
	if !errors.As(err, &pe) {
		return ReasonUnreachable
	}
	switch pe.Code() {
	case serial.PermissionDenied:
		return ReasonPermission
	case serial.PortBusy:
		return ReasonBusy
	case serial.InvalidSerialPort:
		return ReasonAddress
	case serial.FunctionNotImplemented, serial.ErrorEnumeratingPorts:
		return ReasonUnsupported
	default:
		return ReasonUnreachable
	}
}

const DefaultBaudRate = 115200
