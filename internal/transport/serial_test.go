package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/CaioWing/Tether/internal/domain"
)

func usbDevice(port string) *domain.Device {
	return &domain.Device{ID: uuid.New(), ConnectionType: domain.ConnectionUSB, SerialPort: port}
}

func TestSerialDialer_MissingPort(t *testing.T) {
	d := &SerialDialer{}
	_, err := d.Dial(context.Background(), usbDevice(""))
	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonAddress, ce.Reason)
}

func TestSerialDialer_UsesConfiguredMode(t *testing.T) {
	var got *serial.Mode
	d := &SerialDialer{
		BaudRate: 9600,
		open: func(name string, mode *serial.Mode) (serial.Port, error) {
			got = mode
			return nil, errors.New("no such device")
		},
	}
	_, err := d.Dial(context.Background(), usbDevice("/dev/ttyACM0"))
	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonUnreachable, ce.Reason)
	assert.Equal(t, "/dev/ttyACM0", ce.Address)
	require.NotNil(t, got)
	assert.Equal(t, 9600, got.BaudRate)
}

func TestSerialDialer_DefaultBaud(t *testing.T) {
	var got *serial.Mode
	d := &SerialDialer{open: func(_ string, mode *serial.Mode) (serial.Port, error) {
		got = mode
		return nil, errors.New("unplugged")
	}}
	_, _ = d.Dial(context.Background(), usbDevice("COM3"))
	require.NotNil(t, got)
	assert.Equal(t, DefaultBaudRate, got.BaudRate)
}

func TestSerialDialer_OpenTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	d := &SerialDialer{open: func(string, *serial.Mode) (serial.Port, error) {
		<-release
		return nil, errors.New("gave up")
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := d.Dial(ctx, usbDevice("/dev/ttyUSB0"))
	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonTimeout, ce.Reason)
}

func TestClassifyPortError_Generic(t *testing.T) {
	assert.Equal(t, ReasonUnreachable, classifyPortError(errors.New("boom")))
}
