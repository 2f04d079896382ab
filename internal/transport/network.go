package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/CaioWing/Tether/internal/domain"
)

// NetworkDialer reaches devices over TCP at IPAddress:Port.
type NetworkDialer struct {
	Port    int
	Timeout time.Duration
}

func (d *NetworkDialer) Dial(ctx context.Context, device *domain.Device) (io.ReadWriteCloser, error) {
	addr, err := d.address(device.IPAddress)
	if err != nil {
		return nil, &ConnectionError{Reason: ReasonAddress, Address: device.IPAddress, Err: err}
	}

	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Reason: classifyDialError(ctx, err), Address: addr, Err: err}
	}
	return conn, nil
}

func (d *NetworkDialer) address(ip string) (string, error) {
	if ip == "" {
		return "", errors.New("no IP address configured")
	}
	if host, _, err := net.SplitHostPort(ip); err == nil && host != "" {
		return ip, nil
	}
	port := d.Port
	if port == 0 {
		port = DefaultDevicePort
	}
	return net.JoinHostPort(ip, strconv.Itoa(port)), nil
}

func classifyDialError(ctx context.Context, err error) Reason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonTimeout
	}
	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
		return ReasonPermission
	}
	return ReasonUnreachable
}

const DefaultDevicePort = 4242
