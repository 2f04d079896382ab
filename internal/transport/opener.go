package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/CaioWing/Tether/internal/domain"
)

// Dialer produces the raw link for one transport variant.
type Dialer interface {
	Dial(ctx context.Context, device *domain.Device) (io.ReadWriteCloser, error)
}

// Toucher persists a device's lastSeen time.
type Toucher interface {
	TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error
}

type Opener struct {
	dialers map[domain.ConnectionType]Dialer
	probe   CapabilityProbe
	touch   Toucher
	log     *slog.Logger
}

func NewOpener(probe CapabilityProbe, touch Toucher, log *slog.Logger) *Opener {
	return &Opener{
		dialers: make(map[domain.ConnectionType]Dialer),
		probe:   probe,
		touch:   touch,
		log:     log,
	}
}

// Register installs the dialer used for connection type t.
func (o *Opener) Register(t domain.ConnectionType, d Dialer) *Opener {
	o.dialers[t] = d
	return o
}

// Open connects to device. Failures are always *ConnectionError.
func (o *Opener) Open(ctx context.Context, device *domain.Device) (Session, error) {
	dialer, ok := o.dialers[device.ConnectionType]
	if !ok || (o.probe != nil && !o.probe.Available(device.ConnectionType)) {
		return nil, &ConnectionError{
			Reason:  ReasonUnsupported,
			Address: device.Address(),
			Err:     fmt.Errorf("%s transport is not available in this runtime", device.ConnectionType),
		}
	}

	link, err := dialer.Dial(ctx, device)
	if err != nil {
		var ce *ConnectionError
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, &ConnectionError{Reason: ReasonUnreachable, Address: device.Address(), Err: err}
	}

	deviceID := device.ID
	bg := context.WithoutCancel(ctx)
	s := newStreamSession(link, func(at time.Time) {
		if o.touch == nil {
			return
		}
		if err := o.touch.TouchLastSeen(bg, deviceID, at); err != nil {
			o.log.Warn("failed to record last seen", "device", deviceID, "err", err)
		}
	})
	o.log.Debug("transport session opened", "device", deviceID, "type", device.ConnectionType, "address", device.Address())
	return s, nil
}
