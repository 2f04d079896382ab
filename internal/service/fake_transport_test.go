package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/transport"
)

// fakeDevice scripts how a device answers.
type fakeDevice struct {
	openErr error
	// gate, when set, blocks Open until it is closed or ctx ends.
	gate    chan struct{}
	onOpen  func()
	sendErr error
	noAck   bool
	// result is sent after the ack; nil means the device never answers.
	result *transport.Frame

	opens  atomic.Int32
	closes atomic.Int32
}

func (f *fakeDevice) Open(ctx context.Context, device *domain.Device) (transport.Session, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, &transport.ConnectionError{Reason: transport.ReasonTimeout, Address: device.Address(), Err: ctx.Err()}
		}
	}
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens.Add(1)
	if f.onOpen != nil {
		f.onOpen()
	}
	return &fakeSession{dev: f, lines: make(chan []byte, 4), last: time.Now()}, nil
}

type fakeSession struct {
	dev   *fakeDevice
	lines chan []byte

	mu     sync.Mutex
	last   time.Time
	closed bool
}

func (s *fakeSession) Send(ctx context.Context, frame []byte) error {
	if s.dev.sendErr != nil {
		return &transport.IOError{Op: "send", Err: s.dev.sendErr}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.dev.noAck {
		ack, _ := transport.EncodeFrame(transport.Frame{Type: transport.FrameAck})
		s.lines <- ack[:len(ack)-1]
		if s.dev.result != nil {
			res, _ := transport.EncodeFrame(*s.dev.result)
			s.lines <- res[:len(res)-1]
		}
	}
	s.touch()
	return nil
}

func (s *fakeSession) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case line := <-s.lines:
		s.touch()
		return line, nil
	case <-timer.C:
		return nil, transport.ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dev.closes.Add(1)
	s.closed = true
	return nil
}

func (s *fakeSession) State() transport.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transport.StateClosed
	}
	return transport.StateOpen
}

func (s *fakeSession) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *fakeSession) touch() {
	s.mu.Lock()
	s.last = time.Now()
	s.mu.Unlock()
}

type countingRecorder struct {
	mu       sync.Mutex
	finished map[domain.DeploymentStatus]int
}

func (r *countingRecorder) RunFinished(status domain.DeploymentStatus, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = make(map[domain.DeploymentStatus]int)
	}
	r.finished[status]++
}
