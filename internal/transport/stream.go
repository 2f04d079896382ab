package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// streamSession frames an io.ReadWriteCloser into lines. A reader goroutine
// feeds frames so that Receive can honor both its timeout and ctx.
type streamSession struct {
	link       io.ReadWriteCloser
	onActivity func(time.Time)

	frames   chan []byte
	readDone chan struct{}
	readErr  error
	closed   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu           sync.Mutex
	state        State
	lastActivity time.Time
}

func newStreamSession(link io.ReadWriteCloser, onActivity func(time.Time)) *streamSession {
	s := &streamSession{
		link:       link,
		onActivity: onActivity,
		frames:     make(chan []byte, 16),
		readDone:   make(chan struct{}),
		closed:     make(chan struct{}),
		state:      StateOpen,
	}
	s.touch()
	go s.readLoop()
	return s
}

func (s *streamSession) readLoop() {
	defer close(s.readDone)
	r := bufio.NewReader(s.link)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			s.readErr = err
			return
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}
		select {
		case s.frames <- line:
		case <-s.closed:
			return
		}
	}
}

func (s *streamSession) Send(ctx context.Context, frame []byte) error {
	if s.State() != StateOpen {
		return &IOError{Op: "send", Err: ErrClosed}
	}

	done := make(chan error, 1)
	go func() {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		_, err := s.link.Write(frame)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return &IOError{Op: "send", Err: err}
		}
		s.touch()
		return nil
	case <-ctx.Done():
		// The write may still be blocked in the driver; closing the link is
		// the only way to interrupt it.
		s.Close()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}

func (s *streamSession) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if s.State() != StateOpen {
		return nil, &IOError{Op: "receive", Err: ErrClosed}
	}
	if timeout < 0 {
		timeout = 0
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line := <-s.frames:
		s.touch()
		return line, nil
	case <-s.readDone:
		select {
		case line := <-s.frames:
			s.touch()
			return line, nil
		default:
		}
		return nil, s.readFailure()
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *streamSession) readFailure() error {
	select {
	case <-s.closed:
		return &IOError{Op: "receive", Err: ErrClosed}
	default:
	}
	if s.readErr == io.EOF {
		return &IOError{Op: "receive", Err: errors.New("device closed the connection")}
	}
	return &IOError{Op: "receive", Err: s.readErr}
}

func (s *streamSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		close(s.closed)
		s.link.Close()
	})
	return nil
}

func (s *streamSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *streamSession) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *streamSession) touch() {
	now := time.Now()
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
	if s.onActivity != nil {
		s.onActivity(now)
	}
}
