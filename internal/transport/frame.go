package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type FrameType string

const (
	FrameExec   FrameType = "exec"
	FrameAck    FrameType = "ack"
	FrameResult FrameType = "result"
)

// Frame is one newline-delimited JSON message on the link.
type Frame struct {
	Type         FrameType `json:"type"`
	DeploymentID string    `json:"deployment_id,omitempty"`
	Payload      string    `json:"payload,omitempty"`
	Version      string    `json:"version,omitempty"`
	Script       []byte    `json:"script,omitempty"`
	OK           bool      `json:"ok,omitempty"`
	Output       string    `json:"output,omitempty"`
	Error        string    `json:"error,omitempty"`
}

func EncodeFrame(f Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return append(b, '\n'), nil
}

func DecodeFrame(line []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, errors.New("decode frame: missing type")
	}
	return f, nil
}

// Await reads lines until a frame of the wanted type arrives. Other frames
// and undecodable lines are skipped. The whole wait is bounded by timeout.
func Await(ctx context.Context, s Session, want FrameType, timeout time.Duration) (Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Frame{}, ErrTimeout
		}
		line, err := s.Receive(ctx, remaining)
		if err != nil {
			return Frame{}, err
		}
		f, err := DecodeFrame(line)
		if err != nil || f.Type != want {
			continue
		}
		return f, nil
	}
}
