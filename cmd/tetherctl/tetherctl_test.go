package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CaioWing/Tether/internal/diagnostics"
	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/service"
)

type hostEnv struct{}

func (hostEnv) Available(domain.ConnectionType) bool { return true }
func (hostEnv) Ports() ([]string, error)            { return []string{"/dev/ttyUSB0"}, nil }

func newWalkthrough(t *testing.T, ct domain.ConnectionType, address string) *diagnostics.Walkthrough {
	t.Helper()
	engine, err := diagnostics.NewEngine(hostEnv{})
	require.NoError(t, err)
	w, err := diagnostics.NewWalkthrough(engine, ct, address)
	require.NoError(t, err)
	return w
}

func outcomes(results []diagnostics.CheckResult) map[string]diagnostics.Outcome {
	m := make(map[string]diagnostics.Outcome, len(results))
	for _, r := range results {
		m[r.CheckID] = r.Outcome
	}
	return m
}

func TestRunWalkthrough_AllYesPasses(t *testing.T) {
	w := newWalkthrough(t, domain.ConnectionNetwork, "192.168.1.40")
	var prompts bytes.Buffer

	results, err := runWalkthrough(w, strings.NewReader("y\nyes\nY\ntrue\n"), &prompts)
	require.NoError(t, err)
	assert.True(t, diagnostics.Passed(results))
	assert.Equal(t, 4, strings.Count(prompts.String(), "[y/n]"))
}

func TestRunWalkthrough_RepromptsOnGarbage(t *testing.T) {
	w := newWalkthrough(t, domain.ConnectionNetwork, "192.168.1.40")
	var prompts bytes.Buffer

	results, err := runWalkthrough(w, strings.NewReader("maybe\nn\ny\ny\ny\n"), &prompts)
	require.NoError(t, err)
	assert.Contains(t, prompts.String(), "please answer y or n")

	got := outcomes(results)
	assert.Equal(t, diagnostics.OutcomeFail, got["device-powered"])
	assert.Equal(t, diagnostics.OutcomePass, got["firewall"])
	assert.False(t, diagnostics.Passed(results))
}

func TestRunWalkthrough_EndOfInputLeavesUnknown(t *testing.T) {
	w := newWalkthrough(t, domain.ConnectionUSB, "/dev/ttyUSB0")

	results, err := runWalkthrough(w, strings.NewReader("y\n"), &bytes.Buffer{})
	require.NoError(t, err)

	got := outcomes(results)
	assert.Equal(t, diagnostics.OutcomePass, got["port-present"])
	assert.Equal(t, diagnostics.OutcomePass, got["cable-seated"])
	assert.Equal(t, diagnostics.OutcomeUnknown, got["driver-installed"])
}

func TestRunWalkthrough_NilInputDoesNotPrompt(t *testing.T) {
	w := newWalkthrough(t, domain.ConnectionUSB, "/dev/ttyUSB0")
	require.NoError(t, w.Attest("cable-seated", false))
	var prompts bytes.Buffer

	results, err := runWalkthrough(w, nil, &prompts)
	require.NoError(t, err)
	assert.Empty(t, prompts.String())
	assert.Equal(t, diagnostics.OutcomeFail, outcomes(results)["cable-seated"])
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		in       string
		resolved bool
		ok       bool
	}{
		{"y", true, true},
		{" YES ", true, true},
		{"n", false, true},
		{"false", false, true},
		{"", false, false},
		{"sure", false, false},
	}
	for _, tt := range tests {
		resolved, ok := parseAnswer(tt.in)
		assert.Equal(t, tt.resolved, resolved, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

type fakeDeployer struct {
	inFlight, peak atomic.Int32
	fail           map[uuid.UUID]error
}

func (f *fakeDeployer) Deploy(ctx context.Context, id uuid.UUID) (service.TerminalStatus, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)

	if err := f.fail[id]; err != nil {
		return service.TerminalStatus{}, err
	}
	return service.TerminalStatus{Status: domain.DeploymentStatusCompleted, Result: "ok"}, nil
}

func TestDeployAll_KeepsOrderAndLimit(t *testing.T) {
	ids := make([]uuid.UUID, 6)
	for i := range ids {
		ids[i] = uuid.New()
	}
	d := &fakeDeployer{fail: map[uuid.UUID]error{ids[2]: errors.New("device busy")}}

	out := deployAll(context.Background(), d, ids, 2)

	require.Len(t, out, len(ids))
	for i, o := range out {
		assert.Equal(t, ids[i], o.ID)
	}
	assert.Equal(t, "device busy", out[2].Error)
	assert.Equal(t, domain.DeploymentStatusCompleted, out[5].Status)
	assert.LessOrEqual(t, d.peak.Load(), int32(2))
}
