package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/lifecycle"
	"github.com/CaioWing/Tether/internal/transport"
)

type orchestratorEnv struct {
	orch     *Orchestrator
	devices  *mockDeviceRepo
	payloads *mockPayloadRepo
	deploys  *mockDeploymentRepo
	store    *mockFileStore
	device   *fakeDevice
	recorder *countingRecorder
}

func newTestOrchestrator(dev *fakeDevice, cfg OrchestratorConfig) *orchestratorEnv {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	deploys := newMockDeploymentRepo()
	env := &orchestratorEnv{
		devices:  newMockDeviceRepo(),
		payloads: newMockPayloadRepo(deploys),
		deploys:  deploys,
		store:    newMockFileStore(),
		device:   dev,
		recorder: &countingRecorder{},
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = time.Second
	}
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = time.Second
	}
	if cfg.ResultTimeout == 0 {
		cfg.ResultTimeout = time.Second
	}
	env.orch = NewOrchestrator(OrchestratorDeps{
		Deployments: deploys,
		Devices:     env.devices,
		Payloads:    env.payloads,
		Store:       env.store,
		Opener:      dev,
		Machine:     lifecycle.NewMachine(deploys),
		Recorder:    env.recorder,
	}, cfg, log)
	return env
}

func (e *orchestratorEnv) seedDevice(t *testing.T, name string) *domain.Device {
	t.Helper()
	d := &domain.Device{
		Name:           name,
		ConnectionType: domain.ConnectionNetwork,
		Status:         domain.DeviceStatusOffline,
		IPAddress:      "192.168.4.1",
	}
	if err := e.devices.Create(context.Background(), d); err != nil {
		t.Fatalf("seed device: %v", err)
	}
	return d
}

func (e *orchestratorEnv) seedDeployment(t *testing.T, device *domain.Device) *domain.Deployment {
	t.Helper()
	ctx := context.Background()
	path, size, _ := e.store.Save(uuid.NewString(), strings.NewReader("echo hello\n"))
	p := &domain.Payload{Name: "hello-" + uuid.NewString()[:6], Version: "1.0.0", Size: size, StoragePath: path}
	if err := e.payloads.Create(ctx, p); err != nil {
		t.Fatalf("seed payload: %v", err)
	}
	dep := &domain.Deployment{PayloadID: p.ID, DeviceID: device.ID, Status: domain.DeploymentStatusPending}
	if err := e.deploys.Create(ctx, dep); err != nil {
		t.Fatalf("seed deployment: %v", err)
	}
	return dep
}

func okResult(output string) *transport.Frame {
	return &transport.Frame{Type: transport.FrameResult, OK: true, Output: output}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDeploy_Success(t *testing.T) {
	env := newTestOrchestrator(&fakeDevice{result: okResult("hello")}, OrchestratorConfig{})
	device := env.seedDevice(t, "bench-1")
	dep := env.seedDeployment(t, device)

	ts, err := env.orch.Deploy(context.Background(), dep.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Status != domain.DeploymentStatusCompleted || ts.Result != "hello" {
		t.Fatalf("expected completed/hello, got %+v", ts)
	}

	got := env.deploys.get(dep.ID)
	if got.Result == nil || *got.Result != "hello" {
		t.Fatalf("expected persisted result hello, got %v", got.Result)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Fatal("expected started_at and finished_at to be set")
	}
	want := []domain.DeploymentStatus{domain.DeploymentStatusConnected, domain.DeploymentStatusExecuting, domain.DeploymentStatusCompleted}
	if len(env.deploys.history) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, env.deploys.history)
	}
	for i := range want {
		if env.deploys.history[i] != want[i] {
			t.Fatalf("expected transitions %v, got %v", want, env.deploys.history)
		}
	}

	if s := env.devices.status(device.ID); s != domain.DeviceStatusOnline {
		t.Fatalf("expected device online, got %s", s)
	}
	if d, _ := env.devices.GetByID(context.Background(), device.ID); d.LastSeen == nil {
		t.Fatal("expected last_seen to be recorded")
	}
	if n := env.device.closes.Load(); n != 1 {
		t.Fatalf("expected session closed once, got %d", n)
	}
	if env.recorder.finished[domain.DeploymentStatusCompleted] != 1 {
		t.Fatalf("expected one completed run recorded, got %v", env.recorder.finished)
	}
}

func TestDeploy_OpenFails(t *testing.T) {
	openErr := &transport.ConnectionError{Reason: transport.ReasonUnreachable, Address: "192.168.4.1:4242", Err: errors.New("connection refused")}
	env := newTestOrchestrator(&fakeDevice{openErr: openErr}, OrchestratorConfig{})
	device := env.seedDevice(t, "bench-1")
	dep := env.seedDeployment(t, device)

	ts, err := env.orch.Deploy(context.Background(), dep.ID)
	if err != nil {
		t.Fatalf("transport failures must not be returned, got %v", err)
	}
	if ts.Status != domain.DeploymentStatusFailed {
		t.Fatalf("expected failed, got %s", ts.Status)
	}

	got := env.deploys.get(dep.ID)
	if got.Result == nil || !strings.Contains(*got.Result, "connection failed") {
		t.Fatalf("expected connection failure result, got %v", got.Result)
	}
	if s := env.devices.status(device.ID); s == domain.DeviceStatusBusy {
		t.Fatal("device must not stay busy")
	}
	if n := env.device.closes.Load(); n != 0 {
		t.Fatalf("no session was opened, expected 0 closes, got %d", n)
	}
}

func TestDeploy_OpenTimeout(t *testing.T) {
	env := newTestOrchestrator(&fakeDevice{gate: make(chan struct{})}, OrchestratorConfig{OpenTimeout: 30 * time.Millisecond})
	device := env.seedDevice(t, "bench-1")
	dep := env.seedDeployment(t, device)

	ts, err := env.orch.Deploy(context.Background(), dep.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Status != domain.DeploymentStatusFailed || !strings.Contains(ts.Result, "timed out") {
		t.Fatalf("expected open timeout failure, got %+v", ts)
	}
	if s := env.devices.status(device.ID); s != domain.DeviceStatusOffline {
		t.Fatalf("expected device offline, got %s", s)
	}
}

func TestDeploy_AckTimeout(t *testing.T) {
	env := newTestOrchestrator(&fakeDevice{noAck: true}, OrchestratorConfig{AckTimeout: 40 * time.Millisecond})
	device := env.seedDevice(t, "bench-1")
	dep := env.seedDeployment(t, device)

	ts, err := env.orch.Deploy(context.Background(), dep.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Status != domain.DeploymentStatusFailed || !strings.Contains(ts.Result, "acknowledgement") {
		t.Fatalf("expected ack timeout failure, got %+v", ts)
	}
	if n := env.device.closes.Load(); n != 1 {
		t.Fatalf("expected session closed once, got %d", n)
	}
}

func TestDeploy_SendFails(t *testing.T) {
	env := newTestOrchestrator(&fakeDevice{sendErr: errors.New("broken pipe")}, OrchestratorConfig{})
	device := env.seedDevice(t, "bench-1")
	dep := env.seedDeployment(t, device)

	ts, err := env.orch.Deploy(context.Background(), dep.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Status != domain.DeploymentStatusFailed || !strings.Contains(ts.Result, "broken pipe") {
		t.Fatalf("expected send failure, got %+v", ts)
	}
}

func TestDeploy_ResultTimeout(t *testing.T) {
	env := newTestOrchestrator(&fakeDevice{}, OrchestratorConfig{ResultTimeout: 50 * time.Millisecond})
	device := env.seedDevice(t, "bench-1")
	dep := env.seedDeployment(t, device)

	ts, err := env.orch.Deploy(context.Background(), dep.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Status != domain.DeploymentStatusFailed {
		t.Fatalf("expected failed, got %s", ts.Status)
	}
	if !strings.Contains(ts.Result, "timed out waiting for execution result") {
		t.Fatalf("expected timeout-attributed result, got %q", ts.Result)
	}
	if n := env.device.closes.Load(); n != 1 {
		t.Fatalf("expected session closed exactly once, got %d", n)
	}
	// The device acknowledged, so it is reachable.
	if s := env.devices.status(device.ID); s != domain.DeviceStatusOnline {
		t.Fatalf("expected device online, got %s", s)
	}
}

func TestDeploy_ExecutionFailure(t *testing.T) {
	res := &transport.Frame{Type: transport.FrameResult, OK: false, Error: "exit status 2"}
	env := newTestOrchestrator(&fakeDevice{result: res}, OrchestratorConfig{})
	device := env.seedDevice(t, "bench-1")
	dep := env.seedDeployment(t, device)

	ts, err := env.orch.Deploy(context.Background(), dep.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Status != domain.DeploymentStatusFailed || ts.Result != "execution failed: exit status 2" {
		t.Fatalf("expected execution failure, got %+v", ts)
	}
	if env.recorder.finished[domain.DeploymentStatusFailed] != 1 {
		t.Fatalf("expected one failed run recorded, got %v", env.recorder.finished)
	}
}

func TestDeploy_NotFound(t *testing.T) {
	env := newTestOrchestrator(&fakeDevice{result: okResult("ok")}, OrchestratorConfig{})

	_, err := env.orch.Deploy(context.Background(), uuid.New())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	device := env.seedDevice(t, "bench-1")
	dep := &domain.Deployment{PayloadID: uuid.New(), DeviceID: device.ID, Status: domain.DeploymentStatusPending}
	env.deploys.Create(context.Background(), dep)

	_, err = env.orch.Deploy(context.Background(), dep.ID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing payload, got %v", err)
	}
	if s := env.devices.status(device.ID); s != domain.DeviceStatusOffline {
		t.Fatalf("device must not be claimed, got %s", s)
	}
	if got := env.deploys.get(dep.ID); got.Status != domain.DeploymentStatusPending {
		t.Fatalf("deployment must stay pending, got %s", got.Status)
	}
}

func TestDeploy_NotPending(t *testing.T) {
	env := newTestOrchestrator(&fakeDevice{result: okResult("ok")}, OrchestratorConfig{})
	device := env.seedDevice(t, "bench-1")
	dep := env.seedDeployment(t, device)

	if _, err := env.orch.Deploy(context.Background(), dep.ID); err != nil {
		t.Fatalf("first deploy: %v", err)
	}
	_, err := env.orch.Deploy(context.Background(), dep.ID)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for terminal deployment, got %v", err)
	}
}

func TestDeploy_ConcurrentSameDevice(t *testing.T) {
	gate := make(chan struct{})
	env := newTestOrchestrator(&fakeDevice{gate: gate, result: okResult("ok")}, OrchestratorConfig{OpenTimeout: 5 * time.Second})
	device := env.seedDevice(t, "bench-1")

	const n = 8
	deps := make([]*domain.Deployment, n)
	for i := range deps {
		deps[i] = env.seedDeployment(t, device)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		conflicts int
		winners   []TerminalStatus
	)
	for _, dep := range deps {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			ts, err := env.orch.Deploy(context.Background(), id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			case err == nil:
				winners = append(winners, ts)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(dep.ID)
	}

	waitFor(t, "losers to be rejected", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return conflicts == n-1
	})
	close(gate)
	wg.Wait()

	if len(winners) != 1 || winners[0].Status != domain.DeploymentStatusCompleted {
		t.Fatalf("expected exactly one completed run, got %+v", winners)
	}
	pending := 0
	for _, dep := range deps {
		if env.deploys.get(dep.ID).Status == domain.DeploymentStatusPending {
			pending++
		}
	}
	if pending != n-1 {
		t.Fatalf("expected %d deployments left pending, got %d", n-1, pending)
	}
}

func TestDeploy_StoreFailureStillReleasesDevice(t *testing.T) {
	env := newTestOrchestrator(&fakeDevice{result: okResult("ok")}, OrchestratorConfig{})
	env.deploys.failTransitionTo = domain.DeploymentStatusCompleted
	env.deploys.transitionErr = errStoreDown
	device := env.seedDevice(t, "bench-1")
	dep := env.seedDeployment(t, device)

	_, err := env.orch.Deploy(context.Background(), dep.ID)
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if got := env.deploys.get(dep.ID); got.Status != domain.DeploymentStatusExecuting {
		t.Fatalf("expected last persisted status executing, got %s", got.Status)
	}
	if s := env.devices.status(device.ID); s == domain.DeviceStatusBusy {
		t.Fatal("device must be released after a store failure")
	}
	if n := env.device.closes.Load(); n != 1 {
		t.Fatalf("expected session closed once, got %d", n)
	}
}

func TestDeploy_DeviceDeletedMidFlight(t *testing.T) {
	dev := &fakeDevice{result: okResult("ok")}
	env := newTestOrchestrator(dev, OrchestratorConfig{})
	device := env.seedDevice(t, "bench-1")
	dep := env.seedDeployment(t, device)
	dev.onOpen = func() { env.devices.Delete(context.Background(), device.ID) }

	ts, err := env.orch.Deploy(context.Background(), dep.ID)
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if ts.Status != domain.DeploymentStatusCompleted {
		t.Fatalf("expected the persisted outcome to be reported, got %+v", ts)
	}
}

func TestDeploy_CancelledContext(t *testing.T) {
	env := newTestOrchestrator(&fakeDevice{}, OrchestratorConfig{ResultTimeout: 5 * time.Second})
	device := env.seedDevice(t, "bench-1")
	dep := env.seedDeployment(t, device)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	ts, err := env.orch.Deploy(ctx, dep.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Status != domain.DeploymentStatusFailed || !strings.HasPrefix(ts.Result, "cancelled") {
		t.Fatalf("expected cancellation result, got %+v", ts)
	}
}

func TestCancel_WhileExecuting(t *testing.T) {
	env := newTestOrchestrator(&fakeDevice{}, OrchestratorConfig{ResultTimeout: 10 * time.Second})
	device := env.seedDevice(t, "bench-1")
	dep := env.seedDeployment(t, device)

	if err := env.orch.Start(context.Background(), dep.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "executing", func() bool {
		return env.deploys.get(dep.ID).Status == domain.DeploymentStatusExecuting
	})

	start := time.Now()
	if err := env.orch.Cancel(context.Background(), dep.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	env.orch.Wait()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cancellation took %s", elapsed)
	}

	got := env.deploys.get(dep.ID)
	if got.Status != domain.DeploymentStatusFailed || got.Result == nil || *got.Result != "cancelled by operator" {
		t.Fatalf("expected cancelled failure, got %s %v", got.Status, got.Result)
	}
	if s := env.devices.status(device.ID); s == domain.DeviceStatusBusy {
		t.Fatal("device must be released after cancellation")
	}
	if n := env.device.closes.Load(); n != 1 {
		t.Fatalf("expected session closed once, got %d", n)
	}
	if env.orch.Running(dep.ID) {
		t.Fatal("run should be unregistered")
	}
}

func TestCancel_PendingNotRunning(t *testing.T) {
	env := newTestOrchestrator(&fakeDevice{}, OrchestratorConfig{})
	device := env.seedDevice(t, "bench-1")
	dep := env.seedDeployment(t, device)

	if err := env.orch.Cancel(context.Background(), dep.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got := env.deploys.get(dep.ID)
	if got.Status != domain.DeploymentStatusFailed || got.Result == nil || *got.Result == "" {
		t.Fatalf("expected failed with result, got %s %v", got.Status, got.Result)
	}
}

func TestCancel_TerminalAndUnknown(t *testing.T) {
	env := newTestOrchestrator(&fakeDevice{result: okResult("ok")}, OrchestratorConfig{})
	device := env.seedDevice(t, "bench-1")
	dep := env.seedDeployment(t, device)
	env.orch.Deploy(context.Background(), dep.ID)

	if err := env.orch.Cancel(context.Background(), dep.ID); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := env.orch.Cancel(context.Background(), uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStart_ConflictIsSynchronous(t *testing.T) {
	gate := make(chan struct{})
	env := newTestOrchestrator(&fakeDevice{gate: gate, result: okResult("ok")}, OrchestratorConfig{OpenTimeout: 5 * time.Second})
	device := env.seedDevice(t, "bench-1")
	first := env.seedDeployment(t, device)
	second := env.seedDeployment(t, device)

	if err := env.orch.Start(context.Background(), first.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.orch.Start(context.Background(), second.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	close(gate)
	env.orch.Wait()

	if got := env.deploys.get(first.ID); got.Status != domain.DeploymentStatusCompleted {
		t.Fatalf("expected first completed, got %s", got.Status)
	}
}

func TestShutdown_InterruptsRuns(t *testing.T) {
	env := newTestOrchestrator(&fakeDevice{}, OrchestratorConfig{ResultTimeout: 10 * time.Second})
	device := env.seedDevice(t, "bench-1")
	dep := env.seedDeployment(t, device)

	if err := env.orch.Start(context.Background(), dep.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "executing", func() bool {
		return env.deploys.get(dep.ID).Status == domain.DeploymentStatusExecuting
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	env.orch.Shutdown(ctx)

	got := env.deploys.get(dep.ID)
	if got.Status != domain.DeploymentStatusFailed || got.Result == nil || !strings.Contains(*got.Result, "shutting down") {
		t.Fatalf("expected shutdown failure, got %s %v", got.Status, got.Result)
	}
}

func TestRecover(t *testing.T) {
	env := newTestOrchestrator(&fakeDevice{}, OrchestratorConfig{})
	ctx := context.Background()

	stuck := make([]*domain.Deployment, 0, 2)
	for i, status := range []domain.DeploymentStatus{domain.DeploymentStatusConnected, domain.DeploymentStatusExecuting} {
		device := env.seedDevice(t, "bench-"+string(rune('a'+i)))
		env.devices.Claim(ctx, device.ID)
		dep := env.seedDeployment(t, device)
		env.deploys.deployments[dep.ID].Status = status
		stuck = append(stuck, dep)
	}
	idle := env.seedDeployment(t, env.seedDevice(t, "bench-idle"))

	n, err := env.orch.Recover(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 recovered deployments, got %d", n)
	}
	for _, dep := range stuck {
		got := env.deploys.get(dep.ID)
		if got.Status != domain.DeploymentStatusFailed || got.Result == nil || *got.Result != interruptedOnRestart {
			t.Fatalf("expected interrupted failure, got %s %v", got.Status, got.Result)
		}
		if s := env.devices.status(dep.DeviceID); s != domain.DeviceStatusOffline {
			t.Fatalf("expected device offline, got %s", s)
		}
	}
	if got := env.deploys.get(idle.ID); got.Status != domain.DeploymentStatusPending {
		t.Fatalf("pending deployment must be untouched, got %s", got.Status)
	}
}
