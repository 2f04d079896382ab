package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/lifecycle"
	"github.com/CaioWing/Tether/internal/storage"
	"github.com/CaioWing/Tether/internal/transport"
)

var (
	errCancelledByOperator = errors.New("cancelled by operator")
	errShuttingDown        = errors.New("interrupted: orchestrator shutting down")
)

const interruptedOnRestart = "interrupted: orchestrator restarted"

// SessionOpener opens a transport session to a device.
type SessionOpener interface {
	Open(ctx context.Context, device *domain.Device) (transport.Session, error)
}

// RunRecorder receives one call per finished run.
type RunRecorder interface {
	RunFinished(status domain.DeploymentStatus, elapsed time.Duration)
}

type OrchestratorConfig struct {
	OpenTimeout   time.Duration
	AckTimeout    time.Duration
	ResultTimeout time.Duration
}

type OrchestratorDeps struct {
	Deployments domain.DeploymentRepository
	Devices     domain.DeviceRepository
	Payloads    domain.PayloadRepository
	Store       storage.FileStore
	Opener      SessionOpener
	Machine     *lifecycle.Machine
	Recorder    RunRecorder
}

// TerminalStatus is the outcome of one deploy run.
type TerminalStatus struct {
	Status domain.DeploymentStatus `json:"status"`
	Result string                  `json:"result"`
}

// Orchestrator drives deployments from pending to a terminal status. The
// device busy flag is claimed with a conditional write before anything else
// is mutated, so a second run against the same device fails with ErrConflict
// instead of queueing.
type Orchestrator struct {
	deps OrchestratorDeps
	cfg  OrchestratorConfig
	log  *slog.Logger

	mu   sync.Mutex
	runs map[uuid.UUID]context.CancelCauseFunc
	wg   sync.WaitGroup
}

func NewOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig, log *slog.Logger) *Orchestrator {
	if deps.Machine == nil {
		deps.Machine = lifecycle.NewMachine(deps.Deployments)
	}
	return &Orchestrator{
		deps: deps,
		cfg:  cfg,
		log:  log,
		runs: make(map[uuid.UUID]context.CancelCauseFunc),
	}
}

// run is the state owned by one deploy invocation.
type run struct {
	ctx     context.Context
	cancel  context.CancelCauseFunc
	dep     *domain.Deployment
	device  *domain.Device
	payload *domain.Payload
	script  []byte
	started time.Time

	status   domain.DeploymentStatus
	answered bool
	lastSeen *time.Time
}

// Deploy runs deployment id to completion. NotFound and Conflict errors are
// returned before anything is mutated. Transport failures end the deployment
// in failed and are not returned. A failed persistence write returns
// ErrStore and leaves the last persisted status authoritative.
func (o *Orchestrator) Deploy(ctx context.Context, id uuid.UUID) (TerminalStatus, error) {
	r, err := o.prepare(ctx, ctx, id)
	if err != nil {
		return TerminalStatus{}, err
	}
	return o.drive(r)
}

// Start validates and claims like Deploy, then drives the run in the
// background. The run is not bound to ctx; use Cancel to stop it.
func (o *Orchestrator) Start(ctx context.Context, id uuid.UUID) error {
	r, err := o.prepare(ctx, context.WithoutCancel(ctx), id)
	if err != nil {
		return err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.drive(r); err != nil {
			o.log.Error("deployment run failed", "id", id, "err", err)
		}
	}()
	return nil
}

// prepare loads and claims everything a run needs. The run's context derives
// from parent.
func (o *Orchestrator) prepare(ctx, parent context.Context, id uuid.UUID) (*run, error) {
	dep, err := o.deps.Deployments.GetByID(ctx, id)
	if err != nil {
		return nil, loadErr("deployment", err)
	}
	if dep.Status != domain.DeploymentStatusPending {
		return nil, fmt.Errorf("%w: deployment is %s", domain.ErrConflict, dep.Status)
	}
	device, err := o.deps.Devices.GetByID(ctx, dep.DeviceID)
	if err != nil {
		return nil, loadErr("device", err)
	}
	payload, err := o.deps.Payloads.GetByID(ctx, dep.PayloadID)
	if err != nil {
		return nil, loadErr("payload", err)
	}
	script, err := o.readScript(payload)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancelCause(parent)

	o.mu.Lock()
	if _, running := o.runs[id]; running {
		o.mu.Unlock()
		cancel(nil)
		return nil, fmt.Errorf("%w: deployment %s is already running", domain.ErrConflict, id)
	}
	o.runs[id] = cancel
	o.mu.Unlock()

	if err := o.deps.Devices.Claim(ctx, device.ID); err != nil {
		o.unregister(id)
		cancel(nil)
		switch {
		case errors.Is(err, domain.ErrConflict):
			return nil, fmt.Errorf("%w: device %s is busy", domain.ErrConflict, device.ID)
		case errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("device: %w", err)
		default:
			return nil, storeErr("claim device", err)
		}
	}

	return &run{
		ctx:     runCtx,
		cancel:  cancel,
		dep:     dep,
		device:  device,
		payload: payload,
		script:  script,
		started: time.Now(),
		status:  domain.DeploymentStatusPending,
	}, nil
}

func (o *Orchestrator) readScript(p *domain.Payload) ([]byte, error) {
	f, err := o.deps.Store.Open(p.StoragePath)
	if err != nil {
		return nil, storeErr("open payload script", err)
	}
	defer f.Close()
	script, err := io.ReadAll(f)
	if err != nil {
		return nil, storeErr("read payload script", err)
	}
	return script, nil
}

func (o *Orchestrator) drive(r *run) (ts TerminalStatus, err error) {
	log := o.log.With("id", r.dep.ID, "device", r.device.ID)
	log.Info("deployment started", "payload", r.payload.Name, "version", r.payload.Version)

	defer func() {
		o.unregister(r.dep.ID)
		r.cancel(nil)
		if relErr := o.release(r); relErr != nil && err == nil {
			err = relErr
		}
		if o.deps.Recorder != nil && r.status.Terminal() {
			o.deps.Recorder.RunFinished(r.status, time.Since(r.started))
		}
		log.Info("deployment finished", "status", r.status, "elapsed", time.Since(r.started), "err", err)
	}()

	openCtx, cancelOpen := context.WithTimeout(r.ctx, o.cfg.OpenTimeout)
	sess, err := o.deps.Opener.Open(openCtx, r.device)
	cancelOpen()
	if err != nil {
		return o.fail(r, lifecycle.EventOpenFailed, o.describe(r, err, "connection failed", o.cfg.OpenTimeout, "opening the connection"))
	}
	defer func() {
		at := sess.LastActivity()
		r.lastSeen = &at
		sess.Close()
	}()
	if err := o.advance(r, lifecycle.EventOpened, ""); err != nil {
		return TerminalStatus{}, err
	}

	frame, err := transport.EncodeFrame(transport.Frame{
		Type:         transport.FrameExec,
		DeploymentID: r.dep.ID.String(),
		Payload:      r.payload.Name,
		Version:      r.payload.Version,
		Script:       r.script,
	})
	if err != nil {
		return o.fail(r, lifecycle.EventSendFailed, err.Error())
	}

	ackCtx, cancelAck := context.WithTimeout(r.ctx, o.cfg.AckTimeout)
	err = sess.Send(ackCtx, frame)
	if err == nil {
		_, err = transport.Await(ackCtx, sess, transport.FrameAck, o.cfg.AckTimeout)
	}
	cancelAck()
	if err != nil {
		return o.fail(r, lifecycle.EventSendFailed, o.describe(r, err, "send failed", o.cfg.AckTimeout, "acknowledgement"))
	}
	r.answered = true
	if err := o.advance(r, lifecycle.EventAcknowledged, ""); err != nil {
		return TerminalStatus{}, err
	}

	res, err := transport.Await(r.ctx, sess, transport.FrameResult, o.cfg.ResultTimeout)
	if err != nil {
		return o.fail(r, lifecycle.EventExecutionFailed, o.describe(r, err, "execution failed", o.cfg.ResultTimeout, "execution result"))
	}
	if !res.OK {
		msg := res.Error
		if msg == "" {
			msg = res.Output
		}
		if msg == "" {
			msg = "device reported failure without detail"
		}
		return o.fail(r, lifecycle.EventExecutionFailed, "execution failed: "+msg)
	}

	output := res.Output
	if output == "" {
		output = "execution completed with no output"
	}
	if err := o.advance(r, lifecycle.EventSucceeded, output); err != nil {
		return TerminalStatus{}, err
	}
	return TerminalStatus{Status: r.status, Result: output}, nil
}

// advance persists one transition. Writes are not bound to the run's
// cancellation so a cancelled run can still record its failure.
func (o *Orchestrator) advance(r *run, event lifecycle.Event, result string) error {
	to, err := o.deps.Machine.Apply(context.WithoutCancel(r.ctx), r.dep.ID, r.status, event, result)
	if err != nil {
		return err
	}
	r.status = to
	return nil
}

func (o *Orchestrator) fail(r *run, event lifecycle.Event, result string) (TerminalStatus, error) {
	if r.ctx.Err() != nil {
		event = lifecycle.EventCancelled
		result = cancelResult(r.ctx)
	}
	if err := o.advance(r, event, result); err != nil {
		return TerminalStatus{}, err
	}
	return TerminalStatus{Status: r.status, Result: result}, nil
}

// describe turns a transport failure into a result string.
func (o *Orchestrator) describe(r *run, err error, prefix string, timeout time.Duration, waitingFor string) string {
	var ce *transport.ConnectionError
	switch {
	case r.ctx.Err() != nil:
		return cancelResult(r.ctx)
	case errors.Is(err, transport.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out waiting for %s after %s", waitingFor, timeout)
	case errors.As(err, &ce) && ce.Reason == transport.ReasonTimeout:
		return fmt.Sprintf("timed out waiting for %s after %s", waitingFor, timeout)
	case errors.As(err, &ce):
		return fmt.Sprintf("%s: %v; run diagnostics for %s", prefix, err, r.device.ConnectionType)
	default:
		return fmt.Sprintf("%s: %v", prefix, err)
	}
}

func cancelResult(ctx context.Context) string {
	cause := context.Cause(ctx)
	if errors.Is(cause, errCancelledByOperator) || errors.Is(cause, errShuttingDown) {
		return cause.Error()
	}
	return "cancelled: " + cause.Error()
}

func (o *Orchestrator) release(r *run) error {
	status := domain.DeviceStatusOffline
	if r.answered {
		status = domain.DeviceStatusOnline
	}
	err := o.deps.Devices.Release(context.WithoutCancel(r.ctx), r.device.ID, status, r.lastSeen)
	if err == nil {
		return nil
	}
	o.log.Error("failed to release device", "device", r.device.ID, "err", err)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: device %s vanished during deployment", domain.ErrStore, r.device.ID)
	}
	return storeErr("release device", err)
}

func (o *Orchestrator) unregister(id uuid.UUID) {
	o.mu.Lock()
	delete(o.runs, id)
	o.mu.Unlock()
}

// Running reports whether deployment id has a run in progress.
func (o *Orchestrator) Running(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.runs[id]
	return ok
}

// Cancel stops a deployment. A running deployment is interrupted at its
// current open, send or receive and ends failed. A pending deployment that is
// not running is failed directly.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID) error {
	if o.cancelRun(id) {
		return nil
	}

	dep, err := o.deps.Deployments.GetByID(ctx, id)
	if err != nil {
		return loadErr("deployment", err)
	}
	if dep.Status.Terminal() {
		return fmt.Errorf("%w: deployment already %s", domain.ErrInvalidInput, dep.Status)
	}

	_, err = o.deps.Machine.Apply(ctx, id, dep.Status, lifecycle.EventCancelled, errCancelledByOperator.Error())
	if errors.Is(err, domain.ErrConflict) && o.cancelRun(id) {
		// A run claimed it between the lookup and the write.
		return nil
	}
	if err != nil {
		return err
	}

	// An active deployment without a run was orphaned; its device is still busy.
	if dep.Status.Active() {
		if err := o.deps.Devices.Release(ctx, dep.DeviceID, domain.DeviceStatusOffline, nil); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return storeErr("release device", err)
		}
	}
	o.log.Info("deployment cancelled", "id", id, "status", dep.Status)
	return nil
}

func (o *Orchestrator) cancelRun(id uuid.UUID) bool {
	o.mu.Lock()
	cancel, ok := o.runs[id]
	o.mu.Unlock()
	if ok {
		cancel(errCancelledByOperator)
	}
	return ok
}

// Recover fails every deployment left connected or executing by a previous
// process and frees every busy device. Call it before any run starts.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	o.mu.Lock()
	active := len(o.runs)
	o.mu.Unlock()
	if active > 0 {
		return 0, fmt.Errorf("%w: %d deployments are running", domain.ErrConflict, active)
	}

	deps, err := o.deps.Deployments.ListActive(ctx)
	if err != nil {
		return 0, storeErr("list active deployments", err)
	}

	failed := 0
	for _, d := range deps {
		_, err := o.deps.Machine.Apply(ctx, d.ID, d.Status, lifecycle.EventInterrupted, interruptedOnRestart)
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return failed, err
		}
		failed++
	}

	released, err := o.deps.Devices.ReleaseAllBusy(ctx, domain.DeviceStatusOffline)
	if err != nil {
		return failed, storeErr("release busy devices", err)
	}
	if failed > 0 || released > 0 {
		o.log.Warn("recovered interrupted deployments", "failed", failed, "devices_released", released)
	}
	return failed, nil
}

// Wait blocks until every run started with Start has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown waits for background runs until ctx is done, then interrupts the
// remaining ones and waits for them to record their failure.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	o.mu.Lock()
	for id, cancel := range o.runs {
		o.log.Warn("interrupting deployment for shutdown", "id", id)
		cancel(errShuttingDown)
	}
	o.mu.Unlock()
	<-done
}

func loadErr(what string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return storeErr("load "+what, err)
}

func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrStore) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStore, op, err)
}
