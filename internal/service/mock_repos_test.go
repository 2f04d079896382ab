package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CaioWing/Tether/internal/domain"
	"github.com/CaioWing/Tether/internal/storage"
)

// --- Mock Device Repository ---

type mockDeviceRepo struct {
	mu      sync.RWMutex
	devices map[uuid.UUID]*domain.Device
	// releaseErr, when set, is returned by Release after the status is left unchanged.
	releaseErr error
	releases   int
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{
		devices: make(map[uuid.UUID]*domain.Device),
	}
}

func (m *mockDeviceRepo) Create(_ context.Context, d *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.devices {
		if existing.Name == d.Name {
			return domain.ErrConflict
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	m.devices[d.ID] = d
	return nil
}

func (m *mockDeviceRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.devices[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockDeviceRepo) List(_ context.Context, f domain.DeviceFilter) ([]*domain.Device, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Device
	for _, d := range m.devices {
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		if f.ConnectionType != nil && d.ConnectionType != *f.ConnectionType {
			continue
		}
		cp := *d
		result = append(result, &cp)
	}
	return result, len(result), nil
}

func (m *mockDeviceRepo) UpdateDetails(_ context.Context, id uuid.UUID, name, ip, port string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return domain.ErrNotFound
	}
	if d.Status == domain.DeviceStatusBusy {
		return domain.ErrConflict
	}
	d.Name, d.IPAddress, d.SerialPort = name, ip, port
	return nil
}

func (m *mockDeviceRepo) Claim(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return domain.ErrNotFound
	}
	if d.Status == domain.DeviceStatusBusy {
		return domain.ErrConflict
	}
	d.Status = domain.DeviceStatusBusy
	return nil
}

func (m *mockDeviceRepo) Release(_ context.Context, id uuid.UUID, status domain.DeviceStatus, lastSeen *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	d, ok := m.devices[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.releaseErr != nil {
		return m.releaseErr
	}
	d.Status = status
	if lastSeen != nil {
		d.LastSeen = lastSeen
	}
	return nil
}

func (m *mockDeviceRepo) TouchLastSeen(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.LastSeen = &at
	return nil
}

func (m *mockDeviceRepo) ReleaseAllBusy(_ context.Context, status domain.DeviceStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.devices {
		if d.Status == domain.DeviceStatusBusy {
			d.Status = status
			n++
		}
	}
	return n, nil
}

func (m *mockDeviceRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *mockDeviceRepo) CountByStatus(_ context.Context) (map[domain.DeviceStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.DeviceStatus]int)
	for _, d := range m.devices {
		counts[d.Status]++
	}
	return counts, nil
}

func (m *mockDeviceRepo) status(id uuid.UUID) domain.DeviceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.devices[id].Status
}

// --- Mock Payload Repository ---

type mockPayloadRepo struct {
	mu       sync.RWMutex
	payloads map[uuid.UUID]*domain.Payload
	deploys  *mockDeploymentRepo
}

func newMockPayloadRepo(deploys *mockDeploymentRepo) *mockPayloadRepo {
	return &mockPayloadRepo{
		payloads: make(map[uuid.UUID]*domain.Payload),
		deploys:  deploys,
	}
}

func (m *mockPayloadRepo) Create(_ context.Context, p *domain.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payloads {
		if existing.Name == p.Name && existing.Version == p.Version {
			return domain.ErrConflict
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.payloads[p.ID] = p
	return nil
}

func (m *mockPayloadRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Payload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.payloads[id]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockPayloadRepo) List(_ context.Context, f domain.PayloadFilter) ([]*domain.Payload, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Payload
	for _, p := range m.payloads {
		if f.Name != nil && p.Name != *f.Name {
			continue
		}
		result = append(result, p)
	}
	return result, len(result), nil
}

func (m *mockPayloadRepo) Delete(_ context.Context, id uuid.UUID) error {
	if m.deploys != nil && m.deploys.references(id) {
		return domain.ErrPayloadInUse
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payloads[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.payloads, id)
	return nil
}

// --- Mock Deployment Repository ---

type mockDeploymentRepo struct {
	mu          sync.RWMutex
	deployments map[uuid.UUID]*domain.Deployment
	// failTransitionTo makes Transition into that status fail with transitionErr.
	failTransitionTo domain.DeploymentStatus
	transitionErr    error
	history          []domain.DeploymentStatus
}

func newMockDeploymentRepo() *mockDeploymentRepo {
	return &mockDeploymentRepo{
		deployments: make(map[uuid.UUID]*domain.Deployment),
	}
}

func (m *mockDeploymentRepo) Create(_ context.Context, d *domain.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	m.deployments[d.ID] = d
	return nil
}

func (m *mockDeploymentRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.deployments[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockDeploymentRepo) List(_ context.Context, f domain.DeploymentFilter) ([]*domain.Deployment, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Deployment
	for _, d := range m.deployments {
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		if f.DeviceID != nil && d.DeviceID != *f.DeviceID {
			continue
		}
		if f.PayloadID != nil && d.PayloadID != *f.PayloadID {
			continue
		}
		cp := *d
		result = append(result, &cp)
	}
	return result, len(result), nil
}

func (m *mockDeploymentRepo) Transition(_ context.Context, id uuid.UUID, from, to domain.DeploymentStatus, result *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transitionErr != nil && to == m.failTransitionTo {
		return m.transitionErr
	}
	d, ok := m.deployments[id]
	if !ok {
		return domain.ErrNotFound
	}
	if d.Status != from {
		return domain.ErrConflict
	}
	now := time.Now()
	d.Status = to
	d.UpdatedAt = now
	if from == domain.DeploymentStatusPending && d.StartedAt == nil {
		d.StartedAt = &now
	}
	if to.Terminal() {
		d.FinishedAt = &now
	}
	if result != nil {
		r := *result
		d.Result = &r
	}
	m.history = append(m.history, to)
	return nil
}

func (m *mockDeploymentRepo) ListActive(_ context.Context) ([]*domain.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Deployment
	for _, d := range m.deployments {
		if d.Status.Active() {
			cp := *d
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockDeploymentRepo) GetStats(_ context.Context) (*domain.DeploymentStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &domain.DeploymentStats{}
	for _, d := range m.deployments {
		stats.Total++
		switch d.Status {
		case domain.DeploymentStatusPending:
			stats.Pending++
		case domain.DeploymentStatusConnected:
			stats.Connected++
		case domain.DeploymentStatusExecuting:
			stats.Executing++
		case domain.DeploymentStatusCompleted:
			stats.Completed++
		case domain.DeploymentStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (m *mockDeploymentRepo) references(payloadID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.deployments {
		if d.PayloadID == payloadID {
			return true
		}
	}
	return false
}

func (m *mockDeploymentRepo) get(id uuid.UUID) domain.Deployment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.deployments[id]
}

// --- Mock Audit Repository ---

type mockAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
	err     error
}

func (m *mockAuditRepo) Create(_ context.Context, e *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	e.ID = uuid.New()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) List(_ context.Context, _ domain.AuditFilter) ([]*domain.AuditEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries, len(m.entries), nil
}

// --- Mock File Store ---

type mockFileStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func newMockFileStore() *mockFileStore {
	return &mockFileStore{files: make(map[string][]byte)}
}

func (m *mockFileStore) Save(name string, reader io.Reader) (string, int64, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", 0, err
	}
	path := "/mock/storage/" + name
	m.mu.Lock()
	m.files[path] = data
	m.mu.Unlock()
	return path, int64(len(data)), nil
}

func (m *mockFileStore) Open(path string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path]
	if !ok {
		return nil, storage.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockFileStore) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

var errStoreDown = errors.New("connection refused")
