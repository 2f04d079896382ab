package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CaioWing/Tether/internal/domain"
)

type DeviceRepo struct {
	pool *pgxpool.Pool
}

func NewDeviceRepo(pool *pgxpool.Pool) *DeviceRepo {
	return &DeviceRepo{pool: pool}
}

const deviceColumns = `id, name, connection_type, status, ip_address, serial_port, last_seen, created_at, updated_at`

func scanDevice(row pgx.Row) (*domain.Device, error) {
	d := &domain.Device{}
	err := row.Scan(
		&d.ID, &d.Name, &d.ConnectionType, &d.Status, &d.IPAddress,
		&d.SerialPort, &d.LastSeen, &d.CreatedAt, &d.UpdatedAt,
	)
	return d, err
}

func (r *DeviceRepo) Create(ctx context.Context, d *domain.Device) error {
	if d.Status == "" {
		d.Status = domain.DeviceStatusOffline
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO devices (name, connection_type, status, ip_address, serial_port)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, d.Name, d.ConnectionType, d.Status, d.IPAddress, d.SerialPort).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (r *DeviceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Device, error) {
	d, err := scanDevice(r.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	return d, nil
}

func (r *DeviceRepo) List(ctx context.Context, f domain.DeviceFilter) ([]*domain.Device, int, error) {
	q := listQuery{table: "devices", columns: deviceColumns}
	if f.Status != nil {
		q.eq("status", *f.Status)
	}
	if f.ConnectionType != nil {
		q.eq("connection_type", *f.ConnectionType)
	}
	return list(ctx, r.pool, q, listOptions{
		page: f.Page, perPage: f.PerPage,
		sortBy: f.SortBy, sortOrder: f.SortOrder,
		sortable: []string{"created_at", "updated_at", "name", "status", "last_seen"},
	}, scanDevice)
}

func (r *DeviceRepo) UpdateDetails(ctx context.Context, id uuid.UUID, name, ipAddress, serialPort string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE devices SET name = $2, ip_address = $3, serial_port = $4, updated_at = NOW()
		WHERE id = $1 AND status <> 'busy'
	`, id, name, ipAddress, serialPort)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("update device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

func (r *DeviceRepo) Claim(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE devices SET status = 'busy', updated_at = NOW()
		WHERE id = $1 AND status <> 'busy'
	`, id)
	if err != nil {
		return fmt.Errorf("claim device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

func (r *DeviceRepo) Release(ctx context.Context, id uuid.UUID, status domain.DeviceStatus, lastSeen *time.Time) error {
	if status == domain.DeviceStatusBusy {
		return fmt.Errorf("%w: cannot release to busy", domain.ErrInvalidInput)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE devices
		SET status = $2, last_seen = GREATEST(last_seen, $3), updated_at = NOW()
		WHERE id = $1
	`, id, status, lastSeen)
	if err != nil {
		return fmt.Errorf("release device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DeviceRepo) TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE devices SET last_seen = GREATEST(last_seen, $2) WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	return nil
}

func (r *DeviceRepo) ReleaseAllBusy(ctx context.Context, status domain.DeviceStatus) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE devices SET status = $1, updated_at = NOW() WHERE status = 'busy'
	`, status)
	if err != nil {
		return 0, fmt.Errorf("release busy devices: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *DeviceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1 AND status <> 'busy'`, id)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

func (r *DeviceRepo) CountByStatus(ctx context.Context) (map[domain.DeviceStatus]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM devices GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.DeviceStatus]int)
	for rows.Next() {
		var status domain.DeviceStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = count
	}
	return counts, nil
}

func (r *DeviceRepo) missOrConflict(ctx context.Context, id uuid.UUID) error {
	ok, err := exists(ctx, r.pool, "devices", id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: device %s is busy", domain.ErrConflict, id)
}
