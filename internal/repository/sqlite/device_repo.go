package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CaioWing/Tether/internal/domain"
)

type DeviceRepo struct {
	db *sql.DB
}

func NewDeviceRepo(db *sql.DB) *DeviceRepo {
	return &DeviceRepo{db: db}
}

const deviceColumns = `id, name, connection_type, status, ip_address, serial_port, last_seen, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*domain.Device, error) {
	d := &domain.Device{}
	var lastSeen, created, updated nullTime
	err := row.Scan(
		&d.ID, &d.Name, &d.ConnectionType, &d.Status, &d.IPAddress,
		&d.SerialPort, &lastSeen, &created, &updated,
	)
	d.LastSeen = lastSeen.ptr()
	d.CreatedAt, d.UpdatedAt = created.Time, updated.Time
	return d, err
}

func (r *DeviceRepo) Create(ctx context.Context, d *domain.Device) error {
	if d.Status == "" {
		d.Status = domain.DeviceStatusOffline
	}
	id := uuid.New()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, connection_type, status, ip_address, serial_port, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, d.Name, d.ConnectionType, d.Status, d.IPAddress, d.SerialPort, formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert device: %w", err)
	}
	d.ID, d.CreatedAt, d.UpdatedAt = id, now, now
	return nil
}

func (r *DeviceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	return d, nil
}

func (r *DeviceRepo) List(ctx context.Context, f domain.DeviceFilter) ([]*domain.Device, int, error) {
	var w filter
	if f.Status != nil {
		w.eq("status", *f.Status)
	}
	if f.ConnectionType != nil {
		w.eq("connection_type", *f.ConnectionType)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices"+w.where(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count devices: %w", err)
	}

	limit, offset := page(f.Page, f.PerPage)
	order := orderBy(f.SortBy, []string{"created_at", "updated_at", "name", "status", "last_seen"}, f.SortOrder)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices`+w.where()+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(w.args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := []*domain.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list devices: %w", err)
	}
	return devices, total, nil
}

func (r *DeviceRepo) UpdateDetails(ctx context.Context, id uuid.UUID, name, ipAddress, serialPort string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE devices SET name = ?, ip_address = ?, serial_port = ?, updated_at = ?
		WHERE id = ? AND status <> 'busy'
	`, name, ipAddress, serialPort, formatTime(time.Now()), id)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("update device: %w", err)
	}
	return r.checkAffected(ctx, res, id)
}

func (r *DeviceRepo) Claim(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE devices SET status = 'busy', updated_at = ?
		WHERE id = ? AND status <> 'busy'
	`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("claim device: %w", err)
	}
	return r.checkAffected(ctx, res, id)
}

func (r *DeviceRepo) Release(ctx context.Context, id uuid.UUID, status domain.DeviceStatus, lastSeen *time.Time) error {
	if status == domain.DeviceStatusBusy {
		return fmt.Errorf("%w: cannot release to busy", domain.ErrInvalidInput)
	}
	seen := formatTimePtr(lastSeen)
	res, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET status = ?1,
		    last_seen = CASE WHEN ?2 IS NOT NULL AND (last_seen IS NULL OR last_seen < ?2) THEN ?2 ELSE last_seen END,
		    updated_at = ?3
		WHERE id = ?4
	`, status, seen, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("release device: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release device: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DeviceRepo) TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE devices SET last_seen = ?1
		WHERE id = ?2 AND (last_seen IS NULL OR last_seen < ?1)
	`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	return nil
}

func (r *DeviceRepo) ReleaseAllBusy(ctx context.Context, status domain.DeviceStatus) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE devices SET status = ?, updated_at = ? WHERE status = 'busy'`,
		status, formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("release busy devices: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release busy devices: %w", err)
	}
	return int(n), nil
}

func (r *DeviceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ? AND status <> 'busy'`, id)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	return r.checkAffected(ctx, res, id)
}

func (r *DeviceRepo) CountByStatus(ctx context.Context) (map[domain.DeviceStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM devices GROUP BY status`)
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
	return counts, rows.Err()
}

// checkAffected turns a conditional write that matched nothing into
// ErrNotFound or a busy conflict.
func (r *DeviceRepo) checkAffected(ctx context.Context, res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	ok, err := exists(ctx, r.db, "devices", id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: device %s is busy", domain.ErrConflict, id)
}
