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

type DeploymentRepo struct {
	db *sql.DB
}

func NewDeploymentRepo(db *sql.DB) *DeploymentRepo {
	return &DeploymentRepo{db: db}
}

const deploymentColumns = `id, payload_id, device_id, status, result, created_at, updated_at, started_at, finished_at`

func scanDeployment(row rowScanner) (*domain.Deployment, error) {
	d := &domain.Deployment{}
	var result sql.NullString
	var created, updated, started, finished nullTime
	err := row.Scan(
		&d.ID, &d.PayloadID, &d.DeviceID, &d.Status, &result,
		&created, &updated, &started, &finished,
	)
	if result.Valid {
		d.Result = &result.String
	}
	d.CreatedAt, d.UpdatedAt = created.Time, updated.Time
	d.StartedAt, d.FinishedAt = started.ptr(), finished.ptr()
	return d, err
}

func (r *DeploymentRepo) Create(ctx context.Context, d *domain.Deployment) error {
	if d.Status == "" {
		d.Status = domain.DeploymentStatusPending
	}
	id := uuid.New()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deployments (id, payload_id, device_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, d.PayloadID, d.DeviceID, d.Status, formatTime(now), formatTime(now))
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("insert deployment: %w", err)
	}
	d.ID, d.CreatedAt, d.UpdatedAt = id, now, now
	return nil
}

func (r *DeploymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Deployment, error) {
	d, err := scanDeployment(r.db.QueryRowContext(ctx, `SELECT `+deploymentColumns+` FROM deployments WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get deployment: %w", err)
	}
	return d, nil
}

func (r *DeploymentRepo) List(ctx context.Context, f domain.DeploymentFilter) ([]*domain.Deployment, int, error) {
	var w filter
	if f.Status != nil {
		w.eq("status", *f.Status)
	}
	if f.DeviceID != nil {
		w.eq("device_id", *f.DeviceID)
	}
	if f.PayloadID != nil {
		w.eq("payload_id", *f.PayloadID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM deployments"+w.where(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deployments: %w", err)
	}

	limit, offset := page(f.Page, f.PerPage)
	order := orderBy(f.SortBy, []string{"created_at", "updated_at", "started_at", "finished_at", "status"}, f.SortOrder)
	return r.query(ctx, total,
		`SELECT `+deploymentColumns+` FROM deployments`+w.where()+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(w.args, limit, offset)...)
}

func (r *DeploymentRepo) query(ctx context.Context, total int, q string, args ...any) ([]*domain.Deployment, int, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	deployments := []*domain.Deployment{}
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan deployment: %w", err)
		}
		deployments = append(deployments, d)
	}
	return deployments, total, rows.Err()
}

func (r *DeploymentRepo) Transition(ctx context.Context, id uuid.UUID, from, to domain.DeploymentStatus, result *string) error {
	now := formatTime(time.Now())
	res, err := r.db.ExecContext(ctx, `
		UPDATE deployments SET
			status      = ?3,
			result      = COALESCE(?4, result),
			updated_at  = ?5,
			started_at  = CASE WHEN ?2 = 'pending' THEN ?5 ELSE started_at END,
			finished_at = CASE WHEN ?3 IN ('completed', 'failed') THEN ?5 ELSE finished_at END
		WHERE id = ?1 AND status = ?2
	`, id, string(from), string(to), result, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: device already has an active deployment", domain.ErrConflict)
		}
		return fmt.Errorf("transition deployment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition deployment: %w", err)
	}
	if n > 0 {
		return nil
	}
	ok, err := exists(ctx, r.db, "deployments", id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: deployment is no longer %s", domain.ErrConflict, from)
}

func (r *DeploymentRepo) ListActive(ctx context.Context) ([]*domain.Deployment, error) {
	deployments, _, err := r.query(ctx, 0, `
		SELECT `+deploymentColumns+`
		FROM deployments WHERE status IN ('connected', 'executing')
		ORDER BY created_at
	`)
	return deployments, err
}

func (r *DeploymentRepo) GetStats(ctx context.Context) (*domain.DeploymentStats, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM deployments GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.DeploymentStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats.Add(domain.DeploymentStatus(status), count)
	}
	return stats, rows.Err()
}
