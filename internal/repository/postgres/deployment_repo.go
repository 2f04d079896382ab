package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CaioWing/Tether/internal/domain"
)

type DeploymentRepo struct {
	pool *pgxpool.Pool
}

func NewDeploymentRepo(pool *pgxpool.Pool) *DeploymentRepo {
	return &DeploymentRepo{pool: pool}
}

const deploymentColumns = `id, payload_id, device_id, status, result, created_at, updated_at, started_at, finished_at`

func scanDeployment(row pgx.Row) (*domain.Deployment, error) {
	d := &domain.Deployment{}
	err := row.Scan(
		&d.ID, &d.PayloadID, &d.DeviceID, &d.Status, &d.Result,
		&d.CreatedAt, &d.UpdatedAt, &d.StartedAt, &d.FinishedAt,
	)
	return d, err
}

func (r *DeploymentRepo) Create(ctx context.Context, d *domain.Deployment) error {
	if d.Status == "" {
		d.Status = domain.DeploymentStatusPending
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO deployments (payload_id, device_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, d.PayloadID, d.DeviceID, d.Status).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)

	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

func (r *DeploymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Deployment, error) {
	d, err := scanDeployment(r.pool.QueryRow(ctx, `SELECT `+deploymentColumns+` FROM deployments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get deployment: %w", err)
	}
	return d, nil
}

func (r *DeploymentRepo) List(ctx context.Context, f domain.DeploymentFilter) ([]*domain.Deployment, int, error) {
	q := listQuery{table: "deployments", columns: deploymentColumns}
	if f.Status != nil {
		q.eq("status", *f.Status)
	}
	if f.DeviceID != nil {
		q.eq("device_id", *f.DeviceID)
	}
	if f.PayloadID != nil {
		q.eq("payload_id", *f.PayloadID)
	}
	return list(ctx, r.pool, q, listOptions{
		page: f.Page, perPage: f.PerPage,
		sortBy: f.SortBy, sortOrder: f.SortOrder,
		sortable: []string{"created_at", "updated_at", "started_at", "finished_at", "status"},
	}, scanDeployment)
}

// Transition is a single conditional UPDATE keyed on the current status, so
// concurrent writers cannot both move the same deployment.
func (r *DeploymentRepo) Transition(ctx context.Context, id uuid.UUID, from, to domain.DeploymentStatus, result *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deployments SET
			status      = $3::text,
			result      = COALESCE($4::text, result),
			updated_at  = NOW(),
			started_at  = CASE WHEN $2::text = 'pending' THEN NOW() ELSE started_at END,
			finished_at = CASE WHEN $3::text IN ('completed', 'failed') THEN NOW() ELSE finished_at END
		WHERE id = $1 AND status = $2::text
	`, id, from, to, result)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: device already has an active deployment", domain.ErrConflict)
		}
		return fmt.Errorf("transition deployment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		ok, err := exists(ctx, r.pool, "deployments", id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound
		}
		return fmt.Errorf("%w: deployment is no longer %s", domain.ErrConflict, from)
	}
	return nil
}

func (r *DeploymentRepo) ListActive(ctx context.Context) ([]*domain.Deployment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+deploymentColumns+`
		FROM deployments WHERE status IN ('connected', 'executing')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list active deployments: %w", err)
	}
	defer rows.Close()

	var deployments []*domain.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}

func (r *DeploymentRepo) GetStats(ctx context.Context) (*domain.DeploymentStats, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM deployments GROUP BY status`)
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
	return stats, nil
}
