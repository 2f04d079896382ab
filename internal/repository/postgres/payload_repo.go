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

const payloadColumns = `id, name, version, description, size, checksum_sha256, storage_path, created_at`

func scanPayload(row pgx.Row) (*domain.Payload, error) {
	p := &domain.Payload{}
	err := row.Scan(
		&p.ID, &p.Name, &p.Version, &p.Description, &p.Size,
		&p.ChecksumSHA256, &p.StoragePath, &p.CreatedAt,
	)
	return p, err
}

type PayloadRepo struct {
	pool *pgxpool.Pool
}

func NewPayloadRepo(pool *pgxpool.Pool) *PayloadRepo {
	return &PayloadRepo{pool: pool}
}

func (r *PayloadRepo) Create(ctx context.Context, p *domain.Payload) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO payloads (name, version, description, size, checksum_sha256, storage_path)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, p.Name, p.Version, p.Description, p.Size, p.ChecksumSHA256, p.StoragePath).
		Scan(&p.ID, &p.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert payload: %w", err)
	}
	return nil
}

func (r *PayloadRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payload, error) {
	p, err := scanPayload(r.pool.QueryRow(ctx, `SELECT `+payloadColumns+` FROM payloads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payload: %w", err)
	}
	return p, nil
}

func (r *PayloadRepo) List(ctx context.Context, f domain.PayloadFilter) ([]*domain.Payload, int, error) {
	q := listQuery{table: "payloads", columns: payloadColumns}
	if f.Name != nil {
		q.eq("name", *f.Name)
	}
	return list(ctx, r.pool, q, listOptions{
		page: f.Page, perPage: f.PerPage,
		sortBy: f.SortBy, sortOrder: f.SortOrder,
		sortable: []string{"created_at", "name", "version", "size"},
	}, scanPayload)
}

func (r *PayloadRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM payloads WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrPayloadInUse
		}
		return fmt.Errorf("delete payload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
