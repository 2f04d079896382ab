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

type PayloadRepo struct {
	db *sql.DB
}

func NewPayloadRepo(db *sql.DB) *PayloadRepo {
	return &PayloadRepo{db: db}
}

const payloadColumns = `id, name, version, description, size, checksum_sha256, storage_path, created_at`

func scanPayload(row rowScanner) (*domain.Payload, error) {
	p := &domain.Payload{}
	var created nullTime
	err := row.Scan(
		&p.ID, &p.Name, &p.Version, &p.Description, &p.Size,
		&p.ChecksumSHA256, &p.StoragePath, &created,
	)
	p.CreatedAt = created.Time
	return p, err
}

func (r *PayloadRepo) Create(ctx context.Context, p *domain.Payload) error {
	id := uuid.New()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payloads (id, name, version, description, size, checksum_sha256, storage_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, p.Name, p.Version, p.Description, p.Size, p.ChecksumSHA256, p.StoragePath, formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert payload: %w", err)
	}
	p.ID, p.CreatedAt = id, now
	return nil
}

func (r *PayloadRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payload, error) {
	p, err := scanPayload(r.db.QueryRowContext(ctx, `SELECT `+payloadColumns+` FROM payloads WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get payload: %w", err)
	}
	return p, nil
}

func (r *PayloadRepo) List(ctx context.Context, f domain.PayloadFilter) ([]*domain.Payload, int, error) {
	var w filter
	if f.Name != nil {
		w.eq("name", *f.Name)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payloads"+w.where(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payloads: %w", err)
	}

	limit, offset := page(f.Page, f.PerPage)
	order := orderBy(f.SortBy, []string{"created_at", "name", "version", "size"}, f.SortOrder)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+payloadColumns+` FROM payloads`+w.where()+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(w.args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payloads: %w", err)
	}
	defer rows.Close()

	payloads := []*domain.Payload{}
	for rows.Next() {
		p, err := scanPayload(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan payload: %w", err)
		}
		payloads = append(payloads, p)
	}
	return payloads, total, rows.Err()
}

func (r *PayloadRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM payloads WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrPayloadInUse
		}
		return fmt.Errorf("delete payload: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete payload: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
