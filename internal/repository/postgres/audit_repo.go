package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CaioWing/Tether/internal/domain"
)

const auditColumns = `id, actor, actor_type, action, resource, resource_id, details, ip_address, created_at`

// scanAuditEntry tolerates undecodable details so one bad row does not hide
// the rest of the log.
func scanAuditEntry(row pgx.Row) (*domain.AuditEntry, error) {
	e := &domain.AuditEntry{}
	var details []byte
	if err := row.Scan(
		&e.ID, &e.Actor, &e.ActorType, &e.Action, &e.Resource,
		&e.ResourceID, &details, &e.IPAddress, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(details, &e.Details); err != nil || e.Details == nil {
		e.Details = map[string]any{}
	}
	return e, nil
}

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Create(ctx context.Context, entry *domain.AuditEntry) error {
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO audit_log (actor, actor_type, action, resource, resource_id, details, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, entry.Actor, entry.ActorType, entry.Action, entry.Resource,
		entry.ResourceID, detailsJSON, entry.IPAddress).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepo) List(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditEntry, int, error) {
	q := listQuery{table: "audit_log", columns: auditColumns}
	for col, v := range map[string]*string{
		"actor":       f.Actor,
		"action":      f.Action,
		"resource":    f.Resource,
		"resource_id": f.ResourceID,
	} {
		if v != nil {
			q.eq(col, *v)
		}
	}
	return list(ctx, r.pool, q, listOptions{
		page: f.Page, perPage: f.PerPage, sortOrder: f.SortOrder,
	}, scanAuditEntry)
}
