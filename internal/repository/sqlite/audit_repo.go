package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CaioWing/Tether/internal/domain"
)

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Create(ctx context.Context, entry *domain.AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	id := uuid.New()
	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor, actor_type, action, resource, resource_id, details, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, entry.Actor, entry.ActorType, entry.Action, entry.Resource,
		entry.ResourceID, string(details), entry.IPAddress, formatTime(now))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	entry.ID, entry.CreatedAt = id, now
	return nil
}

func (r *AuditRepo) List(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditEntry, int, error) {
	var w filter
	if f.Actor != nil {
		w.eq("actor", *f.Actor)
	}
	if f.Action != nil {
		w.eq("action", *f.Action)
	}
	if f.Resource != nil {
		w.eq("resource", *f.Resource)
	}
	if f.ResourceID != nil {
		w.eq("resource_id", *f.ResourceID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log"+w.where(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	limit, offset := page(f.Page, f.PerPage)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor, actor_type, action, resource, resource_id, details, ip_address, created_at
		FROM audit_log`+w.where()+` ORDER BY `+orderBy("created_at", nil, f.SortOrder)+` LIMIT ? OFFSET ?`,
		append(w.args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*domain.AuditEntry{}
	for rows.Next() {
		e := &domain.AuditEntry{}
		var details string
		var created nullTime
		if err := rows.Scan(
			&e.ID, &e.Actor, &e.ActorType, &e.Action, &e.Resource,
			&e.ResourceID, &details, &e.IPAddress, &created,
		); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		e.CreatedAt = created.Time
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			e.Details = map[string]any{}
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
