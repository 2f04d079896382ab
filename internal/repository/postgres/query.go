package postgres

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// listQuery builds a filtered, paginated SELECT over one table. Placeholders
// are numbered in the order conditions are added.
type listQuery struct {
	table   string
	columns string
	conds   []string
	args    []any
}

func (q *listQuery) eq(col string, v any) {
	q.args = append(q.args, v)
	q.conds = append(q.conds, fmt.Sprintf("%s = $%d", col, len(q.args)))
}

func (q *listQuery) where() string {
	if len(q.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conds, " AND ")
}

// listOptions carries the caller's paging and ordering. Unknown sort columns
// fall back to created_at; anything but "asc" sorts descending.
type listOptions struct {
	page, perPage int
	sortBy        string
	sortOrder     string
	sortable      []string
}

func (o listOptions) limitOffset() (int, int) {
	page, perPage := o.page, o.perPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return perPage, (page - 1) * perPage
}

func (o listOptions) orderBy() string {
	col := "created_at"
	if slices.Contains(o.sortable, o.sortBy) {
		col = o.sortBy
	}
	if o.sortOrder == "asc" {
		return col + " ASC"
	}
	return col + " DESC"
}

// list runs the count and page queries and scans every row with scan.
func list[T any](ctx context.Context, pool *pgxpool.Pool, q listQuery, opts listOptions, scan func(pgx.Row) (T, error)) ([]T, int, error) {
	var total int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+q.table+q.where(), q.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", q.table, err)
	}

	limit, offset := opts.limitOffset()
	args := append(slices.Clone(q.args), limit, offset)
	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		q.columns, q.table, q.where(), opts.orderBy(), len(args)-1, len(args))

	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", q.table, err)
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan %s: %w", q.table, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", q.table, err)
	}
	return items, total, nil
}
