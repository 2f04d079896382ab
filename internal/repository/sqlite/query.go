package sqlite

import "strings"

// filter accumulates WHERE clauses with positional arguments.
type filter struct {
	clauses []string
	args    []any
}

func (f *filter) eq(col string, v any) {
	f.clauses = append(f.clauses, col+" = ?")
	f.args = append(f.args, v)
}

func (f *filter) where() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

// page normalizes pagination the same way the postgres repositories do.
func page(p, perPage int) (limit, offset int) {
	if p < 1 {
		p = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return perPage, (p - 1) * perPage
}

func orderBy(col string, allowed []string, dir string) string {
	order := "created_at"
	for _, a := range allowed {
		if a == col {
			order = col
			break
		}
	}
	if dir == "asc" {
		return order + " ASC"
	}
	return order + " DESC"
}
