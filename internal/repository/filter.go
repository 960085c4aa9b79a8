package repository

import (
	"fmt"
	"strings"

	"github.com/attaboy/wallet/internal/domain"
)

// whereBuilder accumulates AND-ed predicates with positional args.
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *whereBuilder) sql() string {
	return strings.Join(w.clauses, " AND ")
}

// applyFilter adds the filter's constraints; typeCol names the type column.
func (w *whereBuilder) applyFilter(f domain.TransactionFilter, typeCol string, withStatus bool) {
	if f.Type != "" {
		w.add(typeCol+" = $%d", string(f.Type))
	}
	if withStatus && f.Status != "" {
		w.add("status = $%d", string(f.Status))
	}
	if f.From != nil {
		w.add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		w.add("created_at <= $%d", *f.To)
	}
}

// page appends LIMIT/OFFSET placeholders and returns the clause.
func (w *whereBuilder) page(f domain.TransactionFilter) string {
	f = f.Normalize()
	w.args = append(w.args, f.Limit, f.Offset)
	return fmt.Sprintf("LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}
