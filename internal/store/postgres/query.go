package postgres

import (
	"fmt"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// listQuery appends the time window, ordering and paging of opts to base.
// base may already hold len(args) positional parameters.
func listQuery(base string, args []any, column string, opts domain.ListOpts) (string, []any) {
	query := base
	next := len(args) + 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= $%d", column, next)
		args = append(args, *opts.Since)
		next++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s <= $%d", column, next)
		args = append(args, *opts.Until)
		next++
	}

	query += fmt.Sprintf(" ORDER BY %s DESC", column)

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", next)
		args = append(args, opts.Limit)
		next++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", next)
		args = append(args, opts.Offset)
	}
	return query, args
}
