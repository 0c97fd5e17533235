package model

import (
	"fmt"
	"strings"
)

// Filter narrows a Find query. Times are unix milliseconds; zero values do
// not filter. Rows are ordered by the table's time column.
type Filter struct {
	Selector  string
	SessionID string
	FromMs    int64
	ToMs      int64
	Limit     int
	Desc      bool
}

// buildFind renders a SELECT for table using filter. sessionCol may be empty
// for tables without a session column.
func buildFind(table, columns, timeCol, sessionCol string, f Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Selector != "" {
		add("selector = $%d", f.Selector)
	}
	if f.SessionID != "" && sessionCol != "" {
		add(sessionCol+" = $%d", f.SessionID)
	}
	if f.FromMs > 0 {
		add(timeCol+" >= $%d", f.FromMs)
	}
	if f.ToMs > 0 {
		add(timeCol+" < $%d", f.ToMs)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", columns, table)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}
	fmt.Fprintf(&b, " ORDER BY %s %s, id %s", timeCol, dir, dir)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}
