package store

import "strings"

// Table is a fully materialized result set with every value rendered as text.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

func (t Table) Empty() bool { return len(t.Rows) == 0 }

// ColumnIndex finds a column case-insensitively; -1 when absent.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// DistinctNonEmpty returns the distinct non-blank values of col in first-seen order.
func (t Table) DistinctNonEmpty(col string) []string {
	idx := t.ColumnIndex(col)
	if idx < 0 {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	for _, r := range t.Rows {
		v := strings.TrimSpace(r[idx])
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// FilterIn keeps rows whose col equals one of values, ignoring case and
// surrounding whitespace. A missing column yields a table with no rows.
func (t Table) FilterIn(col string, values []string) Table {
	out := Table{Name: t.Name, Columns: t.Columns}
	idx := t.ColumnIndex(col)
	if idx < 0 {
		return out
	}
	want := make(map[string]struct{}, len(values))
	for _, v := range values {
		want[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	for _, r := range t.Rows {
		if _, ok := want[strings.ToLower(strings.TrimSpace(r[idx]))]; ok {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Head returns the first n rows.
func (t Table) Head(n int) Table {
	if n < 0 || n >= len(t.Rows) {
		return t
	}
	return Table{Name: t.Name, Columns: t.Columns, Rows: t.Rows[:n]}
}
