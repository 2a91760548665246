// Package dataset holds the in-memory table a single file is loaded into.
//
// A Table is column-major: every column is a slice of cells with the same
// length. Cells are plain Go values:
//
//   - nil: null / no value
//   - string: raw or texto values
//   - float64, int64: decimal and entero values
//   - bool: booleano values
//   - time.Time: fecha values
//
// Rows are addressed by their 0-based position in the loaded file.
package dataset

import (
	"fmt"
	"slices"
)

// Table is an ordered set of named columns of equal length.
type Table struct {
	names []string
	cols  [][]any
	rows  int
}

// New builds a table from row-major records. Short records are padded with
// nil cells; records longer than names are an error.
func New(names []string, records [][]any) (*Table, error) {
	t := &Table{
		names: slices.Clone(names),
		cols:  make([][]any, len(names)),
		rows:  len(records),
	}
	for c := range t.cols {
		t.cols[c] = make([]any, len(records))
	}

	for r, rec := range records {
		if len(rec) > len(names) {
			return nil, fmt.Errorf("row %d has %d values, expected at most %d", r, len(rec), len(names))
		}
		for c, v := range rec {
			t.cols[c][r] = v
		}
	}

	return t, nil
}

// FromColumns builds a table from already column-major data.
// All columns must have the same length.
func FromColumns(names []string, cols [][]any) (*Table, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("%d column names for %d columns", len(names), len(cols))
	}

	rows := 0
	if len(cols) > 0 {
		rows = len(cols[0])
	}
	for i, col := range cols {
		if len(col) != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", names[i], len(col), rows)
		}
	}

	return &Table{names: slices.Clone(names), cols: cols, rows: rows}, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.names) }

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string { return slices.Clone(t.names) }

// Has reports whether a column exists.
func (t *Table) Has(name string) bool {
	return slices.Contains(t.names, name)
}

// Column returns the cells of the named column. The slice is shared with
// the table.
func (t *Table) Column(name string) ([]any, bool) {
	i := slices.Index(t.names, name)
	if i < 0 {
		return nil, false
	}
	return t.cols[i], true
}

// Value returns a single cell, or nil if the column does not exist.
func (t *Table) Value(name string, row int) any {
	col, ok := t.Column(name)
	if !ok || row < 0 || row >= len(col) {
		return nil
	}
	return col[row]
}

// SetColumn replaces the cells of an existing column.
func (t *Table) SetColumn(name string, values []any) error {
	i := slices.Index(t.names, name)
	if i < 0 {
		return fmt.Errorf("column %q not found", name)
	}
	if len(values) != t.rows {
		return fmt.Errorf("column %q: %d values for %d rows", name, len(values), t.rows)
	}
	t.cols[i] = values
	return nil
}

// AddNullColumn appends a column whose cells are all nil.
func (t *Table) AddNullColumn(name string) {
	t.names = append(t.names, name)
	t.cols = append(t.cols, make([]any, t.rows))
}

// Rename replaces all column names positionally.
func (t *Table) Rename(names []string) error {
	if len(names) != len(t.names) {
		return fmt.Errorf("rename: %d names for %d columns", len(names), len(t.names))
	}
	t.names = slices.Clone(names)
	return nil
}

// Truncate keeps only the first n columns.
func (t *Table) Truncate(n int) {
	if n >= len(t.names) {
		return
	}
	t.names = t.names[:n]
	t.cols = t.cols[:n]
}

// Select keeps only the named columns that exist, in the order given.
func (t *Table) Select(names []string) {
	keptNames := make([]string, 0, len(names))
	keptCols := make([][]any, 0, len(names))
	for _, name := range names {
		i := slices.Index(t.names, name)
		if i < 0 {
			continue
		}
		keptNames = append(keptNames, name)
		keptCols = append(keptCols, t.cols[i])
	}
	t.names = keptNames
	t.cols = keptCols
}

// Row returns the cells of one row keyed by column name.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.names))
	for c, name := range t.names {
		row[name] = t.cols[c][i]
	}
	return row
}

// Records returns every row as a map, in row order.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, t.rows)
	for i := range out {
		out[i] = t.Row(i)
	}
	return out
}
