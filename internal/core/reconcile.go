package core

import (
	"fmt"
	"slices"
	"strings"

	"github.com/JonMunkholm/sage/internal/dataset"
	"github.com/JonMunkholm/sage/internal/schema"
)

// reconcile aligns the loaded columns with the catalog's fields. A column
// count mismatch is reported once as a structural error and counted as one
// error; the table is then truncated or padded and processing continues.
// On return the table holds exactly the catalog's fields, in order.
func reconcile(rs *RunState, rep Reporter, cat *schema.Catalog, file string, t *dataset.Table) error {
	names := cat.FieldNames()
	expected, found := len(names), t.Width()
	header := cat.FileFormat.Header

	structural := func(msg string, exp, got int) {
		rs.AddErrors(1)
		rep.Error(msg, Fields{File: file})
		rep.RegisterFormatError(FormatError{Message: msg, File: file, Expected: exp, Found: got})
	}

	if header {
		if err := matchHeader(t, names); err != nil {
			return err
		}
	}

	switch {
	case found > expected:
		structural(fmt.Sprintf("File has %d columns but the catalog defines %d fields, extra columns are ignored", found, expected), expected, found)
		if !header {
			t.Truncate(expected)
			if err := t.Rename(names); err != nil {
				return err
			}
		}

	case found < expected:
		structural(fmt.Sprintf("File has %d columns but the catalog defines %d fields, missing columns are left empty", found, expected), expected, found)
		if !header {
			if err := t.Rename(names[:found]); err != nil {
				return err
			}
		}

	case !header:
		if err := t.Rename(names); err != nil {
			return err
		}
	}

	var missing []string
	for _, n := range names {
		if !t.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		// Only reached with a header: the counts are reconciled above, so
		// a field still absent here was named differently in the file.
		if found == expected {
			structural(fmt.Sprintf("File is missing columns: %s", strings.Join(missing, ", ")), expected, expected-len(missing))
		}
		for _, n := range missing {
			t.AddNullColumn(n)
		}
	}

	t.Select(names)
	return nil
}

// matchHeader renames file columns that differ from a field name only in
// case or surrounding spaces, so "Codigo " binds to the field codigo. A
// field already present under its exact name is left to that column.
func matchHeader(t *dataset.Table, names []string) error {
	cols := t.Columns()
	taken := make(map[string]bool, len(cols))
	for _, c := range cols {
		taken[c] = true
	}

	changed := false
	for i, c := range cols {
		if slices.Contains(names, c) {
			continue
		}
		for _, n := range names {
			if !taken[n] && strings.EqualFold(strings.TrimSpace(c), n) {
				cols[i] = n
				taken[n] = true
				changed = true
				break
			}
		}
	}
	if !changed {
		return nil
	}
	return t.Rename(cols)
}
