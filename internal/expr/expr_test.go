package expr_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sage/internal/dataset"
	"github.com/JonMunkholm/sage/internal/expr"
)

func newTable(t *testing.T, names []string, rows ...[]any) *dataset.Table {
	t.Helper()
	tbl, err := dataset.New(names, rows)
	require.NoError(t, err)
	return tbl
}

func TestEvalRows(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, []string{"codigo", "precio", "cantidad", "Fecha alta", "activo"},
		[]any{"A1", 10.5, int64(2), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), true},
		[]any{"B22", -1.0, int64(0), nil, false},
		[]any{nil, nil, int64(5), time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), true},
	)

	tests := []struct {
		name       string
		expression string
		want       []bool
	}{
		{
			name:       "numeric comparison",
			expression: "precio > 0",
			want:       []bool{true, false, false},
		},
		{
			name:       "int and double compare",
			expression: "cantidad >= precio",
			want:       []bool{false, true, false},
		},
		{
			name:       "string functions",
			expression: `codigo.startsWith("A") || codigo.size() > 2`,
			want:       []bool{true, true, false},
		},
		{
			name:       "row map for names with spaces",
			expression: `isNull(row["Fecha alta"]) || row["Fecha alta"] > timestamp("2023-12-31T00:00:00Z")`,
			want:       []bool{true, true, false},
		},
		{
			name:       "notNull",
			expression: "notNull(codigo)",
			want:       []bool{true, true, false},
		},
		{
			name:       "index is bound",
			expression: "index % 2 == 0",
			want:       []bool{true, false, true},
		},
		{
			name:       "regex",
			expression: `codigo.matches("^[A-Z][0-9]+$")`,
			want:       []bool{true, true, false},
		},
		{
			name:       "booleans",
			expression: "activo",
			want:       []bool{true, false, true},
		},
		{
			name:       "int times double",
			expression: "cantidad * precio > 10",
			want:       []bool{true, false, false},
		},
		{
			name:       "double plus int literal",
			expression: "precio + 1 - cantidad / 2.0 > 0",
			want:       []bool{true, false, false},
		},
		{
			name:       "int arithmetic stays int",
			expression: "cantidad * 2 + index == cantidad + cantidad + index",
			want:       []bool{true, true, true},
		},
	}

	ev := expr.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ev.EvalRows(tt.expression, tbl)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalRows_Errors(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, []string{"a", "b"},
		[]any{int64(1), "x"},
		[]any{int64(2), "y"},
	)

	tests := []struct {
		name       string
		expression string
		wantErr    error
	}{
		{name: "unknown column", expression: "c > 1"},
		{name: "syntax", expression: "a >"},
		{name: "not boolean", expression: "a + 1", wantErr: expr.ErrNotBoolean},
		{name: "type error without nulls", expression: "b > 1"},
	}

	ev := expr.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ev.EvalRows(tt.expression, tbl)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestEvalRows_EmptyTable(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, []string{"a"})
	got, err := expr.New().EvalRows("a > 1", tbl)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEvalTables(t *testing.T) {
	t.Parallel()

	tables := map[string]*dataset.Table{
		"ventas": newTable(t, []string{"cliente", "total"},
			[]any{"c1", 10.0},
			[]any{"c9", 5.0},
			[]any{"c2", -3.0},
		),
		"clientes": newTable(t, []string{"id"},
			[]any{"c1"},
			[]any{"c2"},
		),
	}

	ev := expr.New()

	t.Run("scalar pass", func(t *testing.T) {
		t.Parallel()
		res, err := ev.EvalTables(`size(df) == 2 && size(df.clientes) == 2`, tables)
		require.NoError(t, err)
		assert.True(t, res.Scalar())
		assert.True(t, res.Pass)
	})

	t.Run("scalar fail", func(t *testing.T) {
		t.Parallel()
		res, err := ev.EvalTables(`df.ventas.all(v, v.total > 0)`, tables)
		require.NoError(t, err)
		assert.True(t, res.Scalar())
		assert.False(t, res.Pass)
	})

	t.Run("per entry", func(t *testing.T) {
		t.Parallel()
		res, err := ev.EvalTables(
			`df.ventas.map(v, df.clientes.exists(c, c.id == v.cliente))`, tables)
		require.NoError(t, err)
		assert.False(t, res.Scalar())
		assert.Equal(t, []bool{true, false, true}, res.Mask)
		assert.Equal(t, []int{1}, res.Failing())
	})

	t.Run("not boolean", func(t *testing.T) {
		t.Parallel()
		_, err := ev.EvalTables(`size(df)`, tables)
		require.ErrorIs(t, err, expr.ErrNotBoolean)
	})

	t.Run("missing catalog", func(t *testing.T) {
		t.Parallel()
		_, err := ev.EvalTables(`size(df.productos) > 0`, tables)
		require.Error(t, err)
	})
}
