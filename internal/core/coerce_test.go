package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sage/internal/expr"
	"github.com/JonMunkholm/sage/internal/schema"
)

func TestCoerceColumn(t *testing.T) {
	t.Parallel()

	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		fn          CoerceFunc
		in          []any
		want        []any
		wantInvalid []int
	}{
		{
			name:        "booleano",
			fn:          coerceBool,
			in:          []any{true, "false", int64(1), "yes"},
			want:        []any{true, false, true, nil},
			wantInvalid: []int{3},
		},
		{
			name:        "entero",
			fn:          coerceInteger,
			in:          []any{"42", "-7", "3.0", "2.5", "abc", nil},
			want:        []any{int64(42), int64(-7), int64(3), 2.5, nil, nil},
			wantInvalid: []int{4},
		},
		{
			name:        "decimal",
			fn:          coerceDecimal,
			in:          []any{"1.5", " 2 ", "1e3", int64(4), "1,5"},
			want:        []any{1.5, 2.0, 1000.0, 4.0, nil},
			wantInvalid: []int{4},
		},
		{
			name:        "fecha",
			fn:          coerceDate,
			in:          []any{"2024-03-15", date, "not a date"},
			want:        []any{date, date, nil},
			wantInvalid: []int{2},
		},
		{
			name: "texto",
			fn:   coerceText,
			in:   []any{"a", "", nil},
			want: []any{"a", "", nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := coerceColumn(tt.fn, tt.in)
			require.Len(t, got.values, len(tt.want))
			for i := range tt.want {
				if wantTime, ok := tt.want[i].(time.Time); ok {
					gotTime, ok := got.values[i].(time.Time)
					require.True(t, ok, "row %d", i)
					assert.True(t, wantTime.Equal(gotTime), "row %d", i)
					continue
				}
				assert.Equal(t, tt.want[i], got.values[i], "row %d", i)
			}
			assert.Equal(t, tt.wantInvalid, got.invalid)
		})
	}
}

func TestCoerceTypes_ReportsInvalidCells(t *testing.T) {
	t.Parallel()

	cat := csvCatalog("Clientes", "clientes.csv", true,
		schema.Field{Name: "codigo", Type: schema.TypeText},
		schema.Field{Name: "saldo", Type: schema.TypeDecimal},
		schema.Field{Name: "activo", Type: schema.TypeBool},
	)
	tbl := rawTable(t, cat.FieldNames(),
		[]any{"A1", "10.5", "1"},
		[]any{"A2", "diez", "si"},
		[]any{"A3", nil, "0"},
	)
	rs := NewRunState(nil)
	rep := &recorder{}
	fc := &fileCheck{rs: rs, rep: rep, eval: expr.New(), cat: cat, file: "clientes.csv", tbl: tbl}

	invalid, err := fc.coerceTypes()
	require.NoError(t, err)

	assert.Equal(t, map[string][]int{"saldo": {1}, "activo": {1}}, invalid)
	assert.Equal(t, 2, rs.Errors())

	errs := rep.filter("error", "is not of type decimal")
	require.Len(t, errs, 1)
	assert.Equal(t, 3, errs[0].f.Line)
	assert.Equal(t, "diez", errs[0].f.Value)
	assert.Contains(t, errs[0].msg, `"diez"`)

	assert.Equal(t, 10.5, tbl.Value("saldo", 0))
	assert.Nil(t, tbl.Value("saldo", 1), "invalid cells are emptied")
	assert.Equal(t, false, tbl.Value("activo", 2))
}

// Not parallel: it changes the type registry.
func TestCoerceTypes_UncheckedTypeWarns(t *testing.T) {
	RegisterType(TypeDefinition{Name: "libre"})
	t.Cleanup(func() { unregisterType("libre") })

	cat := csvCatalog("Notas", "notas.csv", true, schema.Field{Name: "nota", Type: "libre"})
	tbl := rawTable(t, cat.FieldNames(), []any{"x"}, []any{"y"})
	rs := NewRunState(nil)
	rep := &recorder{}
	fc := &fileCheck{rs: rs, rep: rep, eval: expr.New(), cat: cat, file: "notas.csv", tbl: tbl}

	invalid, err := fc.coerceTypes()
	require.NoError(t, err)

	assert.Empty(t, invalid)
	assert.Len(t, rep.filter("warning", "cannot be validated"), 1)
	assert.Equal(t, 0, rs.Warnings(), "the notice is not a data warning")
	assert.Equal(t, "x", tbl.Value("nota", 0), "values are kept as read")
}

func TestCoerceTypes_UnknownType(t *testing.T) {
	t.Parallel()

	cat := csvCatalog("Notas", "notas.csv", true, schema.Field{Name: "nota", Type: "moneda"})
	fc := &fileCheck{rs: NewRunState(nil), rep: &recorder{}, cat: cat, tbl: rawTable(t, cat.FieldNames())}

	_, err := fc.coerceTypes()
	require.ErrorIs(t, err, ErrUnsupportedFieldType)
}

func TestRegisterType_PanicsOnDuplicate(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		RegisterType(TypeDefinition{Name: schema.TypeText, Coerce: coerceText})
	})
}
