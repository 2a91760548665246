package core

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/JonMunkholm/sage/internal/schema"
)

// coercion is the outcome of converting one column to its declared type.
// Invalid cells are left empty in values and listed by row in invalid.
type coercion struct {
	values  []any
	invalid []int
}

func coerceColumn(fn CoerceFunc, col []any) coercion {
	out := coercion{values: make([]any, len(col))}
	for i, v := range col {
		if v == nil {
			continue
		}
		typed, ok := fn(v)
		if !ok {
			out.invalid = append(out.invalid, i)
			continue
		}
		out.values[i] = typed
	}
	return out
}

// checkTypes fails when a field declares a type nobody registered.
func checkTypes(cat *schema.Catalog) error {
	for _, f := range cat.Fields {
		if _, ok := LookupType(f.Type); !ok {
			return fmt.Errorf("%w %q for field %q, supported types are: %s",
				ErrUnsupportedFieldType, f.Type, f.Name, strings.Join(TypeNames(), ", "))
		}
	}
	return nil
}

// coerceTypes converts every field of the table in place and reports one
// error per invalid cell. It returns, per field, the rows that failed so
// later checks do not report the same cell again.
func (fc *fileCheck) coerceTypes() (map[string][]int, error) {
	if err := checkTypes(fc.cat); err != nil {
		return nil, err
	}

	invalid := make(map[string][]int)
	for _, f := range fc.cat.Fields {
		def, _ := LookupType(f.Type)
		col, ok := fc.tbl.Column(f.Name)
		if !ok {
			continue
		}

		if def.Coerce == nil {
			fc.rep.Warning(fmt.Sprintf("Type %q of field %q cannot be validated", f.Type, f.Name),
				Fields{File: fc.file, Field: f.Name})
			continue
		}

		res := coerceColumn(def.Coerce, col)

		key := ThrottleKey{Kind: ScopeType, Scope: f.Name, Rule: f.Type}
		fc.report(key, schema.SeverityError, res.invalid, func(i int) (string, Fields) {
			return fmt.Sprintf("Value %v in field %q is not of type %s", quoteValue(col[i]), f.Name, f.Type),
				Fields{File: fc.file, Line: fc.line(i), Field: f.Name, Value: col[i]}
		})

		if err := fc.tbl.SetColumn(f.Name, res.values); err != nil {
			return nil, err
		}
		if len(res.invalid) > 0 {
			invalid[f.Name] = res.invalid
		}
	}

	return invalid, nil
}

func quoteValue(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}

func coerceText(v any) (any, bool) {
	s, ok := v.(string)
	return s, ok
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		return ParseNumber(x)
	default:
		return 0, false
	}
}

func coerceDecimal(v any) (any, bool) {
	f, ok := toNumber(v)
	if !ok {
		return nil, false
	}
	return f, true
}

// coerceInteger keeps non-integral numbers as float64: they are numeric,
// so not a type error, and a rule can still reject them.
func coerceInteger(v any) (any, bool) {
	if i, ok := v.(int64); ok {
		return i, true
	}
	f, ok := toNumber(v)
	if !ok {
		return nil, false
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f), true
	}
	return f, true
}

func coerceDate(v any) (any, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		t, ok := ParseDate(x)
		if !ok {
			return nil, false
		}
		return t, true
	default:
		return nil, false
	}
}

func coerceBool(v any) (any, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case int64:
		return x == 1, x == 0 || x == 1
	case int:
		return x == 1, x == 0 || x == 1
	case float64:
		return x == 1, x == 0 || x == 1
	case string:
		return ParseBool(x)
	default:
		return nil, false
	}
}
