package expr

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/ext"
	"github.com/google/cel-go/interpreter"
)

type lib struct{}

func (lib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		ext.Math(),
		ext.Strings(),
		ext.Lists(),

		cel.CrossTypeNumericComparisons(true),

		// isNull(x) and notNull(x) test for empty cells.
		// Example: isNull(fecha_baja) || fecha_baja > fecha_alta.
		cel.Function("isNull",
			cel.Overload("isNull_dyn", []*cel.Type{cel.DynType}, cel.BoolType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return types.Bool(isNull(v))
				}),
			),
		),
		cel.Function("notNull",
			cel.Overload("notNull_dyn", []*cel.Type{cel.DynType}, cel.BoolType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return types.Bool(!isNull(v))
				}),
			),
		),
	}
}

func (lib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{cel.CustomDecorator(promoteNumbers)}
}

// promoteNumbers lets arithmetic mix int and double operands. An entero
// column holds ints and a decimal column doubles, so `cantidad * precio`
// has to work.
func promoteNumbers(i interpreter.Interpretable) (interpreter.Interpretable, error) {
	call, ok := i.(interpreter.InterpretableCall)
	if !ok || len(call.Args()) != 2 {
		return i, nil
	}
	switch call.Function() {
	case operators.Add, operators.Subtract, operators.Multiply, operators.Divide:
		return &arithmetic{InterpretableCall: call, lhs: call.Args()[0], rhs: call.Args()[1]}, nil
	}
	return i, nil
}

type arithmetic struct {
	interpreter.InterpretableCall
	lhs, rhs interpreter.Interpretable
}

func (a *arithmetic) Eval(ctx interpreter.Activation) ref.Val {
	l, r := a.lhs.Eval(ctx), a.rhs.Eval(ctx)
	if types.IsUnknownOrError(l) {
		return l
	}
	if types.IsUnknownOrError(r) {
		return r
	}
	l, r = promote(l, r)

	var out ref.Val
	switch a.Function() {
	case operators.Add:
		if v, ok := l.(traits.Adder); ok {
			out = v.Add(r)
		}
	case operators.Subtract:
		if v, ok := l.(traits.Subtractor); ok {
			out = v.Subtract(r)
		}
	case operators.Multiply:
		if v, ok := l.(traits.Multiplier); ok {
			out = v.Multiply(r)
		}
	case operators.Divide:
		if v, ok := l.(traits.Divider); ok {
			out = v.Divide(r)
		}
	}
	if out == nil {
		return types.NewErrWithNodeID(a.ID(), "no such overload: %s", a.Function())
	}
	return types.LabelErrNode(a.ID(), out)
}

func promote(l, r ref.Val) (ref.Val, ref.Val) {
	switch lv := l.(type) {
	case types.Int:
		if _, ok := r.(types.Double); ok {
			return types.Double(lv), r
		}
	case types.Double:
		if rv, ok := r.(types.Int); ok {
			return l, types.Double(rv)
		}
	}
	return l, r
}

func isNull(v ref.Val) bool {
	_, ok := v.(types.Null)
	return ok
}
