// Package expr evaluates validation rules written in CEL against loaded
// tables.
//
// Row rules see every column whose name is a valid identifier as a variable
// of the same name. Any column is reachable through the row map, so
// `row["Fecha de alta"]` works for names with spaces. The 0-based position
// of the row is bound to index.
//
// Package rules see df, a map from catalog name to the list of that
// catalog's rows.
package expr

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/JonMunkholm/sage/internal/dataset"
)

const (
	varRow    = "row"
	varIndex  = "index"
	varTables = "df"
)

// ErrNotBoolean is returned when a rule does not produce a boolean verdict.
var ErrNotBoolean = errors.New("rule must evaluate to a boolean")

// Protect CEL environment creation and compilation from concurrent access.
var celMutex sync.Mutex

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var reserved = map[string]bool{
	"as": true, "break": true, "const": true, "continue": true, "else": true,
	"false": true, "for": true, "function": true, "if": true, "import": true,
	"in": true, "let": true, "loop": true, "package": true, "namespace": true,
	"null": true, "return": true, "true": true, "var": true, "void": true,
	"while": true,
	varRow:  true, varIndex: true, varTables: true,
}

// Result is the outcome of a package rule. Mask is set when the rule
// produced one verdict per entry; otherwise Pass holds the single verdict.
type Result struct {
	Mask []bool
	Pass bool
}

// Scalar reports whether the rule produced a single verdict.
func (r Result) Scalar() bool { return r.Mask == nil }

// Failing returns the positions of false entries in Mask.
func (r Result) Failing() []int {
	var out []int
	for i, ok := range r.Mask {
		if !ok {
			out = append(out, i)
		}
	}
	return out
}

type program struct {
	prog cel.Program
	// refs are the column variables the expression reads.
	refs    []string
	allCols bool
}

// Evaluator compiles and runs rules. Compiled programs are cached by
// expression and column layout, so repeated rules over files with the same
// shape compile once. It is safe for concurrent use.
type Evaluator struct {
	mu       sync.Mutex
	envs     map[string]*cel.Env
	programs map[string]*program
}

// New creates an Evaluator.
func New() *Evaluator {
	return &Evaluator{
		envs:     make(map[string]*cel.Env),
		programs: make(map[string]*program),
	}
}

// EvalRows evaluates expression once per row of t and returns, per row,
// whether the row satisfies it.
//
// A row whose evaluation fails while one of the columns the expression reads
// is empty does not satisfy the rule. Any other evaluation failure, or a
// non-boolean result, is returned as an error.
func (e *Evaluator) EvalRows(expression string, t *dataset.Table) ([]bool, error) {
	cols := t.Columns()
	p, err := e.compile(expression, cols, false)
	if err != nil {
		return nil, err
	}

	vars := variables(cols)
	mask := make([]bool, t.Len())

	for i := range mask {
		row := t.Row(i)
		activation := make(map[string]any, len(vars)+2)
		for _, v := range vars {
			activation[v] = row[v]
		}
		activation[varRow] = row
		activation[varIndex] = int64(i)

		out, _, err := p.prog.Eval(activation)
		if err != nil {
			if p.readsNull(row) {
				continue
			}
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		b, ok := out.(types.Bool)
		if !ok {
			return nil, fmt.Errorf("%w, got %s", ErrNotBoolean, out.Type().TypeName())
		}
		mask[i] = bool(b)
	}

	return mask, nil
}

// EvalTables evaluates a package rule against every retained table.
func (e *Evaluator) EvalTables(expression string, tables map[string]*dataset.Table) (Result, error) {
	p, err := e.compile(expression, nil, true)
	if err != nil {
		return Result{}, err
	}

	df := make(map[string][]map[string]any, len(tables))
	for name, t := range tables {
		df[name] = t.Records()
	}

	out, _, err := p.prog.Eval(map[string]any{varTables: df})
	if err != nil {
		return Result{}, fmt.Errorf("evaluate: %w", err)
	}

	return toResult(out)
}

func toResult(out ref.Val) (Result, error) {
	switch v := out.(type) {
	case types.Bool:
		return Result{Pass: bool(v)}, nil
	case traits.Lister:
		size, ok := v.Size().(types.Int)
		if !ok {
			return Result{}, fmt.Errorf("%w: list without size", ErrNotBoolean)
		}
		mask := make([]bool, int(size))
		for i := range mask {
			b, ok := v.Get(types.Int(i)).(types.Bool)
			if !ok {
				return Result{}, fmt.Errorf("%w: entry %d is not a boolean", ErrNotBoolean, i)
			}
			mask[i] = bool(b)
		}
		return Result{Mask: mask}, nil
	default:
		return Result{}, fmt.Errorf("%w or a list of booleans, got %s", ErrNotBoolean, out.Type().TypeName())
	}
}

// compile returns the cached program for expression over the given columns,
// or over df when tables is set.
func (e *Evaluator) compile(expression string, cols []string, tables bool) (*program, error) {
	layout := layoutKey(cols, tables)
	key := layout + "\x00" + expression

	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.programs[key]; ok {
		return p, nil
	}

	env, ok := e.envs[layout]
	if !ok {
		var err error
		env, err = newEnv(cols, tables)
		if err != nil {
			return nil, err
		}
		e.envs[layout] = env
	}

	celMutex.Lock()
	defer celMutex.Unlock()

	checked, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}

	prog, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}

	p := &program{prog: prog}
	if !tables {
		known := variables(cols)
		for _, r := range checked.NativeRep().ReferenceMap() {
			switch {
			case r.Name == varRow:
				p.allCols = true
			case slices.Contains(known, r.Name) && !slices.Contains(p.refs, r.Name):
				p.refs = append(p.refs, r.Name)
			}
		}
	}

	e.programs[key] = p
	return p, nil
}

func (p *program) readsNull(row map[string]any) bool {
	if p.allCols {
		for _, v := range row {
			if v == nil {
				return true
			}
		}
		return false
	}
	for _, name := range p.refs {
		if row[name] == nil {
			return true
		}
	}
	return false
}

func newEnv(cols []string, tables bool) (*cel.Env, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	var opts []cel.EnvOption
	if tables {
		opts = append(opts, cel.Variable(varTables,
			cel.MapType(cel.StringType, cel.ListType(cel.MapType(cel.StringType, cel.DynType)))))
	} else {
		opts = append(opts,
			cel.Variable(varRow, cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable(varIndex, cel.IntType),
		)
		for _, name := range variables(cols) {
			opts = append(opts, cel.Variable(name, cel.DynType))
		}
	}
	opts = append(opts, cel.Lib(&lib{}))

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return env, nil
}

// variables returns the column names usable as bare identifiers.
func variables(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if identRe.MatchString(c) && !reserved[c] {
			out = append(out, c)
		}
	}
	return out
}

func layoutKey(cols []string, tables bool) string {
	if tables {
		return "\x01tables"
	}
	return strings.Join(cols, "\x1f")
}
