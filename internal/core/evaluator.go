package core

import (
	"fmt"
	"time"

	"github.com/JonMunkholm/sage/internal/dataset"
	"github.com/JonMunkholm/sage/internal/schema"
)

// Rule tiers, used in RuleError and diagnostics.
const (
	TierField   = "field"
	TierRow     = "row"
	TierCatalog = "catalog"
	TierPackage = "package"
)

const (
	ruleRequired = "required"
	ruleUnique   = "unique"
)

// fileCheck carries everything needed to validate one loaded file.
type fileCheck struct {
	rs   *RunState
	rep  Reporter
	eval RuleEvaluator
	cat  *schema.Catalog
	file string
	tbl  *dataset.Table
}

// line converts a 0-based row position to the line number in the file.
func (fc *fileCheck) line(i int) int {
	if fc.cat.FileFormat.Header {
		return i + 2
	}
	return i + 1
}

// report emits one diagnostic per failing row at the given severity and
// updates the counters.
//
// On large tables an ERROR pair shows at most Limit rows; if more failed,
// the pair is capped and later evaluations only count. WARNING detail is
// never capped and MESSAGE rows are informational only.
func (fc *fileCheck) report(key ThrottleKey, sev schema.Severity, failing []int, detail func(i int) (string, Fields)) {
	if len(failing) == 0 {
		return
	}

	switch sev {
	case schema.SeverityMessage:
		for _, i := range failing {
			msg, _ := detail(i)
			fc.rep.Message(msg)
		}
		return
	case schema.SeverityWarning:
		fc.rs.AddWarnings(len(failing))
		for _, i := range failing {
			fc.rep.Warning(detail(i))
		}
		return
	}

	fc.rs.AddErrors(len(failing))

	th := fc.rs.Throttle()
	shown := failing
	if th.Large(fc.tbl.Len()) {
		if th.Capped(key) {
			return
		}
		// Reaching the limit caps the rule, even when all failures fit.
		if len(failing) >= th.Limit() {
			shown = failing[:th.Limit()]
			th.Cap(key, len(failing))
		}
	}

	for _, i := range shown {
		fc.rep.Error(detail(i))
	}

	if len(shown) < len(failing) {
		f := Fields{File: fc.file, Rule: key.Rule}
		if key.Kind == ScopeField || key.Kind == ScopeType {
			f.Field = key.Scope
		}
		fc.rep.Warning(fmt.Sprintf("Found %d failures for rule %q on %s %q, showing the first %d",
			len(failing), key.Rule, key.Kind, key.Scope, len(shown)), f)
	}
}

// validate runs every tier of the catalog against the coerced table.
// typeInvalid lists, per field, rows already reported as type errors.
func (fc *fileCheck) validate(typeInvalid map[string][]int) error {
	for _, f := range fc.cat.Fields {
		fc.checkRequired(f, typeInvalid[f.Name])
		fc.checkUnique(f)
		if err := fc.fieldRules(f); err != nil {
			return err
		}
	}
	if err := fc.rowRules(); err != nil {
		return err
	}
	return fc.catalogRules()
}

func (fc *fileCheck) checkRequired(f schema.Field, skip []int) {
	if !f.Required {
		return
	}
	col, ok := fc.tbl.Column(f.Name)
	if !ok {
		return
	}

	skipped := make(map[int]bool, len(skip))
	for _, i := range skip {
		skipped[i] = true
	}

	var missing []int
	for i, v := range col {
		if v == nil && !skipped[i] {
			missing = append(missing, i)
		}
	}

	key := ThrottleKey{Kind: ScopeField, Scope: f.Name, Rule: ruleRequired}
	fc.report(key, schema.SeverityError, missing, func(i int) (string, Fields) {
		return fmt.Sprintf("Required field %q is missing", f.Name),
			Fields{File: fc.file, Line: fc.line(i), Field: f.Name, Rule: ruleRequired}
	})
}

// timeKey makes time values comparable by instant rather than by location.
type timeKey int64

func uniqueKey(v any) any {
	if t, ok := v.(time.Time); ok {
		return timeKey(t.UnixNano())
	}
	return v
}

// checkUnique flags every row whose value occurs more than once. Empty
// cells are not compared.
func (fc *fileCheck) checkUnique(f schema.Field) {
	if !f.Unique {
		return
	}
	col, ok := fc.tbl.Column(f.Name)
	if !ok {
		return
	}

	counts := make(map[any]int)
	for _, v := range col {
		if v != nil {
			counts[uniqueKey(v)]++
		}
	}

	var dups []int
	for i, v := range col {
		if v != nil && counts[uniqueKey(v)] > 1 {
			dups = append(dups, i)
		}
	}

	key := ThrottleKey{Kind: ScopeField, Scope: f.Name, Rule: ruleUnique}
	fc.report(key, schema.SeverityError, dups, func(i int) (string, Fields) {
		return fmt.Sprintf("Field %q must be unique", f.Name),
			Fields{File: fc.file, Line: fc.line(i), Field: f.Name, Value: col[i], Rule: ruleUnique}
	})
}

// failingRows evaluates a row rule and returns the positions of rows that
// do not satisfy it.
func (fc *fileCheck) failingRows(tier string, rule schema.ValidationRule) ([]int, error) {
	mask, err := fc.eval.EvalRows(rule.Rule, fc.tbl)
	if err != nil {
		return nil, &RuleError{Tier: tier, Rule: rule.Name, Err: err}
	}
	var failing []int
	for i, ok := range mask {
		if !ok {
			failing = append(failing, i)
		}
	}
	return failing, nil
}

func (fc *fileCheck) fieldRules(f schema.Field) error {
	col, _ := fc.tbl.Column(f.Name)

	for _, rule := range f.ValidationRules {
		key := ThrottleKey{Kind: ScopeField, Scope: f.Name, Rule: rule.Name}

		failing, err := fc.failingRows(TierField, rule)
		if err != nil {
			return err
		}

		fc.report(key, rule.Severity, failing, func(i int) (string, Fields) {
			var v any
			if col != nil {
				v = col[i]
			}
			return fmt.Sprintf("Field validation failed: %s", describe(rule)),
				Fields{File: fc.file, Line: fc.line(i), Field: f.Name, Value: v, Rule: rule.Name, Expression: rule.Rule}
		})
	}
	return nil
}

func (fc *fileCheck) rowRules() error {
	for _, rule := range fc.cat.RowValidation {
		key := ThrottleKey{Kind: ScopeRow, Scope: fc.cat.Name, Rule: rule.Name}

		failing, err := fc.failingRows(TierRow, rule)
		if err != nil {
			return err
		}

		fc.report(key, rule.Severity, failing, func(i int) (string, Fields) {
			return fmt.Sprintf("Row validation failed: %s", describe(rule)),
				Fields{File: fc.file, Line: fc.line(i), Rule: rule.Name, Expression: rule.Rule}
		})
	}
	return nil
}

// catalogRules emits at most one diagnostic per rule. On large tables a
// rule that has failed Limit times across the run stops emitting detail.
func (fc *fileCheck) catalogRules() error {
	th := fc.rs.Throttle()
	large := th.Large(fc.tbl.Len())

	for _, rule := range fc.cat.CatalogValidation {
		key := ThrottleKey{Kind: ScopeCatalog, Scope: fc.cat.Name, Rule: rule.Name}

		failing, err := fc.failingRows(TierCatalog, rule)
		if err != nil {
			return err
		}
		if len(failing) == 0 {
			continue
		}

		msg := fmt.Sprintf("Catalog validation failed: %s", describe(rule))
		f := Fields{File: fc.file, Rule: rule.Name, Expression: rule.Rule}

		switch rule.Severity {
		case schema.SeverityMessage:
			fc.rep.Message(msg)
		case schema.SeverityWarning:
			fc.rs.AddWarnings(1)
			fc.rep.Warning(msg, f)
		default:
			fc.rs.AddErrors(1)
			if large && th.Capped(key) {
				continue
			}
			fc.rep.Error(msg, f)
			if hits := th.Hit(key); large && hits >= th.Limit() {
				th.Cap(key, hits)
				fc.rep.Warning(fmt.Sprintf("Catalog rule %q failed %d times, further failures are counted only", rule.Name, hits), f)
			}
		}
	}
	return nil
}

// packageRules evaluates the package's rules against every retained table.
// A rule that cannot be evaluated is reported and counted as one error;
// the remaining rules still run.
func packageRules(rs *RunState, rep Reporter, eval RuleEvaluator, pkgName string, pkg *schema.Package) {
	tables := rs.Tables()

	for _, rule := range pkg.PackageValidation {
		res, err := eval.EvalTables(rule.Rule, tables)
		if err != nil {
			rerr := &RuleError{Tier: TierPackage, Rule: rule.Name, Err: err}
			rs.AddErrors(1)
			rep.Error(rerr.Error(), Fields{Package: pkgName, Rule: rule.Name, Expression: rule.Rule, Err: err})
			continue
		}

		f := Fields{Package: pkgName, Rule: rule.Name, Expression: rule.Rule}
		if res.Scalar() {
			if res.Pass {
				continue
			}
		} else {
			f.Indices = res.Failing()
			if len(f.Indices) == 0 {
				continue
			}
		}

		msg := fmt.Sprintf("Package validation failed: %s", describe(rule))
		switch rule.Severity {
		case schema.SeverityMessage:
			rep.Message(msg)
		case schema.SeverityWarning:
			rs.AddWarnings(1)
			rep.Warning(msg, f)
		default:
			rs.AddErrors(1)
			rep.Error(msg, f)
		}
	}
}

func describe(rule schema.ValidationRule) string {
	if rule.Description != "" {
		return rule.Description
	}
	return rule.Name
}
