package core

import "fmt"

// Default throttle settings.
const (
	DefaultSmallFileThreshold = 30
	DefaultMaxErrorsPerRule   = 10
)

// ScopeKind names the level a throttled rule belongs to.
type ScopeKind string

const (
	ScopeType    ScopeKind = "type"
	ScopeField   ScopeKind = "field"
	ScopeRow     ScopeKind = "row"
	ScopeCatalog ScopeKind = "catalog"
)

// ThrottleKey identifies one (scope, rule) pair.
type ThrottleKey struct {
	Kind  ScopeKind
	Scope string
	Rule  string
}

func (k ThrottleKey) String() string {
	return fmt.Sprintf("%s %q, rule %q", k.Kind, k.Scope, k.Rule)
}

// CappedRule is a (scope, rule) pair whose detail was capped, with the
// number of failures observed when the cap was applied.
type CappedRule struct {
	Key   ThrottleKey
	Count int
}

// Throttle bounds per-rule diagnostic detail on large tables. A table is
// large when it has more than threshold rows. Once a pair is capped it
// stays capped for the rest of the run.
type Throttle struct {
	threshold int
	limit     int
	capped    map[ThrottleKey]int
	hits      map[ThrottleKey]int
	order     []ThrottleKey
}

// NewThrottle creates a Throttle. Non-positive values select the defaults.
func NewThrottle(threshold, limit int) *Throttle {
	if threshold <= 0 {
		threshold = DefaultSmallFileThreshold
	}
	if limit <= 0 {
		limit = DefaultMaxErrorsPerRule
	}
	return &Throttle{
		threshold: threshold,
		limit:     limit,
		capped:    make(map[ThrottleKey]int),
		hits:      make(map[ThrottleKey]int),
	}
}

// Large reports whether a table with the given row count is throttled.
func (t *Throttle) Large(rows int) bool {
	return rows > t.threshold
}

// Limit is the number of detailed diagnostics kept per pair.
func (t *Throttle) Limit() int { return t.limit }

// Capped reports whether the pair has been capped.
func (t *Throttle) Capped(k ThrottleKey) bool {
	_, ok := t.capped[k]
	return ok
}

// Cap marks the pair capped. The first observed count wins.
func (t *Throttle) Cap(k ThrottleKey, count int) {
	if t.Capped(k) {
		return
	}
	t.capped[k] = count
	t.order = append(t.order, k)
}

// Hit records one more failing evaluation of a pair and returns the total.
// Used for rules that fail at most once per evaluation.
func (t *Throttle) Hit(k ThrottleKey) int {
	t.hits[k]++
	return t.hits[k]
}

// Summary lists capped pairs in the order they were capped.
func (t *Throttle) Summary() []CappedRule {
	out := make([]CappedRule, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, CappedRule{Key: k, Count: t.capped[k]})
	}
	return out
}
