// Package classify implements the deterministic rule-based labeling pass
// applied to every transaction record. Rule evaluation is ordered,
// first-match-wins: conditions overlap, so order encodes precedence.
package classify

// step is one (predicate, label) pair in a rule ladder.
type step[T any] struct {
	when  func(T) bool
	label string
}

// ladder is an ordered list of steps evaluated top to bottom. The first
// satisfied predicate determines the label; fallback guarantees totality.
type ladder[T any] struct {
	steps    []step[T]
	fallback string
}

func (l ladder[T]) apply(v T) string {
	for _, s := range l.steps {
		if s.when(v) {
			return s.label
		}
	}
	return l.fallback
}
