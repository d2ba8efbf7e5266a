package statemachine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Guard decides whether a rule applies to data.
type Guard[S, E comparable, D any] func(ctx context.Context, from S, event E, data D) bool

// Action runs when its rule is taken. An error aborts the transition.
type Action[S, E comparable, D any] func(ctx context.Context, from, to S, event E, data D) error

// Rule is one row of the transition table.
type Rule[S, E comparable, D any] struct {
	From S
	On   E
	To   S
	// When is optional; a nil guard always passes.
	When Guard[S, E, D]
	Do   []Action[S, E, D]
}

// Table is an immutable transition table. It holds no current state, so one
// Table serves every entity concurrently.
type Table[S, E cmp.Ordered, D any] struct {
	rules map[S]map[E][]Rule[S, E, D]
}

// New builds a table. Rules sharing a state and event are tried in the order
// given.
func New[S, E cmp.Ordered, D any](rules ...Rule[S, E, D]) (*Table[S, E, D], error) {
	var (
		zeroS S
		zeroE E
	)
	t := &Table[S, E, D]{rules: make(map[S]map[E][]Rule[S, E, D])}
	for i, r := range rules {
		if r.From == zeroS || r.To == zeroS || r.On == zeroE {
			return nil, fmt.Errorf("%w: rule %d", ErrInvalidRule, i)
		}
		if t.rules[r.From] == nil {
			t.rules[r.From] = make(map[E][]Rule[S, E, D])
		}
		t.rules[r.From][r.On] = append(t.rules[r.From][r.On], r)
	}
	return t, nil
}

// MustNew is New for package-level tables.
func MustNew[S, E cmp.Ordered, D any](rules ...Rule[S, E, D]) *Table[S, E, D] {
	t, err := New(rules...)
	if err != nil {
		panic(err)
	}
	return t
}

// Fire takes the first rule from current on event whose guard passes, runs
// its actions in order and returns the target state. On any error current is
// returned unchanged.
func (t *Table[S, E, D]) Fire(ctx context.Context, current S, event E, data D) (S, error) {
	r, err := t.resolve(ctx, current, event, data)
	if err != nil {
		return current, err
	}
	for _, do := range r.Do {
		if err := do(ctx, current, r.To, event, data); err != nil {
			return current, errors.Join(ErrAction, err)
		}
	}
	return r.To, nil
}

// Can reports whether Fire would find a rule. Actions are not run.
func (t *Table[S, E, D]) Can(ctx context.Context, current S, event E, data D) bool {
	_, err := t.resolve(ctx, current, event, data)
	return err == nil
}

// Events lists the events with at least one rule leaving state, sorted.
func (t *Table[S, E, D]) Events(state S) []E {
	return slices.Sorted(maps.Keys(t.rules[state]))
}

// Terminal reports whether no rule leaves state.
func (t *Table[S, E, D]) Terminal(state S) bool {
	return len(t.rules[state]) == 0
}

func (t *Table[S, E, D]) resolve(ctx context.Context, current S, event E, data D) (Rule[S, E, D], error) {
	candidates := t.rules[current][event]
	if len(candidates) == 0 {
		return Rule[S, E, D]{}, fmt.Errorf("%w: %v on %v", ErrUndefined, current, event)
	}
	for _, r := range candidates {
		if r.When == nil || r.When(ctx, current, event, data) {
			return r, nil
		}
	}
	return Rule[S, E, D]{}, fmt.Errorf("%w: %v on %v", ErrRejected, current, event)
}
