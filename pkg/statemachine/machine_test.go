package statemachine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/statemachine"
)

type (
	state string
	event string
)

const (
	open    state = "open"
	overdue state = "overdue"
	closed  state = "closed"

	paid   event = "paid"
	missed event = "missed"
	void   event = "void"
)

type invoice struct {
	misses int
	log    []string
}

type rule = statemachine.Rule[state, event, *invoice]

func tooManyMisses(_ context.Context, _ state, _ event, inv *invoice) bool {
	return inv.misses+1 >= 3
}

func countMiss(_ context.Context, _, _ state, _ event, inv *invoice) error {
	inv.misses++
	return nil
}

func newTable(t *testing.T) *statemachine.Table[state, event, *invoice] {
	t.Helper()

	table, err := statemachine.New(
		rule{From: open, On: missed, To: overdue, Do: []statemachine.Action[state, event, *invoice]{countMiss}},
		rule{From: overdue, On: missed, To: closed, When: tooManyMisses, Do: []statemachine.Action[state, event, *invoice]{countMiss}},
		rule{From: overdue, On: missed, To: overdue, Do: []statemachine.Action[state, event, *invoice]{countMiss}},
		rule{From: overdue, On: paid, To: open},
		rule{From: open, On: void, To: closed},
	)
	require.NoError(t, err)
	return table
}

func TestTable_Fire(t *testing.T) {
	t.Parallel()

	t.Run("guarded branch", func(t *testing.T) {
		t.Parallel()

		table := newTable(t)
		inv := &invoice{}
		ctx := context.Background()

		s, err := table.Fire(ctx, open, missed, inv)
		require.NoError(t, err)
		assert.Equal(t, overdue, s)

		s, err = table.Fire(ctx, s, missed, inv)
		require.NoError(t, err)
		assert.Equal(t, overdue, s)

		s, err = table.Fire(ctx, s, missed, inv)
		require.NoError(t, err)
		assert.Equal(t, closed, s)
		assert.Equal(t, 3, inv.misses)
	})

	t.Run("undefined", func(t *testing.T) {
		t.Parallel()

		s, err := newTable(t).Fire(context.Background(), closed, paid, &invoice{})
		assert.ErrorIs(t, err, statemachine.ErrUndefined)
		assert.Equal(t, closed, s)
	})

	t.Run("rejected", func(t *testing.T) {
		t.Parallel()

		never := func(context.Context, state, event, *invoice) bool { return false }
		table := statemachine.MustNew(rule{From: open, On: void, To: closed, When: never})

		s, err := table.Fire(context.Background(), open, void, &invoice{})
		assert.ErrorIs(t, err, statemachine.ErrRejected)
		assert.Equal(t, open, s)
	})

	t.Run("failing action keeps state", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		table := statemachine.MustNew(rule{
			From: open, On: void, To: closed,
			Do: []statemachine.Action[state, event, *invoice]{
				func(context.Context, state, state, event, *invoice) error { return boom },
			},
		})

		s, err := table.Fire(context.Background(), open, void, &invoice{})
		assert.ErrorIs(t, err, statemachine.ErrAction)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, open, s)
	})

	t.Run("actions run in order", func(t *testing.T) {
		t.Parallel()

		step := func(name string) statemachine.Action[state, event, *invoice] {
			return func(_ context.Context, from, to state, _ event, inv *invoice) error {
				inv.log = append(inv.log, name+":"+string(from)+"->"+string(to))
				return nil
			}
		}
		table := statemachine.MustNew(rule{
			From: open, On: void, To: closed,
			Do: []statemachine.Action[state, event, *invoice]{step("a"), step("b")},
		})

		inv := &invoice{}
		_, err := table.Fire(context.Background(), open, void, inv)
		require.NoError(t, err)
		assert.Equal(t, []string{"a:open->closed", "b:open->closed"}, inv.log)
	})
}

func TestTable_Introspection(t *testing.T) {
	t.Parallel()

	table := newTable(t)
	assert.Equal(t, []event{missed, void}, table.Events(open))
	assert.True(t, table.Terminal(closed))
	assert.False(t, table.Terminal(overdue))
	assert.True(t, table.Can(context.Background(), overdue, paid, &invoice{}))
	assert.False(t, table.Can(context.Background(), closed, paid, &invoice{}))
}

func TestNew_InvalidRule(t *testing.T) {
	t.Parallel()

	_, err := statemachine.New(rule{From: open, On: void})
	assert.ErrorIs(t, err, statemachine.ErrInvalidRule)

	assert.Panics(t, func() {
		statemachine.MustNew(rule{On: void, To: closed})
	})
}

func TestTable_ConcurrentUse(t *testing.T) {
	t.Parallel()

	table := newTable(t)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := table.Fire(context.Background(), open, missed, &invoice{})
			assert.NoError(t, err)
			assert.Equal(t, overdue, s)
		}()
	}
	wg.Wait()
}
