package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-drift/pulse/pkg/errors"
)

// counter is a minimal watched entity for notify tests.
type counter struct {
	count int
}

// recorder watches other entities and records what it saw.
type recorder struct {
	seen    []int
	fired   int
	events  []int
	dropped []EntityID
}

// emitter declares a typed event.
type valueChanged struct {
	value int
}

type emitter struct {
	value int
}

func (emitter) EmitsEvent(valueChanged) {}

// quietHandler suppresses handler output in tests that exercise
// invariant-violation panics.
type quietHandler struct{}

func (quietHandler) HandleError(*errors.Error) {}

func (quietHandler) HandlePanic(*errors.PanicError) {}

func (quietHandler) HandleInvariant(*errors.InvariantError) {}

func silenceErrors(t *testing.T) {
	t.Helper()
	errors.SetHandler(quietHandler{})
	t.Cleanup(func() { errors.SetHandler(nil) })
}

func newCounter(app *App) *Handle[counter] {
	return NewEntity(app, func(cx *Context[counter]) counter {
		return counter{}
	})
}

func newRecorder(app *App) *Handle[recorder] {
	return NewEntity(app, func(cx *Context[recorder]) recorder {
		return recorder{}
	})
}

func TestEntityIDsAreOrderedAndUnique(t *testing.T) {
	app := NewApp()
	first := newCounter(app)
	second := newCounter(app)
	defer first.Release()
	defer second.Release()

	require.False(t, first.ID().IsZero())
	require.Less(t, first.ID(), second.ID())
}

func TestContextIdentity(t *testing.T) {
	app := NewApp()
	handle := newCounter(app)
	defer handle.Release()

	Update(app, handle, func(c *counter, cx *Context[counter]) {
		require.Equal(t, handle.ID(), cx.EntityID())
		require.Equal(t, handle.ID(), cx.Weak().ID())

		strong := cx.Handle()
		require.Equal(t, handle.ID(), strong.ID())
		strong.Release()
	})
}

func TestObserveRunsAfterMutationCompletes(t *testing.T) {
	app := NewApp()
	watched := newCounter(app)
	watcher := newRecorder(app)
	defer watched.Release()
	defer watcher.Release()

	var duringMutation bool
	Update(app, watcher, func(r *recorder, cx *Context[recorder]) {
		Observe(cx, watched, func(r *recorder, h *Handle[counter], cx *Context[recorder]) {
			r.fired++
			r.seen = append(r.seen, ReadEntity(cx.App(), h).count)
		})
	})

	Update(app, watched, func(c *counter, cx *Context[counter]) {
		c.count = 42
		cx.Notify()
		// Observers must not run until this mutation has returned.
		duringMutation = ReadEntity(app, watcher).fired > 0
	})

	require.False(t, duringMutation)
	require.Equal(t, 1, ReadEntity(app, watcher).fired)
	require.Equal(t, []int{42}, ReadEntity(app, watcher).seen)
}

func TestNotifyCoalescesWithinOneMutation(t *testing.T) {
	app := NewApp()
	watched := newCounter(app)
	watcher := newRecorder(app)
	defer watched.Release()
	defer watcher.Release()

	Update(app, watcher, func(r *recorder, cx *Context[recorder]) {
		Observe(cx, watched, func(r *recorder, h *Handle[counter], cx *Context[recorder]) {
			r.fired++
		})
	})

	Update(app, watched, func(c *counter, cx *Context[counter]) {
		cx.Notify()
		cx.Notify()
		cx.Notify()
	})
	require.Equal(t, 1, ReadEntity(app, watcher).fired)

	// A fresh mutation gets a fresh pending mark.
	Update(app, watched, func(c *counter, cx *Context[counter]) {
		cx.Notify()
	})
	require.Equal(t, 2, ReadEntity(app, watcher).fired)
}

func TestObserverPrunedAfterWatcherReleased(t *testing.T) {
	app := NewApp()
	watched := newCounter(app)
	watcher := newRecorder(app)
	defer watched.Release()

	Update(app, watcher, func(r *recorder, cx *Context[recorder]) {
		Observe(cx, watched, func(r *recorder, h *Handle[counter], cx *Context[recorder]) {
			r.fired++
		})
	})
	watcher.Release()

	Update(app, watched, func(c *counter, cx *Context[counter]) {
		cx.Notify()
	})

	require.Zero(t, app.observers.count(watched.ID()))
}

func TestEmitPreservesMultiplicityAndOrder(t *testing.T) {
	app := NewApp()
	source := NewEntity(app, func(cx *Context[emitter]) emitter {
		return emitter{}
	})
	watcher := newRecorder(app)
	defer source.Release()
	defer watcher.Release()

	Update(app, watcher, func(r *recorder, cx *Context[recorder]) {
		Subscribe(cx, source, func(r *recorder, h *Handle[emitter], ev valueChanged, cx *Context[recorder]) {
			r.events = append(r.events, ev.value)
		})
	})

	Update(app, source, func(e *emitter, cx *Context[emitter]) {
		Emit(cx, valueChanged{value: 1})
		Emit(cx, valueChanged{value: 2})
		Emit(cx, valueChanged{value: 2})
		Emit(cx, valueChanged{value: 3})
	})

	require.Equal(t, []int{1, 2, 2, 3}, ReadEntity(app, watcher).events)
}

func TestEveryLiveSubscriberReceivesEachEvent(t *testing.T) {
	app := NewApp()
	source := NewEntity(app, func(cx *Context[emitter]) emitter {
		return emitter{}
	})
	first := newRecorder(app)
	second := newRecorder(app)
	defer source.Release()
	defer first.Release()
	defer second.Release()

	for _, watcher := range []*Handle[recorder]{first, second} {
		Update(app, watcher, func(r *recorder, cx *Context[recorder]) {
			Subscribe(cx, source, func(r *recorder, h *Handle[emitter], ev valueChanged, cx *Context[recorder]) {
				r.events = append(r.events, ev.value)
			})
		})
	}

	Update(app, source, func(e *emitter, cx *Context[emitter]) {
		Emit(cx, valueChanged{value: 7})
	})

	require.Equal(t, []int{7}, ReadEntity(app, first).events)
	require.Equal(t, []int{7}, ReadEntity(app, second).events)
}

func TestSubscriptionDetachStopsFiring(t *testing.T) {
	app := NewApp()
	watched := newCounter(app)
	watcher := newRecorder(app)
	defer watched.Release()
	defer watcher.Release()

	var sub *Subscription
	Update(app, watcher, func(r *recorder, cx *Context[recorder]) {
		sub = Observe(cx, watched, func(r *recorder, h *Handle[counter], cx *Context[recorder]) {
			r.fired++
		})
	})

	Update(app, watched, func(c *counter, cx *Context[counter]) { cx.Notify() })
	require.Equal(t, 1, ReadEntity(app, watcher).fired)

	sub.Detach()
	sub.Detach() // second detach is a no-op

	Update(app, watched, func(c *counter, cx *Context[counter]) { cx.Notify() })
	require.Equal(t, 1, ReadEntity(app, watcher).fired)
}

func TestNestedUpdateOfAnotherEntity(t *testing.T) {
	app := NewApp()
	first := newCounter(app)
	second := newCounter(app)
	defer first.Release()
	defer second.Release()

	Update(app, first, func(a *counter, cx *Context[counter]) {
		a.count = 1
		Update(cx.App(), second, func(b *counter, cx *Context[counter]) {
			b.count = 2
		})
	})

	require.Equal(t, 1, ReadEntity(app, first).count)
	require.Equal(t, 2, ReadEntity(app, second).count)
}

func TestNestedUpdateOfSameEntityFailsFast(t *testing.T) {
	silenceErrors(t)
	app := NewApp()
	handle := newCounter(app)
	defer handle.Release()

	require.Panics(t, func() {
		Update(app, handle, func(c *counter, cx *Context[counter]) {
			Update(cx.App(), handle, func(c *counter, cx *Context[counter]) {})
		})
	})
}

func TestObserverRegisteredDuringBuild(t *testing.T) {
	app := NewApp()
	watched := newCounter(app)
	defer watched.Release()

	watcher := NewEntity(app, func(cx *Context[recorder]) recorder {
		Observe(cx, watched, func(r *recorder, h *Handle[counter], cx *Context[recorder]) {
			r.fired++
		})
		return recorder{}
	})
	defer watcher.Release()

	Update(app, watched, func(c *counter, cx *Context[counter]) { cx.Notify() })
	require.Equal(t, 1, ReadEntity(app, watcher).fired)
}
