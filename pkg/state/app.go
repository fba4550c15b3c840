package state

import (
	"context"
	"reflect"
)

// App is the owning application context for a set of entities: the entity
// store, the listener tables, the effect queue, the global-state slots and
// the foreground scheduler that background tasks marshal work through.
//
// App is single-thread-affine, like the rest of the framework's mutable
// state: all entity construction, mutation and effect dispatch must happen
// on one logical thread. Background goroutines reach the app only through
// the AsyncApp handed to spawned tasks, which dispatches closures back
// onto that thread.
type App struct {
	store *entityStore

	observers        *listenerTable[EntityID, func(*App) bool]
	eventListeners   *listenerTable[EntityID, func(any, *App) bool]
	releaseListeners *listenerTable[EntityID, func(any, *App)]
	globalObservers  *listenerTable[reflect.Type, func(*App) bool]
	quitObservers    *listenerTable[struct{}, func(*App) *Task[struct{}]]

	pendingNotifications map[EntityID]struct{}
	pendingEffects       []effect
	pendingReleases      []EntityID

	globals map[reflect.Type]any
	leased  map[reflect.Type]bool

	// updateDepth tracks nesting of update closures. Effects drain only
	// when the outermost update returns; nested updates of other entities
	// are fully supported and simply extend the current cycle.
	updateDepth int
	flushing    bool

	sched *scheduler
}

// NewApp creates an empty application context.
func NewApp() *App {
	return &App{
		store:                newEntityStore(),
		observers:            newListenerTable[EntityID, func(*App) bool](),
		eventListeners:       newListenerTable[EntityID, func(any, *App) bool](),
		releaseListeners:     newListenerTable[EntityID, func(any, *App)](),
		globalObservers:      newListenerTable[reflect.Type, func(*App) bool](),
		quitObservers:        newListenerTable[struct{}, func(*App) *Task[struct{}]](),
		pendingNotifications: make(map[EntityID]struct{}),
		globals:              make(map[reflect.Type]any),
		leased:               make(map[reflect.Type]bool),
		sched:                newScheduler(),
	}
}

// IsAlive reports whether the entity with the given identifier still holds
// strong claims.
func (app *App) IsAlive(id EntityID) bool {
	return app.store.isAlive(id)
}

// SetScheduleHook registers a callback invoked whenever a background task
// marshals work onto the app. Embedders with their own event loop use it
// to request a Flush on the app thread; tests and Await pump the queue
// themselves and do not need it.
func (app *App) SetScheduleHook(fn func()) {
	app.sched.setHook(fn)
}

// Flush runs all callbacks that background tasks have marshalled onto the
// app so far. Must be called on the app thread.
func (app *App) Flush() {
	for {
		fn, ok := app.sched.pop()
		if !ok {
			return
		}
		fn()
	}
}

// update wraps one mutation turn. The outermost turn drains the effect
// queue after its closure returns.
func (app *App) update(f func()) {
	app.updateDepth++
	defer func() {
		app.updateDepth--
		if app.updateDepth == 0 && !app.flushing {
			app.flushEffects()
		}
	}()
	f()
}

// releaseClaim drops one strong claim on the entity, queueing release
// processing when the claim was the last one. Wrapped in update so that a
// top-level Release flushes immediately.
func (app *App) releaseClaim(id EntityID) {
	app.update(func() {
		if app.store.releaseClaim(id) {
			app.pendingReleases = append(app.pendingReleases, id)
		}
	})
}

// flushEffects drains the effect queue in FIFO order. Dead entities are
// reaped before every effect step, mirroring the drain order the rest of
// the framework depends on: release listeners never observe an effect that
// was queued after their entity died.
func (app *App) flushEffects() {
	app.flushing = true
	defer func() { app.flushing = false }()
	for {
		app.releaseDropped()
		if len(app.pendingEffects) == 0 {
			return
		}
		eff := app.pendingEffects[0]
		app.pendingEffects = app.pendingEffects[1:]
		switch eff.kind {
		case effectNotify:
			delete(app.pendingNotifications, eff.emitter)
			dispatchRetain(app.observers, eff.emitter, app)
		case effectEmit:
			app.dispatchEvent(eff.emitter, eff.event)
		case effectGlobalNotify:
			dispatchRetain(app.globalObservers, eff.global, app)
		}
	}
}

// releaseDropped runs release listeners for entities whose last claim was
// dropped, then purges every registration keyed by the dead identifier.
// Listeners may release further entities; the loop keeps going until the
// queue is empty.
func (app *App) releaseDropped() {
	for len(app.pendingReleases) > 0 {
		id := app.pendingReleases[0]
		app.pendingReleases = app.pendingReleases[1:]

		cell, ok := app.store.get(id)
		if !ok {
			continue
		}
		for _, entry := range app.releaseListeners.take(id) {
			if entry.removed {
				continue
			}
			entry.fn(cell.value, app)
		}
		app.observers.drop(id)
		app.eventListeners.drop(id)
		delete(app.pendingNotifications, id)
		app.store.drop(id)
	}
}

func (app *App) dispatchEvent(emitter EntityID, event any) {
	for _, entry := range app.eventListeners.snapshot(emitter) {
		if entry.removed {
			continue
		}
		if !entry.fn(event, app) {
			entry.removed = true
		}
	}
	app.eventListeners.compact(emitter)
}

// Quit runs all registered quit handlers whose watching entity is still
// alive, then awaits their completion tasks until ctx expires. Pending
// effects produced by the handlers are flushed as part of the turn.
func (app *App) Quit(ctx context.Context) {
	entries := app.quitObservers.take(struct{}{})
	var tasks []*Task[struct{}]
	app.update(func() {
		for _, entry := range entries {
			if entry.removed {
				continue
			}
			if task := entry.fn(app); task != nil {
				tasks = append(tasks, task)
			}
		}
	})
	for _, task := range tasks {
		if _, err := Await(ctx, app, task); err != nil {
			return
		}
	}
}

// NewEntity constructs a new entity owned by app. The build closure runs
// under a mutation context scoped to the entity, so it may already register
// subscriptions, queue a notify, or spawn tasks. The returned strong handle
// carries the entity's first claim.
func NewEntity[T any](app *App, build func(cx *Context[T]) T) *Handle[T] {
	var handle *Handle[T]
	app.update(func() {
		id := app.store.reserve()
		cx := &Context[T]{app: app, entity: WeakHandle[T]{id: id, app: app}}
		value := build(cx)
		app.store.insert(id, &value)
		handle = &Handle[T]{id: id, app: app}
	})
	return handle
}

// Update runs f with exclusive access to the entity's state and a mutation
// context. Effects queued by f are dispatched after the outermost update
// returns. Nested updates of other entities are allowed; a nested update of
// the same entity is an invariant violation.
func Update[T any](app *App, h *Handle[T], f func(*T, *Context[T])) {
	UpdateResult(app, h, func(t *T, cx *Context[T]) struct{} {
		f(t, cx)
		return struct{}{}
	})
}

// UpdateResult is Update for callers that need a value out of the closure.
func UpdateResult[T any, R any](app *App, h *Handle[T], f func(*T, *Context[T]) R) R {
	var result R
	app.update(func() {
		value := app.store.take(h.ID(), "state.Update")
		ptr, ok := value.(*T)
		if !ok {
			invariantf("state.Update", "entity %v holds %T, not %v", h.ID(), value, reflect.TypeFor[*T]())
		}
		cx := &Context[T]{app: app, entity: h.Downgrade()}
		result = f(ptr, cx)
		app.store.put(h.ID(), value)
	})
	return result
}

// ReadEntity returns the entity's state for inspection. The entity must be
// alive and not currently under mutation. The returned pointer must not be
// retained or written outside an update turn.
func ReadEntity[T any](app *App, h *Handle[T]) *T {
	value := app.store.read(h.ID(), "state.ReadEntity")
	ptr, ok := value.(*T)
	if !ok {
		invariantf("state.ReadEntity", "entity %v holds %T, not %v", h.ID(), value, reflect.TypeFor[*T]())
	}
	return ptr
}
