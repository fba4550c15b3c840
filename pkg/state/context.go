package state

import "reflect"

// Context is the mutation context: the transient scope handed to an
// entity's own code while its state is exclusively borrowed. It exposes
// the entity's identity, handle materialization, subscription
// registration, global access, deferred notification and task spawning.
//
// A Context is only valid for the duration of the update (or build)
// closure that received it and must never be stored beyond that call.
type Context[T any] struct {
	app    *App
	entity WeakHandle[T]
}

// App returns the owning application context, for nested operations such
// as updating another entity from inside this mutation.
func (cx *Context[T]) App() *App {
	return cx.app
}

// EntityID returns the identity of the entity currently under mutation.
func (cx *Context[T]) EntityID() EntityID {
	return cx.entity.ID()
}

// Weak returns a weak handle to the entity under mutation. Never fails.
func (cx *Context[T]) Weak() WeakHandle[T] {
	return cx.entity
}

// Handle upgrades the context's own weak handle into a new strong claim.
// The entity is alive by construction while its context exists, so a
// failed upgrade here is an invariant breach, not a recoverable error.
func (cx *Context[T]) Handle() *Handle[T] {
	h, ok := cx.entity.Upgrade()
	if !ok {
		invariantf("state.Context.Handle", "entity %v must be alive while its mutation context exists", cx.entity.ID())
	}
	return h
}

// Notify requests that observers of this entity run after the current
// mutation completes. Idempotent within one mutation: repeated calls
// collapse into a single queued notify effect until it is drained.
func (cx *Context[T]) Notify() {
	id := cx.entity.ID()
	if _, pending := cx.app.pendingNotifications[id]; pending {
		return
	}
	cx.app.pendingNotifications[id] = struct{}{}
	cx.app.pendingEffects = append(cx.app.pendingEffects, effect{kind: effectNotify, emitter: id})
}

// EventEmitter declares the event type an entity emits. An entity state
// type opts in with a no-op marker method:
//
//	type Uploaded struct{ Path string }
//
//	type Uploader struct{ ... }
//
//	func (Uploader) EmitsEvent(Uploaded) {}
//
// Go permits only one method named EmitsEvent per type, so every entity
// declares exactly one event type, checked at compile time by the
// constraints on Emit and Subscribe.
type EventEmitter[E any] interface {
	EmitsEvent(E)
}

// Emit queues an event from the entity under mutation for dispatch to its
// subscribers after the mutation completes. Unlike Notify, every call
// produces a distinct queued effect: multiplicity and order are preserved.
func Emit[E any, T EventEmitter[E]](cx *Context[T], event E) {
	cx.app.pendingEffects = append(cx.app.pendingEffects, effect{
		kind:    effectEmit,
		emitter: cx.entity.ID(),
		event:   event,
	})
}

// Observe registers interest in notify effects from the watched entity.
// When the watched entity notifies, onNotify runs under a fresh mutation
// scope for the watcher, receiving the watcher's state and a live handle
// to the watched entity. The registration prunes itself once either side
// has been released.
func Observe[T any, W any](cx *Context[T], watched *Handle[W], onNotify func(*T, *Handle[W], *Context[T])) *Subscription {
	watcher := cx.Weak()
	target := watched.Downgrade()
	return cx.app.observers.insert(watched.ID(), func(app *App) bool {
		this, ok := watcher.Upgrade()
		if !ok {
			return false
		}
		defer this.Release()
		seen, ok := target.Upgrade()
		if !ok {
			return false
		}
		defer seen.Release()
		Update(app, this, func(t *T, cx *Context[T]) {
			onNotify(t, seen, cx)
		})
		return true
	})
}

// Subscribe registers interest in events emitted by the watched entity.
// The emitter's declared event type fixes E; payloads are type-erased in
// the effect queue and checked again on dispatch, where a mismatch is a
// kernel bug, not user error. Firing semantics mirror Observe.
func Subscribe[T any, E any, W EventEmitter[E]](cx *Context[T], emitter *Handle[W], onEvent func(*T, *Handle[W], E, *Context[T])) *Subscription {
	watcher := cx.Weak()
	source := emitter.Downgrade()
	return cx.app.eventListeners.insert(emitter.ID(), func(payload any, app *App) bool {
		event, ok := payload.(E)
		if !ok {
			invariantf("state.Subscribe", "event payload %T from entity %v does not downcast to %v",
				payload, source.ID(), reflect.TypeFor[E]())
		}
		this, ok := watcher.Upgrade()
		if !ok {
			return false
		}
		defer this.Release()
		src, ok := source.Upgrade()
		if !ok {
			return false
		}
		defer src.Release()
		Update(app, this, func(t *T, cx *Context[T]) {
			onEvent(t, src, event, cx)
		})
		return true
	})
}

// OnRelease registers a listener invoked exactly once, when this entity is
// released. It receives mutable access to the about-to-die state and the
// owning app, but no mutation context: the entity is already terminal.
func OnRelease[T any](cx *Context[T], onRelease func(*T, *App)) *Subscription {
	return cx.app.releaseListeners.insert(cx.entity.ID(), func(value any, app *App) {
		t, ok := value.(*T)
		if !ok {
			invariantf("state.OnRelease", "release listener for %T invoked against %T", t, value)
		}
		onRelease(t, app)
	})
}

// ObserveRelease registers interest in the release of a different entity.
// The handler fires once, when the watched entity dies, under the
// watcher's own mutation scope; it is skipped if the watcher has already
// been released.
func ObserveRelease[T any, W any](cx *Context[T], watched *Handle[W], onRelease func(*T, *W, *Context[T])) *Subscription {
	watcher := cx.Weak()
	return cx.app.releaseListeners.insert(watched.ID(), func(value any, app *App) {
		released, ok := value.(*W)
		if !ok {
			invariantf("state.ObserveRelease", "release listener for %v invoked against %T", reflect.TypeFor[*W](), value)
		}
		this, ok := watcher.Upgrade()
		if !ok {
			return
		}
		defer this.Release()
		Update(app, this, func(t *T, cx *Context[T]) {
			onRelease(t, released, cx)
		})
	})
}

// ObserveGlobal registers interest in the global state of type G, keyed by
// its type identity. The handler runs under the watcher's mutation scope
// after every lease of G ends, once the mutation that held the lease has
// completed.
func ObserveGlobal[G any, T any](cx *Context[T], f func(*T, *Context[T])) *Subscription {
	watcher := cx.Weak()
	return cx.app.globalObservers.insert(reflect.TypeFor[G](), func(app *App) bool {
		this, ok := watcher.Upgrade()
		if !ok {
			return false
		}
		defer this.Release()
		Update(app, this, f)
		return true
	})
}

// UpdateGlobal checks out the sole instance of the global state of type G
// and runs f with exclusive access to it plus the current mutation
// context, so f may mutate the entity, emit, spawn, or lease a different
// global type. When f returns, the instance goes back into its slot and a
// notify for G's observers joins the effect queue; they run after the
// current mutation completes, like entity observers. Leasing G while a
// lease of G is already outstanding is an invariant violation.
func UpdateGlobal[G any, T any](cx *Context[T], f func(*G, *Context[T])) {
	UpdateGlobalResult(cx, func(g *G, cx *Context[T]) struct{} {
		f(g, cx)
		return struct{}{}
	})
}

// UpdateGlobalResult is UpdateGlobal for callers that need f's result.
func UpdateGlobalResult[G any, T any, R any](cx *Context[T], f func(*G, *Context[T]) R) R {
	global := leaseGlobal[G](cx.app)
	result := f(global, cx)
	endGlobalLease(cx.app, global)
	return result
}

// OnAppQuit registers a handler that runs when the app quits, if the
// entity is still alive. The handler may return a completion task (for
// asynchronous teardown) which App.Quit awaits; returning nil means the
// handler finished synchronously.
func OnAppQuit[T any](cx *Context[T], onQuit func(*T, *Context[T]) *Task[struct{}]) *Subscription {
	watcher := cx.Weak()
	return cx.app.quitObservers.insert(struct{}{}, func(app *App) *Task[struct{}] {
		this, ok := watcher.Upgrade()
		if !ok {
			return nil
		}
		defer this.Release()
		return UpdateResult(app, this, func(t *T, cx *Context[T]) *Task[struct{}] {
			return onQuit(t, cx)
		})
	})
}
