package state

import (
	"errors"
	"sync/atomic"
)

// ErrReleased is returned when a weak handle's entity has legitimately been
// released. It is the routine termination condition for asynchronous
// continuations, not a failure.
var ErrReleased = errors.New("state: entity has been released")

// Handle is a strong, reference-counted claim on an entity. The entity's
// storage stays alive while at least one claim is outstanding.
//
// A Handle never holds the entity's state directly; dereference goes
// through the owning App (ReadEntity, Update). Each Handle owns exactly one
// claim: call Clone to take another, Release to give this one back.
// Release is idempotent per handle.
type Handle[T any] struct {
	id       EntityID
	app      *App
	released atomic.Bool
}

// ID returns the entity's identifier.
func (h *Handle[T]) ID() EntityID {
	return h.id
}

// App returns the application context that owns the entity.
func (h *Handle[T]) App() *App {
	return h.app
}

// Downgrade returns a weak handle carrying only the entity's identity.
func (h *Handle[T]) Downgrade() WeakHandle[T] {
	return WeakHandle[T]{id: h.id, app: h.app}
}

// Clone takes an additional strong claim on the entity.
func (h *Handle[T]) Clone() *Handle[T] {
	if h.released.Load() {
		invariantf("state.Handle.Clone", "clone of released handle for %v", h.id)
	}
	if !h.app.store.retain(h.id) {
		invariantf("state.Handle.Clone", "entity %v died while a strong handle was held", h.id)
	}
	return &Handle[T]{id: h.id, app: h.app}
}

// Release gives up this handle's claim. When the last claim is dropped the
// entity becomes dead: release listeners fire once during the next effect
// flush and the storage is discarded. Releasing twice is a no-op.
func (h *Handle[T]) Release() {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return
	}
	h.app.releaseClaim(h.id)
}

// WeakHandle refers to an entity by identity only and carries no ownership.
// The zero value is unattached and never upgrades.
type WeakHandle[T any] struct {
	id  EntityID
	app *App
}

// ID returns the entity's identifier.
func (w WeakHandle[T]) ID() EntityID {
	return w.id
}

// IsZero reports whether the handle is the unattached zero value.
func (w WeakHandle[T]) IsZero() bool {
	return w.app == nil
}

// IsAlive reports whether the entity can currently be upgraded.
func (w WeakHandle[T]) IsAlive() bool {
	return w.app != nil && w.app.store.isAlive(w.id)
}

// Upgrade attempts to reacquire a strong claim. It fails iff the entity has
// been released, which callers treat as "stop watching", never as an error.
func (w WeakHandle[T]) Upgrade() (*Handle[T], bool) {
	if w.app == nil || !w.app.store.retain(w.id) {
		return nil, false
	}
	return &Handle[T]{id: w.id, app: w.app}, true
}
