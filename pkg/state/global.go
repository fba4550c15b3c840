package state

import "reflect"

// Global state is process-wide singleton state stored by type identity:
// one instance per distinct Go type. Mutation goes through a lease — the
// instance is removed from its slot for the duration of the update, so an
// overlapping lease of the same type is detectable and fails fast instead
// of aliasing the instance. Unrelated types may be leased re-entrantly.

// SetGlobal installs (or replaces) the global instance of type G.
func SetGlobal[G any](app *App, value G) {
	key := reflect.TypeFor[G]()
	if app.leased[key] {
		invariantf("state.SetGlobal", "global %v is currently leased", key)
	}
	app.globals[key] = &value
}

// HasGlobal reports whether a global of type G has been set.
func HasGlobal[G any](app *App) bool {
	key := reflect.TypeFor[G]()
	if app.leased[key] {
		return true
	}
	_, ok := app.globals[key]
	return ok
}

// ReadGlobal returns a copy of the global instance of type G.
func ReadGlobal[G any](app *App) (G, bool) {
	key := reflect.TypeFor[G]()
	if app.leased[key] {
		invariantf("state.ReadGlobal", "global %v is currently leased", key)
	}
	value, ok := app.globals[key]
	if !ok {
		var zero G
		return zero, false
	}
	return *value.(*G), true
}

// UpdateAppGlobal is the app-level counterpart of UpdateGlobal, for code
// running outside any entity's mutation scope. Observers of G fire as the
// turn's effects drain, after f has returned.
func UpdateAppGlobal[G any, R any](app *App, f func(*G, *App) R) R {
	var result R
	app.update(func() {
		global := leaseGlobal[G](app)
		result = f(global, app)
		endGlobalLease(app, global)
	})
	return result
}

// leaseGlobal checks the instance of G out of its slot. A never-set global
// materializes as its zero value, so globals behave like Go zero values do
// everywhere else.
func leaseGlobal[G any](app *App) *G {
	key := reflect.TypeFor[G]()
	if app.leased[key] {
		invariantf("state.UpdateGlobal", "global %v is already leased; overlapping leases of the same type are forbidden", key)
	}
	value, ok := app.globals[key]
	if !ok {
		value = new(G)
	}
	app.leased[key] = true
	delete(app.globals, key)
	return value.(*G)
}

// endGlobalLease returns the instance to its slot and queues a notify for
// observers of G. Dispatch is deferred to the flush phase: the leasing
// mutation still holds its own entity's state, so running observers here
// would let them re-enter it.
func endGlobalLease[G any](app *App, global *G) {
	key := reflect.TypeFor[G]()
	if !app.leased[key] {
		invariantf("state.UpdateGlobal", "ending a lease of %v that was never started", key)
	}
	delete(app.leased, key)
	app.globals[key] = global
	app.pendingEffects = append(app.pendingEffects, effect{kind: effectGlobalNotify, global: key})
}
