// Package state is the reactive entity-state kernel underneath a
// retained-mode UI framework: independently-owned units of application
// state ("entities") are created, mutated, observed and released without
// hand-wired update propagation.
//
// # Entities and handles
//
// An entity is any Go value owned by an [App]. [NewEntity] builds one and
// returns a strong [Handle], a reference-counted claim that keeps the
// entity's storage alive. [WeakHandle] carries only the identity; its
// Upgrade is a fallible lookup that succeeds while the entity lives.
// Handles follow the framework's explicit-disposal discipline: Release
// gives a claim back, Clone takes another.
//
//	counter := state.NewEntity(app, func(cx *state.Context[Counter]) Counter {
//	    return Counter{}
//	})
//	defer counter.Release()
//
// # Mutation and effects
//
// All mutation runs through [Update], which hands the closure exclusive
// access to the state plus a [Context] scoped to the entity. Side effects
// requested during mutation — Notify, Emit — are not dispatched inline:
// they are queued and drained in FIFO order after the outermost update
// returns, so observers never run while the triggering mutation still
// holds the entity's state. Repeated Notify calls within one mutation
// coalesce to a single effect; Emit preserves multiplicity and order.
//
//	state.Update(app, counter, func(c *Counter, cx *state.Context[Counter]) {
//	    c.Count++
//	    cx.Notify()
//	})
//
// # Subscriptions
//
// [Observe], [Subscribe], [OnRelease], [ObserveRelease] and
// [ObserveGlobal] register listeners keyed by the watched entity (or a
// global's type identity). Each returns a [Subscription] whose Detach
// removes the registration; entries whose watcher has died are pruned
// lazily, the next time they would otherwise fire.
//
// # Globals
//
// Process-wide singleton state is stored by type identity and mutated
// through a lease: [UpdateGlobal] removes the instance from its slot for
// the duration of the closure, so overlapping leases of the same type
// fail fast while leases of unrelated types nest freely.
//
// # Tasks
//
// [Spawn] bridges to background work. The task receives a cancellation
// context, a weak handle and an [AsyncApp]; whenever it needs the entity
// it re-upgrades via [UpdateWeak], which marshals the mutation back onto
// the app thread and reports [ErrReleased] if the entity is gone. App
// state is single-thread-affine throughout: background goroutines never
// touch it directly, exactly as background work dispatches to the UI
// thread in the rest of the framework.
package state
