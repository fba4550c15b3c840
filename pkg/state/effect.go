package state

import "reflect"

// effectKind tags the deferred consequences a mutation may queue.
type effectKind uint8

const (
	// effectNotify requests that observers of the emitter run. Coalesced to
	// at most one per emitter within a single mutation via the app's
	// pending-notification set.
	effectNotify effectKind = iota
	// effectEmit carries a type-erased event payload to the emitter's event
	// listeners. Never coalesced: every Emit call is delivered, in order.
	effectEmit
	// effectGlobalNotify requests that observers of a global type run. One
	// is queued each time a lease of that type ends, so observers never see
	// the leasing mutation mid-flight.
	effectGlobalNotify
)

// effect is one queued entry. Effects are appended during mutation and
// consumed strictly after the outermost update returns, in FIFO order.
type effect struct {
	kind    effectKind
	emitter EntityID
	event   any
	global  reflect.Type
}
