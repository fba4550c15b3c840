package state

// Subscription is the disposable token returned by every listener
// registration. Detach removes the registration from its table; detaching
// twice, or after the entry was already pruned, is a no-op. A leaked
// Subscription simply leaves the listener in place until the watched
// entity or the watcher dies.
type Subscription struct {
	detach func()
}

// Detach removes the registration. Safe to call on a nil Subscription.
func (s *Subscription) Detach() {
	if s == nil || s.detach == nil {
		return
	}
	s.detach()
	s.detach = nil
}

// listenerEntry is one registration in a listener table. Entries are
// tombstoned rather than removed in place so that detaching during a
// dispatch pass cannot disturb iteration.
type listenerEntry[L any] struct {
	fn      L
	removed bool
}

// listenerTable maps a watched key (an EntityID, a global's reflect.Type,
// or the quit unit key) to an ordered set of listener closures. Dead
// entries are pruned lazily: a closure that reports "no longer interested"
// is tombstoned on its next firing and compacted afterwards.
type listenerTable[K comparable, L any] struct {
	entries map[K][]*listenerEntry[L]
}

func newListenerTable[K comparable, L any]() *listenerTable[K, L] {
	return &listenerTable[K, L]{entries: make(map[K][]*listenerEntry[L])}
}

// insert registers fn under key and returns its disposal token.
func (t *listenerTable[K, L]) insert(key K, fn L) *Subscription {
	entry := &listenerEntry[L]{fn: fn}
	t.entries[key] = append(t.entries[key], entry)
	return &Subscription{detach: func() {
		entry.removed = true
	}}
}

// snapshot returns the current entries for key. Registrations added during
// a dispatch pass land in the table but not in an already-taken snapshot,
// so they only see subsequent firings.
func (t *listenerTable[K, L]) snapshot(key K) []*listenerEntry[L] {
	live := t.entries[key]
	if len(live) == 0 {
		return nil
	}
	out := make([]*listenerEntry[L], len(live))
	copy(out, live)
	return out
}

// compact drops tombstoned entries for key.
func (t *listenerTable[K, L]) compact(key K) {
	live := t.entries[key]
	if len(live) == 0 {
		return
	}
	kept := live[:0]
	for _, entry := range live {
		if !entry.removed {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		delete(t.entries, key)
		return
	}
	t.entries[key] = kept
}

// take removes and returns all entries for key.
func (t *listenerTable[K, L]) take(key K) []*listenerEntry[L] {
	live := t.entries[key]
	delete(t.entries, key)
	return live
}

// drop discards all entries for key without firing them.
func (t *listenerTable[K, L]) drop(key K) {
	delete(t.entries, key)
}

// count returns the number of live entries for key.
func (t *listenerTable[K, L]) count(key K) int {
	n := 0
	for _, entry := range t.entries[key] {
		if !entry.removed {
			n++
		}
	}
	return n
}

// dispatchRetain fires every live entry under key and tombstones the ones
// that report they are no longer interested (watcher or watched released).
func dispatchRetain[K comparable](t *listenerTable[K, func(*App) bool], key K, app *App) {
	for _, entry := range t.snapshot(key) {
		if entry.removed {
			continue
		}
		if !entry.fn(app) {
			entry.removed = true
		}
	}
	t.compact(key)
}
