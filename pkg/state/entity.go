package state

import (
	"fmt"
	"sync"
)

// EntityID identifies one entity instance for the lifetime of the process.
// IDs are allocated from a monotonic counter and never reused, so they are
// totally ordered and remain stable after the entity has been released.
type EntityID uint64

// IsZero reports whether the identifier is the zero value. No entity is
// ever allocated the zero identifier.
func (id EntityID) IsZero() bool {
	return id == 0
}

func (id EntityID) String() string {
	return fmt.Sprintf("EntityID(%d)", uint64(id))
}

// slot is the type-erased storage cell for one entity. The value carries
// its own dynamic type; accessors downcast it and treat a mismatch as an
// invariant breach.
type slot struct {
	// value holds the *T for the entity. It is nil while the slot is
	// leased out to an update closure or still being built.
	value  any
	refs   int
	leased bool
	// dead is set when the last strong claim is dropped. A dead slot
	// refuses upgrades; its storage is discarded during effect flush.
	dead bool
}

// entityStore owns all entity slots. Slots are created by reserve/insert
// and discarded by drop once release listeners have run.
//
// Entity state itself is single-thread-affine, but liveness queries and
// claim counting may be reached from task goroutines through weak handles,
// so the bookkeeping is guarded by a mutex.
type entityStore struct {
	mu     sync.Mutex
	nextID EntityID
	slots  map[EntityID]*slot
}

func newEntityStore() *entityStore {
	return &entityStore{slots: make(map[EntityID]*slot)}
}

// reserve allocates an identifier and an empty slot for an entity that is
// still being built. The slot is marked leased so state access fails fast
// until insert provides the value.
func (s *entityStore) reserve() EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.slots[id] = &slot{leased: true}
	return id
}

// insert finishes construction of a reserved slot and establishes the
// first strong claim.
func (s *entityStore) insert(id EntityID, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.slots[id]
	if !ok {
		invariantf("state.entityStore.insert", "insert into unreserved slot %v", id)
	}
	cell.value = value
	cell.leased = false
	cell.refs++
}

func (s *entityStore) get(id EntityID) (*slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.slots[id]
	return cell, ok
}

// isAlive reports whether the entity exists and still has (or may still
// acquire) strong claims.
func (s *entityStore) isAlive(id EntityID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.slots[id]
	return ok && !cell.dead
}

// retain adds one strong claim. It fails (returns false) once the entity
// is dead or gone, which is the routine "watcher has been released" case.
func (s *entityStore) retain(id EntityID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.slots[id]
	if !ok || cell.dead {
		return false
	}
	cell.refs++
	return true
}

// releaseClaim drops one strong claim. It returns true when the claim was
// the last one, meaning the entity just became dead and must be queued for
// release processing.
func (s *entityStore) releaseClaim(id EntityID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.slots[id]
	if !ok || cell.dead {
		return false
	}
	cell.refs--
	if cell.refs > 0 {
		return false
	}
	cell.dead = true
	return true
}

// take leases the entity's state out of its slot for the duration of one
// update closure. The slot stays registered (and upgradable) but holds no
// value, so a nested update of the same entity trips an invariant instead
// of aliasing the state.
func (s *entityStore) take(id EntityID, op string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.slots[id]
	if !ok || cell.dead {
		invariantf(op, "update of released entity %v", id)
	}
	if cell.leased {
		invariantf(op, "re-entrant update of entity %v, which is already being updated", id)
	}
	cell.leased = true
	value := cell.value
	cell.value = nil
	return value
}

// put returns leased state to its slot after an update closure finishes.
func (s *entityStore) put(id EntityID, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.slots[id]
	if !ok {
		invariantf("state.entityStore.put", "put into missing slot %v", id)
	}
	cell.value = value
	cell.leased = false
}

// read returns the entity's state without leasing it.
func (s *entityStore) read(id EntityID, op string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.slots[id]
	if !ok || cell.dead {
		invariantf(op, "read of released entity %v", id)
	}
	if cell.leased {
		invariantf(op, "read of entity %v while it is being updated", id)
	}
	return cell.value
}

// drop discards a dead slot after its release listeners have run.
func (s *entityStore) drop(id EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, id)
}
