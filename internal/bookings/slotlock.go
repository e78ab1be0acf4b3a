package bookings

import "sync"

// slotLocks serializes writers racing for the same (date, courtType, hour)
// slot. The store's check-then-insert is not transactional across the
// exclusivity check and the write, so creates, confirms and blocks for one
// slot take a short-lived lock keyed by the slot. Locks for distinct slots
// do not contend.
type slotLocks struct {
	mu    sync.Mutex
	slots map[string]*slotLock
}

type slotLock struct {
	mu   sync.Mutex
	refs int
}

func newSlotLocks() *slotLocks {
	return &slotLocks{slots: make(map[string]*slotLock)}
}

// acquire blocks until the slot lock is held and returns the release func.
func (l *slotLocks) acquire(key string) func() {
	l.mu.Lock()
	entry, ok := l.slots[key]
	if !ok {
		entry = &slotLock{}
		l.slots[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.slots, key)
		}
		l.mu.Unlock()
	}
}
