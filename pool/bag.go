package pool

import (
	"sync"
	"sync/atomic"
)

// bag is the pool's shared list plus a handoff queue used to hand a
// just-released entry directly to a waiting acquirer, bypassing the
// shared-list scan (§4.7 Bag structure). Membership (grow/evict) is a
// copy-on-write swap of an immutable slice snapshot, the same pattern the
// router's atomic.Value snapshot uses; borrowing an entry already in the
// snapshot is a lock-free CAS on that entry's own state, not a bag
// mutation, so concurrent acquires never contend on a lock.
type bag struct {
	snap atomic.Pointer[[]*entry]
	wmu  sync.Mutex // serializes snapshot mutations (rare: add/remove)

	handoff chan *entry // direct releaser-to-waiter handoff, MPMC

	scanOffset atomic.Uint64 // round-robin starting point for Scan
}

func newBag(handoffCapacity int) *bag {
	b := &bag{handoff: make(chan *entry, handoffCapacity)}
	empty := make([]*entry, 0)
	b.snap.Store(&empty)
	return b
}

func (b *bag) list() []*entry {
	p := b.snap.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (b *bag) size() int { return len(b.list()) }

func (b *bag) add(e *entry) {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	cur := b.list()
	next := make([]*entry, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = e
	b.snap.Store(&next)
}

// remove drops e from the shared list; it does not close the session.
func (b *bag) remove(e *entry) {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	cur := b.list()
	next := make([]*entry, 0, len(cur))
	for _, c := range cur {
		if c != e {
			next = append(next, c)
		}
	}
	b.snap.Store(&next)
}

// scanIdle walks the shared list starting at a round-robin offset (§4.7
// step 3), CAS-borrowing the first Idle entry it finds.
func (b *bag) scanIdle() *entry {
	list := b.list()
	n := len(list)
	if n == 0 {
		return nil
	}
	start := int(b.scanOffset.Add(1) % uint64(n))
	for i := 0; i < n; i++ {
		e := list[(start+i)%n]
		if e.tryBorrow() {
			return e
		}
	}
	return nil
}

// offerToWaiter attempts a non-blocking handoff; returns false if no
// waiter is receiving (the caller should fall back to marking the entry
// Idle in the shared list).
func (b *bag) offerToWaiter(e *entry) bool {
	select {
	case b.handoff <- e:
		return true
	default:
		return false
	}
}

// takeHandoff attempts a non-blocking take from the handoff queue.
func (b *bag) takeHandoff() (*entry, bool) {
	select {
	case e := <-b.handoff:
		return e, true
	default:
		return nil, false
	}
}
