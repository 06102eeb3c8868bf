package pool

import (
	"sync/atomic"
	"time"

	"github.com/mysqlwire/mysqlwire/mysql"
)

// entryState values for Entry.state (§3 Pooled session entry, §5 lock-free
// CAS on entry state via atomic.Int32).
const (
	stateIdle     int32 = 0
	stateInUse    int32 = 1
	stateRemoved  int32 = -1
	stateReserved int32 = -2
)

// entry is one slot in the pool's bag: a session plus its lifecycle
// bookkeeping. All state transitions go through atomic CAS on state so the
// bag can be scanned concurrently without a lock (§4.7 Bag structure).
type entry struct {
	session *mysql.Session
	state   atomic.Int32

	createdAt    time.Time
	lastBorrowed atomic.Int64 // unix nanos
	lastAccessed atomic.Int64 // unix nanos
	borrowCount  atomic.Int64

	leakTimer atomic.Pointer[time.Timer]
}

func newEntry(s *mysql.Session) *entry {
	e := &entry{session: s, createdAt: time.Now()}
	now := time.Now().UnixNano()
	e.lastBorrowed.Store(now)
	e.lastAccessed.Store(now)
	return e
}

// tryBorrow attempts to move an Idle entry to InUse; returns false if
// another goroutine won the race or the entry is not Idle.
func (e *entry) tryBorrow() bool {
	return e.state.CompareAndSwap(stateIdle, stateInUse)
}

func (e *entry) markIdle() {
	e.lastAccessed.Store(time.Now().UnixNano())
	e.state.Store(stateIdle)
}

func (e *entry) markBorrowed() {
	now := time.Now().UnixNano()
	e.lastBorrowed.Store(now)
	e.lastAccessed.Store(now)
	e.borrowCount.Add(1)
}

// tryReserve moves an Idle entry to Reserved so the maintenance loop can
// evict it without racing a concurrent acquire.
func (e *entry) tryReserve() bool {
	return e.state.CompareAndSwap(stateIdle, stateReserved)
}

func (e *entry) markRemoved() {
	e.state.Store(stateRemoved)
	e.cancelLeakTimer()
}

func (e *entry) isIdle() bool     { return e.state.Load() == stateIdle }
func (e *entry) isInUse() bool    { return e.state.Load() == stateInUse }
func (e *entry) isRemoved() bool  { return e.state.Load() == stateRemoved }

func (e *entry) age() time.Duration {
	return time.Since(e.createdAt)
}

func (e *entry) idleDuration() time.Duration {
	return time.Since(time.Unix(0, e.lastAccessed.Load()))
}

func (e *entry) inUseDuration() time.Duration {
	return time.Since(time.Unix(0, e.lastBorrowed.Load()))
}

// armLeakTimer schedules fn to run after d unless cancelLeakTimer is
// called first; used to warn when an InUse entry is held past
// leak_detection_threshold (§4.7 Maintenance loop).
func (e *entry) armLeakTimer(d time.Duration, fn func()) {
	t := time.AfterFunc(d, fn)
	if old := e.leakTimer.Swap(t); old != nil {
		old.Stop()
	}
}

func (e *entry) cancelLeakTimer() {
	if t := e.leakTimer.Swap(nil); t != nil {
		t.Stop()
	}
}
