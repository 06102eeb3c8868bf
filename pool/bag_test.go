package pool

import (
	"sync"
	"testing"
)

func TestBagAddRemoveList(t *testing.T) {
	b := newBag(4)
	e1 := newEntry(nil)
	e2 := newEntry(nil)
	b.add(e1)
	b.add(e2)
	if b.size() != 2 {
		t.Fatalf("size = %d, want 2", b.size())
	}
	b.remove(e1)
	list := b.list()
	if len(list) != 1 || list[0] != e2 {
		t.Fatalf("after remove, list = %v, want [e2]", list)
	}
}

func TestBagScanIdleSkipsInUse(t *testing.T) {
	b := newBag(4)
	e1 := newEntry(nil)
	e2 := newEntry(nil)
	b.add(e1)
	b.add(e2)
	e1.tryBorrow()

	got := b.scanIdle()
	if got != e2 {
		t.Fatalf("scanIdle returned %v, want e2", got)
	}
	if b.scanIdle() != nil {
		t.Fatal("scanIdle should find nothing once all entries are InUse")
	}
}

func TestBagHandoffRoundTrip(t *testing.T) {
	b := newBag(1)
	e := newEntry(nil)
	if !b.offerToWaiter(e) {
		t.Fatal("offerToWaiter should succeed with free capacity")
	}
	got, ok := b.takeHandoff()
	if !ok || got != e {
		t.Fatalf("takeHandoff = (%v, %v), want (e, true)", got, ok)
	}
	if _, ok := b.takeHandoff(); ok {
		t.Fatal("takeHandoff on an empty queue should return false")
	}
}

func TestBagConcurrentAddIsRaceFree(t *testing.T) {
	b := newBag(16)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.add(newEntry(nil))
		}()
	}
	wg.Wait()
	if b.size() != 16 {
		t.Fatalf("size = %d, want 16", b.size())
	}
}
