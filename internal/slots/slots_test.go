package slots

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/example/railbot/internal/rail"
)

func TestAcquireUpToCapacity(t *testing.T) {
	m := NewManager(2)
	if !m.Acquire(1, "u1", "c1", rail.SRT) {
		t.Fatal("Acquire(1) = false, want true")
	}
	if !m.Acquire(2, "u2", "c2", rail.KTX) {
		t.Fatal("Acquire(2) = false, want true")
	}
	if m.Acquire(3, "u3", "c3", rail.SRT) {
		t.Fatal("Acquire(3) = true on full manager")
	}
	if !m.Full() {
		t.Error("Full() = false, want true")
	}
	if got := m.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount() = %d, want 2", got)
	}
}

func TestAcquireSameSessionTwice(t *testing.T) {
	m := NewManager(3)
	m.Acquire(1, "u1", "c1", rail.SRT)
	if m.Acquire(1, "u1", "c1", rail.SRT) {
		t.Error("second Acquire(1) = true, want false")
	}
	if got := m.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1", got)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	m := NewManager(1)
	if m.Release(99) {
		t.Error("Release(never acquired) = true, want false")
	}
	m.Acquire(1, "u1", "c1", rail.SRT)
	if !m.Release(1) {
		t.Error("Release(1) = false, want true")
	}
	if m.Release(1) {
		t.Error("second Release(1) = true, want false")
	}
	if !m.Acquire(2, "u2", "c2", rail.SRT) {
		t.Error("Acquire after release = false, want true")
	}
}

func TestForceRelease(t *testing.T) {
	m := NewManager(4)
	m.Acquire(1, "u1", "c1", rail.SRT)
	m.Acquire(2, "u1", "c1", rail.SRT)
	m.Acquire(3, "u2", "c2", rail.KTX)

	if !m.ForceReleaseByChannel("c1") {
		t.Error("ForceReleaseByChannel(c1) = false, want true")
	}
	if m.ForceReleaseByChannel("c1") {
		t.Error("second ForceReleaseByChannel(c1) = true, want false")
	}
	if got := m.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1", got)
	}
	m.Acquire(4, "u3", "c3", rail.SRT)
	if got := m.ForceReleaseAll(); got != 2 {
		t.Errorf("ForceReleaseAll() = %d, want 2", got)
	}
	if got := m.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d, want 0", got)
	}
}

func TestByOwner(t *testing.T) {
	m := NewManager(4)
	m.Acquire(2, "u1", "c1", rail.SRT)
	m.Acquire(1, "u1", "c1", rail.SRT)
	m.Acquire(3, "u2", "c2", rail.KTX)

	got := m.ByOwner("u1")
	if len(got) != 2 {
		t.Fatalf("len(ByOwner(u1)) = %d, want 2", len(got))
	}
	if got[0].SessionID != 1 || got[1].SessionID != 2 {
		t.Errorf("ByOwner order = %d,%d, want 1,2", got[0].SessionID, got[1].SessionID)
	}
}

func TestNeverExceedsCapacity(t *testing.T) {
	for _, capacity := range []int{1, 2, 4, 8} {
		m := NewManager(capacity)
		var held atomic.Int64
		var wg sync.WaitGroup
		for w := 0; w < 16; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				r := rand.New(rand.NewSource(int64(w)))
				for i := 0; i < 500; i++ {
					id := int64(w*1000 + r.Intn(20))
					if r.Intn(2) == 0 {
						if m.Acquire(id, "u", "c", rail.SRT) {
							held.Add(1)
						}
					} else if m.Release(id) {
						held.Add(-1)
					}
					if got := m.ActiveCount(); got > capacity {
						t.Errorf("ActiveCount() = %d exceeds capacity %d", got, capacity)
						return
					}
				}
			}(w)
		}
		wg.Wait()
		if got := int64(m.ActiveCount()); got != held.Load() {
			t.Errorf("capacity %d: ActiveCount() = %d, tracked = %d", capacity, got, held.Load())
		}
	}
}
