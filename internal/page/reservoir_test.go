// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package page

import (
	"sync"
	"testing"
)

func TestReservoirRefillTake(t *testing.T) {
	s := newSource()
	r := newReservoir()

	var stocked []Page
	for i := 0; i < reservoirCapacity; i++ {
		p, ok := s.allocatePage(Blocking)
		if !ok {
			t.Fatalf("allocatePage(%d): got false", i)
		}
		if !r.refill(p) {
			t.Fatalf("refill(%d): got false, want true (reservoir not yet full)", i)
		}
		stocked = append(stocked, p)
	}

	extra, ok := s.allocatePage(Blocking)
	if !ok {
		t.Fatal("allocatePage: got false")
	}
	if r.refill(extra) {
		t.Fatal("refill on full reservoir: got true, want false")
	}

	seen := make(map[uintptr]bool, len(stocked))
	for i := 0; i < reservoirCapacity; i++ {
		p, ok := r.take()
		if !ok {
			t.Fatalf("take(%d): got false, want true", i)
		}
		if seen[p.Addr()] {
			t.Fatalf("take(%d): duplicate address", i)
		}
		seen[p.Addr()] = true
	}

	if _, ok := r.take(); ok {
		t.Fatal("take() on drained reservoir: got true, want false")
	}
}

func TestReservoirConcurrentTake(t *testing.T) {
	s := newSource()
	r := newReservoir()

	for i := 0; i < reservoirCapacity; i++ {
		p, ok := s.allocatePage(Blocking)
		if !ok {
			t.Fatalf("allocatePage(%d): got false", i)
		}
		if !r.refill(p) {
			t.Fatalf("refill(%d): got false", i)
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	taken := make(map[uintptr]bool)
	for i := 0; i < reservoirCapacity*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, ok := r.take()
			if !ok {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if taken[p.Addr()] {
				t.Errorf("take(): same page handed out twice: %x", p.Addr())
			}
			taken[p.Addr()] = true
		}()
	}
	wg.Wait()

	if len(taken) != reservoirCapacity {
		t.Fatalf("distinct pages taken: got %d, want %d", len(taken), reservoirCapacity)
	}
}
