// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package density_test

import (
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"code.hybscloud.com/density"
	"code.hybscloud.com/density/internal/rtti"
)

// TestMPMCStressMultisetEquality pushes a known multiset of integers
// from several producer goroutines and checks every consumer
// goroutine's combined output is exactly that multiset, with none
// lost or duplicated.
func TestMPMCStressMultisetEquality(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	if density.RaceEnabled {
		t.Skip("race detector: skip unsafe-heavy stress test")
	}

	const (
		producers = 6
		consumers = 6
		perProducer = 100000 / producers
	)

	q := density.NewMPMC()

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := range producers {
		go func(p int) {
			defer wg.Done()
			base := p * perProducer
			for i := range perProducer {
				for !density.TryPush(q, base+i) {
				}
			}
		}(p)
	}

	var consumed int64
	results := make([][]int, consumers)
	var cwg sync.WaitGroup
	cwg.Add(consumers)
	for c := range consumers {
		go func(c int) {
			defer cwg.Done()
			var mine []int
			for atomic.LoadInt64(&consumed) < producers*perProducer {
				got := -1
				if q.TryConsume(func(_ *rtti.Type, elem unsafe.Pointer) {
					got = *(*int)(elem)
				}) {
					mine = append(mine, got)
					atomic.AddInt64(&consumed, 1)
				}
			}
			results[c] = mine
		}(c)
	}

	wg.Wait()
	cwg.Wait()

	var all []int
	for _, r := range results {
		all = append(all, r...)
	}
	if len(all) != producers*perProducer {
		t.Fatalf("total consumed: got %d, want %d", len(all), producers*perProducer)
	}

	sort.Ints(all)
	for i, v := range all {
		if v != i {
			t.Fatalf("multiset mismatch at position %d: got %d, want %d", i, v, i)
		}
	}
}

// TestMPSCConcurrentProducers checks no value is lost or duplicated
// when several producers race against one consumer.
func TestMPSCConcurrentProducers(t *testing.T) {
	const (
		producers   = 4
		perProducer = 2000
	)
	q := density.NewMPSC()

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := range producers {
		go func(p int) {
			defer wg.Done()
			for i := range perProducer {
				if err := density.Push(q, p*perProducer+i); err != nil {
					t.Errorf("Push: %v", err)
					return
				}
			}
		}(p)
	}

	var got []int
	for len(got) < producers*perProducer {
		v := -1
		if q.TryConsume(func(_ *rtti.Type, elem unsafe.Pointer) {
			v = *(*int)(elem)
		}) {
			got = append(got, v)
		}
	}
	wg.Wait()

	sort.Ints(got)
	for i, v := range got {
		if v != i {
			t.Fatalf("value at position %d: got %d, want %d", i, v, i)
		}
	}
}

// TestRelaxedConsumerSkipsBusySlot checks a Relaxed-consistency
// consumer can deliver a later, already-committed value while an
// earlier slot is still reserved (Busy) by an in-flight transaction.
func TestRelaxedConsumerSkipsBusySlot(t *testing.T) {
	q := density.New().Relaxed().Build()

	tx, err := density.StartPush[int](q, density.Blocking)
	if err != nil {
		t.Fatalf("StartPush: %v", err)
	}
	*tx.Value() = 1 // reserved, not yet committed

	if err := density.Push(q, 2); err != nil {
		t.Fatalf("Push: %v", err)
	}

	got := -1
	if !q.TryConsume(func(_ *rtti.Type, elem unsafe.Pointer) {
		got = *(*int)(elem)
	}) {
		t.Fatal("TryConsume: got false, want true (should skip the busy slot)")
	}
	if got != 2 {
		t.Fatalf("TryConsume: got %d, want 2", got)
	}

	tx.Commit()
	if !q.TryConsume(func(_ *rtti.Type, elem unsafe.Pointer) {
		got = *(*int)(elem)
	}) {
		t.Fatal("TryConsume after commit: got false, want true")
	}
	if got != 1 {
		t.Fatalf("TryConsume after commit: got %d, want 1", got)
	}
}

// TestSequentialConsumerBlocksOnBusySlot checks the default
// (non-relaxed) consistency refuses to deliver a later value while an
// earlier slot remains reserved.
func TestSequentialConsumerBlocksOnBusySlot(t *testing.T) {
	q := density.NewSPSC()

	tx, err := density.StartPush[int](q, density.Blocking)
	if err != nil {
		t.Fatalf("StartPush: %v", err)
	}
	*tx.Value() = 1

	if err := density.Push(q, 2); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if q.TryConsume(func(*rtti.Type, unsafe.Pointer) {}) {
		t.Fatal("TryConsume: got true, want false (earlier slot still busy)")
	}

	tx.Commit()
	got := -1
	if !q.TryConsume(func(_ *rtti.Type, elem unsafe.Pointer) {
		got = *(*int)(elem)
	}) {
		t.Fatal("TryConsume after commit: got false, want true")
	}
	if got != 1 {
		t.Fatalf("TryConsume after commit: got %d, want 1", got)
	}
}
