// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package page

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// reservoirCapacity is the number of pages the reservoir pre-stocks.
// Small and fixed: the reservoir only exists to give WaitFree callers
// an O(1) bounded-retry path instead of contending the region cursor's
// CAS loop: it is a cache, not a store of record.
const reservoirCapacity = 64

// reservoir is a small single-producer multi-consumer bounded pool of
// ready-made pages, algorithmically identical to the FAA-based SCQ
// queue used elsewhere in this ecosystem for bounded ring buffers
// (single producer: only the thread that just grew the region list
// refills it; multiple consumers: any number of goroutines calling
// [Manager.AllocatePage] with [WaitFree] may drain it concurrently).
//
// Cycle-based slot validation (cycle = position / capacity) gives ABA
// safety without a lock.
type reservoir struct {
	_         pad
	head      atomix.Uint64 // consumer index (FAA)
	_         pad
	tail      atomix.Uint64 // producer index (single producer writes, consumers read)
	_         pad
	threshold atomix.Int64 // livelock prevention for consumers
	_         pad
	buffer    []reservoirSlot
	capacity  uint64
	size      uint64
	mask      uint64
}

type reservoirSlot struct {
	cycle atomix.Uint64
	data  Page
	_     padShort
}

func newReservoir() *reservoir {
	n := uint64(roundToPow2(reservoirCapacity))
	size := n * 2

	r := &reservoir{
		buffer:   make([]reservoirSlot, size),
		capacity: n,
		size:     size,
		mask:     size - 1,
	}
	r.threshold.StoreRelaxed(3*int64(n) - 1)
	for i := uint64(0); i < size; i++ {
		r.buffer[i].cycle.StoreRelaxed(i / n)
	}
	return r
}

// refill is called by the single logical producer (whichever thread
// just grew the region list) to restock the reservoir. It never blocks
// and silently drops pages it has no room for — the caller still owns
// them and uses them directly instead.
func (r *reservoir) refill(p Page) bool {
	tail := r.tail.LoadRelaxed()
	head := r.head.LoadAcquire()
	if tail >= head+r.capacity {
		return false
	}

	cycle := tail / r.capacity
	slot := &r.buffer[tail&r.mask]
	if slot.cycle.LoadAcquire() != cycle {
		return false
	}

	slot.data = p
	slot.cycle.StoreRelease(cycle + 1)
	r.tail.StoreRelaxed(tail + 1)
	r.threshold.StoreRelaxed(3*int64(r.capacity) - 1)
	return true
}

// take draws one page from the reservoir, reporting false if it is
// currently empty. Safe for any number of concurrent callers.
func (r *reservoir) take() (Page, bool) {
	if r.threshold.LoadRelaxed() < 0 {
		return Page{}, false
	}

	sw := spin.Wait{}
	for {
		myHead := r.head.AddAcqRel(1) - 1

		slot := &r.buffer[myHead&r.mask]
		expectedCycle := myHead/r.capacity + 1
		slotCycle := slot.cycle.LoadAcquire()

		if slotCycle == expectedCycle {
			p := slot.data
			slot.data = Page{}
			nextEnqCycle := (myHead + r.size) / r.capacity
			slot.cycle.StoreRelease(nextEnqCycle)
			return p, true
		}

		if int64(slotCycle) < int64(expectedCycle) {
			nextEnqCycle := (myHead + r.size) / r.capacity
			slot.cycle.CompareAndSwapAcqRel(slotCycle, nextEnqCycle)

			tail := r.tail.LoadRelaxed()
			if tail <= myHead+1 {
				r.catchup(tail, myHead+1)
				r.threshold.AddAcqRel(-1)
				return Page{}, false
			}
			if r.threshold.AddAcqRel(-1) <= 0 {
				return Page{}, false
			}
		}
		sw.Once()
	}
}

func (r *reservoir) catchup(tail, head uint64) {
	for tail < head {
		if r.tail.CompareAndSwapRelaxed(tail, head) {
			break
		}
		tail = r.tail.LoadRelaxed()
		head = r.head.LoadRelaxed()
	}
}
