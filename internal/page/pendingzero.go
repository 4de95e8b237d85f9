// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package page

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// pendingZeroCapacity bounds how many not-yet-zeroed pages can be
// staged at once; a full staging queue just means the caller zeroes
// its own page inline instead of deferring the memset.
const pendingZeroCapacity = 256

// pendingZero is a multi-producer bounded queue of pages that have
// been returned via DeallocatePageZeroed but not yet memset. Any
// number of goroutines may stage a page (FAA-based SCQ enqueue, as in
// this ecosystem's MPSC ring buffer); draining is logically
// single-consumer, enforced with a trylock so concurrent callers to
// [Manager.DeallocatePageZeroed] cooperate instead of racing the memset.
type pendingZero struct {
	_        pad
	head     atomix.Uint64
	_        pad
	tail     atomix.Uint64
	_        pad
	draining atomix.Bool
	_        pad
	buffer   []pendingZeroSlot
	capacity uint64
	size     uint64
	mask     uint64
}

type pendingZeroSlot struct {
	cycle atomix.Uint64
	data  Page
	_     padShort
}

func newPendingZero() *pendingZero {
	n := uint64(roundToPow2(pendingZeroCapacity))
	size := n * 2

	q := &pendingZero{
		buffer:   make([]pendingZeroSlot, size),
		capacity: n,
		size:     size,
		mask:     size - 1,
	}
	for i := uint64(0); i < size; i++ {
		q.buffer[i].cycle.StoreRelaxed(i / n)
	}
	return q
}

// stage enqueues a page for deferred zeroing. Returns false if the
// staging queue is momentarily full, in which case the caller should
// zero the page itself.
func (q *pendingZero) stage(p Page) bool {
	sw := spin.Wait{}
	for {
		tail := q.tail.LoadAcquire()
		head := q.head.LoadRelaxed()
		if tail >= head+q.capacity {
			return false
		}

		myTail := q.tail.AddAcqRel(1) - 1

		slot := &q.buffer[myTail&q.mask]
		expectedCycle := myTail / q.capacity
		slotCycle := slot.cycle.LoadAcquire()

		if slotCycle == expectedCycle {
			slot.data = p
			slot.cycle.StoreRelease(expectedCycle + 1)
			return true
		}
		if int64(slotCycle) < int64(expectedCycle) {
			return false
		}
		sw.Once()
	}
}

// take dequeues one staged page, single-consumer only. Callers must
// hold the drain trylock (see [pendingZero.tryDrain]).
func (q *pendingZero) take() (Page, bool) {
	head := q.head.LoadRelaxed()
	cycle := head / q.capacity
	slot := &q.buffer[head&q.mask]

	slotCycle := slot.cycle.LoadAcquire()
	if slotCycle != cycle+1 {
		return Page{}, false
	}

	p := slot.data
	slot.data = Page{}
	nextEnqCycle := (head + q.size) / q.capacity
	slot.cycle.StoreRelease(nextEnqCycle)
	q.head.StoreRelaxed(head + 1)
	return p, true
}

// tryDrain zeroes and passes every currently staged page to sink if,
// and only if, no other goroutine is already draining. Returns false
// without doing anything if a drain is already in progress — the
// caller need not wait, because whoever holds the lock will finish the
// work that would have been theirs too.
func (q *pendingZero) tryDrain(sink func(Page)) bool {
	if !q.draining.CompareAndSwapAcqRel(false, true) {
		return false
	}
	defer q.draining.StoreRelease(false)

	for {
		p, ok := q.take()
		if !ok {
			return true
		}
		clear(p.Bytes())
		sink(p)
	}
}
