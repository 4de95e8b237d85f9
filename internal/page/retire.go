// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package page

import "code.hybscloud.com/atomix"

// retireRingCapacity bounds how many hazard-conflicted pages one
// retire ring can hold before a deallocate has to retry the hazard
// scan inline instead of deferring it. Hazard conflicts are expected
// to be rare and short-lived, so a small capacity is enough.
const retireRingCapacity = 16

// retireRing is a single-producer single-consumer ring of page
// addresses deferred by [Manager.DeallocatePage] because the page was
// still a hazard for some other thread at the time. It is algorithmically
// the Lamport ring buffer with cached-index optimization used
// throughout this ecosystem for single-producer single-consumer
// queues; here "single producer, single consumer" holds because the
// ring belongs to exactly one borrowed [retrySlot] at a time — only
// its current borrower ever pushes to or drains it.
type retireRing struct {
	head       atomix.Uint64
	cachedTail uint64
	tail       atomix.Uint64
	cachedHead uint64
	buffer     [retireRingCapacity]uintptr
	mask       uint64
}

func newRetireRing() *retireRing {
	return &retireRing{mask: retireRingCapacity - 1}
}

// push defers addr for a later retry. Returns false if the ring is
// full, in which case the caller must retry the hazard scan inline.
func (r *retireRing) push(addr uintptr) bool {
	tail := r.tail.LoadRelaxed()
	if tail-r.cachedHead > r.mask {
		r.cachedHead = r.head.LoadAcquire()
		if tail-r.cachedHead > r.mask {
			return false
		}
	}
	r.buffer[tail&r.mask] = addr
	r.tail.StoreRelease(tail + 1)
	return true
}

// pop removes the oldest deferred address, if any.
func (r *retireRing) pop() (uintptr, bool) {
	head := r.head.LoadRelaxed()
	if head >= r.cachedTail {
		r.cachedTail = r.tail.LoadAcquire()
		if head >= r.cachedTail {
			return 0, false
		}
	}
	addr := r.buffer[head&r.mask]
	r.head.StoreRelease(head + 1)
	return addr, true
}
