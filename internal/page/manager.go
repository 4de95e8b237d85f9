// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package page

import "sync"

// Manager is a process-wide, thread-safe source of fixed-size aligned
// memory pages. It caches freed pages for reuse and defers recycling
// of pages still referenced by other threads using hazard pointers.
//
// Manager is an explicit, injectable service, not a hidden singleton:
// construct one with [New] and share it between the queues that should
// pool pages together (see [Default] for the common case of one
// process-lifetime manager).
type Manager struct {
	src         *source
	free        freeStack
	reservoir   *reservoir
	pendingZero *pendingZero
	hazards     hazardRegistry
	pool        sync.Pool
}

// New creates a Manager with its own page source and free-page cache.
func New() *Manager {
	m := &Manager{
		src:         newSource(),
		reservoir:   newReservoir(),
		pendingZero: newPendingZero(),
	}
	m.pool.New = func() any {
		s := &retrySlot{retire: newRetireRing()}
		m.hazards.register(&s.stack)
		return s
	}
	return m
}

var defaultOnce sync.Once
var defaultManager *Manager

// Default returns the process-wide Manager shared by queues that do
// not explicitly inject one of their own.
func Default() *Manager {
	defaultOnce.Do(func() { defaultManager = New() })
	return defaultManager
}

// Hazard borrows a hazard-protection handle. The returned handle must
// be returned with [Manager.Release] once the caller's page walk no
// longer needs to hold any pointer.
func (m *Manager) Hazard() *Handle {
	s := m.pool.Get().(*retrySlot)
	m.drainRetries(s)
	return &Handle{slot: s}
}

// Release returns a handle borrowed from [Manager.Hazard]. The handle
// must not be used afterwards.
func (m *Manager) Release(h *Handle) {
	m.pool.Put(h.slot)
	h.slot = nil
}

// drainRetries retries freeing every page this slot deferred the last
// time it tried, amortizing the rare case where a page was still a
// hazard for some other thread at deallocation time.
func (m *Manager) drainRetries(s *retrySlot) {
	var again []uintptr
	for {
		tagged, ok := s.retire.pop()
		if !ok {
			break
		}
		p := FromAddr(tagged &^ zeroedTag)
		if p.Pinned() || m.hazards.isHazard(p.Addr()) {
			again = append(again, tagged)
			continue
		}
		if tagged&zeroedTag != 0 {
			m.stageOrZero(p)
		} else {
			m.free.push(p)
		}
	}
	for _, tagged := range again {
		if !s.retire.push(tagged) {
			// Ring is unexpectedly full of its own leftovers; the
			// remaining deferred pages are dropped rather than growing
			// the ring.
			break
		}
	}
}

// tryFree pushes p onto the free stack if it is not pinned and not
// hazarded by any other thread.
func (m *Manager) tryFree(p Page) bool {
	if p.Pinned() || m.hazards.isHazard(p.Addr()) {
		return false
	}
	m.free.push(p)
	return true
}

// AllocatePage returns a page to the caller, or false if none could be
// obtained under the requested progress guarantee.
func (m *Manager) AllocatePage(guarantee Progress) (Page, bool) {
	if guarantee == WaitFree {
		if p, ok := m.reservoir.take(); ok {
			return p, true
		}
	}
	if p, ok := m.free.pop(); ok {
		return p, true
	}
	p, ok := m.src.allocatePage(guarantee)
	if ok && guarantee != WaitFree {
		// Opportunistically restock the wait-free reservoir: this
		// thread just grew (or found room in) a region, so it is the
		// single logical producer for this refill.
		if extra, ok := m.src.allocatePage(LockFree); ok {
			if !m.reservoir.refill(extra) {
				m.free.push(extra)
			}
		}
	}
	return p, ok
}

// DeallocatePage returns p to the manager. If p is still a hazard for
// another thread, it is deferred on h's retire ring instead of being
// pushed to the free stack immediately.
func (m *Manager) DeallocatePage(p Page, h *Handle) {
	if m.tryFree(p) {
		return
	}
	if !h.slot.retire.push(p.Addr()) {
		// Retry ring momentarily full: spin briefly on the hazard scan
		// rather than leaking the page.
		for !m.tryFree(p) {
		}
	}
}

// AllocatePageZeroed is like [Manager.AllocatePage], but the returned
// page's usable bytes are guaranteed to be zero.
func (m *Manager) AllocatePageZeroed(guarantee Progress) (Page, bool) {
	p, ok := m.AllocatePage(guarantee)
	if !ok {
		return Page{}, false
	}
	clear(p.Bytes())
	return p, true
}

// DeallocatePageZeroed returns p to the manager for reuse by
// [Manager.AllocatePageZeroed]. The memset is deferred to whenever the
// pending-zero staging queue is next drained, amortizing its cost
// across callers instead of paying it inline on every deallocate.
func (m *Manager) DeallocatePageZeroed(p Page, h *Handle) {
	if p.Pinned() || m.hazards.isHazard(p.Addr()) {
		if !h.slot.retire.push(p.Addr() | zeroedTag) {
			for p.Pinned() || m.hazards.isHazard(p.Addr()) {
			}
			m.stageOrZero(p)
		}
		return
	}
	m.stageOrZero(p)
}

func (m *Manager) stageOrZero(p Page) {
	if !m.pendingZero.stage(p) {
		clear(p.Bytes())
		m.free.push(p)
	}
	m.pendingZero.tryDrain(m.free.push)
}

// zeroedTag marks a retired address as belonging to a
// DeallocatePageZeroed call rather than a plain DeallocatePage call.
// Pages are Alignment-aligned, so the low bits are always free.
const zeroedTag = 1
