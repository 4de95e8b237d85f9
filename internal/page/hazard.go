// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package page

import (
	"sync"

	"code.hybscloud.com/atomix"
)

// hazardInplaceCount is the number of hazard slots held inline before
// a stack spills into dynamically allocated storage, ported from
// HazardPointersStack::s_inplace_count.
const hazardInplaceCount = 4

// hazardStack is one thread's (one borrower's, see [retrySlot])
// published set of pages currently being dereferenced. Modeled after
// original_source/density/detail/hazard_pointers.h's HazardPointersStack:
// small inline storage, spilling to a growable slice only under
// unusually deep nesting.
type hazardStack struct {
	inplace [hazardInplaceCount]atomix.Uintptr
	count   int
	spill   []atomix.Uintptr

	next, prev *hazardStack // registry's intrusive doubly linked list
}

// protect publishes addr as currently being dereferenced by this
// stack's owner. Must be paired with [hazardStack.release].
func (s *hazardStack) protect(addr uintptr) {
	idx := s.count
	s.count++
	if idx < hazardInplaceCount {
		s.inplace[idx].StoreRelease(addr)
		return
	}
	spillIdx := idx - hazardInplaceCount
	if spillIdx >= len(s.spill) {
		s.spill = append(s.spill, atomix.Uintptr{})
	}
	s.spill[spillIdx].StoreRelease(addr)
}

// release un-publishes the most recently protected address.
func (s *hazardStack) release() {
	s.count--
	idx := s.count
	if idx < hazardInplaceCount {
		s.inplace[idx].StoreRelease(0)
		return
	}
	s.spill[idx-hazardInplaceCount].StoreRelease(0)
}

func (s *hazardStack) contains(addr uintptr) bool {
	for i := range hazardInplaceCount {
		if s.inplace[i].LoadAcquire() == addr {
			return true
		}
	}
	for i := range s.spill {
		if s.spill[i].LoadAcquire() == addr {
			return true
		}
	}
	return false
}

// hazardRegistry is the process-wide set of registered hazard stacks.
// Registration and scanning are both brief, mutex-protected operations,
// exactly as the specification calls for.
type hazardRegistry struct {
	mu    sync.Mutex
	first *hazardStack
}

func (r *hazardRegistry) register(s *hazardStack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.prev = nil
	s.next = r.first
	if r.first != nil {
		r.first.prev = s
	}
	r.first = s
}

func (r *hazardRegistry) unregister(s *hazardStack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.prev != nil {
		s.prev.next = s.next
	} else {
		r.first = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	}
	s.next, s.prev = nil, nil
}

// isHazard reports whether addr is currently protected by any
// registered stack. Linear in the number of live borrowers times their
// stack depth, both small in practice.
func (r *hazardRegistry) isHazard(addr uintptr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := r.first; s != nil; s = s.next {
		if s.contains(addr) {
			return true
		}
	}
	return false
}

// retrySlot bundles one borrower's hazard stack with its personal
// retire ring: the per-thread pending list of pages that were still a
// hazard the last time this slot tried to free them.
type retrySlot struct {
	stack  hazardStack
	retire *retireRing
}

// Handle is a borrowed hazard-protection slot. Acquire one with
// [Manager.Hazard], use [Handle.Protect]/[Handle.Unprotect] around a
// raw page dereference, and return it with [Manager.Release] when
// done. Handles are a pooled resource, not a true goroutine-affine
// thread-local: the underlying registration persists and is recycled
// across borrowers, which is harmless because a handle's invariants
// (stack empty, retire ring drained as far as it will go) only need to
// hold at borrow and return time.
type Handle struct {
	slot *retrySlot
}

// Protect publishes addr as in-use for the duration of a raw
// dereference. Pair with [Handle.Unprotect].
func (h *Handle) Protect(addr uintptr) { h.slot.stack.protect(addr) }

// Unprotect releases the most recently protected address.
func (h *Handle) Unprotect() { h.slot.stack.release() }
