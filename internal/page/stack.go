// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package page

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// lockMarker is an impossible page address (pages are Alignment-byte
// aligned, so 1 never collides with a real base address) used to make
// concurrent pops observe an empty stack while one pop is in progress.
const lockMarker = 1

// freeStack is a lock-free LIFO stack of free pages, specialized for
// the page manager exactly as the density-family allocator does it:
// pushes are compare-and-swap; a pop first steals the whole stack by
// swinging the top to lockMarker (making every concurrent pop observe
// an empty stack), checks only the top page, then restores the
// remainder (or the whole stack, if the top page is pinned). While a
// pop is in progress, other pops and pushes both wait for it to
// restore the top.
type freeStack struct {
	top atomix.Uintptr // Page.Addr() of the top page, or 0, or lockMarker
}

// push adds p to the top of the stack with a compare-and-swap retried
// until it wins (losers simply retry with a fresh top). While a pop
// holds the stack (top is lockMarker), push waits for it to finish.
func (s *freeStack) push(p Page) {
	sw := spin.Wait{}
	for {
		top := s.top.LoadRelaxed()
		if top == lockMarker {
			sw.Once()
			continue
		}
		p.nextLink().StoreRelaxed(top)
		if s.top.CompareAndSwapAcqRel(top, p.Addr()) {
			return
		}
		sw.Once()
	}
}

// pop removes and returns the first unpinned page found at the top of
// the stack. If the top page is pinned, it is restored in place and
// pop reports failure: the caller should retry later once the pin is
// released, rather than searching further into the stack (searching
// deeper would need to walk pages that may be concurrently freed by
// [Manager.DeallocatePage], which pop's non-atomic window cannot see).
func (s *freeStack) pop() (Page, bool) {
	sw := spin.Wait{}
	var top uintptr
	for {
		top = s.top.LoadAcquire()
		if top == lockMarker {
			sw.Once()
			continue
		}
		if s.top.CompareAndSwapAcqRel(top, lockMarker) {
			break
		}
		sw.Once()
	}

	if top == 0 {
		s.top.StoreRelease(0)
		return Page{}, false
	}

	p := FromAddr(top)
	if p.Pinned() {
		s.top.StoreRelease(top)
		return Page{}, false
	}

	next := p.nextLink().LoadRelaxed()
	s.top.StoreRelease(next)
	return p, true
}
