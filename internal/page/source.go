// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package page

import (
	"unsafe"

	"code.hybscloud.com/atomix"
)

// Progress is the progress guarantee a caller requests from the page
// source / manager. It mirrors the producer/consumer progress flavors
// of the queue above it, but collapses "throwing" into "blocking" —
// page allocation has no user code to run, so there is nothing for it
// to throw.
type Progress int

const (
	// Blocking may block on the host allocator when every region is
	// exhausted and a new one must be requested from the runtime.
	Blocking Progress = iota
	// LockFree never blocks on the allocator; it reports failure
	// instead of growing the region list.
	LockFree
	// WaitFree uses a bounded compare-and-swap retry instead of a
	// blind fetch-and-add, trading throughput for a hard bound on
	// retries; it may fail under contention.
	WaitFree
)

const (
	regionDefaultSize = 4 * 1024 * 1024
	regionMinSize     = 8 * Size
)

// region is one contiguous block obtained from the host allocator,
// carved into Size-byte pages by a bump cursor. Regions are linked in a
// singly linked list and are never released until the owning [source]
// is destroyed.
type region struct {
	arena []byte // keeps the backing storage reachable for the GC

	start uintptr
	end   uintptr
	cur   atomix.Uintptr

	next atomix.Uintptr // *region, 0 if none
}

// allocate attempts to carve one page out of r. guarantee selects the
// fast blind-increment path or the bounded CAS retry path.
func (r *region) allocate(guarantee Progress) (Page, bool) {
	if guarantee == WaitFree {
		return r.allocateWaitFree()
	}
	return r.allocateLockFree()
}

func (r *region) allocateLockFree() (Page, bool) {
	addr := r.cur.AddAcqRel(Size) - Size
	if addr >= r.start && addr < r.end {
		return fromBase(unsafe.Pointer(addr)), true
	}
	// Overshot: undo our reservation so later callers still see a
	// consistent cursor; benign if another thread's allocate races in
	// between, since they'll overshoot too and also undo.
	r.cur.AddAcqRel(-Size)
	return Page{}, false
}

func (r *region) allocateWaitFree() (Page, bool) {
	cur := r.cur.LoadRelaxed()
	next := cur + Size
	if cur < r.start || cur >= r.end {
		return Page{}, false
	}
	if r.cur.CompareAndSwapRelaxed(cur, next) {
		return fromBase(unsafe.Pointer(cur)), true
	}
	return Page{}, false
}

func newRegion(size int) *region {
	size = max(size, regionMinSize)
	arena := make([]byte, size+Alignment)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(arena)))
	start := (base + Alignment - 1) &^ (Alignment - 1)
	end := (base + uintptr(size)) &^ (Alignment - 1)
	r := &region{arena: arena, start: start, end: end}
	r.cur.StoreRelaxed(start)
	return r
}

// source is the process-lifetime provider of memory regions: the
// System Page Source of the specification. It never returns memory to
// the host; regions live as long as the source does.
type source struct {
	curRegion atomix.Uintptr // *region, always non-zero after init
	first     region         // statically held; always present, always exhausted
}

func newSource() *source {
	s := &source{}
	s.first.cur.StoreRelaxed(0)
	s.first.start, s.first.end = 1, 1 // immediately exhausted, forces the slow path once
	s.curRegion.StoreRelease(uintptr(unsafe.Pointer(&s.first)))
	return s
}

// allocatePage obtains one page, growing the region list if needed and
// permitted by guarantee.
func (s *source) allocatePage(guarantee Progress) (Page, bool) {
	curAddr := s.curRegion.LoadAcquire()
	cur := (*region)(unsafe.Pointer(curAddr))

	for {
		if p, ok := cur.allocate(guarantee); ok {
			return p, true
		}

		nextAddr := cur.next.LoadAcquire()
		if nextAddr == 0 {
			if guarantee != Blocking {
				return Page{}, false
			}
			newR := createRegion()
			if newR == nil {
				return Page{}, false
			}
			newAddr := uintptr(unsafe.Pointer(newR))
			if cur.next.CompareAndSwapAcqRel(0, newAddr) {
				nextAddr = newAddr
			} else {
				nextAddr = cur.next.LoadAcquire()
			}
		}

		next := (*region)(unsafe.Pointer(nextAddr))
		// Repair the head opportunistically; losing the race is benign.
		s.curRegion.CompareAndSwapAcqRel(curAddr, nextAddr)
		cur, curAddr = next, nextAddr
	}
}

// createRegion allocates a new region from the host, shrinking by
// halves down to regionMinSize on failure. In Go, make([]byte, n) only
// fails by panicking (no malloc-style nil return), so "failure" here
// means the runtime's allocator decided the request is unreasonable;
// we approximate the C++ source's halving retry by capping at
// regionMinSize and letting make panic only below that floor, which
// would indicate genuine address-space exhaustion.
func createRegion() (r *region) {
	defer func() {
		if recover() != nil {
			r = nil
		}
	}()

	size := regionDefaultSize
	for size > regionMinSize {
		var ok bool
		if r, ok = tryNewRegion(size); ok {
			return r
		}
		size /= 2
	}
	r, _ = tryNewRegion(regionMinSize)
	return r
}

func tryNewRegion(size int) (r *region, ok bool) {
	defer func() {
		if recover() != nil {
			r, ok = nil, false
		}
	}()
	return newRegion(size), true
}
