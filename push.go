// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package density

import (
	"unsafe"

	"code.hybscloud.com/density/internal/page"
	"code.hybscloud.com/density/internal/rtti"
	"code.hybscloud.com/spin"
)

// waitFreeRetryBound caps the number of contended retries a WaitFree
// reserve/growPage loop will attempt before reporting [ErrProgress],
// turning an otherwise-unbounded compare-and-swap retry into a true
// wait-free bound.
const waitFreeRetryBound = 64

func progressFor(g ProgressGuarantee) page.Progress {
	switch g {
	case WaitFree:
		return page.WaitFree
	case LockFree:
		return page.LockFree
	default:
		return page.Blocking
	}
}

// Push enqueues value using the queue's default progress guarantee
// (see [Builder.Guarantee]). It returns [ErrOutOfMemory] if the page
// manager could not supply a page and the guarantee is Blocking or
// LockFree; on Throwing it panics with ErrOutOfMemory instead.
func Push[T any](q *Queue, value T) error {
	return pushValue(q, q.guarantee, value)
}

// TryPush enqueues value using the LockFree progress guarantee
// regardless of the queue's default, returning false rather than
// blocking or panicking if no page is immediately available.
func TryPush[T any](q *Queue, value T) bool {
	return pushValue(q, LockFree, value) == nil
}

// Emplace constructs the queued value in place by calling ctor once a
// slot has been reserved, using the queue's default progress
// guarantee. If ctor panics, the slot is marked dead (as if it had
// never held a value) and the panic is re-raised to the caller.
func Emplace[T any](q *Queue, ctor func() T) error {
	rt := rtti.Of[T]()
	h := q.manager.Hazard()
	defer q.manager.Release(h)

	ctrlAddr, ok := q.reserve(q.guarantee, rt.Size, rt.Align, h)
	if !ok {
		return outOfMemory(q.guarantee)
	}
	commitTyped[T](q, ctrlAddr, rt, ctor)
	return nil
}

func pushValue[T any](q *Queue, guarantee ProgressGuarantee, value T) error {
	rt := rtti.Of[T]()
	h := q.manager.Hazard()
	defer q.manager.Release(h)

	ctrlAddr, ok := q.reserve(guarantee, rt.Size, rt.Align, h)
	if !ok {
		return outOfMemory(guarantee)
	}
	commitTyped[T](q, ctrlAddr, rt, func() T { return value })
	return nil
}

func outOfMemory(guarantee ProgressGuarantee) error {
	switch guarantee {
	case Throwing:
		panic(ErrOutOfMemory)
	case WaitFree:
		return ErrProgress
	default:
		return ErrOutOfMemory
	}
}

// commitTyped stores the runtime type, constructs the value via ctor
// into its final resting place (inline or external), and clears Busy.
// A panicking ctor leaves the slot permanently Dead rather than
// publishing a half-built value.
func commitTyped[T any](q *Queue, ctrlAddr uintptr, rt *rtti.Type, ctor func() T) {
	*(**rtti.Type)(unsafe.Pointer(ctrlAddr + typeOffset)) = rt

	external, _, _ := slotParams(rt.Size, rt.Align)
	elemAddr := ctrlAddr + elementOffset(pick(external, externalBlockAlign, rt.Align))

	flags := uintptr(0)
	var dst *T
	if external {
		dst = new(T)
		block := (*externalBlock)(unsafe.Pointer(elemAddr))
		block.ptr = unsafe.Pointer(dst)
		block.size = rt.Size
		block.align = rt.Align
		flags = ctrlExternal
	} else {
		dst = (*T)(unsafe.Pointer(elemAddr))
	}

	ctrl := controlAt(ctrlAddr)
	busyWord := ctrl.next.LoadRelaxed()
	ptrPart := ctrlPtr(busyWord)

	ok := false
	defer func() {
		if !ok {
			if r := recover(); r != nil {
				ctrl.next.StoreRelease(ptrPart | ctrlDead)
				panic(r)
			}
		}
	}()
	*dst = ctor()
	ok = true

	ctrl.next.StoreRelease(ptrPart | flags)
}

func pick(cond bool, a, b uintptr) uintptr {
	if cond {
		return a
	}
	return b
}

// reserve claims one slot able to hold effSize bytes aligned to
// effAlign, growing the page chain as needed, and returns the address
// of its control block with the block's next word already set to
// next|Busy. The caller is responsible for publishing the type
// pointer and constructed value and then clearing Busy.
func (q *Queue) reserve(guarantee ProgressGuarantee, size, align uintptr, h *page.Handle) (ctrlAddr uintptr, ok bool) {
	_, effSize, effAlign := slotParams(size, align)
	slotSize := alignUp(elementOffset(effAlign)+effSize, allocGranularity)

	sw := spin.Wait{}
	retries := 0
	for {
		tail := q.tail.LoadAcquire()
		pageBase := pageBaseOf(tail)
		endAddr := pageBase + endControlOffset
		nextTail := tail + slotSize

		if nextTail > endAddr {
			if guarantee == WaitFree {
				retries++
				if retries > waitFreeRetryBound {
					return 0, false
				}
			}
			if _, grown := q.growPage(guarantee, tail, h); !grown {
				return 0, false
			}
			sw.Once()
			continue
		}

		if q.singleProducer {
			q.tail.StoreRelaxed(nextTail)
		} else {
			if guarantee == WaitFree {
				retries++
				if retries > waitFreeRetryBound {
					return 0, false
				}
			}
			if !q.tail.CompareAndSwapAcqRel(tail, nextTail) {
				sw.Once()
				continue
			}
		}

		controlAt(tail).next.StoreRelease(nextTail | ctrlBusy)
		return tail, true
	}
}

// growPage ensures the page starting at pageBaseOf(tail) (or, for the
// bootstrap sentinel, the queue itself) has a successor page, chaining
// a freshly allocated one in if not, and advances the queue's tail to
// point at it. Losing a race to chain a page returns the winner's
// page instead of failing.
func (q *Queue) growPage(guarantee ProgressGuarantee, tail uintptr, h *page.Handle) (newBase uintptr, ok bool) {
	pageBase := pageBaseOf(tail)

	if pageBase == 0 {
		return q.bootstrapFirstPage(guarantee, tail, h)
	}

	endCtrl := controlAt(pageBase + endControlOffset)
	if cur := endCtrl.next.LoadAcquire(); cur&ctrlInvalidNextPage == 0 {
		newBase = ctrlPtr(cur)
		q.advanceTail(tail, newBase)
		return newBase, true
	}

	p, allocated := q.manager.AllocatePage(progressFor(guarantee))
	if !allocated {
		return 0, false
	}
	newBase = p.Addr()
	controlAt(newBase + endControlOffset).next.StoreRelease(ctrlInvalidNextPage)

	endCtrl = controlAt(pageBase + endControlOffset)
	if q.singleProducer {
		// Dead marks this end-control-block as a link rather than a
		// value: the consumer walk must skip over it, never CAS-claim
		// it as a ready slot.
		endCtrl.next.StoreRelease(newBase | ctrlDead)
		q.advanceTail(tail, newBase)
		return newBase, true
	}

	cur := endCtrl.next.LoadAcquire()
	if cur&ctrlInvalidNextPage == 0 {
		q.manager.DeallocatePage(p, h)
		newBase = ctrlPtr(cur)
		q.advanceTail(tail, newBase)
		return newBase, true
	}
	if !endCtrl.next.CompareAndSwapAcqRel(cur, newBase|ctrlDead) {
		q.manager.DeallocatePage(p, h)
		newBase = ctrlPtr(endCtrl.next.LoadAcquire())
		q.advanceTail(tail, newBase)
		return newBase, true
	}
	q.advanceTail(tail, newBase)
	return newBase, true
}

// bootstrapFirstPage resolves the queue's very first page. firstPage
// is the anchor both the producer (tail) and the consumer (head) side
// use to escape the invalidControlBlock sentinel, since there is no
// real end-control-block to chain from before any page exists.
func (q *Queue) bootstrapFirstPage(guarantee ProgressGuarantee, tail uintptr, h *page.Handle) (newBase uintptr, ok bool) {
	if fp := q.firstPage.LoadAcquire(); fp != 0 {
		q.advanceTail(tail, fp)
		return fp, true
	}

	p, allocated := q.manager.AllocatePage(progressFor(guarantee))
	if !allocated {
		return 0, false
	}
	newBase = p.Addr()
	controlAt(newBase + endControlOffset).next.StoreRelease(ctrlInvalidNextPage)

	if q.singleProducer {
		q.firstPage.StoreRelease(newBase)
	} else if !q.firstPage.CompareAndSwapAcqRel(0, newBase) {
		q.manager.DeallocatePage(p, h)
		newBase = q.firstPage.LoadAcquire()
	}
	q.advanceTail(tail, newBase)
	return newBase, true
}

func (q *Queue) advanceTail(old, newBase uintptr) {
	if q.singleProducer {
		q.tail.StoreRelease(newBase)
		return
	}
	q.tail.CompareAndSwapAcqRel(old, newBase)
}

// PushTransaction is a reserved, not-yet-published slot returned by
// [StartPush]: the two-phase form of [Push] for callers that need to
// build the value across several steps, or decide not to publish it
// at all, before other goroutines can observe it.
type PushTransaction[T any] struct {
	q        *Queue
	ctrlAddr uintptr
	dst      *T
	external bool
	done     bool
}

// StartPush reserves a slot for a value of type T under guarantee
// without constructing or publishing it. The caller must eventually
// call [PushTransaction.Commit] or [PushTransaction.Cancel].
func StartPush[T any](q *Queue, guarantee ProgressGuarantee) (*PushTransaction[T], error) {
	rt := rtti.Of[T]()
	h := q.manager.Hazard()
	defer q.manager.Release(h)

	ctrlAddr, ok := q.reserve(guarantee, rt.Size, rt.Align, h)
	if !ok {
		return nil, outOfMemory(guarantee)
	}

	*(**rtti.Type)(unsafe.Pointer(ctrlAddr + typeOffset)) = rt
	external, _, _ := slotParams(rt.Size, rt.Align)
	elemAddr := ctrlAddr + elementOffset(pick(external, externalBlockAlign, rt.Align))

	var dst *T
	if external {
		dst = new(T)
		block := (*externalBlock)(unsafe.Pointer(elemAddr))
		block.ptr = unsafe.Pointer(dst)
		block.size = rt.Size
		block.align = rt.Align
	} else {
		dst = (*T)(unsafe.Pointer(elemAddr))
	}

	return &PushTransaction[T]{q: q, ctrlAddr: ctrlAddr, dst: dst, external: external}, nil
}

// Value returns a pointer to the transaction's reserved storage. It
// may be written to freely until [PushTransaction.Commit] or
// [PushTransaction.Cancel] is called.
func (tx *PushTransaction[T]) Value() *T { return tx.dst }

// Commit publishes the transaction's value, making it visible to
// consumers. Calling Commit more than once is a no-op.
func (tx *PushTransaction[T]) Commit() {
	if tx.done {
		return
	}
	tx.done = true
	ctrl := controlAt(tx.ctrlAddr)
	ptrPart := ctrlPtr(ctrl.next.LoadRelaxed())
	flags := uintptr(0)
	if tx.external {
		flags = ctrlExternal
	}
	ctrl.next.StoreRelease(ptrPart | flags)
}

// Cancel abandons the transaction: the slot is marked Dead and its
// storage reclaimed the next time a consumer walks past it, without
// ever being observed. Calling Cancel more than once is a no-op.
func (tx *PushTransaction[T]) Cancel() {
	if tx.done {
		return
	}
	tx.done = true
	ctrl := controlAt(tx.ctrlAddr)
	ptrPart := ctrlPtr(ctrl.next.LoadRelaxed())
	ctrl.next.StoreRelease(ptrPart | ctrlDead)
}

// RawAllocate reserves size bytes of scratch storage, aligned to
// align, inside the queue's own page chain. The storage is never
// delivered to a consumer: the slot is marked Dead immediately, so the
// ordinary dead-slot walk reclaims it the next time a consumer passes
// over it. It exists for producers that need page-local scratch space
// alongside a committed element (e.g. a variable-length trailer) and
// manage that storage's lifetime themselves rather than through
// try_consume. It reports false if the block cannot be placed inside a
// single page (too large, or align above allocGranularity) or if no
// slot could be reserved.
func RawAllocate(q *Queue, size, align uintptr) (unsafe.Pointer, bool) {
	if external, _, _ := slotParams(size, align); external || align > allocGranularity {
		return nil, false
	}
	h := q.manager.Hazard()
	defer q.manager.Release(h)

	ctrlAddr, ok := q.reserve(q.guarantee, size, align, h)
	if !ok {
		return nil, false
	}
	*(**rtti.Type)(unsafe.Pointer(ctrlAddr + typeOffset)) = nil
	ctrl := controlAt(ctrlAddr)
	ptrPart := ctrlPtr(ctrl.next.LoadRelaxed())
	ctrl.next.StoreRelease(ptrPart | ctrlDead)
	return unsafe.Pointer(ctrlAddr + elementOffset(align)), true
}
