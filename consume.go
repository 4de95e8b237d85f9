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

// TryConsume claims the oldest ready element, if any, and invokes fn
// with its runtime type and a pointer to its storage, reporting true.
// It reports false without calling fn if the queue currently has
// nothing ready to deliver: it is empty, or, under [Sequential]
// consistency, its oldest unconsumed slot is still Busy.
//
// fn must not retain elem past its call: the slot is destroyed and
// reclaimed as soon as fn returns. If fn panics, the slot is restored
// to its ready state (as if never claimed) and the panic is
// re-raised.
func (q *Queue) TryConsume(fn func(t *rtti.Type, elem unsafe.Pointer)) bool {
	h := q.manager.Hazard()
	defer q.manager.Release(h)

	sw := spin.Wait{}
	cursor := q.head.LoadAcquire()
	fromHead := true
	for {
		pageBase := pageBaseOf(cursor)
		if pageBase == 0 {
			// Bootstrap sentinel: no page has ever been chained in
			// yet, or none was the last time this goroutine checked.
			// cursor is not a real address and must never be
			// dereferenced; resolve it against firstPage instead.
			fp := q.firstPage.LoadAcquire()
			if fp == 0 {
				return false
			}
			if q.singleConsumer {
				q.head.StoreRelease(fp)
			} else {
				q.head.CompareAndSwapAcqRel(cursor, fp)
			}
			cursor = fp
			fromHead = true
			continue
		}

		h.Protect(pageBase)
		// cursor came straight from head: re-validate against head
		// after protecting, in case head (and thus eligibility for
		// reclaim of this very page) moved in the window between
		// the unprotected load above and the protect just taken.
		// A cursor reached by chasing a still-Busy slot's own next
		// pointer needs no such check: reclaim never advances head
		// past a Busy slot, so the page it points into cannot have
		// been freed.
		if fromHead {
			if h2 := q.head.LoadAcquire(); pageBaseOf(h2) != pageBase {
				h.Unprotect()
				cursor = h2
				continue
			}
		}

		ctrl := controlAt(cursor)
		word := ctrl.next.LoadAcquire()

		switch {
		case word&ctrlInvalidNextPage != 0:
			h.Unprotect()
			return false

		case ctrlPtr(word) == 0:
			// No producer has reserved this slot yet: it is the tail.
			h.Unprotect()
			return false

		case word&ctrlDead != 0:
			h.Unprotect()
			if !fromHead {
				// Past a Busy slot under Relaxed: head cannot move
				// beyond that slot, so step over this one instead.
				cursor = ctrlPtr(word)
				continue
			}
			q.reclaim(h)
			cursor = q.head.LoadAcquire()
			fromHead = true
			continue

		case word&ctrlBusy != 0:
			h.Unprotect()
			if q.consistency != Relaxed {
				return false
			}
			next := ctrlPtr(word)
			if next == cursor || next == 0 {
				return false
			}
			cursor = next
			fromHead = false
			sw.Once()
			continue

		default:
			if q.singleConsumer {
				ctrl.next.StoreRelease(word | ctrlBusy)
			} else if !ctrl.next.CompareAndSwapAcqRel(word, word|ctrlBusy) {
				h.Unprotect()
				sw.Once()
				cursor = q.head.LoadAcquire()
				fromHead = true
				continue
			}

			typ := *(**rtti.Type)(unsafe.Pointer(cursor + typeOffset))
			external := word&ctrlExternal != 0
			elem := resolveElement(cursor, typ, external)

			q.deliver(ctrl, word, typ, elem, fn)

			h.Unprotect()
			q.reclaim(h)
			return true
		}
	}
}

// deliver invokes fn over elem, restoring the slot to ready on panic
// and otherwise destroying the value and marking the slot Dead.
func (q *Queue) deliver(ctrl *control, readyWord uintptr, typ *rtti.Type, elem unsafe.Pointer, fn func(*rtti.Type, unsafe.Pointer)) {
	done := false
	defer func() {
		if !done {
			if r := recover(); r != nil {
				ctrl.next.StoreRelease(readyWord)
				panic(r)
			}
		}
	}()
	fn(typ, elem)
	done = true

	typ.Destroy(elem)
	ctrl.next.StoreRelease(ctrlPtr(readyWord) | ctrlDead)
}

// Consume blocks, spinning with backoff, until an element is
// available, then delivers it to fn exactly like [Queue.TryConsume].
func (q *Queue) Consume(fn func(t *rtti.Type, elem unsafe.Pointer)) {
	sw := spin.Wait{}
	for !q.TryConsume(fn) {
		sw.Once()
	}
}

// reclaim advances head past every contiguous Dead slot starting at
// the current head, releasing each page back to the manager once head
// has crossed its end-control-block. Every caller has already resolved
// its own cursor past the bootstrap sentinel before calling reclaim,
// so head is guaranteed to be a real address here.
func (q *Queue) reclaim(h *page.Handle) {
	for {
		head := q.head.LoadAcquire()
		ctrl := controlAt(head)
		word := ctrl.next.LoadAcquire()
		if word&ctrlDead == 0 {
			return
		}
		next := ctrlPtr(word)
		if next == 0 || next == head {
			return
		}

		atEndControl := pageBaseOf(head) != 0 && head == pageBaseOf(head)+endControlOffset

		if q.singleConsumer {
			q.head.StoreRelease(next)
		} else if !q.head.CompareAndSwapAcqRel(head, next) {
			continue
		}

		if atEndControl {
			q.manager.DeallocatePageZeroed(page.ContainingPage(unsafe.Pointer(head)), h)
		}
	}
}

// ConsumeTransaction is a claimed, not-yet-destroyed element returned
// by [StartConsume]: the two-phase form of [Queue.TryConsume] for
// callers that need to inspect the value across several steps before
// deciding whether to consume it.
type ConsumeTransaction struct {
	q        *Queue
	h        *page.Handle
	ctrlAddr uintptr
	readyWord uintptr
	typ      *rtti.Type
	elem     unsafe.Pointer
	done     bool
}

// StartConsume claims the oldest ready element without destroying it,
// or reports false if nothing is currently ready.
func (q *Queue) StartConsume() (*ConsumeTransaction, bool) {
	h := q.manager.Hazard()
	sw := spin.Wait{}
	cursor := q.head.LoadAcquire()
	fromHead := true
	for {
		pageBase := pageBaseOf(cursor)
		if pageBase == 0 {
			fp := q.firstPage.LoadAcquire()
			if fp == 0 {
				q.manager.Release(h)
				return nil, false
			}
			if q.singleConsumer {
				q.head.StoreRelease(fp)
			} else {
				q.head.CompareAndSwapAcqRel(cursor, fp)
			}
			cursor = fp
			fromHead = true
			continue
		}

		h.Protect(pageBase)
		if fromHead {
			if h2 := q.head.LoadAcquire(); pageBaseOf(h2) != pageBase {
				h.Unprotect()
				cursor = h2
				continue
			}
		}
		ctrl := controlAt(cursor)
		word := ctrl.next.LoadAcquire()

		switch {
		case word&ctrlInvalidNextPage != 0:
			h.Unprotect()
			q.manager.Release(h)
			return nil, false

		case ctrlPtr(word) == 0:
			// No producer has reserved this slot yet: it is the tail.
			h.Unprotect()
			q.manager.Release(h)
			return nil, false

		case word&ctrlDead != 0:
			h.Unprotect()
			if !fromHead {
				// Past a Busy slot under Relaxed: head cannot move
				// beyond that slot, so step over this one instead.
				cursor = ctrlPtr(word)
				continue
			}
			q.reclaim(h)
			cursor = q.head.LoadAcquire()
			fromHead = true
			continue

		case word&ctrlBusy != 0:
			h.Unprotect()
			if q.consistency != Relaxed {
				q.manager.Release(h)
				return nil, false
			}
			next := ctrlPtr(word)
			if next == cursor || next == 0 {
				q.manager.Release(h)
				return nil, false
			}
			cursor = next
			fromHead = false
			sw.Once()
			continue

		default:
			if q.singleConsumer {
				ctrl.next.StoreRelease(word | ctrlBusy)
			} else if !ctrl.next.CompareAndSwapAcqRel(word, word|ctrlBusy) {
				h.Unprotect()
				sw.Once()
				cursor = q.head.LoadAcquire()
				fromHead = true
				continue
			}
			typ := *(**rtti.Type)(unsafe.Pointer(cursor + typeOffset))
			external := word&ctrlExternal != 0
			elem := resolveElement(cursor, typ, external)
			return &ConsumeTransaction{q: q, h: h, ctrlAddr: cursor, readyWord: word, typ: typ, elem: elem}, true
		}
	}
}

// Type returns the claimed element's runtime type.
func (tx *ConsumeTransaction) Type() *rtti.Type { return tx.typ }

// Element returns a pointer to the claimed element's storage. It is
// only valid until [ConsumeTransaction.Commit] or
// [ConsumeTransaction.Cancel] is called.
func (tx *ConsumeTransaction) Element() unsafe.Pointer { return tx.elem }

// Commit destroys the claimed element and reclaims its slot. Calling
// Commit more than once is a no-op.
func (tx *ConsumeTransaction) Commit() {
	if tx.done {
		return
	}
	tx.done = true
	ctrl := controlAt(tx.ctrlAddr)
	tx.typ.Destroy(tx.elem)
	ctrl.next.StoreRelease(ctrlPtr(tx.readyWord) | ctrlDead)
	tx.h.Unprotect()
	tx.q.reclaim(tx.h)
	tx.q.manager.Release(tx.h)
}

// Cancel restores the claimed element to its ready state without
// destroying it, making it visible again to the next consumer.
// Calling Cancel more than once is a no-op.
func (tx *ConsumeTransaction) Cancel() {
	if tx.done {
		return
	}
	tx.done = true
	ctrl := controlAt(tx.ctrlAddr)
	ctrl.next.StoreRelease(tx.readyWord)
	tx.h.Unprotect()
	tx.q.manager.Release(tx.h)
}
