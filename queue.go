// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package density

import (
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/density/internal/page"
	"code.hybscloud.com/density/internal/rtti"
)

// ProgressGuarantee selects how a push or consume operation behaves
// under contention or when the page manager is out of memory. It
// generalizes the original library's four queue variants
// (lf_queue, lf_queue_fallible, lf_queue_wait_free's two flavors) into
// a single axis that any Queue can be asked for on a per-call basis.
type ProgressGuarantee int

const (
	// Throwing blocks like Blocking, but panics with [ErrOutOfMemory]
	// instead of returning it. The idiomatic stand-in for the original
	// library's default queue, which lets std::bad_alloc propagate.
	Throwing ProgressGuarantee = iota
	// Blocking may block on the host allocator to obtain a new page,
	// and retries indefinitely under producer/consumer contention.
	// Failure is only possible as [ErrOutOfMemory].
	Blocking
	// LockFree never blocks on the allocator: page exhaustion is
	// reported as [ErrOutOfMemory] rather than grown into. Contention
	// is still retried without a retry bound.
	LockFree
	// WaitFree additionally bounds the number of contended retries,
	// reporting [ErrProgress] if the bound is exceeded.
	WaitFree
)

// Consistency selects whether a consumer may skip over a still-busy
// (reserved but not yet committed) slot to reach a later, ready one.
type Consistency int

const (
	// Sequential stops at the first busy slot: values are delivered in
	// exactly the order their slots were reserved.
	Sequential Consistency = iota
	// Relaxed allows a consumer to walk past a busy slot in search of
	// a ready one, trading strict FIFO order across racing producers
	// for lower consumer stall time. A Push commits before it returns,
	// so no later push overtakes it; a slot still held open by a
	// [PushTransaction] can be overtaken by later pushes, including
	// ones from the same goroutine.
	Relaxed
)

// Queue is a page-backed, heterogeneous, multi-type FIFO queue. Its
// zero value is not usable; construct one with [NewSPSC], [NewMPSC],
// [NewSPMC], [NewMPMC], or [Builder] for finer control.
//
// A Queue's producer and consumer sides may be driven from any number
// of goroutines consistent with the cardinality it was built with:
// building it single-producer or single-consumer and then violating
// that from multiple goroutines is a data race, not a checked error,
// exactly as it would be for the C++ template parameter it replaces.
type Queue struct {
	manager *page.Manager

	singleProducer bool
	singleConsumer bool
	consistency    Consistency
	guarantee      ProgressGuarantee

	tail atomix.Uintptr
	head atomix.Uintptr

	// firstPage anchors both tail and head's bootstrap: it is 0 until
	// the first real page is allocated, at which point it is set
	// exactly once (by whichever producer wins the race) and both
	// sides resolve their sentinel against it instead of each other.
	firstPage atomix.Uintptr
}

func newQueue(singleProducer, singleConsumer bool, consistency Consistency, guarantee ProgressGuarantee, manager *page.Manager) *Queue {
	if manager == nil {
		manager = page.Default()
	}
	q := &Queue{
		manager:        manager,
		singleProducer: singleProducer,
		singleConsumer: singleConsumer,
		consistency:    consistency,
		guarantee:      guarantee,
	}
	q.tail.StoreRelaxed(invalidControlBlock)
	q.head.StoreRelaxed(invalidControlBlock)
	return q
}

// NewSPSC returns a queue for exactly one producer goroutine and
// exactly one consumer goroutine, the cheapest of the four
// cardinalities since neither side ever needs a compare-and-swap to
// claim its own slot.
func NewSPSC() *Queue { return newQueue(true, true, Sequential, Blocking, nil) }

// NewMPSC returns a queue for any number of producer goroutines and
// exactly one consumer goroutine.
func NewMPSC() *Queue { return newQueue(false, true, Sequential, Blocking, nil) }

// NewSPMC returns a queue for exactly one producer goroutine and any
// number of consumer goroutines.
func NewSPMC() *Queue { return newQueue(true, false, Sequential, Blocking, nil) }

// NewMPMC returns a queue for any number of producer and consumer
// goroutines.
func NewMPMC() *Queue { return newQueue(false, false, Sequential, Blocking, nil) }

// Builder assembles a Queue with explicit cardinality, consistency,
// default progress guarantee, and page manager, for callers who need
// more than the four named constructors provide.
type Builder struct {
	singleProducer bool
	singleConsumer bool
	consistency    Consistency
	guarantee      ProgressGuarantee
	manager        *page.Manager
}

// New starts a Builder defaulted to multi-producer, multi-consumer,
// sequential consistency, and the Blocking progress guarantee.
func New() *Builder {
	return &Builder{guarantee: Blocking}
}

// SingleProducer declares that only one goroutine will ever push.
func (b *Builder) SingleProducer() *Builder { b.singleProducer = true; return b }

// SingleConsumer declares that only one goroutine will ever consume.
func (b *Builder) SingleConsumer() *Builder { b.singleConsumer = true; return b }

// Relaxed selects [Relaxed] consistency for the built queue's
// consumer side.
func (b *Builder) Relaxed() *Builder { b.consistency = Relaxed; return b }

// Guarantee sets the default progress guarantee used by [Push],
// [Emplace] and [RawAllocate]. [TryPush] always uses LockFree and
// [StartPush] takes its guarantee as an argument; consume operations
// take no progress guarantee.
func (b *Builder) Guarantee(g ProgressGuarantee) *Builder { b.guarantee = g; return b }

// PageManager injects the [page.Manager] the built queue allocates
// pages from. Queues sharing a manager share its page cache; omit this
// to use [page.Default].
func (b *Builder) PageManager(m *page.Manager) *Builder { b.manager = m; return b }

// Build returns the configured Queue.
func (b *Builder) Build() *Queue {
	return newQueue(b.singleProducer, b.singleConsumer, b.consistency, b.guarantee, b.manager)
}

// Empty reports whether the queue's head and tail coincide. A reserved
// slot not yet committed, or a dead slot no consumer has walked past
// yet, makes it report false even though nothing is ready to consume.
// It is a point-in-time probe: a concurrent
// push or consume can invalidate the answer before the caller acts on
// it, exactly like the original library's empty().
func (q *Queue) Empty() bool {
	return q.head.LoadAcquire() == q.tail.LoadAcquire()
}

// Clear discards every currently queued element by consuming and
// dropping each one. Concurrent pushes racing with Clear may still
// leave elements behind.
func (q *Queue) Clear() {
	for q.TryConsume(func(*rtti.Type, unsafe.Pointer) {}) {
	}
}
