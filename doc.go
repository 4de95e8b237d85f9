// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package density provides a page-backed, heterogeneous, lock-free
// FIFO queue: any mix of concrete Go types can be pushed onto the same
// queue and is delivered back to a consumer together with its runtime
// type, without the caller committing to a single element type or a
// fixed capacity ahead of time. It is a Go-idiomatic redesign of
// Giuseppe Campana's density C++ library's heterogeneous lock-free
// queue.
//
// # Quick Start
//
// Direct constructors cover the four producer/consumer cardinalities:
//
//	q := density.NewSPSC()
//	q := density.NewMPSC()
//	q := density.NewSPMC()
//	q := density.NewMPMC()
//
// [Builder] gives finer control over consistency and the default
// progress guarantee:
//
//	q := density.New().SingleProducer().Relaxed().Guarantee(density.LockFree).Build()
//
// # Basic Usage
//
// Push accepts any type; TryConsume delivers whatever was pushed along
// with its runtime type:
//
//	q := density.NewMPMC()
//
//	if err := density.Push(q, Event{ID: 1}); err != nil {
//	    // page manager is out of memory
//	}
//
//	ok := q.TryConsume(func(t *rtti.Type, elem unsafe.Pointer) {
//	    ev := *(*Event)(elem)
//	    handle(ev)
//	})
//
// Callers that do not need the raw unsafe.Pointer form can pair Push
// with a typed TryConsume loop by switching on t.ReflectType(), or by
// routing each concrete type to its own queue when the heterogeneity
// is not actually needed — an ordinary generic channel-backed queue is
// usually the right tool when every element is the same type.
//
// # Progress Guarantees
//
// Every push can be asked for one of four behaviors under contention
// or memory exhaustion, via [ProgressGuarantee]:
//
//	density.Push(q, v)                         // queue's default (Blocking unless set with Builder.Guarantee)
//	density.TryPush(q, v)                       // LockFree: never blocks, reports false
//	density.StartPush[T](q, density.WaitFree)   // bounded retries
//
// # Backpressure
//
// A queue whose default guarantee is WaitFree reports [ErrProgress]
// from Push when its bounded retries run out; a caller can back off
// and retry:
//
//	backoff := iox.Backoff{}
//	for {
//	    if err := density.Push(q, v); err == nil {
//	        backoff.Reset()
//	        break
//	    } else if errors.Is(err, density.ErrProgress) {
//	        backoff.Wait()
//	        continue
//	    } else {
//	        return err
//	    }
//	}
//
// # Two-Phase Operations
//
// [StartPush] and [Queue.StartConsume] split reservation from
// publication, for callers that need to build a value across several
// steps or decide not to publish it at all:
//
//	tx, err := density.StartPush[Event](q, density.Blocking)
//	if err != nil {
//	    return err
//	}
//	*tx.Value() = Event{ID: 1}
//	tx.Commit() // or tx.Cancel()
//
// # Function Queues
//
// The density/funcqueue subpackage adapts the same page-backed storage
// into a queue of deferred function calls, for work-item or command
// patterns where the payload is "do this" rather than "here is data":
//
//	fq := funcqueue.New0[int]()
//	fq.Push(func() int { return 42 })
//	result, ok := fq.TryCall()
package density
