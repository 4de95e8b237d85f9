// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package funcqueue adapts [density.Queue] into a queue of deferred
// function calls, ported from density's function-queue family
// (function_queue / conc_function_queue in the original library): a
// producer pushes a closure, a consumer later pops and invokes it.
//
// The original distinguishes a "standard" erasure policy, which keeps
// a destructor pointer alongside each stored callable, from a
// "manual" policy that skips it for trivially-destructible callables
// to save a word and an indirect call. Go closures always carry a
// heap-allocated environment the garbage collector must be able to
// trace regardless of how this package stores them, so that
// distinction has no Go analogue: every queue here always goes
// through [density]'s ordinary runtime-type-tracked slot, which is
// the "standard" policy's natural home.
package funcqueue

import (
	"unsafe"

	"code.hybscloud.com/density"
	"code.hybscloud.com/density/internal/rtti"
	"code.hybscloud.com/spin"
)

// Queue0 holds deferred calls taking no arguments and returning R.
type Queue0[R any] struct{ q *density.Queue }

// New0 returns a multi-producer, multi-consumer Queue0.
func New0[R any]() *Queue0[R] { return &Queue0[R]{q: density.NewMPMC()} }

// Push enqueues fn using the queue's default progress guarantee.
func (fq *Queue0[R]) Push(fn func() R) error {
	return density.Push(fq.q, fn)
}

// TryPush enqueues fn without blocking, reporting false if it could
// not.
func (fq *Queue0[R]) TryPush(fn func() R) bool {
	return density.TryPush(fq.q, fn)
}

// TryCall pops and invokes the oldest ready call, reporting its result
// and true, or reports false if nothing is ready.
func (fq *Queue0[R]) TryCall() (result R, ok bool) {
	fq.q.TryConsume(func(_ *rtti.Type, elem unsafe.Pointer) {
		fn := *(*func() R)(elem)
		result = fn()
		ok = true
	})
	return result, ok
}

// Call pops and invokes the next call, spinning with backoff until
// one is ready.
func (fq *Queue0[R]) Call() R {
	sw := spin.Wait{}
	for {
		if r, ok := fq.TryCall(); ok {
			return r
		}
		sw.Once()
	}
}

// Empty reports whether the queue currently has no pending call.
func (fq *Queue0[R]) Empty() bool { return fq.q.Empty() }

// Queue1 holds deferred calls taking one argument, supplied at call
// time rather than captured at push time.
type Queue1[A, R any] struct{ q *density.Queue }

// New1 returns a multi-producer, multi-consumer Queue1.
func New1[A, R any]() *Queue1[A, R] { return &Queue1[A, R]{q: density.NewMPMC()} }

// Push enqueues fn using the queue's default progress guarantee.
func (fq *Queue1[A, R]) Push(fn func(A) R) error {
	return density.Push(fq.q, fn)
}

// TryPush enqueues fn without blocking.
func (fq *Queue1[A, R]) TryPush(fn func(A) R) bool {
	return density.TryPush(fq.q, fn)
}

// TryCall pops the oldest ready call and invokes it with arg.
func (fq *Queue1[A, R]) TryCall(arg A) (result R, ok bool) {
	fq.q.TryConsume(func(_ *rtti.Type, elem unsafe.Pointer) {
		fn := *(*func(A) R)(elem)
		result = fn(arg)
		ok = true
	})
	return result, ok
}

// Call pops and invokes the next call with arg, spinning with backoff
// until one is ready.
func (fq *Queue1[A, R]) Call(arg A) R {
	sw := spin.Wait{}
	for {
		if r, ok := fq.TryCall(arg); ok {
			return r
		}
		sw.Once()
	}
}

// Empty reports whether the queue currently has no pending call.
func (fq *Queue1[A, R]) Empty() bool { return fq.q.Empty() }

// Queue2 holds deferred calls taking two arguments, supplied at call
// time.
type Queue2[A, B, R any] struct{ q *density.Queue }

// New2 returns a multi-producer, multi-consumer Queue2.
func New2[A, B, R any]() *Queue2[A, B, R] { return &Queue2[A, B, R]{q: density.NewMPMC()} }

// Push enqueues fn using the queue's default progress guarantee.
func (fq *Queue2[A, B, R]) Push(fn func(A, B) R) error {
	return density.Push(fq.q, fn)
}

// TryPush enqueues fn without blocking.
func (fq *Queue2[A, B, R]) TryPush(fn func(A, B) R) bool {
	return density.TryPush(fq.q, fn)
}

// TryCall pops the oldest ready call and invokes it with a and b.
func (fq *Queue2[A, B, R]) TryCall(a A, b B) (result R, ok bool) {
	fq.q.TryConsume(func(_ *rtti.Type, elem unsafe.Pointer) {
		fn := *(*func(A, B) R)(elem)
		result = fn(a, b)
		ok = true
	})
	return result, ok
}

// Call pops and invokes the next call with a and b, spinning with
// backoff until one is ready.
func (fq *Queue2[A, B, R]) Call(a A, b B) R {
	sw := spin.Wait{}
	for {
		if r, ok := fq.TryCall(a, b); ok {
			return r
		}
		sw.Once()
	}
}

// Empty reports whether the queue currently has no pending call.
func (fq *Queue2[A, B, R]) Empty() bool { return fq.q.Empty() }
