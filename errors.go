// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package density

import (
	"errors"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock is the would-block control flow signal, not a failure.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency.
// No operation in this package returns it: queues are unbounded, so a
// push that cannot complete reports [ErrOutOfMemory] or [ErrProgress],
// and an empty queue is reported by TryConsume or StartConsume
// returning false.
var ErrWouldBlock = iox.ErrWouldBlock

// ErrOutOfMemory indicates a page could not be obtained from the page
// manager under the requested progress guarantee. Returned on the
// Blocking and LockFree progress guarantees (WaitFree reports
// [ErrProgress] instead); on Throwing it is panicked instead, the
// idiomatic stand-in for the original library throwing std::bad_alloc.
var ErrOutOfMemory = errors.New("density: out of memory")

// ErrProgress indicates a WaitFree operation could not reserve a slot:
// its bounded retries ran out under contention, or no page could be
// obtained without blocking. The caller should retry.
var ErrProgress = errors.New("density: progress guarantee exceeded")

// IsWouldBlock reports whether err indicates the operation would block.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsSemantic reports whether err is a control flow signal (not a failure).
// Delegates to [iox.IsSemantic].
func IsSemantic(err error) bool {
	return iox.IsSemantic(err)
}

// IsNonFailure reports whether err represents a non-failure condition.
// Returns true for nil, ErrWouldBlock, or ErrMore.
// Delegates to [iox.IsNonFailure].
func IsNonFailure(err error) bool {
	return iox.IsNonFailure(err)
}
