// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package density

import "code.hybscloud.com/atomix"

// control is the per-slot header every push/consume operation
// synchronizes on, ported from lf_queue_common.h's control_block.
// Its single next word packs a pointer to the following slot (or, for
// the page's end-control-block, the following page) together with the
// slot's status flags in the low bits, which is safe because every
// slot is allocGranularity-aligned and allocGranularity exceeds the
// flag space.
type control struct {
	next atomix.Uintptr
}

// Status flags packed into the low bits of a control word, ported
// from NbQueue_Flags.
const (
	// ctrlBusy marks a slot as reserved by a producer (or claimed by a
	// consumer) but not yet in its resting state. A consumer walking
	// the queue stops at a busy slot under the default (non-relaxed)
	// consistency and may skip past it under [Relaxed].
	ctrlBusy uintptr = 1 << iota
	// ctrlDead marks a slot whose value has already been consumed (or
	// whose construction failed). Dead slots are always safe to walk
	// past and, once an unbroken run of them starts at head, safe to
	// reclaim.
	ctrlDead
	// ctrlExternal marks a slot whose value lives in a heap block
	// referenced by an externalBlock stored in the slot rather than
	// inline.
	ctrlExternal
	// ctrlInvalidNextPage marks the end-control-block of a page that
	// has no successor yet: the tail has not grown past this page.
	ctrlInvalidNextPage

	ctrlFlagsMask = ctrlBusy | ctrlDead | ctrlExternal | ctrlInvalidNextPage
)

// ctrlPtr extracts the pointer part of a control word.
func ctrlPtr(word uintptr) uintptr { return word &^ ctrlFlagsMask }
