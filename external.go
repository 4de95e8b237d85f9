// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package density

import (
	"unsafe"

	"code.hybscloud.com/density/internal/rtti"
)

// externalBlock is the in-page stand-in for a value too large, or
// overaligned, to fit ahead of a page's end-control-block. Ported from
// density's external allocation path (LFQueue_Base::INPLACE_ALLOCATE's
// overflow branch in the original header), except the out-of-line
// storage here is an ordinary Go heap allocation rather than a raw
// malloc, since new(T) already gives the exact alignment T needs and
// keeps the value reachable for the garbage collector for as long as
// the slot references it.
type externalBlock struct {
	ptr   unsafe.Pointer
	size  uintptr
	align uintptr
}

var (
	externalBlockSize  = unsafe.Sizeof(externalBlock{})
	externalBlockAlign = unsafe.Alignof(externalBlock{})
)

// slotParams returns the size/alignment a reservation should use for a
// value of the given size and alignment: either the value's own, or
// the externalBlock's if the value must be stored out of line.
func slotParams(size, align uintptr) (external bool, effSize, effAlign uintptr) {
	if fits(size, align) {
		return false, size, align
	}
	return true, externalBlockSize, externalBlockAlign
}

// resolveElement returns the address of the user value for a claimed
// slot at cursor, following the external indirection if present.
func resolveElement(cursor uintptr, typ *rtti.Type, external bool) unsafe.Pointer {
	align := typ.Align
	if external {
		align = externalBlockAlign
	}
	addr := cursor + elementOffset(align)
	if external {
		block := (*externalBlock)(unsafe.Pointer(addr))
		return block.ptr
	}
	return unsafe.Pointer(addr)
}
