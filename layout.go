// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package density

import (
	"unsafe"

	"code.hybscloud.com/density/internal/page"
)

// allocGranularity is the step every slot (and the end-control-block)
// is rounded up to, ported from lf_queue_common.h's s_alloc_granularity.
// A cache line is a generous upper bound on both the control word's
// own alignment and the 4-bit flag space the control word packs into
// its low bits, and keeps adjacent slots from false-sharing.
const allocGranularity = 64

// minAlignment is the minimum alignment density ever aligns a value's
// storage to, matching s_element_min_offset's derivation in the
// original header.
const minAlignment = unsafe.Alignof(uintptr(0))

var (
	controlSize      = unsafe.Sizeof(control{})
	typeOffset       = alignUp(controlSize, unsafe.Alignof((*int)(nil)))
	elementMinOffset = alignUp(typeOffset+unsafe.Sizeof((*int)(nil)), minAlignment)

	// endControlOffset is the offset, within a page's usable bytes, of
	// the sentinel control block that links to the next page. Every
	// page reserves the same trailing slot for it.
	endControlOffset = alignDown(uintptr(page.UsableSize)-controlSize, allocGranularity)

	// maxSizeInPage is the largest slot (value + header) that can ever
	// fit ahead of the end-control-block. Anything larger is stored
	// out of line, see external.go.
	maxSizeInPage = endControlOffset

	// invalidControlBlock is the sentinel both head and tail start
	// life as. It is not a real pointer: it is small enough that no
	// OS ever maps real memory there, and its magnitude is chosen so
	// that the very first reservation attempt computes a next-tail
	// past it unconditionally, forcing the first real page to be
	// allocated without any special-cased bootstrap branch in the
	// fast path (see reserve in push.go and the symmetric check in
	// consume.go).
	invalidControlBlock = endControlOffset
)

func alignUp(v, a uintptr) uintptr  { return (v + a - 1) &^ (a - 1) }
func alignDown(v, a uintptr) uintptr { return v &^ (a - 1) }

// pageBaseOf returns the aligned page base address addr falls within,
// or 0 if addr is the invalidControlBlock sentinel (which is smaller
// than a page's alignment and therefore always masks to 0).
func pageBaseOf(addr uintptr) uintptr {
	return addr &^ (uintptr(page.Alignment) - 1)
}

func controlAt(addr uintptr) *control {
	return (*control)(unsafe.Pointer(addr))
}

// elementOffset returns the offset, within a slot, of the value itself
// once the type pointer has been skipped and the result aligned up to
// align.
func elementOffset(align uintptr) uintptr {
	return alignUp(elementMinOffset, align)
}

// fits reports whether a value of the given size and alignment can be
// stored inline in a slot ahead of the end-control-block.
func fits(size, align uintptr) bool {
	if align > uintptr(page.Alignment) {
		return false
	}
	return alignUp(elementOffset(align)+size, allocGranularity) <= maxSizeInPage
}
