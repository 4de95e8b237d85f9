// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package page

import (
	"unsafe"

	"code.hybscloud.com/atomix"
)

// Size is the fixed size, in bytes, of every page. It is a power of
// two and equal to [Alignment].
const Size = 64 * 1024

// Alignment is the alignment, in bytes, every page is carved at.
// page_size <= page_alignment always holds; here they are equal.
const Alignment = Size

// footerSize is the size reserved at the end of every page for the
// [Manager]'s own bookkeeping (free-list link, pin count). It is not
// part of the space density's queue layout may use for slots.
const footerSize = 32

// UsableSize is the number of bytes, starting at a page's base address,
// that the queue layout may place control blocks and values into.
const UsableSize = Size - footerSize

// footer sits in the last footerSize bytes of a page.
type footer struct {
	next     atomix.Uintptr // free-list link, valid only while the page is on a free list
	pinCount atomix.Int32   // threads currently holding a raw, dereferenceable pointer to this page
}

// Page is a handle to one fixed-size, aligned memory page.
//
// Page is a thin wrapper over a raw base address; it does not own the
// backing memory (a [region] does). Copying a Page is cheap and safe.
type Page struct {
	base unsafe.Pointer
}

// fromBase wraps an already page-aligned address.
func fromBase(base unsafe.Pointer) Page {
	return Page{base: base}
}

// Valid reports whether p refers to an actual page.
func (p Page) Valid() bool { return p.base != nil }

// Base returns the page's base address.
func (p Page) Base() unsafe.Pointer { return p.base }

// Addr returns the page's base address as a uintptr, e.g. for tagging
// into a control word or a free-list link.
func (p Page) Addr() uintptr { return uintptr(p.base) }

// FromAddr reconstructs a Page handle from a base address previously
// obtained from [Page.Addr]. addr must be page-aligned.
func FromAddr(addr uintptr) Page {
	if addr == 0 {
		return Page{}
	}
	return Page{base: unsafe.Pointer(addr)}
}

// Bytes returns the usable byte region of the page (everything except
// the manager's footer).
func (p Page) Bytes() []byte {
	return unsafe.Slice((*byte)(p.base), UsableSize)
}

// ContainingPage returns the page that addr falls inside.
func ContainingPage(addr unsafe.Pointer) Page {
	masked := uintptr(addr) &^ (Alignment - 1)
	return Page{base: unsafe.Pointer(masked)}
}

// SamePage reports whether a and b fall inside the same page.
func SamePage(a, b unsafe.Pointer) bool {
	const mask = ^uintptr(Alignment - 1)
	return (uintptr(a)^uintptr(b))&mask == 0
}

func (p Page) footer() *footer {
	return (*footer)(unsafe.Add(p.base, UsableSize))
}

// Pin increments the page's pin count, publishing that the calling
// thread may still dereference raw pointers into this page. Pair with
// [Page.Unpin]. Pinning is the coarse-grained sibling of the hazard
// pointer registry: the page manager will not hand a page with a
// nonzero pin count back to the free stack.
func (p Page) Pin() { p.footer().pinCount.AddAcqRel(1) }

// Unpin decrements the pin count set by [Page.Pin].
func (p Page) Unpin() { p.footer().pinCount.AddAcqRel(-1) }

// Pinned reports whether the page currently has a nonzero pin count.
func (p Page) Pinned() bool { return p.footer().pinCount.LoadAcquire() != 0 }

// nextLink returns the free-list link word in the page footer.
func (p Page) nextLink() *atomix.Uintptr { return &p.footer().next }
