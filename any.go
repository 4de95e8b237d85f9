// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package density

import (
	"reflect"
	"unsafe"

	"code.hybscloud.com/density/internal/rtti"
)

// Any is a single heap-erased value, ported from any.h: a runtime type
// plus a pointer to a value of that type, outside of any queue. It is
// the building block density's queue slots generalize into a FIFO of;
// on its own it is useful for passing one heterogeneous value through
// an API that cannot be made generic, e.g. a map keyed by some other
// identifier whose values are of varying concrete type.
//
// The zero Any is empty. Anys are not safe for concurrent use without
// external synchronization.
type Any struct {
	typ *rtti.Type
	ptr unsafe.Pointer
}

// MakeAny erases value's type into an Any, heap-allocating a copy.
func MakeAny[T any](value T) Any {
	dst := new(T)
	*dst = value
	return Any{typ: rtti.Of[T](), ptr: unsafe.Pointer(dst)}
}

// Empty reports whether a holds no value.
func (a Any) Empty() bool { return a.ptr == nil }

// Type returns a's runtime type descriptor, or nil if a is empty.
func (a Any) Type() *rtti.Type { return a.typ }

// Ptr returns a pointer to a's underlying value, or nil if a is
// empty.
func (a Any) Ptr() unsafe.Pointer { return a.ptr }

// Copy returns a copy of a in newly allocated storage. The value is
// copied by assignment, so memory it references (through pointers,
// slices or maps) is shared with a.
func (a Any) Copy() Any {
	if a.ptr == nil {
		return Any{}
	}
	dst := reflect.New(a.typ.ReflectType()).UnsafePointer()
	a.typ.Copy(dst, a.ptr)
	return Any{typ: a.typ, ptr: dst}
}

// Close destroys a's value, if any, leaving a empty. It is safe to
// call Close more than once.
func (a *Any) Close() {
	if a.ptr == nil {
		return
	}
	a.typ.Destroy(a.ptr)
	a.ptr = nil
	a.typ = nil
}

// AnyAs retrieves a's value as T, reporting false if a is empty or
// holds a different concrete type.
func AnyAs[T any](a Any) (T, bool) {
	var zero T
	if a.ptr == nil || a.typ != rtti.Of[T]() {
		return zero, false
	}
	return *(*T)(a.ptr), true
}
