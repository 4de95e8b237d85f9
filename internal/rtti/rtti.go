// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rtti implements the queue's runtime type descriptor: the Go
// stand-in for the feature table generated by the original density
// library's C++ template instantiation for every element type a queue
// is asked to hold.
//
// Go has no per-instantiation codegen at the package level, so a
// [Type] is built lazily the first time [Of] sees a given
// reflect.Type and is cached for the process lifetime in a sync.Map.
// The closures captured at build time (Destroy, Move, Copy, Hash,
// Equal, Stream) are the Go equivalent of the C++ feature table's
// function pointers, each one specialized by the compiler for its T
// at the Of[T] call site.
package rtti

import (
	"fmt"
	"io"
	"reflect"
	"sync"
	"unsafe"
)

// Type is the erased description of one concrete element type,
// analogous to density::runtime_type<COMMON_ANCESTOR>.
type Type struct {
	Size  uintptr
	Align uintptr

	// Destroy runs T's destructor-equivalent over the value at elem.
	// For Go types this only matters for values holding resources that
	// must be released eagerly (e.g. an embedded sync.Mutex would be
	// meaningless to "destroy"); for ordinary data types it clears the
	// memory so the GC does not keep large graphs alive through queue
	// pages that have already been recycled.
	Destroy func(elem unsafe.Pointer)

	// Move transfers the value at src to dst and leaves src as if
	// freshly destroyed.
	Move func(dst, src unsafe.Pointer)

	// Copy duplicates the value at src into dst without altering src.
	Copy func(dst, src unsafe.Pointer)

	// Hash returns a hash of the value at elem.
	Hash func(elem unsafe.Pointer) uint64

	// Equal reports whether the values at a and b are equal.
	Equal func(a, b unsafe.Pointer) bool

	// Stream writes a human-readable representation of the value at
	// elem to w, mirroring density::runtime_type's optional stream
	// feature.
	Stream func(w io.Writer, elem unsafe.Pointer) error

	reflectType reflect.Type
}

// ReflectType returns the reflect.Type this descriptor was built from.
func (t *Type) ReflectType() reflect.Type { return t.reflectType }

var registry sync.Map // reflect.Type -> *Type

// Of returns the runtime type descriptor for T, building and caching
// it on first use.
func Of[T any]() *Type {
	var zero T
	rt := reflect.TypeOf(zero)
	if rt == nil {
		// T is an interface type instantiated with a nil value; reflect
		// cannot describe it generically, so fall back to a key that is
		// at least stable per instantiation of Of.
		rt = reflect.TypeOf((*T)(nil)).Elem()
	}

	if v, ok := registry.Load(rt); ok {
		return v.(*Type)
	}

	t := build[T](rt)
	actual, _ := registry.LoadOrStore(rt, t)
	return actual.(*Type)
}

func build[T any](rt reflect.Type) *Type {
	var zero T
	t := &Type{
		Size:        unsafe.Sizeof(zero),
		Align:       unsafe.Alignof(zero),
		reflectType: rt,
	}
	t.Destroy = func(elem unsafe.Pointer) {
		*(*T)(elem) = zero
	}
	t.Move = func(dst, src unsafe.Pointer) {
		*(*T)(dst) = *(*T)(src)
		*(*T)(src) = zero
	}
	t.Copy = func(dst, src unsafe.Pointer) {
		*(*T)(dst) = *(*T)(src)
	}
	t.Hash = func(elem unsafe.Pointer) uint64 {
		return hashValue(*(*T)(elem))
	}
	t.Equal = func(a, b unsafe.Pointer) bool {
		return equalValue(*(*T)(a), *(*T)(b))
	}
	t.Stream = func(w io.Writer, elem unsafe.Pointer) error {
		_, err := fmt.Fprintf(w, "%v", *(*T)(elem))
		return err
	}
	return t
}

// hashValue and equalValue accept any T, comparable or not, because
// density must also hold non-comparable element types (slices, maps,
// funcs). Each uses a Hash or Equal method on T when there is one;
// otherwise hashValue hashes T's %+v formatting, and equalValue
// compares with == when the values are comparable and with
// reflect.DeepEqual when they are not.
func hashValue[T any](v T) uint64 {
	if h, ok := any(v).(interface{ Hash() uint64 }); ok {
		return h.Hash()
	}
	return fnv64a(fmt.Sprintf("%+v", v))
}

func equalValue[T any](a, b T) bool {
	if ea, ok := any(a).(interface{ Equal(T) bool }); ok {
		return ea.Equal(b)
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !ra.IsValid() || !rb.IsValid() {
		return ra.IsValid() == rb.IsValid()
	}
	if ra.Comparable() && rb.Comparable() {
		return ra.Equal(rb)
	}
	return reflect.DeepEqual(a, b)
}

func fnv64a(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
