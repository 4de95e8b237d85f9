// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtti

import (
	"bytes"
	"testing"
	"unsafe"
)

func TestOfMemoizes(t *testing.T) {
	a := Of[int]()
	b := Of[int]()
	if a != b {
		t.Fatal("Of[int]() returned distinct descriptors across calls")
	}

	c := Of[string]()
	if a == c {
		t.Fatal("Of[int]() and Of[string]() returned the same descriptor")
	}
}

func TestTypeSizeAlign(t *testing.T) {
	ty := Of[int64]()
	if ty.Size != unsafe.Sizeof(int64(0)) {
		t.Fatalf("Size: got %d, want %d", ty.Size, unsafe.Sizeof(int64(0)))
	}
	if ty.Align != unsafe.Alignof(int64(0)) {
		t.Fatalf("Align: got %d, want %d", ty.Align, unsafe.Alignof(int64(0)))
	}
}

func TestTypeCopyMoveDestroy(t *testing.T) {
	ty := Of[int]()

	src := 42
	var dst int

	ty.Copy(unsafe.Pointer(&dst), unsafe.Pointer(&src))
	if dst != 42 {
		t.Fatalf("Copy: dst = %d, want 42", dst)
	}
	if src != 42 {
		t.Fatalf("Copy: src mutated to %d, want 42", src)
	}

	var moved int
	ty.Move(unsafe.Pointer(&moved), unsafe.Pointer(&src))
	if moved != 42 {
		t.Fatalf("Move: dst = %d, want 42", moved)
	}
	if src != 0 {
		t.Fatalf("Move: src left at %d, want 0", src)
	}

	ty.Destroy(unsafe.Pointer(&moved))
	if moved != 0 {
		t.Fatalf("Destroy: value left at %d, want 0", moved)
	}
}

func TestTypeEqualAndHash(t *testing.T) {
	ty := Of[string]()

	a, b, c := "hello", "hello", "world"
	if !ty.Equal(unsafe.Pointer(&a), unsafe.Pointer(&b)) {
		t.Fatal("Equal(hello, hello): got false, want true")
	}
	if ty.Equal(unsafe.Pointer(&a), unsafe.Pointer(&c)) {
		t.Fatal("Equal(hello, world): got true, want false")
	}
	if ty.Hash(unsafe.Pointer(&a)) != ty.Hash(unsafe.Pointer(&b)) {
		t.Fatal("Hash(hello) != Hash(hello)")
	}
}

func TestTypeStream(t *testing.T) {
	ty := Of[int]()
	v := 7
	var buf bytes.Buffer
	if err := ty.Stream(&buf, unsafe.Pointer(&v)); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if buf.String() != "7" {
		t.Fatalf("Stream: got %q, want %q", buf.String(), "7")
	}
}

type point struct{ x, y int }

func TestTypeStruct(t *testing.T) {
	ty := Of[point]()

	a := point{1, 2}
	b := point{1, 2}
	c := point{3, 4}

	if !ty.Equal(unsafe.Pointer(&a), unsafe.Pointer(&b)) {
		t.Fatal("Equal(equal structs): got false, want true")
	}
	if ty.Equal(unsafe.Pointer(&a), unsafe.Pointer(&c)) {
		t.Fatal("Equal(distinct structs): got true, want false")
	}

	var dst point
	ty.Copy(unsafe.Pointer(&dst), unsafe.Pointer(&a))
	if dst != a {
		t.Fatalf("Copy: got %v, want %v", dst, a)
	}
}
