// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package funcqueue_test

import (
	"testing"

	"code.hybscloud.com/density/funcqueue"
)

// TestQueue0RoundTrip checks a no-argument deferred call round-trips
// its captured result.
func TestQueue0RoundTrip(t *testing.T) {
	fq := funcqueue.New0[int]()
	if err := fq.Push(func() int { return 42 }); err != nil {
		t.Fatalf("Push: %v", err)
	}
	got, ok := fq.TryCall()
	if !ok {
		t.Fatal("TryCall: got false, want true")
	}
	if got != 42 {
		t.Fatalf("TryCall: got %d, want 42", got)
	}
}

// TestQueue1AppliesArgAtCallTime checks the argument is supplied when
// the call runs, not when it is pushed.
func TestQueue1AppliesArgAtCallTime(t *testing.T) {
	fq := funcqueue.New1[int, int]()
	if err := fq.Push(func(x int) int { return x * 2 }); err != nil {
		t.Fatalf("Push: %v", err)
	}
	got, ok := fq.TryCall(21)
	if !ok {
		t.Fatal("TryCall: got false, want true")
	}
	if got != 42 {
		t.Fatalf("TryCall(21): got %d, want 42", got)
	}
}

// TestQueue2TwoArgs checks a two-argument deferred call.
func TestQueue2TwoArgs(t *testing.T) {
	fq := funcqueue.New2[int, int, int]()
	if err := fq.Push(func(a, b int) int { return a + b }); err != nil {
		t.Fatalf("Push: %v", err)
	}
	got, ok := fq.TryCall(19, 23)
	if !ok {
		t.Fatal("TryCall: got false, want true")
	}
	if got != 42 {
		t.Fatalf("TryCall(19, 23): got %d, want 42", got)
	}
}

// TestQueue0DrainsTenThousand pushes and drains a large batch of
// deferred calls in FIFO order, a scale meant to force at least one
// page-chain growth.
func TestQueue0DrainsTenThousand(t *testing.T) {
	fq := funcqueue.New0[int]()
	for i := range 10000 {
		i := i
		if err := fq.Push(func() int { return i }); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	for i := range 10000 {
		got, ok := fq.TryCall()
		if !ok {
			t.Fatalf("TryCall(%d): got false, want true", i)
		}
		if got != i {
			t.Fatalf("TryCall(%d): got %d, want %d", i, got, i)
		}
	}
	if !fq.Empty() {
		t.Fatal("Empty: got false, want true")
	}
}

// TestQueue0TryCallOnEmptyFails checks TryCall reports false rather
// than invoking anything when nothing is queued.
func TestQueue0TryCallOnEmptyFails(t *testing.T) {
	fq := funcqueue.New0[int]()
	if _, ok := fq.TryCall(); ok {
		t.Fatal("TryCall on empty queue: got true, want false")
	}
}
