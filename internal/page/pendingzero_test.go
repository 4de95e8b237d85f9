// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package page

import "testing"

func TestPendingZeroStageTakeFIFO(t *testing.T) {
	s := newSource()
	q := newPendingZero()

	var staged []Page
	for i := 0; i < 8; i++ {
		p, ok := s.allocatePage(Blocking)
		if !ok {
			t.Fatalf("allocatePage(%d): got false", i)
		}
		if !q.stage(p) {
			t.Fatalf("stage(%d): got false", i)
		}
		staged = append(staged, p)
	}

	for i, want := range staged {
		got, ok := q.take()
		if !ok {
			t.Fatalf("take(%d): got false", i)
		}
		if got.Base() != want.Base() {
			t.Fatalf("take(%d): got %p, want %p", i, got.Base(), want.Base())
		}
	}

	if _, ok := q.take(); ok {
		t.Fatal("take() on empty staging queue: got true, want false")
	}
}

func TestPendingZeroTryDrainZeroesAndExcludesConcurrentDrainers(t *testing.T) {
	s := newSource()
	q := newPendingZero()

	const n = 16
	for i := 0; i < n; i++ {
		p, ok := s.allocatePage(Blocking)
		if !ok {
			t.Fatalf("allocatePage(%d): got false", i)
		}
		for j := range p.Bytes() {
			p.Bytes()[j] = 0xff
		}
		if !q.stage(p) {
			t.Fatalf("stage(%d): got false", i)
		}
	}

	var drained []Page
	ok := q.tryDrain(func(p Page) { drained = append(drained, p) })
	if !ok {
		t.Fatal("tryDrain: got false, want true (no concurrent drainer)")
	}
	if len(drained) != n {
		t.Fatalf("drained %d pages, want %d", len(drained), n)
	}
	for i, p := range drained {
		for j, b := range p.Bytes() {
			if b != 0 {
				t.Fatalf("drained page %d byte %d: got %#x, want 0", i, j, b)
			}
		}
	}
}
