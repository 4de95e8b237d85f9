// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package page

import (
	"testing"
	"unsafe"
)

func TestPageAddrRoundTrip(t *testing.T) {
	s := newSource()
	p, ok := s.allocatePage(Blocking)
	if !ok {
		t.Fatal("allocatePage: got false, want true")
	}

	addr := p.Addr()
	if addr == 0 {
		t.Fatal("Addr: got 0")
	}
	if addr%Alignment != 0 {
		t.Fatalf("Addr: %x not aligned to %d", addr, Alignment)
	}

	p2 := FromAddr(addr)
	if p2.Base() != p.Base() {
		t.Fatalf("FromAddr round trip: got %p, want %p", p2.Base(), p.Base())
	}
}

func TestPageBytesLength(t *testing.T) {
	s := newSource()
	p, ok := s.allocatePage(Blocking)
	if !ok {
		t.Fatal("allocatePage: got false")
	}
	if got := len(p.Bytes()); got != UsableSize {
		t.Fatalf("len(Bytes()): got %d, want %d", got, UsableSize)
	}
}

func TestPagePin(t *testing.T) {
	s := newSource()
	p, ok := s.allocatePage(Blocking)
	if !ok {
		t.Fatal("allocatePage: got false")
	}

	if p.Pinned() {
		t.Fatal("fresh page: Pinned() = true, want false")
	}
	p.Pin()
	if !p.Pinned() {
		t.Fatal("after Pin(): Pinned() = false, want true")
	}
	p.Pin()
	p.Unpin()
	if !p.Pinned() {
		t.Fatal("one Pin() still outstanding: Pinned() = false, want true")
	}
	p.Unpin()
	if p.Pinned() {
		t.Fatal("after matching Unpin(): Pinned() = true, want false")
	}
}

func TestContainingPageAndSamePage(t *testing.T) {
	s := newSource()
	p, ok := s.allocatePage(Blocking)
	if !ok {
		t.Fatal("allocatePage: got false")
	}

	mid := unsafe.Add(p.Base(), UsableSize/2)
	if got := ContainingPage(mid); got.Base() != p.Base() {
		t.Fatalf("ContainingPage: got %p, want %p", got.Base(), p.Base())
	}
	if !SamePage(p.Base(), mid) {
		t.Fatal("SamePage(base, mid): got false, want true")
	}

	q, ok := s.allocatePage(Blocking)
	if !ok {
		t.Fatal("allocatePage: got false")
	}
	if SamePage(p.Base(), q.Base()) {
		t.Fatal("SamePage(distinct pages): got true, want false")
	}
}
