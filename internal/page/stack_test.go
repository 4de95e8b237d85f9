// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package page

import (
	"sync"
	"testing"
)

func TestFreeStackPushPopLIFO(t *testing.T) {
	s := newSource()
	var fs freeStack

	var pages []Page
	for i := 0; i < 4; i++ {
		p, ok := s.allocatePage(Blocking)
		if !ok {
			t.Fatalf("allocatePage(%d): got false", i)
		}
		pages = append(pages, p)
		fs.push(p)
	}

	for i := len(pages) - 1; i >= 0; i-- {
		got, ok := fs.pop()
		if !ok {
			t.Fatalf("pop(): got false at depth %d", i)
		}
		if got.Base() != pages[i].Base() {
			t.Fatalf("pop(): got %p, want %p (LIFO order)", got.Base(), pages[i].Base())
		}
	}

	if _, ok := fs.pop(); ok {
		t.Fatal("pop() on empty stack: got true, want false")
	}
}

func TestFreeStackPinnedTopBlocksPop(t *testing.T) {
	s := newSource()
	var fs freeStack

	p, ok := s.allocatePage(Blocking)
	if !ok {
		t.Fatal("allocatePage: got false")
	}
	fs.push(p)
	p.Pin()

	if _, ok := fs.pop(); ok {
		t.Fatal("pop() with pinned top: got true, want false")
	}

	p.Unpin()
	got, ok := fs.pop()
	if !ok {
		t.Fatal("pop() after unpin: got false, want true")
	}
	if got.Base() != p.Base() {
		t.Fatalf("pop() after unpin: got %p, want %p", got.Base(), p.Base())
	}
}

func TestFreeStackConcurrent(t *testing.T) {
	s := newSource()
	var fs freeStack

	const n = 512
	pages := make([]Page, n)
	for i := range pages {
		p, ok := s.allocatePage(Blocking)
		if !ok {
			t.Fatalf("allocatePage(%d): got false", i)
		}
		pages[i] = p
	}

	var wg sync.WaitGroup
	for _, p := range pages {
		wg.Add(1)
		go func(p Page) {
			defer wg.Done()
			fs.push(p)
		}(p)
	}
	wg.Wait()

	seen := make(map[uintptr]bool, n)
	var mu sync.Mutex
	wg = sync.WaitGroup{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				p, ok := fs.pop()
				if !ok {
					return
				}
				mu.Lock()
				seen[p.Addr()] = true
				mu.Unlock()
				return
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("popped %d distinct pages, want %d", len(seen), n)
	}
}
