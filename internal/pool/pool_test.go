package pool

import "testing"

type testWaiter struct {
	name  string
	woken int
}

func (w *testWaiter) Wake() { w.woken++ }

func TestPeekAllocRelease(t *testing.T) {
	p := New(2)
	a := &testWaiter{name: "a"}

	if !p.Peek(a) {
		t.Fatalf("peek on empty pool: got false want true")
	}
	h1, err := p.Alloc(a)
	if err != nil {
		t.Fatalf("alloc: unexpected error: %v", err)
	}
	h2, err := p.Alloc(a)
	if err != nil {
		t.Fatalf("alloc: unexpected error: %v", err)
	}
	if h1.Index == h2.Index {
		t.Errorf("alloc returned the same slot twice: %d", h1.Index)
	}
	if got := p.Free(); got != 0 {
		t.Errorf("free: got %d want 0", got)
	}
	if _, err := p.Alloc(a); err != ErrExhausted {
		t.Errorf("alloc on full pool: got %v want ErrExhausted", err)
	}
	if !p.Release(h1) {
		t.Errorf("release of live handle: got false want true")
	}
	if p.Release(h1) {
		t.Errorf("double release: got true want false")
	}
	if got := p.Free(); got != 1 {
		t.Errorf("free after release: got %d want 1", got)
	}
}

func TestWaitListFIFO(t *testing.T) {
	p := New(1)
	owner := &testWaiter{name: "owner"}
	a := &testWaiter{name: "a"}
	b := &testWaiter{name: "b"}

	h, _ := p.Alloc(owner)

	if p.Peek(a) {
		t.Fatalf("peek a on full pool: got true want false")
	}
	if p.Peek(b) {
		t.Fatalf("peek b on full pool: got true want false")
	}
	// Peeking twice must not register twice.
	p.Peek(a)
	if got := p.Waiting(); got != 2 {
		t.Fatalf("waiting: got %d want 2", got)
	}

	p.Release(h)
	if a.woken != 1 || b.woken != 0 {
		t.Errorf("wake order: a=%d b=%d want a=1 b=0", a.woken, b.woken)
	}
	// b is not at the head, so it may not take the free slot.
	if p.Peek(b) {
		t.Errorf("peek b while a heads the list: got true want false")
	}
	if !p.Peek(a) {
		t.Fatalf("peek a at head: got false want true")
	}
	h, err := p.Alloc(a)
	if err != nil {
		t.Fatalf("alloc a: %v", err)
	}
	p.Release(h)
	if b.woken != 1 {
		t.Errorf("b woken: got %d want 1", b.woken)
	}
}

func TestUnpeek(t *testing.T) {
	p := New(1)
	owner := &testWaiter{}
	a := &testWaiter{}
	h, _ := p.Alloc(owner)
	p.Peek(a)
	p.Unpeek(a)
	if got := p.Waiting(); got != 0 {
		t.Errorf("waiting after unpeek: got %d want 0", got)
	}
	p.Release(h)
	if a.woken != 0 {
		t.Errorf("unpeeked waiter woken %d times", a.woken)
	}
}

func TestHandoff(t *testing.T) {
	p := New(2)
	owner := &testWaiter{}
	a := &testWaiter{}
	b := &testWaiter{}
	h1, _ := p.Alloc(owner)
	h2, _ := p.Alloc(owner)
	p.Peek(a)
	p.Peek(b)

	p.Release(h1)
	p.Release(h2)
	if a.woken != 2 || b.woken != 0 {
		t.Fatalf("before alloc: a=%d b=%d want a=2 b=0", a.woken, b.woken)
	}
	if _, err := p.Alloc(a); err != nil {
		t.Fatalf("alloc a: %v", err)
	}
	if b.woken != 1 {
		t.Errorf("b woken after a took one of two slots: got %d want 1", b.woken)
	}

	// A head that gives up passes the turn on.
	c := &testWaiter{}
	d := &testWaiter{}
	q := New(1)
	q.Peek(c)
	h, _ := q.Alloc(c)
	q.Peek(c)
	q.Peek(d)
	q.Release(h)
	q.Unpeek(c)
	if d.woken != 1 {
		t.Errorf("d woken after head unpeeked: got %d want 1", d.woken)
	}
}

func TestStaleHandle(t *testing.T) {
	p := New(1)
	w := &testWaiter{}
	h1, _ := p.Alloc(w)
	p.Release(h1)
	h2, _ := p.Alloc(w)
	if h1.Index != h2.Index {
		t.Fatalf("expected slot reuse, got %d and %d", h1.Index, h2.Index)
	}
	if p.Live(h1) {
		t.Errorf("stale handle reported live")
	}
	if !p.Live(h2) {
		t.Errorf("current handle reported dead")
	}
	if p.Release(h1) {
		t.Errorf("release of stale handle succeeded")
	}
}
