// Package pool implements a fixed-capacity slot arena with peek-then-commit
// allocation and a FIFO wait list.
//
// Callers own the backing storage; the pool only hands out slot indices.
// A caller that cannot allocate registers itself as a Waiter and is woken,
// head first, when a slot is released.
package pool

import "github.com/pkg/errors"

// ErrExhausted is returned by Alloc when no slot may be handed to the caller.
var ErrExhausted = errors.New("pool exhausted")

// A Waiter is woken when a slot it is waiting for may have become available.
type Waiter interface {
	Wake()
}

// Handle addresses one slot. The generation guards against use of a slot
// that has been released and handed out again.
type Handle struct {
	Index int
	Gen   uint32
}

// Valid reports whether h was ever produced by a pool.
func (h Handle) Valid() bool { return h.Gen != 0 }

// Pool is a fixed set of slots. It is not safe for concurrent use.
type Pool struct {
	free    []int
	gen     []uint32
	inuse   []bool
	waiters []Waiter
}

// New returns a pool with n slots.
func New(n int) *Pool {
	p := &Pool{
		free:  make([]int, 0, n),
		gen:   make([]uint32, n),
		inuse: make([]bool, n),
	}
	for i := 0; i < n; i++ {
		p.free = append(p.free, i)
	}
	return p
}

// Cap returns the number of slots.
func (p *Pool) Cap() int { return len(p.gen) }

// Free returns the number of unallocated slots.
func (p *Pool) Free() int { return len(p.free) }

// Waiting returns the number of registered waiters.
func (p *Pool) Waiting() int { return len(p.waiters) }

// Peek reports whether w may allocate now. A slot is available to w only if
// one is free and w is at the head of the wait list (or the list is empty).
// On failure w is appended to the wait list if it is not already on it.
func (p *Pool) Peek(w Waiter) bool {
	if len(p.free) > 0 && (len(p.waiters) == 0 || p.waiters[0] == w) {
		return true
	}
	if w != nil && p.index(w) < 0 {
		p.waiters = append(p.waiters, w)
	}
	return false
}

// Alloc commits an allocation for w. It must follow a successful Peek.
func (p *Pool) Alloc(w Waiter) (Handle, error) {
	if len(p.free) == 0 || (len(p.waiters) > 0 && p.waiters[0] != w) {
		return Handle{}, ErrExhausted
	}
	if len(p.waiters) > 0 {
		p.waiters = p.waiters[1:]
	}
	i := p.free[0]
	p.free = p.free[1:]
	p.inuse[i] = true
	p.gen[i]++
	if p.gen[i] == 0 {
		p.gen[i] = 1
	}
	p.handoff()
	return Handle{Index: i, Gen: p.gen[i]}, nil
}

// Unpeek removes w from the wait list.
func (p *Pool) Unpeek(w Waiter) {
	i := p.index(w)
	if i < 0 {
		return
	}
	p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
	if i == 0 {
		p.handoff()
	}
}

// handoff wakes a new head waiter when slots are left over for it.
func (p *Pool) handoff() {
	if len(p.free) > 0 && len(p.waiters) > 0 {
		p.waiters[0].Wake()
	}
}

// Live reports whether h still refers to an allocated slot.
func (p *Pool) Live(h Handle) bool {
	if h.Index < 0 || h.Index >= len(p.gen) {
		return false
	}
	return p.inuse[h.Index] && p.gen[h.Index] == h.Gen
}

// Release returns the slot addressed by h and wakes the head waiter.
// Releasing a stale handle is a no-op.
func (p *Pool) Release(h Handle) bool {
	if !p.Live(h) {
		return false
	}
	p.inuse[h.Index] = false
	p.free = append(p.free, h.Index)
	if len(p.waiters) > 0 {
		p.waiters[0].Wake()
	}
	return true
}

func (p *Pool) index(w Waiter) int {
	for i, x := range p.waiters {
		if x == w {
			return i
		}
	}
	return -1
}
