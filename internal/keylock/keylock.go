// Package keylock provides striped mutexes keyed by string.
//
// Two keys that hash to the same stripe share a mutex, so holders must never
// take a second lock from the same Locks while holding one.
package keylock

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultStripes is the stripe count used when New is given n <= 0.
const DefaultStripes = 256

// Locks is a fixed set of mutexes indexed by key hash.
type Locks struct {
	stripes []sync.Mutex
	mask    uint64
}

// New returns Locks with n stripes rounded up to a power of two.
func New(n int) *Locks {
	if n <= 0 {
		n = DefaultStripes
	}
	size := 1
	for size < n {
		size <<= 1
	}
	return &Locks{
		stripes: make([]sync.Mutex, size),
		mask:    uint64(size - 1),
	}
}

// Lock acquires the stripe for key and returns its release func.
func (l *Locks) Lock(key string) func() {
	m := &l.stripes[xxhash.Sum64String(key)&l.mask]
	m.Lock()
	return m.Unlock
}

// Len returns the stripe count.
func (l *Locks) Len() int { return len(l.stripes) }
