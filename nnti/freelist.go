// SPDX-License-Identifier: GPL-3.0-or-later

package nnti

import "sync"

// DefaultFreelistSize is the default bound for the Transport's event
// freelist ("<fabric>.freelist.size"); nnti keeps no freelists for ops.
const DefaultFreelistSize = 128

// Freelist is a bounded, mutex-protected stack of reusable *T values.
// Exhaustion (an empty list on Get) allocates fresh via new; returning a
// value to a full list discards it instead of growing unbounded
// (spec §4.4.7: "a push to a full list deletes the object").
type Freelist[T any] struct {
	mu    sync.Mutex
	stack []*T
	max   int
	new   func() *T
}

// NewFreelist creates a freelist bounded at max, using newFn to allocate
// on exhaustion.
func NewFreelist[T any](max int, newFn func() *T) *Freelist[T] {
	return &Freelist[T]{stack: make([]*T, 0, max), max: max, new: newFn}
}

// Get pops a reusable value, allocating a fresh one if the list is empty.
func (f *Freelist[T]) Get() *T {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := len(f.stack); n > 0 {
		v := f.stack[n-1]
		f.stack = f.stack[:n-1]
		return v
	}
	return f.new()
}

// Put returns v to the list, discarding it if the list is already at its
// bound.
func (f *Freelist[T]) Put(v *T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.stack) >= f.max {
		return
	}
	f.stack = append(f.stack, v)
}

// Len reports how many values are currently held (for introspection).
func (f *Freelist[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stack)
}
