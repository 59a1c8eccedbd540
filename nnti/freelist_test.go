// SPDX-License-Identifier: GPL-3.0-or-later

package nnti

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFreelistReusesReturnedValues(t *testing.T) {
	allocs := 0
	fl := NewFreelist(2, func() *int {
		allocs++
		v := 0
		return &v
	})

	a := fl.Get()
	assert.Equal(t, 1, allocs)

	fl.Put(a)
	b := fl.Get()
	assert.Same(t, a, b)
	assert.Equal(t, 1, allocs, "reused from the freelist, no new allocation")
}

func TestFreelistDiscardsWhenFull(t *testing.T) {
	fl := NewFreelist(1, func() *int { v := 0; return &v })
	a, b := 1, 2
	fl.Put(&a)
	fl.Put(&b) // list already at bound 1; discarded

	assert.Equal(t, 1, fl.Len())
}

func TestFreelistAllocatesOnExhaustion(t *testing.T) {
	allocs := 0
	fl := NewFreelist(4, func() *int {
		allocs++
		v := 0
		return &v
	})
	fl.Get()
	fl.Get()
	assert.Equal(t, 2, allocs)
}
