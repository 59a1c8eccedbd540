// SPDX-License-Identifier: GPL-3.0-or-later

package nnti

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferMapResolveDedupesAgainstLocal(t *testing.T) {
	bm := NewBufferMap()
	local := &Buffer{BaseAddr: 0x1000, Size: 64}
	bm.Register(local)

	unpacked := &Buffer{BaseAddr: 0x1000, Size: 64} // a fresh object decoded off the wire
	resolved := bm.Resolve(unpacked)
	assert.Same(t, local, resolved)
}

func TestBufferMapResolveFallsBackWhenUnregistered(t *testing.T) {
	bm := NewBufferMap()
	unpacked := &Buffer{BaseAddr: 0x2000}
	resolved := bm.Resolve(unpacked)
	assert.Same(t, unpacked, resolved)
}

func TestBufferMapUnregister(t *testing.T) {
	bm := NewBufferMap()
	buf := &Buffer{BaseAddr: 0x3000}
	bm.Register(buf)
	bm.Unregister(0x3000)

	_, ok := bm.Lookup(0x3000)
	assert.False(t, ok)
}
