// SPDX-License-Identifier: GPL-3.0-or-later

package nnti

import "sync"

// BufferMap is hashed by payload base pointer (spec §4.4.6), used by
// dt_unpack to deduplicate a locally-registered buffer against an
// arriving wire description: if the unpacked handle's base address
// matches a local registration, the local object is returned and the
// freshly unpacked one discarded.
type BufferMap struct {
	mu sync.RWMutex
	m  map[uint64]*Buffer
}

// NewBufferMap returns an empty [BufferMap].
func NewBufferMap() *BufferMap {
	return &BufferMap{m: make(map[uint64]*Buffer)}
}

// Register indexes buf by its base address.
func (bm *BufferMap) Register(buf *Buffer) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.m[buf.BaseAddr] = buf
}

// Unregister removes the registration for baseAddr.
func (bm *BufferMap) Unregister(baseAddr uint64) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	delete(bm.m, baseAddr)
}

// Lookup returns the locally-registered buffer for baseAddr, if any.
func (bm *BufferMap) Lookup(baseAddr uint64) (*Buffer, bool) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	b, ok := bm.m[baseAddr]
	return b, ok
}

// Resolve deduplicates an unpacked buffer handle against the local
// registry: if a local buffer already exists at unpacked.BaseAddr, it is
// returned in place of unpacked.
func (bm *BufferMap) Resolve(unpacked *Buffer) *Buffer {
	if local, ok := bm.Lookup(unpacked.BaseAddr); ok {
		return local
	}
	return unpacked
}
