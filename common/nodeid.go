// SPDX-License-Identifier: GPL-3.0-or-later

// Package common holds the data types shared across every faodel-go
// component: node identifiers, resource URLs, and directory information.
// These mirror faodel-common in the original implementation.
package common

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// NodeID uniquely names a process on the network.
//
// It is derived deterministically from the process's Whookie listen
// address and TCP port (see [NewNodeID]), so any two processes that agree
// on address and port compute the same id without coordination.
type NodeID uint64

// UnspecifiedNodeID is the distinguished "no node" sentinel.
const UnspecifiedNodeID NodeID = 0

// NewNodeID derives a [NodeID] from a Whookie listen address and port.
//
// The derivation is a 64-bit FNV-1a over the address bytes, a ':' byte,
// and the port as two big-endian bytes (not its decimal text), matching
// invariant 1 of the data model: any well-formed node's id equals
// hash(address, port).
func NewNodeID(address string, port uint16) NodeID {
	h := fnv.New64a()
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, port)
	_, _ = h.Write([]byte(address))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write(buf)
	id := NodeID(h.Sum64())
	if id == UnspecifiedNodeID {
		// Vanishingly unlikely, but the sentinel must stay reserved.
		id = NodeID(1)
	}
	return id
}

// IsUnspecified reports whether n is the unspecified sentinel.
func (n NodeID) IsUnspecified() bool {
	return n == UnspecifiedNodeID
}

// String renders n as a fixed-width hex value, e.g. "0x000000001234abcd".
func (n NodeID) String() string {
	return fmt.Sprintf("0x%016x", uint64(n))
}
