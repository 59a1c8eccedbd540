// SPDX-License-Identifier: GPL-3.0-or-later

package nnti

// Alignment describes a rendezvous-transfer fragment split: a leading
// inline run, a middle run that travels as a real RDMA GET, and a
// trailing inline run — see spec §4.4.4.
type Alignment struct {
	// HeadLen is the number of leading bytes carried inline in the
	// command slot and copied directly out of the eager payload.
	HeadLen int

	// MiddleLen is the number of bytes that travel over the aligned
	// RDMA GET.
	MiddleLen int

	// TailLen is the number of trailing bytes carried inline.
	TailLen int
}

// ComputeAlignment splits a length-byte transfer starting at the
// initiator's (addr+offset) into inline head/tail fragments and an
// aligned RDMA middle fragment, per spec §4.4.4:
//
//	k = (align - (addr+off) mod align) mod align
//	extra = (length - k) mod align
//	middle = length - k - extra
//
// align must be a positive power of two dividing the fabric's configured
// GET alignment (default 4). The three fragment lengths always sum to
// length, so writing them back at their respective destination offsets
// reproduces the source region byte-for-byte.
func ComputeAlignment(addr, offset uint64, length int, align int) Alignment {
	if align <= 0 {
		align = 4
	}
	if length <= 0 {
		return Alignment{}
	}

	base := addr + offset
	k := int((uint64(align) - base%uint64(align)) % uint64(align))
	if k > length {
		k = length
	}

	remaining := length - k
	extra := remaining % align
	if extra > remaining {
		extra = remaining
	}
	middle := remaining - extra

	return Alignment{HeadLen: k, MiddleLen: middle, TailLen: extra}
}
