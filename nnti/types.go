// SPDX-License-Identifier: GPL-3.0-or-later

package nnti

import (
	"fmt"

	"github.com/sandialabs/faodel-go/common"
)

// OpCode selects a [WorkRequest]'s operation.
type OpCode int

const (
	OpSend OpCode = iota
	OpPut
	OpGet
	OpAtomicFOP
	OpAtomicCSwap
)

// WID identifies one in-flight op, unique within a transport instance.
type WID uint64

// Peer is a connected remote endpoint (spec §4.4.1's connect() result).
type Peer struct {
	NodeID common.NodeID
	URL    string
	connID uint32 // connection_vector index
}

// Buffer is a registered or allocated memory region: an addressable,
// network-visible handle with a stable "remote key" until freed.
type Buffer struct {
	BaseAddr uint64
	Size     uint64
	Flags    BufferFlags
	eq       *EventQueue

	// data is the actual backing storage: owned (zero-filled, from
	// [Transport.Alloc]) or caller-supplied (wrapped by reference, from
	// [Transport.RegisterMemory]). Put/Get/atomic ops read and write it
	// directly; an unpacked-off-the-wire handle (before [BufferMap.Resolve]
	// substitutes the local registration) has nil data.
	data []byte
}

// BufferFlags mirrors the alloc/register_memory flag set (read/write/
// atomic visibility controls in the original; nnti treats them as opaque
// bits threaded through unchanged).
type BufferFlags uint32

const (
	BufferReadable BufferFlags = 1 << iota
	BufferWritable
	BufferAtomic
)

// WorkRequest describes one operation to submit: which op, against which
// peer/buffers, and how much data.
type WorkRequest struct {
	Op           OpCode
	Peer         *Peer
	LocalBuffer  *Buffer
	RemoteBuffer *Buffer
	LocalOffset  uint64
	RemoteOffset uint64
	Length       uint64

	// Data carries the actual eager payload bytes to send, for callers
	// (e.g. opbox op replies) that have an application message rather
	// than a registered RDMA buffer. When set it takes precedence over
	// LocalBuffer, and Length defaults to len(Data) if left zero.
	Data []byte

	// OpID, when nonzero, is written verbatim into the wire slot's
	// op_id field instead of an auto-generated WID-derived one. OpBox
	// uses this to address a message at a specific registered op (spec
	// §4.5's new-target-op path reads the wire op_id as a registry id,
	// not a WID).
	OpID uint32

	// DstMailbox, when nonzero, is written into the wire slot's
	// src_op_id field — OpBox's dst_mailbox (spec §4.5) routing an
	// update to an already-active op instead of creating a new one.
	DstMailbox uint32

	// Operand1/Operand2 carry the 8-byte operands for atomic_fop (1 used)
	// and atomic_cswap (both used: compare, swap).
	Operand1 uint64
	Operand2 uint64
}

// EventType classifies an [Event] delivered off an [EventQueue].
type EventType int

const (
	EventSendComplete EventType = iota
	EventRecvComplete
	EventUnexpected
	EventRDMAComplete
	EventAtomicComplete
	EventInterrupt
	EventError
)

// Event is one completion delivered to user code or to the progress
// loop's op_vector dispatch (spec §4.4.5).
type Event struct {
	Type   EventType
	WID    WID
	Peer   *Peer
	Buffer *Buffer
	Offset uint64
	Length uint64
	Result uint64 // atomic_fop/atomic_cswap's pre-update value
	Err    error
}

// EventQueueFlags selects event-queue behavior (spec §4.4.1's eq_create
// flags⊆{unexpected,lockless}).
type EventQueueFlags uint32

const (
	EQUnexpected EventQueueFlags = 1 << iota
	EQLockless
)

// EventQueue is a bounded, concurrent-safe queue of completion events,
// backed by a single buffered channel. The EQLockless flag is stored but
// does not change behavior: every queue uses the same channel and no
// extra mutex, since Go's channels are already safe for concurrent use.
type EventQueue struct {
	ch       chan Event
	flags    EventQueueFlags
	callback func(Event)
}

// NewEventQueue creates a queue of the given capacity and flags. If cb is
// non-nil, it runs synchronously from [EventQueue.Push] in addition to
// buffering the event (spec §4.4.1's "[cb,ctx]" optional callback arg).
func NewEventQueue(size int, flags EventQueueFlags, cb func(Event)) *EventQueue {
	return &EventQueue{ch: make(chan Event, size), flags: flags, callback: cb}
}

// Push enqueues ev, invoking the optional callback first. Push never
// blocks: a full queue drops the event's buffering (the callback, if
// any, still runs), since a queue sized per spec's Config is expected to
// drain faster than the fabric can fill it and EventQueue is event
// *delivery*, not a backpressure mechanism.
func (eq *EventQueue) Push(ev Event) {
	if eq.callback != nil {
		eq.callback(ev)
	}
	select {
	case eq.ch <- ev:
	default:
	}
}

// Wait blocks until an event is available or done is closed, implementing
// the "interrupt() unblocks eq_wait" contract of spec §4.4.1/§4.4.5:
// closing done or pushing an [EventInterrupt] both return promptly.
func (eq *EventQueue) Wait(done <-chan struct{}) (Event, bool) {
	select {
	case ev := <-eq.ch:
		return ev, true
	case <-done:
		return Event{}, false
	}
}

// String renders p for logging.
func (p *Peer) String() string {
	return fmt.Sprintf("peer{node=%s url=%s}", p.NodeID, p.URL)
}
