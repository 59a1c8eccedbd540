// SPDX-License-Identifier: GPL-3.0-or-later

package nnti

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/sandialabs/faodel-go/internal/spanid"
)

// Alloc creates and registers a new size-byte buffer (spec §4.4.1's
// alloc()): the returned [*Buffer] owns freshly zeroed backing storage,
// reachable by peers as a Put/Get/atomic target via its BaseAddr.
func (t *Transport) Alloc(size uint64, flags BufferFlags) (*Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("nnti: alloc: size must be > 0")
	}
	buf := &Buffer{BaseAddr: t.nextBaseAddr(), Size: size, Flags: flags, data: make([]byte, size)}
	t.buffers.Register(buf)
	return buf, nil
}

// RegisterMemory wraps an already-allocated, caller-owned byte slice as
// a [*Buffer] (spec §4.4.1's register_memory()): unlike Alloc, writes
// through the returned handle land directly in data.
func (t *Transport) RegisterMemory(data []byte, flags BufferFlags) (*Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("nnti: register_memory: empty buffer")
	}
	buf := &Buffer{BaseAddr: t.nextBaseAddr(), Size: uint64(len(data)), Flags: flags, data: data}
	t.buffers.Register(buf)
	return buf, nil
}

// UnregisterMemory removes buf's local registration (spec §4.4.1's
// unregister_memory()) without releasing its caller-owned backing
// storage.
func (t *Transport) UnregisterMemory(buf *Buffer) error {
	if buf == nil {
		return fmt.Errorf("nnti: unregister_memory: nil buffer")
	}
	t.buffers.Unregister(buf.BaseAddr)
	return nil
}

// Free unregisters buf and releases the backing storage Alloc gave it
// (spec §4.4.1's free()).
func (t *Transport) Free(buf *Buffer) error {
	if buf == nil {
		return fmt.Errorf("nnti: free: nil buffer")
	}
	t.buffers.Unregister(buf.BaseAddr)
	buf.data = nil
	return nil
}

func (t *Transport) nextBaseAddr() uint64 {
	return atomic.AddUint64(&t.baseAddrCounter, 1)
}

// PackHandle serializes buf into the wire form carried in a command
// slot's InitiatorHandle field.
func PackHandle(buf *Buffer) []byte {
	if buf == nil {
		return nil
	}
	out := make([]byte, 20)
	binary.LittleEndian.PutUint64(out[0:8], buf.BaseAddr)
	binary.LittleEndian.PutUint64(out[8:16], buf.Size)
	binary.LittleEndian.PutUint32(out[16:20], uint32(buf.Flags))
	return out
}

// UnpackHandle decodes a wire-form buffer handle produced by
// [PackHandle]. The result has no backing storage until resolved
// against a local registration via [BufferMap.Resolve].
func UnpackHandle(wire []byte) (*Buffer, error) {
	if len(wire) < 20 {
		return nil, fmt.Errorf("nnti: unpack handle: short buffer: %d bytes", len(wire))
	}
	return &Buffer{
		BaseAddr: binary.LittleEndian.Uint64(wire[0:8]),
		Size:     binary.LittleEndian.Uint64(wire[8:16]),
		Flags:    BufferFlags(binary.LittleEndian.Uint32(wire[16:20])),
	}, nil
}

// DTUnpack unpacks a wire handle and resolves it against the local
// buffer registry (spec §4.4.1's dt_unpack()): if the handle names a
// buffer this transport already has registered, that registration
// (with its real backing storage) is returned instead of the bare
// unpacked shell.
func (t *Transport) DTUnpack(wire []byte) (*Buffer, error) {
	unpacked, err := UnpackHandle(wire)
	if err != nil {
		return nil, err
	}
	return t.buffers.Resolve(unpacked), nil
}

// EQCreate creates an event queue of the given size/flags, optionally
// invoking cb synchronously on every push (spec §4.4.1's eq_create()).
func (t *Transport) EQCreate(size int, flags EventQueueFlags, cb func(Event)) *EventQueue {
	return NewEventQueue(size, flags, cb)
}

// NextUnexpected returns the next queued unexpected arrival for callers
// that poll instead of registering a callback via
// [Transport.BindUnexpectedHandler] (spec §4.4.1's next_unexpected()).
// Only messages that arrived while no handler was bound are queued
// here; once a handler is bound, arrivals go straight to it instead.
func (t *Transport) NextUnexpected() (CommandSlot, bool) {
	select {
	case slot := <-t.unexpectedCh:
		return slot, true
	default:
		return CommandSlot{}, false
	}
}

func (t *Transport) pushUnexpectedQueue(slot CommandSlot) {
	select {
	case t.unexpectedCh <- slot:
	default:
		t.mu.Lock()
		t.dropped++
		t.mu.Unlock()
	}
}

// CancelAll drops every currently tracked in-flight Get/atomic
// completion (spec §4.4.1's cancelall()): a reply that was already on
// the wire when CancelAll ran may still arrive, but it will find
// nothing to complete.
func (t *Transport) CancelAll() {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	for id := range t.pendingGetCompletions {
		delete(t.pendingGetCompletions, id)
	}
	for id := range t.pendingAtomics {
		delete(t.pendingAtomics, id)
	}
	t.logger.Debug("nnti.cancel_all")
}

// completeTarget finishes an eager (or already-assembled) inbound
// message: for an expected message it copies the payload into the
// registered destination buffer and posts a recv-complete event; for
// an unexpected one (or an expected one naming a buffer this transport
// no longer has registered) it is handed to the unexpected path.
func (t *Transport) completeTarget(c *connection, slot CommandSlot, expected bool) {
	if expected {
		if buf, ok := t.buffers.Lookup(slot.TargetBaseAddr); ok {
			n := copy(buf.data[slot.TargetOffset:], slot.Payload)
			t.eqRecv.Push(Event{Type: EventRecvComplete, Peer: c.peer, Buffer: buf, Offset: slot.TargetOffset, Length: uint64(n)})
			return
		}
	}
	t.deliverUnexpected(c, slot)
}

func (t *Transport) deliverUnexpected(c *connection, slot CommandSlot) {
	t.mu.Lock()
	h := t.unexpected
	t.mu.Unlock()
	if h != nil {
		h(c.peer, slot)
		return
	}
	t.pushUnexpectedQueue(slot)
}

// targetAssembly tracks one rendezvous transfer's target side between
// the initial TagRequest (carrying the head/tail fragments) and the
// TagLongGetData reply (carrying the aligned middle fragment).
type targetAssembly struct {
	head         []byte
	tail         []byte
	totalLen     uint64
	targetBuf    *Buffer // nil => unexpected; deliver the assembled slot instead
	targetOffset uint64
	slot         CommandSlot
}

// getCompletion tracks one explicit Get() awaiting its pulled bytes.
type getCompletion struct {
	localBuf    *Buffer
	localOffset uint64
	wid         WID
	peer        *Peer
}

// pendingAtomic tracks one outstanding AtomicFOP/AtomicCSwap awaiting
// its TagAtomicResp.
type pendingAtomic struct {
	wid  WID
	peer *Peer
}

const (
	atomicOpFOP   uint8 = 0
	atomicOpCSwap uint8 = 1
)

// longGetReq is the wire body of a TagLongGetReq frame: a pull request
// for [Offset, Offset+Length) of either an in-flight rendezvous send
// (resolved via RendezvousID against pendingSendPayload) or a
// registered remote buffer (resolved via BaseAddr, for an explicit
// Get()).
type longGetReq struct {
	RendezvousID uint64
	BaseAddr     uint64
	Offset       uint64
	Length       uint64
}

func encodeLongGetReq(r longGetReq) []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint64(buf[0:8], r.RendezvousID)
	binary.LittleEndian.PutUint64(buf[8:16], r.BaseAddr)
	binary.LittleEndian.PutUint64(buf[16:24], r.Offset)
	binary.LittleEndian.PutUint64(buf[24:32], r.Length)
	return buf
}

func decodeLongGetReq(b []byte) (longGetReq, error) {
	if len(b) < 32 {
		return longGetReq{}, fmt.Errorf("nnti: long get req: short frame: %d bytes", len(b))
	}
	return longGetReq{
		RendezvousID: binary.LittleEndian.Uint64(b[0:8]),
		BaseAddr:     binary.LittleEndian.Uint64(b[8:16]),
		Offset:       binary.LittleEndian.Uint64(b[16:24]),
		Length:       binary.LittleEndian.Uint64(b[24:32]),
	}, nil
}

// longGetData is the wire body of the TagLongGetData reply.
type longGetData struct {
	RendezvousID uint64
	Data         []byte
}

func encodeLongGetData(d longGetData) []byte {
	buf := make([]byte, 8+len(d.Data))
	binary.LittleEndian.PutUint64(buf[0:8], d.RendezvousID)
	copy(buf[8:], d.Data)
	return buf
}

func decodeLongGetData(b []byte) (longGetData, error) {
	if len(b) < 8 {
		return longGetData{}, fmt.Errorf("nnti: long get data: short frame: %d bytes", len(b))
	}
	return longGetData{RendezvousID: binary.LittleEndian.Uint64(b[0:8]), Data: append([]byte(nil), b[8:]...)}, nil
}

// longGetAck is the wire body of a TagLongGetAck frame.
type longGetAck struct {
	RendezvousID uint64
	OK           bool
}

func encodeLongGetAck(a longGetAck) []byte {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint64(buf[0:8], a.RendezvousID)
	if a.OK {
		buf[8] = 1
	}
	return buf
}

func decodeLongGetAck(b []byte) (longGetAck, error) {
	if len(b) < 9 {
		return longGetAck{}, fmt.Errorf("nnti: long get ack: short frame: %d bytes", len(b))
	}
	return longGetAck{RendezvousID: binary.LittleEndian.Uint64(b[0:8]), OK: b[8] == 1}, nil
}

// atomicReq is the wire body of a TagAtomicReq frame.
type atomicReq struct {
	RendezvousID uint64
	BaseAddr     uint64
	Offset       uint64
	Op           uint8
	Operand1     uint64
	Operand2     uint64
}

func encodeAtomicReq(r atomicReq) []byte {
	buf := make([]byte, 41)
	binary.LittleEndian.PutUint64(buf[0:8], r.RendezvousID)
	binary.LittleEndian.PutUint64(buf[8:16], r.BaseAddr)
	binary.LittleEndian.PutUint64(buf[16:24], r.Offset)
	buf[24] = r.Op
	binary.LittleEndian.PutUint64(buf[25:33], r.Operand1)
	binary.LittleEndian.PutUint64(buf[33:41], r.Operand2)
	return buf
}

func decodeAtomicReq(b []byte) (atomicReq, error) {
	if len(b) < 41 {
		return atomicReq{}, fmt.Errorf("nnti: atomic req: short frame: %d bytes", len(b))
	}
	return atomicReq{
		RendezvousID: binary.LittleEndian.Uint64(b[0:8]),
		BaseAddr:     binary.LittleEndian.Uint64(b[8:16]),
		Offset:       binary.LittleEndian.Uint64(b[16:24]),
		Op:           b[24],
		Operand1:     binary.LittleEndian.Uint64(b[25:33]),
		Operand2:     binary.LittleEndian.Uint64(b[33:41]),
	}, nil
}

// atomicResp is the wire body of a TagAtomicResp frame.
type atomicResp struct {
	RendezvousID uint64
	OldValue     uint64
	OK           bool
}

func encodeAtomicResp(r atomicResp) []byte {
	buf := make([]byte, 17)
	binary.LittleEndian.PutUint64(buf[0:8], r.RendezvousID)
	binary.LittleEndian.PutUint64(buf[8:16], r.OldValue)
	if r.OK {
		buf[16] = 1
	}
	return buf
}

func decodeAtomicResp(b []byte) (atomicResp, error) {
	if len(b) < 17 {
		return atomicResp{}, fmt.Errorf("nnti: atomic resp: short frame: %d bytes", len(b))
	}
	return atomicResp{
		RendezvousID: binary.LittleEndian.Uint64(b[0:8]),
		OldValue:     binary.LittleEndian.Uint64(b[8:16]),
		OK:           b[16] == 1,
	}, nil
}

// beginLongGet is called from handleFrame when a TagRequest's slot is
// non-eager: it stashes the head/tail fragments and destination (if
// expected) under slot.RendezvousID, then asks the sender to pull the
// aligned middle fragment back via TagLongGetReq.
func (t *Transport) beginLongGet(c *connection, slot CommandSlot, expected bool) {
	var targetBuf *Buffer
	if expected {
		targetBuf, _ = t.buffers.Lookup(slot.TargetBaseAddr)
	}
	assembly := &targetAssembly{
		head:         append([]byte(nil), slot.Payload[:slot.HeadLen]...),
		tail:         append([]byte(nil), slot.Payload[slot.HeadLen:]...),
		totalLen:     slot.PayloadLength,
		targetBuf:    targetBuf,
		targetOffset: slot.TargetOffset,
		slot:         slot,
	}
	t.pendingMu.Lock()
	t.pendingTargetAssembly[slot.RendezvousID] = assembly
	t.pendingMu.Unlock()

	middleLen := slot.PayloadLength - uint64(slot.HeadLen) - uint64(slot.TailLen)
	req := longGetReq{RendezvousID: slot.RendezvousID, BaseAddr: slot.TargetBaseAddr, Offset: uint64(slot.HeadLen), Length: middleLen}
	frame := append([]byte{byte(TagLongGetReq)}, encodeLongGetReq(req)...)
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.conn.SendFrame(frame); err != nil {
		t.logger.Warn("nnti.long_get_req_failed", "err", err)
	}
}

// handleLongGetReq answers a pull request, serving bytes from an
// in-flight rendezvous send's stashed payload if RendezvousID matches
// one, else from a locally registered buffer (an explicit Get()).
func (t *Transport) handleLongGetReq(c *connection, req longGetReq) {
	t.pendingMu.Lock()
	payload, ok := t.pendingSendPayload[req.RendezvousID]
	t.pendingMu.Unlock()

	var data []byte
	switch {
	case ok:
		data = sliceWithin(payload, req.Offset, req.Length)
	default:
		if buf, found := t.buffers.Lookup(req.BaseAddr); found {
			data = sliceWithin(buf.data, req.Offset, req.Length)
		}
	}

	frame := append([]byte{byte(TagLongGetData)}, encodeLongGetData(longGetData{RendezvousID: req.RendezvousID, Data: data})...)
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.conn.SendFrame(frame); err != nil {
		t.logger.Warn("nnti.long_get_data_failed", "err", err)
	}
}

func sliceWithin(data []byte, offset, length uint64) []byte {
	if offset > uint64(len(data)) {
		return nil
	}
	end := offset + length
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	return data[offset:end]
}

// handleLongGetData completes either a pending explicit Get() or a
// rendezvous send's middle fragment, depending on which map
// RendezvousID is found in.
func (t *Transport) handleLongGetData(c *connection, d longGetData) {
	t.pendingMu.Lock()
	if gc, ok := t.pendingGetCompletions[d.RendezvousID]; ok {
		delete(t.pendingGetCompletions, d.RendezvousID)
		t.pendingMu.Unlock()
		if gc.localBuf != nil {
			copy(gc.localBuf.data[gc.localOffset:], d.Data)
		}
		t.eqSend.Push(Event{Type: EventRDMAComplete, WID: gc.wid, Peer: gc.peer, Length: uint64(len(d.Data))})
		return
	}

	assembly, ok := t.pendingTargetAssembly[d.RendezvousID]
	if !ok {
		t.pendingMu.Unlock()
		return
	}
	delete(t.pendingTargetAssembly, d.RendezvousID)
	t.pendingMu.Unlock()

	full := make([]byte, assembly.totalLen)
	copy(full, assembly.head)
	copy(full[len(assembly.head):], d.Data)
	copy(full[uint64(len(assembly.head))+uint64(len(d.Data)):], assembly.tail)

	if assembly.targetBuf != nil {
		n := copy(assembly.targetBuf.data[assembly.targetOffset:], full)
		t.eqRecv.Push(Event{Type: EventRecvComplete, Peer: c.peer, Buffer: assembly.targetBuf, Offset: assembly.targetOffset, Length: uint64(n)})
	} else {
		assembly.slot.Payload = full
		t.deliverUnexpected(c, assembly.slot)
	}

	ackFrame := append([]byte{byte(TagLongGetAck)}, encodeLongGetAck(longGetAck{RendezvousID: d.RendezvousID, OK: true})...)
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.conn.SendFrame(ackFrame); err != nil {
		t.logger.Warn("nnti.long_get_ack_failed", "err", err)
	}
}

// handleLongGetAck resumes the sender's commandSendOp parked at
// SendWaitRDMAAck and retires the stashed middle-fragment payload.
func (t *Transport) handleLongGetAck(ack longGetAck) {
	t.pendingMu.Lock()
	op, ok := t.pendingSendAcks[ack.RendezvousID]
	delete(t.pendingSendAcks, ack.RendezvousID)
	delete(t.pendingSendPayload, ack.RendezvousID)
	t.pendingMu.Unlock()
	if ok {
		op.AckRDMA()
	}
}

func (t *Transport) handleAtomicReq(c *connection, req atomicReq) {
	var oldVal uint64
	ok := false
	if buf, found := t.buffers.Lookup(req.BaseAddr); found && req.Offset+8 <= uint64(len(buf.data)) {
		t.atomicMu.Lock()
		oldVal = binary.LittleEndian.Uint64(buf.data[req.Offset : req.Offset+8])
		newVal := oldVal
		switch req.Op {
		case atomicOpFOP:
			newVal = oldVal + req.Operand1
		case atomicOpCSwap:
			if oldVal == req.Operand1 {
				newVal = req.Operand2
			}
		}
		binary.LittleEndian.PutUint64(buf.data[req.Offset:req.Offset+8], newVal)
		t.atomicMu.Unlock()
		ok = true
	}

	resp := atomicResp{RendezvousID: req.RendezvousID, OldValue: oldVal, OK: ok}
	frame := append([]byte{byte(TagAtomicResp)}, encodeAtomicResp(resp)...)
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.conn.SendFrame(frame); err != nil {
		t.logger.Warn("nnti.atomic_resp_failed", "err", err)
	}
}

func (t *Transport) handleAtomicResp(resp atomicResp) {
	t.pendingMu.Lock()
	pc, ok := t.pendingAtomics[resp.RendezvousID]
	delete(t.pendingAtomics, resp.RendezvousID)
	t.pendingMu.Unlock()
	if !ok {
		return
	}
	var err error
	if !resp.OK {
		err = fmt.Errorf("nnti: atomic: remote buffer not registered or offset out of range")
	}
	t.eqSend.Push(Event{Type: EventAtomicComplete, WID: pc.wid, Peer: pc.peer, Result: resp.OldValue, Err: err})
}

// AtomicFOP issues a remote fetch-and-add against wr.RemoteBuffer at
// wr.RemoteOffset, adding wr.Operand1 (spec §4.4.1's atomic_fop()). The
// pre-update value is delivered as [Event.Result] on the send event
// queue.
func (t *Transport) AtomicFOP(wr WorkRequest) (WID, error) {
	return t.submitAtomic(wr, atomicOpFOP, wr.Operand1, 0)
}

// AtomicCSwap issues a remote compare-and-swap against wr.RemoteBuffer
// at wr.RemoteOffset: if the current value equals wr.Operand1, it is
// replaced with wr.Operand2 (spec §4.4.1's atomic_cswap()). The
// pre-update value is always delivered as [Event.Result], regardless
// of whether the compare succeeded.
func (t *Transport) AtomicCSwap(wr WorkRequest) (WID, error) {
	return t.submitAtomic(wr, atomicOpCSwap, wr.Operand1, wr.Operand2)
}

func (t *Transport) submitAtomic(wr WorkRequest, op uint8, operand1, operand2 uint64) (WID, error) {
	if wr.Peer == nil {
		return 0, fmt.Errorf("nnti: atomic: nil peer")
	}
	if wr.RemoteBuffer == nil {
		return 0, fmt.Errorf("nnti: atomic: remote buffer required")
	}
	t.mu.Lock()
	c, ok := t.connsByID[wr.Peer.connID]
	t.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("nnti: atomic: peer %s not connected", wr.Peer)
	}

	wid := WID(spanIDToWID(spanid.New()))
	rendezvousID := atomic.AddUint64(&t.rendezvousCounter, 1)
	t.pendingMu.Lock()
	t.pendingAtomics[rendezvousID] = pendingAtomic{wid: wid, peer: wr.Peer}
	t.pendingMu.Unlock()

	req := atomicReq{RendezvousID: rendezvousID, BaseAddr: wr.RemoteBuffer.BaseAddr, Offset: wr.RemoteOffset, Op: op, Operand1: operand1, Operand2: operand2}
	frame := append([]byte{byte(TagAtomicReq)}, encodeAtomicReq(req)...)
	c.sendMu.Lock()
	err := c.conn.SendFrame(frame)
	c.sendMu.Unlock()
	if err != nil {
		t.pendingMu.Lock()
		delete(t.pendingAtomics, rendezvousID)
		t.pendingMu.Unlock()
		return 0, fmt.Errorf("nnti: atomic: %w", err)
	}
	return wid, nil
}
