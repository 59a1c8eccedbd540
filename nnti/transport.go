// SPDX-License-Identifier: GPL-3.0-or-later

// Package nnti implements the network transport core: mailboxes with
// credit-based flow control, command-send/command-target state
// machines, rendezvous alignment, and a completion path — realized over
// three pure-Go fabrics (tcp, udp, inproc) instead of the original's
// verbs/uGNI/MPI bindings. See fabric.Fabric and the package-level
// fabric implementations under nnti/fabric.
package nnti

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandialabs/faodel-go/common"
	"github.com/sandialabs/faodel-go/config"
	"github.com/sandialabs/faodel-go/internal/errclass"
	"github.com/sandialabs/faodel-go/internal/logx"
	"github.com/sandialabs/faodel-go/internal/pipeline"
	"github.com/sandialabs/faodel-go/internal/spanid"
	"github.com/sandialabs/faodel-go/nnti/fabric"
	"golang.org/x/sync/errgroup"
)

// UnexpectedHandler is invoked for every inbound message whose
// destination mailbox is unclaimed (dst_mailbox == 0 in spec §4.5's
// OpBox language); wired by opbox.Dispatcher.
type UnexpectedHandler func(peer *Peer, slot CommandSlot)

// Stats is a snapshot of transport counters exposed via the
// "/nnti/<fabric>/stats" Whookie hook (SPEC_FULL.md §4.7).
type Stats struct {
	Fabric            string
	Connections       int
	CreditsOutPerConn map[string]int
	FreelistHighWater int
	DroppedEvents     int
}

// Transport is one fabric instance: it owns the listener, the connection
// vector, and the buffer map. Progress runs on one accept goroutine plus
// one receive goroutine per connection, each handling its connection's
// inbound frames directly; there is no single progress goroutine and no
// separate op vector.
type Transport struct {
	fab    fabric.Fabric
	logger logx.Logger

	mu        sync.Mutex
	listener  fabric.Listener
	nodeID    common.NodeID
	localURL  string
	connsByID map[uint32]*connection
	peers     map[string]*Peer // url -> peer, "at most one connection per peer"

	connVector *Vector[connection]
	buffers    *BufferMap

	evFreelist *Freelist[Event]
	dropped    int
	slotSize   int
	slotCount  int
	alignBytes int

	unexpected   UnexpectedHandler
	unexpectedCh chan CommandSlot

	eqSend   *EventQueue
	eqRecv   *EventQueue
	eqInterr *EventQueue

	observeIO bool

	// baseAddrCounter mints BaseAddr values for Alloc/RegisterMemory; 0 is
	// reserved as the "unexpected, no target buffer" sentinel.
	baseAddrCounter uint64

	// rendezvousCounter mints correlator ids for the long-get and atomic
	// request/response round trips.
	rendezvousCounter uint64

	pendingMu             sync.Mutex
	pendingSendPayload    map[uint64][]byte          // rendezvousID -> middle fragment, for serving a peer's pull
	pendingSendAcks       map[uint64]*commandSendOp  // rendezvousID -> send op parked at SendWaitRDMAAck
	pendingGetCompletions map[uint64]getCompletion   // rendezvousID -> explicit Get() awaiting its data
	pendingTargetAssembly map[uint64]*targetAssembly // rendezvousID -> target-side assembly state
	pendingAtomics        map[uint64]pendingAtomic   // rendezvousID -> atomic op awaiting its response

	atomicMu sync.Mutex // guards the read-modify-write in handleAtomicReq

	group  *errgroup.Group
	cancel context.CancelFunc
}

// connection is one peer connection's mailbox state.
type connection struct {
	conn    fabric.Conn
	peer    *Peer
	credits *CreditTracker
	sendMu  sync.Mutex
}

// New creates a [*Transport] over fab. Call [Transport.Init] to bind and
// start the progress loop.
func New(fab fabric.Fabric, logger logx.Logger) *Transport {
	if logger == nil {
		logger = logx.Discard()
	}
	return &Transport{
		fab:                   fab,
		logger:                logger,
		connsByID:             make(map[uint32]*connection),
		peers:                 make(map[string]*Peer),
		connVector:            NewVector[connection](),
		buffers:               NewBufferMap(),
		pendingSendPayload:    make(map[uint64][]byte),
		pendingSendAcks:       make(map[uint64]*commandSendOp),
		pendingGetCompletions: make(map[uint64]getCompletion),
		pendingTargetAssembly: make(map[uint64]*targetAssembly),
		pendingAtomics:        make(map[uint64]pendingAtomic),
	}
}

// Init binds the transport's listener and starts its accept goroutine
// (each adopted connection then gets its own receive goroutine).
// cfg keys read: "<fabric>.mailbox.slot_size", "<fabric>.mailbox.
// slot_count", "<fabric>.rdma.align_bytes", "<fabric>.listen_address",
// "<fabric>.observe_io" (per-frame send/recv/close debug logging, off
// by default).
func (t *Transport) Init(cfg *config.Configuration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	prefix := t.fab.Name()
	slotSize, err := cfg.GetUInt(prefix+".mailbox.slot_size", DefaultSlotSize)
	if err != nil {
		return fmt.Errorf("nnti/%s: %w", prefix, err)
	}
	slotCount, err := cfg.GetUInt(prefix+".mailbox.slot_count", DefaultSlotCount)
	if err != nil {
		return fmt.Errorf("nnti/%s: %w", prefix, err)
	}
	align, err := cfg.GetUInt(prefix+".rdma.align_bytes", 4)
	if err != nil {
		return fmt.Errorf("nnti/%s: %w", prefix, err)
	}
	addr := cfg.GetString(prefix+".listen_address", "127.0.0.1:0")
	observeIO, err := cfg.GetBool(prefix+".observe_io", false)
	if err != nil {
		return fmt.Errorf("nnti/%s: %w", prefix, err)
	}

	t.observeIO = observeIO
	t.slotSize = int(slotSize)
	t.slotCount = int(slotCount)
	t.alignBytes = int(align)

	listener, err := t.fab.Listen(addr)
	if err != nil {
		return fmt.Errorf("nnti/%s: listen: %w", prefix, err)
	}
	t.listener = listener
	t.localURL = fmt.Sprintf("%s:/%s", prefix, listener.Addr())
	t.nodeID = common.NewNodeID(listener.Addr(), 0)

	freelistSize, err := cfg.GetUInt(prefix+".freelist.size", DefaultFreelistSize)
	if err != nil {
		return fmt.Errorf("nnti/%s: %w", prefix, err)
	}
	t.evFreelist = NewFreelist(int(freelistSize), func() *Event { return &Event{} })

	eqSize, err := cfg.GetUInt(prefix+".eq.size", 256)
	if err != nil {
		return fmt.Errorf("nnti/%s: %w", prefix, err)
	}
	t.eqSend = NewEventQueue(int(eqSize), 0, nil)
	t.eqRecv = NewEventQueue(int(eqSize), EQUnexpected, nil)
	t.eqInterr = NewEventQueue(4, 0, nil)
	t.unexpectedCh = make(chan CommandSlot, int(eqSize))

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	t.group = g
	g.Go(func() error {
		t.acceptLoop(gctx)
		return nil
	})

	t.logger.Info("nnti.init", "fabric", prefix, "url", t.localURL, "nodeID", t.nodeID.String())
	return nil
}

// Start is a no-op: the progress loop is already running once Init
// returns.
func (t *Transport) Start() error { return nil }

// Finish stops the progress loop and closes the listener and all
// connections.
func (t *Transport) Finish() error {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	listener := t.listener
	conns := make([]*connection, 0, len(t.connsByID))
	for _, c := range t.connsByID {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	for _, c := range conns {
		_ = c.conn.Close()
	}
	if t.group != nil {
		_ = t.group.Wait()
	}
	return nil
}

// Dependencies implements bootstrap.Component.
func (t *Transport) Dependencies() (name string, required []string, optional []string) {
	return "nnti." + t.fab.Name(), []string{"whookie"}, nil
}

// BindUnexpectedHandler installs the callback invoked for inbound
// messages with no claimed mailbox (wired by opbox.Dispatcher).
func (t *Transport) BindUnexpectedHandler(h UnexpectedHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unexpected = h
}

// URL returns the transport's own rendezvous URL (spec §4.4.1's
// get_url).
func (t *Transport) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.localURL
}

// NodeID returns the transport's node id.
func (t *Transport) NodeID() common.NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nodeID
}

// Connect dials url, returning the cached [*Peer] if one already exists
// (spec §4.4.1: "at most one connection per peer").
func (t *Transport) Connect(ctx context.Context, url string) (*Peer, error) {
	t.mu.Lock()
	if p, ok := t.peers[url]; ok {
		t.mu.Unlock()
		return p, nil
	}
	t.mu.Unlock()

	addr := stripFabricScheme(url)
	conn, err := t.connectPipeline().Call(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("nnti/%s: connect: %w", t.fab.Name(), err)
	}
	return t.adoptConnection(conn, url), nil
}

// connectPipeline composes the connect-start logging stage with the
// dial-and-log-done stage: logStartStage records connectStart and
// passes addr through unchanged; dialStage dials and records
// connectDone around the result.
func (t *Transport) connectPipeline() pipeline.Func[string, fabric.Conn] {
	logStartStage := pipeline.Adapter[string, string](func(ctx context.Context, addr string) (string, error) {
		deadline, _ := ctx.Deadline()
		t.logConnectStart(addr, time.Now(), deadline)
		return addr, nil
	})
	dialStage := pipeline.Adapter[string, fabric.Conn](func(ctx context.Context, addr string) (fabric.Conn, error) {
		deadline, _ := ctx.Deadline()
		t0 := time.Now()
		conn, err := t.fab.Dial(ctx, addr)
		t.logConnectDone(addr, t0, deadline, conn, err)
		return conn, err
	})
	return pipeline.Compose2(logStartStage, dialStage)
}

func (t *Transport) logConnectStart(addr string, t0 time.Time, deadline time.Time) {
	t.logger.Debug(
		"nnti.connect_start",
		"fabric", t.fab.Name(),
		"remoteAddr", addr,
		"deadline", deadline,
		"t", t0,
	)
}

func (t *Transport) logConnectDone(addr string, t0, deadline time.Time, conn fabric.Conn, err error) {
	localAddr := ""
	if conn != nil {
		localAddr = conn.LocalAddr()
	}
	t.logger.Debug(
		"nnti.connect_done",
		"fabric", t.fab.Name(),
		"remoteAddr", addr,
		"localAddr", localAddr,
		"deadline", deadline,
		"err", err,
		"errClass", errclass.Classify(err),
		"t0", t0,
		"t", time.Now(),
	)
}

// Disconnect removes peer from the connection map and closes its
// connection.
func (t *Transport) Disconnect(peer *Peer) error {
	t.mu.Lock()
	c, ok := t.connsByID[peer.connID]
	if ok {
		delete(t.connsByID, peer.connID)
		delete(t.peers, peer.URL)
		t.connVector.Remove(peer.connID)
	}
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("nnti: disconnect: unknown peer %s", peer)
	}
	return c.conn.Close()
}

func (t *Transport) adoptConnection(raw fabric.Conn, url string) *Peer {
	if t.observeIO {
		raw = &fabric.ObserveConn{Conn: raw, Logger: t.logger, ClassifyErr: errclass.Classify}
	}
	c := &connection{conn: raw, credits: NewCreditTracker(t.slotCountOrDefault())}
	t.mu.Lock()
	idx := t.connVector.Add(c)
	peer := &Peer{URL: url, connID: idx}
	c.peer = peer
	t.connsByID[idx] = c
	if url != "" {
		t.peers[url] = peer
	}
	t.mu.Unlock()

	t.group.Go(func() error {
		t.recvLoop(c)
		return nil
	})
	return peer
}

func (t *Transport) slotCountOrDefault() int {
	if t.slotCount == 0 {
		return DefaultSlotCount
	}
	return t.slotCount
}

func (t *Transport) acceptLoop(ctx context.Context) {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			return
		}
		t.adoptConnection(conn, "")
	}
}

func (t *Transport) recvLoop(c *connection) {
	for {
		frame, err := c.conn.RecvFrame()
		if err != nil {
			return
		}
		t.handleFrame(c, frame)
	}
}

func (t *Transport) handleFrame(c *connection, frame []byte) {
	if len(frame) < 1 {
		return
	}
	tag := Tag(frame[0])
	body := frame[1:]

	switch tag {
	case TagCredit:
		if len(body) < 4 {
			return
		}
		n := int(body[0]) | int(body[1])<<8 | int(body[2])<<16 | int(body[3])<<24
		c.credits.ReleaseSend(n)

	case TagRequest:
		slot, err := DecodeSlot(body)
		if err != nil {
			t.logger.Warn("nnti.decode_error", "err", err)
			return
		}
		expected := !slot.IsUnexpected()
		op := &commandTargetOp{slot: slot}
		state := op.Run(expected, t.slotSizeOrDefault())
		t.logger.Debug("nnti.recv", "fabric", t.fab.Name(), "opID", slot.OpID, "eager", slot.Eager(t.slotSizeOrDefault()))

		if state == TargetLongGet {
			t.beginLongGet(c, slot, expected)
		} else {
			t.completeTarget(c, slot, expected)
		}

		c.credits.ConsumeRecvSlot()
		_ = t.sendCredit(c, 1)

	case TagLongGetReq:
		req, err := decodeLongGetReq(body)
		if err != nil {
			t.logger.Warn("nnti.decode_error", "err", err)
			return
		}
		t.handleLongGetReq(c, req)

	case TagLongGetData:
		data, err := decodeLongGetData(body)
		if err != nil {
			t.logger.Warn("nnti.decode_error", "err", err)
			return
		}
		t.handleLongGetData(c, data)

	case TagLongGetAck:
		ack, err := decodeLongGetAck(body)
		if err != nil {
			t.logger.Warn("nnti.decode_error", "err", err)
			return
		}
		t.handleLongGetAck(ack)

	case TagAtomicReq:
		req, err := decodeAtomicReq(body)
		if err != nil {
			t.logger.Warn("nnti.decode_error", "err", err)
			return
		}
		t.handleAtomicReq(c, req)

	case TagAtomicResp:
		resp, err := decodeAtomicResp(body)
		if err != nil {
			t.logger.Warn("nnti.decode_error", "err", err)
			return
		}
		t.handleAtomicResp(resp)
	}
}

func (t *Transport) slotSizeOrDefault() int {
	if t.slotSize == 0 {
		return DefaultSlotSize
	}
	return t.slotSize
}

func (t *Transport) sendCredit(c *connection, n int) error {
	body := []byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
	frame := append([]byte{byte(TagCredit)}, body...)
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.conn.SendFrame(frame)
}

// Send submits wr as a send op, returning its [WID] once the mailbox
// slot has been handed to the fabric (not necessarily delivered: the
// full command-send state machine of spec §4.4.3 runs via
// [commandSendOp.Update]). A payload exceeding the eager threshold is
// split per [ComputeAlignment]: the head and tail fragments travel
// inline in this frame, and the aligned middle fragment is pulled by
// the receiver over a follow-up TagLongGetReq/TagLongGetData round
// trip (spec §4.4.4) before the send op completes.
func (t *Transport) Send(wr WorkRequest) (WID, error) {
	if wr.Peer == nil {
		return 0, fmt.Errorf("nnti: send: nil peer")
	}
	t.mu.Lock()
	c, ok := t.connsByID[wr.Peer.connID]
	t.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("nnti: send: peer %s not connected", wr.Peer)
	}

	var payload []byte
	switch {
	case len(wr.Data) > 0:
		payload = wr.Data
		if wr.Length == 0 {
			wr.Length = uint64(len(wr.Data))
		}
	case wr.LocalBuffer != nil:
		payload = wr.LocalBuffer.data
		if wr.Length == 0 {
			wr.Length = uint64(len(payload))
		}
	}

	var handle []byte
	if wr.LocalBuffer != nil {
		handle = PackHandle(wr.LocalBuffer)
	}

	slot := CommandSlot{
		InitiatorOffset: wr.LocalOffset,
		TargetOffset:    wr.RemoteOffset,
		PayloadLength:   wr.Length,
		InitiatorHandle: handle,
	}
	if wr.RemoteBuffer != nil {
		slot.TargetBaseAddr = wr.RemoteBuffer.BaseAddr
	}

	wid := WID(spanIDToWID(spanid.New()))
	slot.OpID = uint32(wid)
	if wr.OpID != 0 {
		slot.OpID = wr.OpID
	}
	slot.SrcOpID = wr.DstMailbox

	eager := slot.Eager(t.slotSizeOrDefault())
	var rendezvousID uint64
	if eager {
		slot.Payload = payload
	} else {
		align := ComputeAlignment(0, wr.LocalOffset, len(payload), t.alignBytesOrDefault())
		head := payload[:align.HeadLen]
		middle := payload[align.HeadLen : align.HeadLen+align.MiddleLen]
		tail := payload[align.HeadLen+align.MiddleLen:]

		slot.HeadLen = uint32(align.HeadLen)
		slot.TailLen = uint32(align.TailLen)
		slot.Payload = append(append([]byte(nil), head...), tail...)

		rendezvousID = atomic.AddUint64(&t.rendezvousCounter, 1)
		slot.RendezvousID = rendezvousID
		t.pendingMu.Lock()
		t.pendingSendPayload[rendezvousID] = middle
		t.pendingMu.Unlock()
	}

	op := &commandSendOp{
		eager:   eager,
		credits: c.credits,
		wid:     wid,
		doSend: func() error {
			encoded, err := EncodeSlot(slot, t.slotSizeOrDefault())
			if err != nil {
				return err
			}
			frame := append([]byte{byte(TagRequest)}, encoded...)
			c.sendMu.Lock()
			defer c.sendMu.Unlock()
			return c.conn.SendFrame(frame)
		},
		onDone: func(err error) {
			evType := EventSendComplete
			if wr.Op == OpPut {
				evType = EventRDMAComplete
			}
			t.eqSend.Push(Event{Type: evType, WID: wid, Peer: wr.Peer, Length: wr.Length, Err: err})
		},
	}

	if !eager {
		t.pendingMu.Lock()
		t.pendingSendAcks[rendezvousID] = op
		t.pendingMu.Unlock()
	}

	if err := op.Update(); err != nil {
		return wid, err
	}
	return wid, nil
}

func (t *Transport) alignBytesOrDefault() int {
	if t.alignBytes == 0 {
		return 4
	}
	return t.alignBytes
}

// Put issues a one-sided RDMA write: wr.RemoteBuffer.BaseAddr/
// wr.RemoteOffset names the destination, and the peer writes the
// payload directly into that registered buffer's backing storage
// instead of delivering it to an unexpected-message handler (spec
// §4.4.1's put()). wr.RemoteBuffer must be registered on the peer
// (via its [Transport.Alloc] or [Transport.RegisterMemory]) before the
// put arrives, or it falls back to unexpected delivery.
func (t *Transport) Put(wr WorkRequest) (WID, error) {
	wr.Op = OpPut
	return t.Send(wr)
}

// Get issues a one-sided RDMA read (spec §4.4.1's get()): it pulls
// [wr.RemoteOffset, wr.RemoteOffset+wr.Length) out of wr.RemoteBuffer
// on the peer via a TagLongGetReq/TagLongGetData round trip and copies
// the result into wr.LocalBuffer at wr.LocalOffset. Completion arrives
// as an EventRDMAComplete on [Transport.SendEventQueue].
func (t *Transport) Get(wr WorkRequest) (WID, error) {
	if wr.Peer == nil {
		return 0, fmt.Errorf("nnti: get: nil peer")
	}
	if wr.RemoteBuffer == nil {
		return 0, fmt.Errorf("nnti: get: remote buffer required")
	}
	t.mu.Lock()
	c, ok := t.connsByID[wr.Peer.connID]
	t.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("nnti: get: peer %s not connected", wr.Peer)
	}

	wid := WID(spanIDToWID(spanid.New()))
	rendezvousID := atomic.AddUint64(&t.rendezvousCounter, 1)
	t.pendingMu.Lock()
	t.pendingGetCompletions[rendezvousID] = getCompletion{localBuf: wr.LocalBuffer, localOffset: wr.LocalOffset, wid: wid, peer: wr.Peer}
	t.pendingMu.Unlock()

	req := longGetReq{RendezvousID: rendezvousID, BaseAddr: wr.RemoteBuffer.BaseAddr, Offset: wr.RemoteOffset, Length: wr.Length}
	frame := append([]byte{byte(TagLongGetReq)}, encodeLongGetReq(req)...)
	c.sendMu.Lock()
	err := c.conn.SendFrame(frame)
	c.sendMu.Unlock()
	if err != nil {
		t.pendingMu.Lock()
		delete(t.pendingGetCompletions, rendezvousID)
		t.pendingMu.Unlock()
		return 0, fmt.Errorf("nnti: get: %w", err)
	}
	return wid, nil
}

// Cancel only logs the request: it does not mark or stop the op named by
// wid, so a waitlisted or in-flight op still runs to completion and
// delivers its completion event.
func (t *Transport) Cancel(wid WID) {
	t.logger.Debug("nnti.cancel", "wid", wid)
}

// EQWait blocks on eq for up to timeout, returning the next event.
func EQWait(eq *EventQueue, timeout time.Duration) (Event, bool) {
	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() { close(done) })
	defer timer.Stop()
	return eq.Wait(done)
}

// Interrupt unblocks a pending eq_wait without cancelling in-flight I/O
// (spec §4.4.5's self-posted CqWrite), by posting an [EventInterrupt] on
// the send and recv event queues.
func (t *Transport) Interrupt() {
	t.eqInterr.Push(Event{Type: EventInterrupt})
	t.eqSend.Push(Event{Type: EventInterrupt})
	t.eqRecv.Push(Event{Type: EventInterrupt})
}

// SendEventQueue returns the queue send completions are posted to.
func (t *Transport) SendEventQueue() *EventQueue { return t.eqSend }

// RecvEventQueue returns the queue unexpected/recv completions are
// posted to.
func (t *Transport) RecvEventQueue() *EventQueue { return t.eqRecv }

// Snapshot returns introspection counters for the "/nnti/<fabric>/stats"
// Whookie hook.
func (t *Transport) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	credits := make(map[string]int, len(t.connsByID))
	for _, c := range t.connsByID {
		credits[c.conn.RemoteAddr()] = c.credits.PendingSends()
	}
	return Stats{
		Fabric:            t.fab.Name(),
		Connections:       len(t.connsByID),
		CreditsOutPerConn: credits,
		FreelistHighWater: t.evFreelist.Len(),
		DroppedEvents:     t.dropped,
	}
}

// Peers returns the currently connected peers' URLs, for the
// "/nnti/<fabric>/peers" Whookie hook.
func (t *Transport) Peers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.peers))
	for url := range t.peers {
		out = append(out, url)
	}
	return out
}

// stripFabricScheme removes a leading "<fabric>:/" prefix from a
// rendezvous URL, if present, returning the bare dial address.
func stripFabricScheme(url string) string {
	for i := 0; i < len(url); i++ {
		if url[i] == ':' {
			if i+1 < len(url) && url[i+1] == '/' {
				return url[i+2:]
			}
			return url[i+1:]
		}
	}
	return url
}

// spanIDToWID folds a UUID string down to a 64-bit value for use as a
// WID, via FNV-1a — WIDs need only be unique per transport instance, not
// globally, but reusing spanid's generator avoids a second random
// source.
func spanIDToWID(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
