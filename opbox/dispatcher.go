// SPDX-License-Identifier: GPL-3.0-or-later

package opbox

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sandialabs/faodel-go/config"
	"github.com/sandialabs/faodel-go/internal/logx"
	"github.com/sandialabs/faodel-go/nnti"
)

// Dispatcher is the OpBox core of spec §4.5: it registers itself as an
// nnti.Transport's unexpected-message handler, creates target ops for
// new inbound messages, and routes subsequent updates to the right op
// via a mailbox-keyed [Backburner].
//
// The spec's "dst_mailbox" value is carried in the existing
// nnti.CommandSlot.SrcOpID wire field rather than adding a new one:
// SrcOpID already exists purely for op-correlation on the wire, which
// is exactly what a mailbox id is for.
type Dispatcher struct {
	registry   *Registry
	transport  *nnti.Transport
	logger     logx.Logger
	backburner *Backburner

	mu          sync.Mutex
	active      map[uint32]Op
	nextMailbox uint32

	fabricDepName string
}

// NewDispatcher wires a dispatcher over transport using registry to
// resolve inbound op ids to factories.
func NewDispatcher(transport *nnti.Transport, registry *Registry, logger logx.Logger) *Dispatcher {
	if logger == nil {
		logger = logx.Discard()
	}
	name, _, _ := transport.Dependencies()
	return &Dispatcher{
		registry:      registry,
		transport:     transport,
		logger:        logger,
		active:        make(map[uint32]Op),
		fabricDepName: name,
	}
}

// Init creates and starts the backburner, then binds itself as
// transport's unexpected-message handler.
func (d *Dispatcher) Init(cfg *config.Configuration) error {
	bb, err := NewBackburner(cfg)
	if err != nil {
		return fmt.Errorf("opbox: %w", err)
	}
	d.backburner = bb
	d.backburner.Start()
	d.transport.BindUnexpectedHandler(d.handleUnexpected)
	return nil
}

// Start is a no-op: the backburner is already running once Init
// returns.
func (d *Dispatcher) Start() error { return nil }

// Finish stops the backburner's worker pool.
func (d *Dispatcher) Finish() error {
	if d.backburner != nil {
		d.backburner.Stop()
	}
	return nil
}

// Dependencies implements bootstrap.Component: opbox requires the nnti
// transport it was built over.
func (d *Dispatcher) Dependencies() (name string, required []string, optional []string) {
	return "opbox", []string{d.fabricDepName}, nil
}

// handleUnexpected is bound to transport as the UnexpectedHandler: it
// demultiplexes new target ops (dst_mailbox == 0) from updates to an
// already-active op (nonzero dst_mailbox), per spec §4.5.
func (d *Dispatcher) handleUnexpected(peer *nnti.Peer, slot nnti.CommandSlot) {
	dstMailbox := slot.SrcOpID
	peerURL := ""
	if peer != nil {
		peerURL = peer.URL
	}

	if dstMailbox == 0 {
		factory, ok := d.registry.Lookup(slot.OpID)
		if !ok {
			d.logger.Warn("opbox.unknown_op", "opID", slot.OpID)
			return
		}
		op := factory()
		mailbox := atomic.AddUint32(&d.nextMailbox, 1)

		d.mu.Lock()
		d.active[mailbox] = op
		d.mu.Unlock()

		msg := Message{Mailbox: mailbox, Payload: slot.Payload, PeerURL: peerURL}
		d.backburner.Enqueue(mailbox, func() { d.runUpdate(mailbox, op, UpdateStart, msg) })
		return
	}

	d.mu.Lock()
	op, ok := d.active[dstMailbox]
	d.mu.Unlock()
	if !ok {
		d.logger.Warn("opbox.unknown_mailbox", "mailbox", dstMailbox)
		return
	}

	msg := Message{Mailbox: dstMailbox, Payload: slot.Payload, PeerURL: peerURL}
	d.backburner.Enqueue(dstMailbox, func() { d.runUpdate(dstMailbox, op, UpdateEvent, msg) })
}

// runUpdate drives one Update call for the op owning mailbox and acts
// on the returned status. It always runs on the backburner's
// mailbox-serialized goroutine, so it never races a concurrent Update
// for the same op.
func (d *Dispatcher) runUpdate(mailbox uint32, op Op, ut UpdateType, msg Message) {
	status, err := op.Update(ut, msg)
	if err != nil || status == Error {
		d.logger.Error("opbox.op_error", "mailbox", mailbox, "update", ut.String(), "err", err)
	}
	switch status {
	case DoneAndDestroy, Error:
		d.mu.Lock()
		delete(d.active, mailbox)
		d.mu.Unlock()
	case Waiting:
		// op stays in the active map awaiting its next update
	}
}

// Launch starts a new instance of the op registered under name
// locally, with UpdateType::start. If the op completes synchronously
// (DoneAndDestroy) no mailbox is ever allocated — matching spec §4.5's
// "if the start completes immediately no storage occurs" — and Launch
// returns mailbox 0. Otherwise the op is parked in the active map under
// a freshly assigned mailbox, returned so the caller can correlate
// future events.
func (d *Dispatcher) Launch(name string) (mailbox uint32, err error) {
	factory, ok := d.registry.Lookup(OpID(name))
	if !ok {
		return 0, fmt.Errorf("opbox: no op registered as %q", name)
	}
	op := factory()
	status, err := op.Update(UpdateStart, Message{})
	if err != nil {
		return 0, err
	}
	if status != Waiting {
		return 0, nil
	}

	mailbox = atomic.AddUint32(&d.nextMailbox, 1)
	d.mu.Lock()
	d.active[mailbox] = op
	d.mu.Unlock()
	return mailbox, nil
}

// ActiveCount reports how many ops are currently parked in the active
// map, consulted by the "/opbox/backburner" Whookie hook.
func (d *Dispatcher) ActiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// Mailboxes returns the currently active mailbox ids, sorted is not
// guaranteed; callers that need a stable order should sort themselves.
func (d *Dispatcher) Mailboxes() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]uint32, 0, len(d.active))
	for id := range d.active {
		ids = append(ids, id)
	}
	return ids
}
