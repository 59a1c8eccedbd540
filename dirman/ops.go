// SPDX-License-Identifier: GPL-3.0-or-later

package dirman

import (
	"context"
	"fmt"

	"github.com/sandialabs/faodel-go/nnti"
	"github.com/sandialabs/faodel-go/opbox"
)

// requestOp runs on the root node: registered under "dirman.request",
// one instance is created by opbox.Dispatcher per inbound request and
// destroyed after a single Update (requests are stateless round trips,
// not long-running ops).
type requestOp struct {
	mgr *Manager
}

func (op *requestOp) Update(ut opbox.UpdateType, msg opbox.Message) (opbox.Status, error) {
	req, err := decodeRequest(msg.Payload)
	if err != nil {
		return opbox.DoneAndDestroy, fmt.Errorf("dirman: decode request: %w", err)
	}

	reply := op.mgr.handleRequest(req)

	replyTo := req.ReplyURL
	if replyTo == "" {
		replyTo = msg.PeerURL
	}
	if replyTo == "" {
		return opbox.DoneAndDestroy, fmt.Errorf("dirman: request %d carries no reply address", req.ReqID)
	}

	peer, err := op.mgr.transport.Connect(context.Background(), replyTo)
	if err != nil {
		op.mgr.logger.Error("dirman.reply_connect_failed", "to", replyTo, "err", err)
		return opbox.DoneAndDestroy, err
	}

	_, err = op.mgr.transport.Send(nnti.WorkRequest{
		Peer: peer,
		Data: encodeReply(reply),
		OpID: opbox.OpID("dirman.reply"),
	})
	if err != nil {
		return opbox.DoneAndDestroy, fmt.Errorf("dirman: send reply: %w", err)
	}
	return opbox.DoneAndDestroy, nil
}

// replyOp runs on a non-root node: registered under "dirman.reply", it
// hands the decoded reply to whichever callRoot call is waiting on its
// ReqID, then destroys itself.
type replyOp struct {
	mgr *Manager
}

func (op *replyOp) Update(ut opbox.UpdateType, msg opbox.Message) (opbox.Status, error) {
	reply, err := decodeReply(msg.Payload)
	if err != nil {
		return opbox.DoneAndDestroy, fmt.Errorf("dirman: decode reply: %w", err)
	}

	op.mgr.pendingMu.Lock()
	ch, ok := op.mgr.pending[reply.ReqID]
	op.mgr.pendingMu.Unlock()
	if ok {
		select {
		case ch <- reply:
		default:
		}
	}
	return opbox.DoneAndDestroy, nil
}
