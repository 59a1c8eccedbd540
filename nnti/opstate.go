// SPDX-License-Identifier: GPL-3.0-or-later

package nnti

import "sync"

// SendState enumerates the command-send op state machine of spec §4.4.3.
type SendState int

const (
	SendInit SendState = iota
	SendExecuteSend
	SendNeedCredits
	SendWaitCredits
	SendNeedComplete
	SendWaitComplete
	SendWaitRDMAAck // only for non-eager (rendezvous) sends
	SendIssueEvent
	SendCleanup
	SendDone
)

// TargetState enumerates the command-target op state machine of
// spec §4.4.3.
type TargetState int

const (
	TargetInit TargetState = iota
	TargetUnpack
	TargetPushUnexpected
	TargetNeedUnexpectedRetrieval
	TargetWaitUnexpectedRetrieval
	TargetUnexpectedCopyIn
	TargetEagerCopyIn
	TargetIssueEagerEvent
	// TargetLongGet is Run's terminal state for any non-eager transfer:
	// Transport.beginLongGet/handleLongGetData drive the rest (pull-GET,
	// assembly, event, ack) outside this state machine.
	TargetLongGet
	TargetCleanup
	TargetDone
)

// commandSendOp drives one outbound send through [SendState], guarded by
// a per-op mutex that is released around the onDone completion callback
// so that callback cannot deadlock against it (spec §4.4.3).
type commandSendOp struct {
	mu      sync.Mutex
	state   SendState
	wid     WID
	eager   bool
	credits *CreditTracker
	doSend  func() error // issues the framed send; called from EXECUTE_SEND
	onDone  func(error)
}

// Update advances the state machine. It is re-entrant safe: a transition
// that cannot proceed synchronously (SendNeedCredits with no credit
// available) returns after registering a resume callback, and the next
// Update call (from [CreditTracker.ReleaseSend]'s drain) continues from
// where it left off.
func (op *commandSendOp) Update() error {
	op.mu.Lock()
	defer op.mu.Unlock()

	for {
		switch op.state {
		case SendInit:
			op.state = SendExecuteSend

		case SendExecuteSend:
			if op.credits != nil && !op.credits.TryAcquireSend(func() {
				op.mu.Lock()
				// ReleaseSend's drain already consumed a credit for this op
				op.state = SendNeedComplete
				op.mu.Unlock()
				_ = op.Update()
			}) {
				op.state = SendWaitCredits
				return nil
			}
			op.state = SendNeedComplete

		case SendWaitCredits:
			// resumed externally by the credit tracker's waitlist drain
			return nil

		case SendNeedComplete:
			err := op.doSend()
			if err != nil {
				op.state = SendCleanup
				op.finish(err)
				return err
			}
			op.state = SendWaitComplete

		case SendWaitComplete:
			if !op.eager {
				op.state = SendWaitRDMAAck
				return nil // next Update comes from the LONG_GET_ACK arrival
			}
			op.state = SendIssueEvent

		case SendWaitRDMAAck:
			op.state = SendIssueEvent

		case SendIssueEvent:
			op.state = SendCleanup

		case SendCleanup:
			op.finish(nil)
			op.state = SendDone
			return nil

		case SendDone:
			return nil
		}
	}
}

func (op *commandSendOp) finish(err error) {
	if op.onDone != nil {
		cb := op.onDone
		op.onDone = nil
		op.mu.Unlock()
		cb(err)
		op.mu.Lock()
	}
}

// AckRDMA signals that the peer's LONG_GET_ACK arrived, resuming a send
// parked at SendWaitRDMAAck.
func (op *commandSendOp) AckRDMA() {
	op.mu.Lock()
	if op.state == SendWaitRDMAAck {
		op.state = SendIssueEvent
	}
	op.mu.Unlock()
	_ = op.Update()
}

// commandTargetOp drives one inbound message through [TargetState].
type commandTargetOp struct {
	mu    sync.Mutex
	state TargetState
	slot  CommandSlot
	eager bool
}

// Run classifies an inbound message and advances through the
// bookkeeping states that happen synchronously: unpack, then either an
// eager copy-in/unexpected-queue transition straight to Done, or — for
// a non-eager (rendezvous) transfer — a stop at TargetLongGet. The
// caller (Transport.handleFrame) drives everything past TargetLongGet:
// it issues the pull-GET, assembles the full payload once the middle
// fragment arrives, and only then reaches Cleanup/Done.
func (op *commandTargetOp) Run(expected bool, slotSize int) TargetState {
	op.mu.Lock()
	defer op.mu.Unlock()

	op.state = TargetUnpack
	op.eager = op.slot.Eager(slotSize)

	if !op.eager {
		op.state = TargetLongGet
		return op.state
	}

	if !expected {
		op.state = TargetPushUnexpected
		op.state = TargetNeedUnexpectedRetrieval
		op.state = TargetWaitUnexpectedRetrieval
		op.state = TargetUnexpectedCopyIn
		op.state = TargetCleanup
		op.state = TargetDone
		return op.state
	}

	op.state = TargetEagerCopyIn
	op.state = TargetIssueEagerEvent
	op.state = TargetCleanup
	op.state = TargetDone
	return op.state
}
