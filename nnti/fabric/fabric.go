// SPDX-License-Identifier: GPL-3.0-or-later

// Package fabric provides the pluggable transport layer under nnti: a
// shared interface realized by three pure-Go fabrics standing in for the
// original implementation's hardware bindings (verbs, uGNI, MPI).
//
// tcpfabric is the verbs analogue (reliable, connection-oriented),
// udpfabric is the uGNI analogue (unreliable datagram, own sequencing),
// and inprocfabric is the MPI analogue (same-process channel transport,
// useful for single-binary tests and demos).
package fabric

import (
	"context"
)

// Fabric dials and listens for framed connections. Every exchange on a
// [Conn] is a single length-prefixed frame; nnti layers the mailbox
// protocol (credit-based slots) on top.
type Fabric interface {
	// Name identifies the fabric, e.g. "tcp", "udp", "inproc".
	Name() string

	// Listen binds addr (host:port, or an inproc name) and returns a
	// [Listener] accepting inbound [Conn]s.
	Listen(addr string) (Listener, error)

	// Dial connects to addr, returning a ready [Conn].
	Dial(ctx context.Context, addr string) (Conn, error)
}

// Listener accepts inbound fabric connections.
type Listener interface {
	Accept() (Conn, error)
	Addr() string
	Close() error
}

// Conn is one established, bidirectional framed connection.
type Conn interface {
	// SendFrame writes one length-prefixed frame. Safe for concurrent use
	// with RecvFrame but not with itself (callers serialize sends, as
	// nnti's per-connection send path already does via the waitlist).
	SendFrame(b []byte) error

	// RecvFrame blocks for the next frame.
	RecvFrame() ([]byte, error)

	LocalAddr() string
	RemoteAddr() string
	Close() error
}
