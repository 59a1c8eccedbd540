// SPDX-License-Identifier: GPL-3.0-or-later

package fabric

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
)

// maxFrameSize bounds a single frame to guard against a corrupt or
// malicious length prefix forcing an enormous allocation.
const maxFrameSize = 64 << 20

// TCP is the verbs-analogue fabric: a reliable, connection-oriented,
// length-prefixed stream transport over plain TCP.
type TCP struct{}

var _ Fabric = TCP{}

func (TCP) Name() string { return "tcp" }

func (TCP) Listen(addr string) (Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("fabric/tcp: listen: %w", err)
	}
	return &tcpListener{l: l}, nil
}

func (TCP) Dial(ctx context.Context, addr string) (Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("fabric/tcp: dial: %w", err)
	}
	return newTCPConn(c), nil
}

type tcpListener struct {
	l net.Listener
}

func (tl *tcpListener) Accept() (Conn, error) {
	c, err := tl.l.Accept()
	if err != nil {
		return nil, err
	}
	return newTCPConn(c), nil
}

func (tl *tcpListener) Addr() string { return tl.l.Addr().String() }
func (tl *tcpListener) Close() error { return tl.l.Close() }

type tcpConn struct {
	c      net.Conn
	r      *bufio.Reader
	sendMu sync.Mutex
}

func newTCPConn(c net.Conn) *tcpConn {
	return &tcpConn{c: c, r: bufio.NewReader(c)}
}

func (tc *tcpConn) SendFrame(b []byte) error {
	tc.sendMu.Lock()
	defer tc.sendMu.Unlock()

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := tc.c.Write(hdr[:]); err != nil {
		return err
	}
	_, err := tc.c.Write(b)
	return err
}

func (tc *tcpConn) RecvFrame() ([]byte, error) {
	var hdr [4]byte
	if _, err := readFull(tc.r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("fabric/tcp: frame too large: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := readFull(tc.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (tc *tcpConn) LocalAddr() string  { return tc.c.LocalAddr().String() }
func (tc *tcpConn) RemoteAddr() string { return tc.c.RemoteAddr().String() }
func (tc *tcpConn) Close() error       { return tc.c.Close() }

// readFull reads exactly len(buf) bytes by looping over r.Read; on a
// short read it returns the count read so far and Read's error.
func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
