// SPDX-License-Identifier: GPL-3.0-or-later

package fabric

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"
)

// udpFrameType distinguishes a data frame from its acknowledgment, the
// uGNI-analogue's own seq/ack discipline layered over unreliable UDP
// (spec.md §2A: "own seq/ack in mailbox header").
type udpFrameType byte

const (
	udpFrameData udpFrameType = 0
	udpFrameAck  udpFrameType = 1
)

const udpHeaderSize = 1 + 4 // type + sequence number
const udpAckTimeout = 200 * time.Millisecond
const udpMaxRetries = 10

// UDP is the uGNI-analogue fabric: an unreliable datagram transport made
// reliable and ordered by a minimal stop-and-wait sequence/ack scheme
// carried in each frame's own header, rather than relying on the
// underlying socket for delivery guarantees.
type UDP struct{}

var _ Fabric = UDP{}

func (UDP) Name() string { return "udp" }

func (UDP) Listen(addr string) (Listener, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("fabric/udp: resolve: %w", err)
	}
	pc, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("fabric/udp: listen: %w", err)
	}
	return newUDPListener(pc), nil
}

func (UDP) Dial(ctx context.Context, addr string) (Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("fabric/udp: resolve: %w", err)
	}
	pc, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("fabric/udp: dial: %w", err)
	}
	uc := newUDPConn(pc, nil)
	uc.isDirect = true
	go uc.readLoopDirect()
	return uc, nil
}

// udpListener demultiplexes inbound datagrams by source address: the
// first datagram from a new peer spawns a [*udpConn] handed back from
// Accept, matching the connection-oriented shape [Fabric] callers expect.
type udpListener struct {
	pc       *net.UDPConn
	mu       sync.Mutex
	conns    map[string]*udpConn
	pending  chan *udpConn
	closed   chan struct{}
	closeErr error
}

func newUDPListener(pc *net.UDPConn) *udpListener {
	ul := &udpListener{
		pc:      pc,
		conns:   make(map[string]*udpConn),
		pending: make(chan *udpConn, 64),
		closed:  make(chan struct{}),
	}
	go ul.readLoop()
	return ul
}

func (ul *udpListener) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, raddr, err := ul.pc.ReadFromUDP(buf)
		if err != nil {
			close(ul.closed)
			return
		}
		frame := append([]byte(nil), buf[:n]...)

		ul.mu.Lock()
		conn, ok := ul.conns[raddr.String()]
		if !ok {
			conn = newUDPConn(ul.pc, raddr)
			ul.conns[raddr.String()] = conn
			ul.mu.Unlock()
			select {
			case ul.pending <- conn:
			default:
			}
		} else {
			ul.mu.Unlock()
		}
		conn.deliver(frame)
	}
}

func (ul *udpListener) Accept() (Conn, error) {
	select {
	case c := <-ul.pending:
		return c, nil
	case <-ul.closed:
		return nil, fmt.Errorf("fabric/udp: listener closed")
	}
}

func (ul *udpListener) Addr() string { return ul.pc.LocalAddr().String() }
func (ul *udpListener) Close() error { return ul.pc.Close() }

// udpConn is one logical peer conversation multiplexed over a shared or
// dedicated [*net.UDPConn].
type udpConn struct {
	pc    net.PacketConn
	raddr net.Addr

	sendMu  sync.Mutex
	sendSeq uint32
	acks    chan uint32

	recvMu   sync.Mutex
	recvSeq  uint32
	inbox    chan []byte
	isDirect bool // true when pc is a dialed, point-to-point *net.UDPConn
}

func newUDPConn(pc net.PacketConn, raddr net.Addr) *udpConn {
	return &udpConn{
		pc:    pc,
		raddr: raddr,
		acks:  make(chan uint32, 16),
		inbox: make(chan []byte, 64),
	}
}

// deliver is called by the shared listener's read loop (or the dialed
// conn's own loop) for every datagram addressed to this conn.
func (uc *udpConn) deliver(frame []byte) {
	if len(frame) < udpHeaderSize {
		return
	}
	typ := udpFrameType(frame[0])
	seq := binary.LittleEndian.Uint32(frame[1:5])
	payload := frame[udpHeaderSize:]

	switch typ {
	case udpFrameAck:
		select {
		case uc.acks <- seq:
		default:
		}
	case udpFrameData:
		uc.sendAck(seq)
		uc.recvMu.Lock()
		deliver := seq == uc.recvSeq
		if deliver {
			uc.recvSeq++
		}
		uc.recvMu.Unlock()
		if deliver && len(payload) > 0 {
			cp := append([]byte(nil), payload...)
			uc.inbox <- cp
		}
	}
}

func (uc *udpConn) sendAck(seq uint32) {
	frame := make([]byte, udpHeaderSize)
	frame[0] = byte(udpFrameAck)
	binary.LittleEndian.PutUint32(frame[1:5], seq)
	_, _ = uc.writeTo(frame)
}

func (uc *udpConn) writeTo(b []byte) (int, error) {
	if uc.isDirect {
		return uc.pc.(*net.UDPConn).Write(b)
	}
	return uc.pc.WriteTo(b, uc.raddr)
}

func (uc *udpConn) SendFrame(b []byte) error {
	uc.sendMu.Lock()
	defer uc.sendMu.Unlock()

	seq := uc.sendSeq
	uc.sendSeq++

	frame := make([]byte, udpHeaderSize+len(b))
	frame[0] = byte(udpFrameData)
	binary.LittleEndian.PutUint32(frame[1:5], seq)
	copy(frame[udpHeaderSize:], b)

	for attempt := 0; attempt < udpMaxRetries; attempt++ {
		if _, err := uc.writeTo(frame); err != nil {
			return err
		}
		select {
		case got := <-uc.acks:
			if got == seq {
				return nil
			}
			// stale ack from a prior retransmit; the next attempt
			// retransmits and waits again
		case <-time.After(udpAckTimeout):
			continue
		}
	}
	return fmt.Errorf("fabric/udp: no ack for seq %d after %d retries", seq, udpMaxRetries)
}

func (uc *udpConn) RecvFrame() ([]byte, error) {
	b, ok := <-uc.inbox
	if !ok {
		return nil, fmt.Errorf("fabric/udp: connection closed")
	}
	return b, nil
}

// readLoopDirect pumps a dialed (point-to-point) connection's own socket,
// demuxing data frames into the inbox and ack frames into the acks
// channel — the direct-connection counterpart of [udpListener.readLoop].
func (uc *udpConn) readLoopDirect() {
	udpc := uc.pc.(*net.UDPConn)
	buf := make([]byte, 64*1024)
	for {
		n, err := udpc.Read(buf)
		if err != nil {
			close(uc.inbox)
			return
		}
		uc.deliver(buf[:n])
	}
}

func (uc *udpConn) LocalAddr() string {
	return uc.pc.LocalAddr().String()
}

func (uc *udpConn) RemoteAddr() string {
	if uc.raddr != nil {
		return uc.raddr.String()
	}
	if uc.isDirect {
		return uc.pc.(*net.UDPConn).RemoteAddr().String()
	}
	return ""
}

func (uc *udpConn) Close() error {
	if uc.isDirect {
		return uc.pc.Close()
	}
	return nil // shared listener socket outlives any one peer conn
}
