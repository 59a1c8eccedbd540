// SPDX-License-Identifier: GPL-3.0-or-later

package nnti

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/sandialabs/faodel-go/config"
	"github.com/sandialabs/faodel-go/nnti/fabric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectedPair(t *testing.T, serverAddr, clientAddr string) (server, client *Transport, peer *Peer) {
	t.Helper()
	server = newTestTransport(t, serverAddr)
	client = New(fabric.InProc{}, nil)
	require.NoError(t, client.Init(config.New("inproc.listen_address "+clientAddr)))
	t.Cleanup(func() { _ = client.Finish() })

	p, err := client.Connect(context.Background(), "inproc:/"+serverAddr)
	require.NoError(t, err)
	return server, client, p
}

func makeSourceBytes(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i)
	}
	return out
}

func TestTransportRendezvousSendDeliversExactBytesToRegisteredBuffer(t *testing.T) {
	server, client, peer := connectedPair(t, "rdv-server-1", "rdv-client-1")

	dst, err := server.Alloc(4096, BufferWritable)
	require.NoError(t, err)

	src := makeSourceBytes(4096)
	_, err = client.Put(WorkRequest{
		Peer:         peer,
		Data:         src,
		RemoteBuffer: dst,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ev, ok := EQWait(server.RecvEventQueue(), 50*time.Millisecond)
		if !ok {
			return false
		}
		return ev.Type == EventRecvComplete
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, src, dst.data)
}

func TestTransportRendezvousUnexpectedDeliversExactBytes(t *testing.T) {
	server, client, peer := connectedPair(t, "rdv-server-2", "rdv-client-2")

	var got []byte
	done := make(chan struct{})
	server.BindUnexpectedHandler(func(_ *Peer, slot CommandSlot) {
		got = append([]byte(nil), slot.Payload...)
		close(done)
	})

	src := makeSourceBytes(3000)
	_, err := client.Send(WorkRequest{Peer: peer, Data: src})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for unexpected rendezvous delivery")
	}
	assert.Equal(t, src, got)
}

func TestTransportGetPullsRemoteBufferContents(t *testing.T) {
	server, client, peer := connectedPair(t, "rdv-server-3", "rdv-client-3")

	remote, err := server.Alloc(64, BufferReadable)
	require.NoError(t, err)
	copy(remote.data, []byte("the quick brown fox jumps over the lazy dog...."))

	local, err := client.Alloc(64, BufferWritable)
	require.NoError(t, err)

	_, err = client.Get(WorkRequest{Peer: peer, RemoteBuffer: remote, LocalBuffer: local, Length: 64})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ev, ok := EQWait(client.SendEventQueue(), 50*time.Millisecond)
		return ok && ev.Type == EventRDMAComplete
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, remote.data, local.data)
}

func TestTransportAtomicFOPAddsToRemoteValue(t *testing.T) {
	server, client, peer := connectedPair(t, "rdv-server-4", "rdv-client-4")

	remote, err := server.Alloc(8, BufferAtomic)
	require.NoError(t, err)
	binary.LittleEndian.PutUint64(remote.data, 10)

	_, err = client.AtomicFOP(WorkRequest{Peer: peer, RemoteBuffer: remote, Operand1: 5})
	require.NoError(t, err)

	var ev Event
	require.Eventually(t, func() bool {
		e, ok := EQWait(client.SendEventQueue(), 50*time.Millisecond)
		if ok && e.Type == EventAtomicComplete {
			ev = e
			return true
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	assert.NoError(t, ev.Err)
	assert.Equal(t, uint64(10), ev.Result, "atomic_fop must report the pre-update value")
	assert.Equal(t, uint64(15), binary.LittleEndian.Uint64(remote.data))
}

func TestTransportAtomicCSwapOnlySwapsWhenCompareMatches(t *testing.T) {
	server, client, peer := connectedPair(t, "rdv-server-5", "rdv-client-5")

	remote, err := server.Alloc(8, BufferAtomic)
	require.NoError(t, err)
	binary.LittleEndian.PutUint64(remote.data, 42)

	_, err = client.AtomicCSwap(WorkRequest{Peer: peer, RemoteBuffer: remote, Operand1: 99, Operand2: 7})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ev, ok := EQWait(client.SendEventQueue(), 50*time.Millisecond)
		return ok && ev.Type == EventAtomicComplete
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, uint64(42), binary.LittleEndian.Uint64(remote.data), "compare mismatch must leave the value untouched")
}

func TestTransportNextUnexpectedPollsWithoutHandler(t *testing.T) {
	server := newTestTransport(t, "rdv-server-6")
	client := New(fabric.InProc{}, nil)
	require.NoError(t, client.Init(config.New("inproc.listen_address rdv-client-6")))
	t.Cleanup(func() { _ = client.Finish() })

	peer, err := client.Connect(context.Background(), "inproc:/rdv-server-6")
	require.NoError(t, err)

	_, err = client.Send(WorkRequest{Peer: peer, Data: []byte("poll me")})
	require.NoError(t, err)

	var slot CommandSlot
	var ok bool
	require.Eventually(t, func() bool {
		slot, ok = server.NextUnexpected()
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte("poll me"), slot.Payload)
}

func TestTransportCancelAllDropsPendingGetCompletion(t *testing.T) {
	server, client, peer := connectedPair(t, "rdv-server-7", "rdv-client-7")

	remote, err := server.Alloc(16, BufferReadable)
	require.NoError(t, err)
	local, err := client.Alloc(16, BufferWritable)
	require.NoError(t, err)

	_, err = client.Get(WorkRequest{Peer: peer, RemoteBuffer: remote, LocalBuffer: local, Length: 16})
	require.NoError(t, err)
	client.CancelAll()

	assert.Empty(t, client.pendingGetCompletions)
}

func TestTransportBufferMapRegistrationReachableFromAlloc(t *testing.T) {
	tr := newTestTransport(t, "rdv-server-8")
	buf, err := tr.Alloc(32, BufferWritable)
	require.NoError(t, err)

	found, ok := tr.buffers.Lookup(buf.BaseAddr)
	require.True(t, ok)
	assert.Same(t, buf, found)

	require.NoError(t, tr.Free(buf))
	_, ok = tr.buffers.Lookup(buf.BaseAddr)
	assert.False(t, ok)
}

func TestTransportDTUnpackResolvesAgainstLocalRegistration(t *testing.T) {
	tr := newTestTransport(t, "rdv-server-9")
	buf, err := tr.Alloc(32, BufferWritable)
	require.NoError(t, err)

	resolved, err := tr.DTUnpack(PackHandle(buf))
	require.NoError(t, err)
	assert.Same(t, buf, resolved)
}
