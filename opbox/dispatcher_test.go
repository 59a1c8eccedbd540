// SPDX-License-Identifier: GPL-3.0-or-later

package opbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sandialabs/faodel-go/config"
	"github.com/sandialabs/faodel-go/nnti"
	"github.com/sandialabs/faodel-go/nnti/fabric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoOp records every update it receives and finishes after one event.
type echoOp struct {
	mu      sync.Mutex
	updates []UpdateType
	done    chan struct{}
}

func newEchoOp(done chan struct{}) *echoOp {
	return &echoOp{done: done}
}

func (o *echoOp) Update(ut UpdateType, msg Message) (Status, error) {
	o.mu.Lock()
	o.updates = append(o.updates, ut)
	n := len(o.updates)
	o.mu.Unlock()

	if ut == UpdateStart {
		return Waiting, nil
	}
	if o.done != nil && n >= 2 {
		close(o.done)
	}
	return DoneAndDestroy, nil
}

func newTransportPair(t *testing.T, serverAddr, clientAddr string) (server, client *nnti.Transport) {
	t.Helper()
	server = nnti.New(fabric.InProc{}, nil)
	require.NoError(t, server.Init(config.New("inproc.listen_address "+serverAddr)))
	t.Cleanup(func() { _ = server.Finish() })

	client = nnti.New(fabric.InProc{}, nil)
	require.NoError(t, client.Init(config.New("inproc.listen_address "+clientAddr)))
	t.Cleanup(func() { _ = client.Finish() })
	return server, client
}

func TestDispatcherRoutesNewMessageToRegisteredOp(t *testing.T) {
	server, client := newTransportPair(t, "opbox-server-1", "opbox-client-1")

	registry := NewRegistry()
	opID := registry.Register("echo", func() Op { return newEchoOp(nil) })

	d := NewDispatcher(server, registry, nil)
	require.NoError(t, d.Init(config.New("")))
	t.Cleanup(func() { _ = d.Finish() })

	peer, err := client.Connect(context.Background(), "inproc:/opbox-server-1")
	require.NoError(t, err)

	_, err = client.Send(nnti.WorkRequest{Peer: peer, OpID: opID, Length: 0})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return d.ActiveCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "op must be created and parked waiting")
}

func TestDispatcherUnknownOpIDIsIgnored(t *testing.T) {
	server, client := newTransportPair(t, "opbox-server-2", "opbox-client-2")

	registry := NewRegistry()
	d := NewDispatcher(server, registry, nil)
	require.NoError(t, d.Init(config.New("")))
	t.Cleanup(func() { _ = d.Finish() })

	peer, err := client.Connect(context.Background(), "inproc:/opbox-server-2")
	require.NoError(t, err)

	_, err = client.Send(nnti.WorkRequest{Peer: peer, Length: 0})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, d.ActiveCount())
}

func TestDispatcherLaunchLocallyWithoutStorageOnImmediateCompletion(t *testing.T) {
	server := nnti.New(fabric.InProc{}, nil)
	require.NoError(t, server.Init(config.New("inproc.listen_address opbox-server-3")))
	t.Cleanup(func() { _ = server.Finish() })

	registry := NewRegistry()
	registry.Register("immediate", func() Op { return &noopOp{} })

	d := NewDispatcher(server, registry, nil)
	require.NoError(t, d.Init(config.New("")))
	t.Cleanup(func() { _ = d.Finish() })

	mailbox, err := d.Launch("immediate")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), mailbox)
	assert.Equal(t, 0, d.ActiveCount())
}

func TestDispatcherLaunchLocallyParksWaitingOp(t *testing.T) {
	server := nnti.New(fabric.InProc{}, nil)
	require.NoError(t, server.Init(config.New("inproc.listen_address opbox-server-4")))
	t.Cleanup(func() { _ = server.Finish() })

	registry := NewRegistry()
	registry.Register("parked", func() Op { return newEchoOp(nil) })

	d := NewDispatcher(server, registry, nil)
	require.NoError(t, d.Init(config.New("")))
	t.Cleanup(func() { _ = d.Finish() })

	mailbox, err := d.Launch("parked")
	require.NoError(t, err)
	assert.NotEqual(t, uint32(0), mailbox)
	assert.Equal(t, 1, d.ActiveCount())
}

func TestDispatcherDependenciesNameDerivedFromTransport(t *testing.T) {
	server := nnti.New(fabric.TCP{}, nil)
	require.NoError(t, server.Init(config.New("tcp.listen_address 127.0.0.1:0")))
	t.Cleanup(func() { _ = server.Finish() })

	d := NewDispatcher(server, NewRegistry(), nil)
	name, required, _ := d.Dependencies()
	assert.Equal(t, "opbox", name)
	assert.Equal(t, []string{"nnti.tcp"}, required)
}
