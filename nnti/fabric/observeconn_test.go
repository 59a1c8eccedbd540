// SPDX-License-Identifier: GPL-3.0-or-later

package fabric

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingObserver) Debug(msg string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, msg)
}

func (r *recordingObserver) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestObserveConnLogsSendRecvClose(t *testing.T) {
	f := InProc{}
	l, err := f.Listen("observe-node")
	require.NoError(t, err)
	defer l.Close()

	serverConn := make(chan Conn, 1)
	go func() {
		c, err := l.Accept()
		require.NoError(t, err)
		serverConn <- c
	}()

	client, err := f.Dial(t.Context(), "observe-node")
	require.NoError(t, err)
	server := <-serverConn
	defer server.Close()

	obs := &recordingObserver{}
	observed := &ObserveConn{Conn: client, Logger: obs}

	require.NoError(t, observed.SendFrame([]byte("hi")))
	_, err = server.RecvFrame()
	require.NoError(t, err)

	require.NoError(t, observed.Close())
	require.NoError(t, observed.Close()) // idempotent, logs only once

	calls := obs.names()
	assert.Contains(t, calls, "fabric.send_start")
	assert.Contains(t, calls, "fabric.send_done")
	assert.Contains(t, calls, "fabric.close_start")
	assert.Equal(t, 1, countOccurrences(calls, "fabric.close_start"))
}

func countOccurrences(items []string, target string) int {
	n := 0
	for _, it := range items {
		if it == target {
			n++
		}
	}
	return n
}

func TestObserveConnClassifiesErrors(t *testing.T) {
	f := InProc{}
	l, err := f.Listen("observe-node-2")
	require.NoError(t, err)
	defer l.Close()

	client, err := f.Dial(t.Context(), "observe-node-2")
	require.NoError(t, err)

	var classifiedErr error
	obs := &recordingObserver{}
	observed := &ObserveConn{
		Conn:   client,
		Logger: obs,
		ClassifyErr: func(err error) string {
			classifiedErr = err
			return "TESTCLASS"
		},
	}

	require.NoError(t, observed.Close())
	_, err = observed.RecvFrame()
	assert.Error(t, err)
	assert.Error(t, classifiedErr)
}
