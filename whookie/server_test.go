// SPDX-License-Identifier: GPL-3.0-or-later

package whookie

import (
	"io"
	"net/http"
	"testing"

	"github.com/sandialabs/faodel-go/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(nil)
	cfg := config.New("whookie.port 0\nwhookie.address 127.0.0.1")
	require.NoError(t, s.Init(cfg))
	t.Cleanup(func() { _ = s.Finish() })
	return s
}

func TestServerBindsAndServesIndex(t *testing.T) {
	s := newTestServer(t)
	assert.NotEmpty(t, s.Addr())
	assert.False(t, s.NodeID().IsUnspecified())

	resp, err := http.Get("http://" + s.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/about")
}

func TestServerUnknownPathIs404(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get("http://" + s.Addr() + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerAboutHookReportsNodeID(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get("http://" + s.Addr() + "/about&format=text")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), s.NodeID().String())
}

func TestServerCustomHookReceivesArgs(t *testing.T) {
	s := newTestServer(t)

	var gotArgs Args
	s.Register("/echo", func(args Args, reply *ReplyStream) {
		gotArgs = args
		reply.Text("ok")
	})

	resp, err := http.Get("http://" + s.Addr() + "/echo&name=bob&format=text")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, "bob", gotArgs["name"])
	assert.Contains(t, string(body), "ok")
}

func TestServerBootstrapsHookWithoutInspector(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get("http://" + s.Addr() + "/bootstraps&format=text")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "no bootstrap registered")
}

func TestServerBootstrapsHookWithInspector(t *testing.T) {
	s := newTestServer(t)
	s.BindBootstrapInspector(func() []string { return []string{"whookie", "nnti"} })

	resp, err := http.Get("http://" + s.Addr() + "/bootstraps&format=text")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "whookie")
	assert.Contains(t, string(body), "nnti")
}
