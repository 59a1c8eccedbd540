// SPDX-License-Identifier: GPL-3.0-or-later

package dirman

import (
	"testing"

	"github.com/sandialabs/faodel-go/common"
	"github.com/sandialabs/faodel-go/config"
	"github.com/sandialabs/faodel-go/nnti"
	"github.com/sandialabs/faodel-go/nnti/fabric"
	"github.com/sandialabs/faodel-go/opbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	transport  *nnti.Transport
	registry   *opbox.Registry
	dispatcher *opbox.Dispatcher
	mgr        *Manager
}

func newRootNode(t *testing.T, addr string) *node {
	t.Helper()
	tr := nnti.New(fabric.InProc{}, nil)
	require.NoError(t, tr.Init(config.New("inproc.listen_address "+addr)))
	t.Cleanup(func() { _ = tr.Finish() })

	reg := opbox.NewRegistry()
	disp := opbox.NewDispatcher(tr, reg, nil)
	require.NoError(t, disp.Init(config.New("")))
	t.Cleanup(func() { _ = disp.Finish() })

	mgr := New(common.NewNodeID(addr, 0), tr, disp, reg, nil)
	require.NoError(t, mgr.Init(config.New("dirman.root true")))

	return &node{transport: tr, registry: reg, dispatcher: disp, mgr: mgr}
}

func newChildNode(t *testing.T, addr, rootURL string) *node {
	t.Helper()
	tr := nnti.New(fabric.InProc{}, nil)
	require.NoError(t, tr.Init(config.New("inproc.listen_address "+addr)))
	t.Cleanup(func() { _ = tr.Finish() })

	reg := opbox.NewRegistry()
	disp := opbox.NewDispatcher(tr, reg, nil)
	require.NoError(t, disp.Init(config.New("")))
	t.Cleanup(func() { _ = disp.Finish() })

	mgr := New(common.NewNodeID(addr, 0), tr, disp, reg, nil)
	require.NoError(t, mgr.Init(config.New("dirman.root false\ndirman.root_url inproc:/"+rootURL)))

	return &node{transport: tr, registry: reg, dispatcher: disp, mgr: mgr}
}

func TestRootDefineAndLookupLocal(t *testing.T) {
	root := newRootNode(t, "dirman-root-1")

	url := mustParse(t, "dir:/teams/alpha")
	_, err := root.mgr.DefineDirectory(url, "team alpha", 1)
	require.NoError(t, err)

	di, err := root.mgr.Lookup(url)
	require.NoError(t, err)
	assert.Equal(t, "team alpha", di.Info)
}

func TestChildDefineDirectoryPublishesToRoot(t *testing.T) {
	root := newRootNode(t, "dirman-root-2")
	child := newChildNode(t, "dirman-child-2", "dirman-root-2")

	url := mustParse(t, "dir:/teams/beta")
	di, err := child.mgr.DefineDirectory(url, "team beta", 2)
	require.NoError(t, err)
	assert.Equal(t, "team beta", di.Info)

	rootDi, err := root.mgr.Lookup(url)
	require.NoError(t, err)
	assert.Equal(t, "team beta", rootDi.Info)
	assert.Equal(t, uint32(2), rootDi.MinMembers)
}

func TestChildLookupHitsOwnerCacheWithoutRoundTrip(t *testing.T) {
	root := newRootNode(t, "dirman-root-3")
	child := newChildNode(t, "dirman-child-3", "dirman-root-3")

	url := mustParse(t, "dir:/teams/gamma")
	_, err := child.mgr.DefineDirectory(url, "team gamma", 1)
	require.NoError(t, err)

	cached, ok := child.mgr.ownerCache.Get(url)
	require.True(t, ok)
	di, err := child.mgr.Lookup(url)
	require.NoError(t, err)
	assert.Same(t, cached, di)
	assert.Equal(t, "team gamma", di.Info)
	_ = root
}

func TestChildLookupUncachedRoundTripsAndPopulatesForeignCache(t *testing.T) {
	root := newRootNode(t, "dirman-root-4")
	child := newChildNode(t, "dirman-child-4", "dirman-root-4")

	url := mustParse(t, "dir:/teams/delta")
	_, err := root.mgr.DefineDirectory(url, "team delta", 3)
	require.NoError(t, err)

	di, err := child.mgr.Lookup(url)
	require.NoError(t, err)
	assert.Equal(t, "team delta", di.Info)
	assert.Equal(t, uint32(3), di.MinMembers)

	_, ok := child.mgr.foreignCache.Get(url)
	assert.True(t, ok, "lookup result must be cached as foreign, not owned")
}

func TestChildLookupUnknownDirectoryFails(t *testing.T) {
	root := newRootNode(t, "dirman-root-5")
	child := newChildNode(t, "dirman-child-5", "dirman-root-5")
	_ = root

	_, err := child.mgr.Lookup(mustParse(t, "dir:/does/not/exist"))
	assert.Error(t, err)
}

func TestChildJoinAndLeaveMediatedByRoot(t *testing.T) {
	root := newRootNode(t, "dirman-root-6")
	child := newChildNode(t, "dirman-child-6", "dirman-root-6")

	url := mustParse(t, "dir:/teams/epsilon")
	_, err := root.mgr.DefineDirectory(url, "team epsilon", 1)
	require.NoError(t, err)

	childNode := common.NewNodeID("dirman-child-6", 0)
	name, err := child.mgr.Join(url, childNode, "")
	require.NoError(t, err)
	assert.NotEmpty(t, name)
	assert.Regexp(t, "^ag", name)

	rootDi, err := root.mgr.Lookup(url)
	require.NoError(t, err)
	assert.True(t, rootDi.ContainsNode(childNode))
	assert.True(t, rootDi.Viable())

	err = child.mgr.Leave(url, childNode)
	require.NoError(t, err)

	rootDi, err = root.mgr.Lookup(url)
	require.NoError(t, err)
	assert.False(t, rootDi.ContainsNode(childNode))
}

func TestResolveParentWalksLineage(t *testing.T) {
	root := newRootNode(t, "dirman-root-7")
	child := newChildNode(t, "dirman-child-7", "dirman-root-7")

	parentURL := mustParse(t, "dir:/teams")
	_, err := root.mgr.DefineDirectory(parentURL, "teams root", 0)
	require.NoError(t, err)

	childURL := mustParse(t, "dir:/teams/zeta/members")
	di, ok := child.mgr.ResolveParent(childURL)
	require.True(t, ok)
	assert.Equal(t, "teams root", di.Info)
}

func TestResolveParentFailsWhenNoAncestorKnown(t *testing.T) {
	root := newRootNode(t, "dirman-root-8")
	child := newChildNode(t, "dirman-child-8", "dirman-root-8")
	_ = root

	_, ok := child.mgr.ResolveParent(mustParse(t, "dir:/nothing/here/at/all"))
	assert.False(t, ok)
}

func TestCallRootOnRootItselfFails(t *testing.T) {
	root := newRootNode(t, "dirman-root-9")
	_, err := root.mgr.callRoot(rpcRequest{Kind: rpcLookup, URL: "dir:/x"})
	assert.Error(t, err)
}
