// SPDX-License-Identifier: GPL-3.0-or-later

package dirman

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sandialabs/faodel-go/common"
	"github.com/sandialabs/faodel-go/config"
	"github.com/sandialabs/faodel-go/internal/logx"
	"github.com/sandialabs/faodel-go/nnti"
	"github.com/sandialabs/faodel-go/opbox"
)

// rootReplyTimeout bounds how long a non-root node waits for the root's
// reply to an OpBox-mediated request before giving up.
const rootReplyTimeout = 5 * time.Second

// Manager is one node's DirMan instance. Exactly one node in a running
// system should be configured as root ("dirman.root true"); every other
// node mediates its lookups, joins, and leaves through it via an OpBox
// request/reply pair registered by Init.
type Manager struct {
	mu       sync.Mutex
	selfNode common.NodeID
	isRoot   bool
	rootURL  string

	rootCache    *DirectoryCache // root only: the single source of truth
	ownerCache   *DirectoryCache // non-root: resources this node defined
	foreignCache *DirectoryCache // non-root: cached lookups of root-owned resources
	ownerOf      map[string]common.NodeID

	transport  *nnti.Transport
	dispatcher *opbox.Dispatcher
	registry   *opbox.Registry
	logger     logx.Logger

	pendingMu sync.Mutex
	pending   map[uint64]chan rpcReply
	nextReqID uint64
}

// New creates a Manager bound to transport/dispatcher/registry. Call
// [Manager.Init] (directly, or via bootstrap) to decide its root/non-root
// role from configuration before use.
func New(selfNode common.NodeID, transport *nnti.Transport, dispatcher *opbox.Dispatcher, registry *opbox.Registry, logger logx.Logger) *Manager {
	if logger == nil {
		logger = logx.Discard()
	}
	return &Manager{
		selfNode:   selfNode,
		transport:  transport,
		dispatcher: dispatcher,
		registry:   registry,
		logger:     logger,
		pending:    make(map[uint64]chan rpcReply),
		ownerOf:    make(map[string]common.NodeID),
	}
}

// Init reads "dirman.root" (default false) and, for a non-root node,
// "dirman.root_url" (the root's nnti rendezvous URL). It registers the
// op this role needs to receive: the root registers "dirman.request",
// every other node registers "dirman.reply".
func (m *Manager) Init(cfg *config.Configuration) error {
	isRoot, err := cfg.GetBool("dirman.root", false)
	if err != nil {
		return fmt.Errorf("dirman: %w", err)
	}
	m.isRoot = isRoot
	// The transport's own NodeID (derived from its bound listen
	// address) is authoritative by the time Init runs, superseding
	// whatever selfNode New() was called with.
	m.selfNode = m.transport.NodeID()

	if m.isRoot {
		m.rootCache = NewDirectoryCache()
		m.registry.Register("dirman.request", func() opbox.Op { return &requestOp{mgr: m} })
		return nil
	}

	m.ownerCache = NewDirectoryCache()
	m.foreignCache = NewDirectoryCache()
	m.rootURL = cfg.GetString("dirman.root_url", "")
	m.registry.Register("dirman.reply", func() opbox.Op { return &replyOp{mgr: m} })
	return nil
}

// Start is a no-op: Init already registered everything needed.
func (m *Manager) Start() error { return nil }

// Finish is a no-op: Manager owns no goroutines or sockets of its own.
func (m *Manager) Finish() error { return nil }

// Dependencies implements bootstrap.Component: dirman rides on opbox's
// dispatch path.
func (m *Manager) Dependencies() (name string, required []string, optional []string) {
	return "dirman", []string{"opbox"}, nil
}

// IsRoot reports whether this Manager is the centralized directory's
// root.
func (m *Manager) IsRoot() bool { return m.isRoot }

// DefineDirectory creates a new directory at url. On a non-root node
// this publishes the definition to the root and also keeps a local
// owner-cache copy (spec §4.6's "two caches" on non-root nodes).
func (m *Manager) DefineDirectory(url common.ResourceURL, info string, minMembers uint32) (*common.DirectoryInfo, error) {
	if m.isRoot {
		di := common.NewDirectoryInfo(url, info, minMembers)
		m.rootCache.Put(url, di)
		return di, nil
	}

	reply, err := m.callRoot(rpcRequest{Kind: rpcDefine, URL: url.String(), Info: info, MinMembers: minMembers})
	if err != nil {
		return nil, err
	}
	if !reply.OK {
		return nil, fmt.Errorf("dirman: %s", reply.Err)
	}

	di := common.NewDirectoryInfo(url, info, minMembers)
	m.ownerCache.Put(url, di)
	m.ownerOf[url.String()] = m.selfNode
	return di, nil
}

// Lookup resolves url. On a non-root node it checks the owner cache,
// then the foreign cache, then asks the root over OpBox and populates
// the foreign cache on success (spec §4.6).
func (m *Manager) Lookup(url common.ResourceURL) (*common.DirectoryInfo, error) {
	if m.isRoot {
		di, ok := m.rootCache.Get(url)
		if !ok {
			return nil, fmt.Errorf("dirman: unknown directory %s", url.String())
		}
		return di, nil
	}

	if di, ok := m.ownerCache.Get(url); ok {
		return di, nil
	}
	if di, ok := m.foreignCache.Get(url); ok {
		return di, nil
	}

	reply, err := m.callRoot(rpcRequest{Kind: rpcLookup, URL: url.String()})
	if err != nil {
		return nil, err
	}
	if !reply.OK {
		return nil, fmt.Errorf("dirman: %s", reply.Err)
	}

	di := directoryInfoFromReply(url, reply)
	m.foreignCache.Put(url, di)
	return di, nil
}

// Join adds node to the directory at url, returning the name actually
// assigned (an auto-generated "ag<hex>" one if name is empty).
func (m *Manager) Join(url common.ResourceURL, node common.NodeID, name string) (string, error) {
	if m.isRoot {
		di, ok := m.rootCache.Get(url)
		if !ok {
			return "", fmt.Errorf("dirman: unknown directory %s", url.String())
		}
		return di.Join(node, name), nil
	}

	reply, err := m.callRoot(rpcRequest{Kind: rpcJoin, URL: url.String(), Node: uint64(node), Name: name})
	if err != nil {
		return "", err
	}
	if !reply.OK {
		return "", fmt.Errorf("dirman: %s", reply.Err)
	}
	m.foreignCache.Delete(url) // next Lookup refetches with fresh membership
	return reply.Name, nil
}

// Leave removes node from the directory at url.
func (m *Manager) Leave(url common.ResourceURL, node common.NodeID) error {
	if m.isRoot {
		di, ok := m.rootCache.Get(url)
		if !ok {
			return fmt.Errorf("dirman: unknown directory %s", url.String())
		}
		di.LeaveByNode(node)
		return nil
	}

	reply, err := m.callRoot(rpcRequest{Kind: rpcLeave, URL: url.String(), Node: uint64(node)})
	if err != nil {
		return err
	}
	if !reply.OK {
		return fmt.Errorf("dirman: %s", reply.Err)
	}
	m.foreignCache.Delete(url)
	return nil
}

// ResolveParent walks url's lineage upward (spec §4.6's "parent
// discovery") until a Lookup succeeds, returning that ancestor's
// directory and true, or false if the lineage is exhausted first.
func (m *Manager) ResolveParent(url common.ResourceURL) (*common.DirectoryInfo, bool) {
	cur := url
	for {
		parent, ok := cur.Parent()
		if !ok {
			return nil, false
		}
		if di, err := m.Lookup(parent); err == nil {
			return di, true
		}
		cur = parent
	}
}

// callRoot sends req to the root over an OpBox-mediated round trip and
// blocks for its reply, up to rootReplyTimeout.
func (m *Manager) callRoot(req rpcRequest) (rpcReply, error) {
	if m.isRoot {
		return rpcReply{}, fmt.Errorf("dirman: callRoot invoked on the root node itself")
	}
	if m.rootURL == "" {
		return rpcReply{}, fmt.Errorf("dirman: no root url configured")
	}

	m.pendingMu.Lock()
	m.nextReqID++
	reqID := m.nextReqID
	ch := make(chan rpcReply, 1)
	m.pending[reqID] = ch
	m.pendingMu.Unlock()
	defer func() {
		m.pendingMu.Lock()
		delete(m.pending, reqID)
		m.pendingMu.Unlock()
	}()

	req.ReqID = reqID
	req.ReplyURL = m.transport.URL()

	peer, err := m.transport.Connect(context.Background(), m.rootURL)
	if err != nil {
		return rpcReply{}, fmt.Errorf("dirman: connect to root: %w", err)
	}

	_, err = m.transport.Send(nnti.WorkRequest{
		Peer: peer,
		Data: encodeRequest(req),
		OpID: opbox.OpID("dirman.request"),
	})
	if err != nil {
		return rpcReply{}, fmt.Errorf("dirman: send to root: %w", err)
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-time.After(rootReplyTimeout):
		return rpcReply{}, fmt.Errorf("dirman: timed out waiting for root's reply")
	}
}

// handleRequest runs on the root node: it applies req to rootCache and
// builds the reply to send back.
func (m *Manager) handleRequest(req rpcRequest) rpcReply {
	url, err := common.ParseResourceURL(req.URL)
	if err != nil {
		return rpcReply{ReqID: req.ReqID, OK: false, Err: err.Error()}
	}

	switch req.Kind {
	case rpcDefine:
		di := common.NewDirectoryInfo(url, req.Info, req.MinMembers)
		m.rootCache.Put(url, di)
		return rpcReply{ReqID: req.ReqID, OK: true, URL: url.String()}

	case rpcLookup:
		di, ok := m.rootCache.Get(url)
		if !ok {
			return rpcReply{ReqID: req.ReqID, OK: false, Err: "dirman: unknown directory " + url.String()}
		}
		return directoryInfoToReply(req.ReqID, di)

	case rpcJoin:
		di, ok := m.rootCache.Get(url)
		if !ok {
			return rpcReply{ReqID: req.ReqID, OK: false, Err: "dirman: unknown directory " + url.String()}
		}
		name := di.Join(common.NodeID(req.Node), req.Name)
		reply := directoryInfoToReply(req.ReqID, di)
		reply.Name = name
		return reply

	case rpcLeave:
		di, ok := m.rootCache.Get(url)
		if !ok {
			return rpcReply{ReqID: req.ReqID, OK: false, Err: "dirman: unknown directory " + url.String()}
		}
		di.LeaveByNode(common.NodeID(req.Node))
		return directoryInfoToReply(req.ReqID, di)

	default:
		return rpcReply{ReqID: req.ReqID, OK: false, Err: "dirman: unknown rpc kind"}
	}
}

func directoryInfoToReply(reqID uint64, di *common.DirectoryInfo) rpcReply {
	members := di.Members()
	wire := make([]memberWire, len(members))
	for i, mem := range members {
		wire[i] = memberWire{Name: mem.Name, Node: uint64(mem.Node)}
	}
	return rpcReply{
		ReqID:      reqID,
		OK:         true,
		URL:        di.URL.String(),
		Info:       di.Info,
		MinMembers: di.MinMembers,
		Members:    wire,
	}
}

func directoryInfoFromReply(url common.ResourceURL, reply rpcReply) *common.DirectoryInfo {
	di := common.NewDirectoryInfo(url, reply.Info, reply.MinMembers)
	for _, w := range reply.Members {
		di.Join(common.NodeID(w.Node), w.Name)
	}
	return di
}
