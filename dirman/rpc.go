// SPDX-License-Identifier: GPL-3.0-or-later

package dirman

import "encoding/json"

// rpcKind selects which DirectoryCache operation a request asks the
// root to perform.
type rpcKind uint8

const (
	rpcDefine rpcKind = iota
	rpcLookup
	rpcJoin
	rpcLeave
)

// memberWire is the wire form of a common.Member.
type memberWire struct {
	Name string
	Node uint64
}

// rpcRequest is the JSON payload carried inside an nnti eager send from
// a non-root node to the root's "dirman.request" op. JSON is used here
// (rather than the fixed-layout encoding/binary scheme mailbox headers
// use) because this is a variable-shape application-level message with
// no wire-format mandated by spec §4.6 — see DESIGN.md.
type rpcRequest struct {
	ReqID      uint64
	Kind       rpcKind
	URL        string
	Info       string
	MinMembers uint32
	Node       uint64
	Name       string
	ReplyURL   string // requester's own rendezvous URL, for the reply
}

// rpcReply is the JSON payload the root sends back to "dirman.reply".
type rpcReply struct {
	ReqID      uint64
	OK         bool
	Err        string
	URL        string
	Info       string
	MinMembers uint32
	Members    []memberWire
	Name       string
}

func encodeRequest(r rpcRequest) []byte {
	b, _ := json.Marshal(r)
	return b
}

func decodeRequest(b []byte) (rpcRequest, error) {
	var r rpcRequest
	err := json.Unmarshal(b, &r)
	return r, err
}

func encodeReply(r rpcReply) []byte {
	b, _ := json.Marshal(r)
	return b
}

func decodeReply(b []byte) (rpcReply, error) {
	var r rpcReply
	err := json.Unmarshal(b, &r)
	return r, err
}
