// SPDX-License-Identifier: GPL-3.0-or-later

package common

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Member is one (name, node) pair inside a [DirectoryInfo].
type Member struct {
	Name string
	Node NodeID
}

// DirectoryInfo is a DirMan directory record: a named resource with a
// minimum viable member count and its current membership.
//
// DirectoryInfo is safe for concurrent use; all mutating methods take an
// internal lock.
type DirectoryInfo struct {
	mu         sync.Mutex
	URL        ResourceURL
	Info       string
	MinMembers uint32
	members    []Member
}

// NewDirectoryInfo creates a [DirectoryInfo] for url with the given human
// description and minimum viable member count.
func NewDirectoryInfo(url ResourceURL, info string, minMembers uint32) *DirectoryInfo {
	return &DirectoryInfo{URL: url, Info: info, MinMembers: minMembers}
}

// Members returns a snapshot of the current membership.
func (d *DirectoryInfo) Members() []Member {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Member, len(d.members))
	copy(out, d.members)
	return out
}

// Viable reports whether the directory has at least MinMembers members.
func (d *DirectoryInfo) Viable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint32(len(d.members)) >= d.MinMembers
}

// Join adds node to the directory under name, auto-generating a name of the
// form "ag<hex>" when name is empty. It returns the name actually used.
func (d *DirectoryInfo) Join(node NodeID, name string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name == "" {
		name = autoGeneratedName()
	}
	for i, m := range d.members {
		if m.Name == name {
			d.members[i].Node = node
			return name
		}
	}
	d.members = append(d.members, Member{Name: name, Node: node})
	return name
}

// LeaveByName removes the member with the given name, if present.
func (d *DirectoryInfo) LeaveByName(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, m := range d.members {
		if m.Name == name {
			d.members = append(d.members[:i], d.members[i+1:]...)
			return true
		}
	}
	return false
}

// LeaveByNode removes the member with the given node id, if present.
func (d *DirectoryInfo) LeaveByNode(node NodeID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, m := range d.members {
		if m.Node == node {
			d.members = append(d.members[:i], d.members[i+1:]...)
			return true
		}
	}
	return false
}

// ContainsNode reports whether node is currently a member.
func (d *DirectoryInfo) ContainsNode(node NodeID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.members {
		if m.Node == node {
			return true
		}
	}
	return false
}

// autoGeneratedName returns a unique "ag<hex>" style member name.
func autoGeneratedName() string {
	return fmt.Sprintf("ag%s", uuid.NewString()[:8])
}
