// SPDX-License-Identifier: GPL-3.0-or-later

package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryInfoJoinAutoName(t *testing.T) {
	u, err := ParseResourceURL("dir:/teams/red")
	require.NoError(t, err)
	di := NewDirectoryInfo(u, "red team roster", 2)

	name := di.Join(NewNodeID("h1", 1), "")
	assert.NotEmpty(t, name)
	assert.True(t, len(di.Members()) == 1)
}

func TestDirectoryInfoViable(t *testing.T) {
	u, err := ParseResourceURL("dir:/teams/red")
	require.NoError(t, err)
	di := NewDirectoryInfo(u, "", 2)

	assert.False(t, di.Viable())
	di.Join(NewNodeID("h1", 1), "a")
	assert.False(t, di.Viable())
	di.Join(NewNodeID("h2", 2), "b")
	assert.True(t, di.Viable())
}

func TestDirectoryInfoLeaveByNameAndNode(t *testing.T) {
	u, err := ParseResourceURL("dir:/teams/red")
	require.NoError(t, err)
	di := NewDirectoryInfo(u, "", 0)

	n1 := NewNodeID("h1", 1)
	di.Join(n1, "alice")
	n2 := NewNodeID("h2", 2)
	di.Join(n2, "bob")

	assert.True(t, di.LeaveByName("alice"))
	assert.False(t, di.ContainsNode(n1))
	assert.True(t, di.LeaveByNode(n2))
	assert.Len(t, di.Members(), 0)
}
