// SPDX-License-Identifier: GPL-3.0-or-later

package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResourceURLRoundTrip(t *testing.T) {
	u, err := ParseResourceURL("dir:/teams/red/mailroom?k1=v1&k2=v2")
	require.NoError(t, err)

	assert.Equal(t, "dir", u.Kind)
	assert.Equal(t, "/teams/red", u.Path)
	assert.Equal(t, "mailroom", u.Leaf)
	v, ok := u.GetOption("k1")
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	assert.Equal(t, "dir:/teams/red/mailroom?k1=v1&k2=v2", u.String())
}

func TestParseResourceURLRequiresAbsolutePath(t *testing.T) {
	_, err := ParseResourceURL("dir:teams/red")
	assert.Error(t, err)
}

func TestParseResourceURLRequiresKind(t *testing.T) {
	_, err := ParseResourceURL("/teams/red")
	assert.Error(t, err)
}

func TestResourceURLParentLineage(t *testing.T) {
	u, err := ParseResourceURL("dir:/a/b/c")
	require.NoError(t, err)

	parent, ok := u.Parent()
	require.True(t, ok)
	assert.Equal(t, "dir:/a/b", parent.String())

	grandparent, ok := parent.Parent()
	require.True(t, ok)
	assert.Equal(t, "dir:/a", grandparent.String())

	root, ok := grandparent.Parent()
	require.True(t, ok)
	assert.Equal(t, "dir:/", root.String())

	_, ok = root.Parent()
	assert.False(t, ok, "root has no parent")
}

func TestResourceURLOptionAddRemove(t *testing.T) {
	u, err := ParseResourceURL("pool:/x/y")
	require.NoError(t, err)

	u.SetOption("min", "3")
	v, ok := u.GetOption("min")
	require.True(t, ok)
	assert.Equal(t, "3", v)

	u.RemoveOption("min")
	_, ok = u.GetOption("min")
	assert.False(t, ok)
}
