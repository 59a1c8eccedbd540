// SPDX-License-Identifier: GPL-3.0-or-later

package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNodeIDDeterministic(t *testing.T) {
	a := NewNodeID("10.0.0.1", 1990)
	b := NewNodeID("10.0.0.1", 1990)
	assert.Equal(t, a, b)
}

func TestNewNodeIDDistinguishesPort(t *testing.T) {
	a := NewNodeID("10.0.0.1", 1990)
	b := NewNodeID("10.0.0.1", 1991)
	assert.NotEqual(t, a, b)
}

func TestNewNodeIDDistinguishesAddress(t *testing.T) {
	a := NewNodeID("10.0.0.1", 1990)
	b := NewNodeID("10.0.0.2", 1990)
	assert.NotEqual(t, a, b)
}

func TestUnspecifiedNodeIDIsSentinel(t *testing.T) {
	assert.True(t, UnspecifiedNodeID.IsUnspecified())
	assert.False(t, NewNodeID("host", 1).IsUnspecified())
}
