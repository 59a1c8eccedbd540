// SPDX-License-Identifier: GPL-3.0-or-later

package opbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpIDIsStableAndDeterministic(t *testing.T) {
	assert.Equal(t, OpID("ping"), OpID("ping"))
	assert.NotEqual(t, OpID("ping"), OpID("pong"))
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	id := r.Register("ping", func() Op { return &noopOp{} })

	factory, ok := r.Lookup(id)
	require.True(t, ok)
	require.NotNil(t, factory())

	name, ok := r.Name(id)
	require.True(t, ok)
	assert.Equal(t, "ping", name)
}

func TestRegistryLookupUnknownID(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup(0xdeadbeef)
	assert.False(t, ok)
}

func TestRegistryDuplicateNameIsIdempotent(t *testing.T) {
	r := NewRegistry()
	id1 := r.Register("ping", func() Op { return &noopOp{} })
	id2 := r.Register("ping", func() Op { return &noopOp{} })
	assert.Equal(t, id1, id2)
}

type noopOp struct{ updates int }

func (o *noopOp) Update(ut UpdateType, msg Message) (Status, error) {
	o.updates++
	return DoneAndDestroy, nil
}
