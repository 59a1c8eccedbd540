// SPDX-License-Identifier: GPL-3.0-or-later

package spanid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsVersion7(t *testing.T) {
	id := New()

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestNewUniqueness(t *testing.T) {
	const count = 100
	seen := make(map[string]struct{}, count)

	for range count {
		id := New()
		_, duplicate := seen[id]
		require.False(t, duplicate, "duplicate span id generated: %s", id)
		seen[id] = struct{}{}
	}
}
