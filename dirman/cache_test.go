// SPDX-License-Identifier: GPL-3.0-or-later

package dirman

import (
	"testing"

	"github.com/sandialabs/faodel-go/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) common.ResourceURL {
	t.Helper()
	u, err := common.ParseResourceURL(s)
	require.NoError(t, err)
	return u
}

func TestDirectoryCachePutGetDelete(t *testing.T) {
	c := NewDirectoryCache()
	url := mustParse(t, "dir:/team/bucket")
	di := common.NewDirectoryInfo(url, "bucket", 1)

	_, ok := c.Get(url)
	assert.False(t, ok)

	c.Put(url, di)
	got, ok := c.Get(url)
	require.True(t, ok)
	assert.Same(t, di, got)
	assert.Equal(t, 1, c.Len())

	c.Delete(url)
	_, ok = c.Get(url)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestDirectoryCacheURLs(t *testing.T) {
	c := NewDirectoryCache()
	u1 := mustParse(t, "dir:/a")
	u2 := mustParse(t, "dir:/b")
	c.Put(u1, common.NewDirectoryInfo(u1, "", 0))
	c.Put(u2, common.NewDirectoryInfo(u2, "", 0))

	urls := c.URLs()
	assert.ElementsMatch(t, []string{u1.String(), u2.String()}, urls)
}
