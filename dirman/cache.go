// SPDX-License-Identifier: GPL-3.0-or-later

// Package dirman implements the centralized directory manager of spec
// §4.6: a root node holds the single DirectoryCache of record, every
// other node keeps an owner cache and a foreign cache and asks the root
// (mediated by opbox) for anything not already local.
package dirman

import (
	"sync"

	"github.com/sandialabs/faodel-go/common"
)

// DirectoryCache maps a resource URL to its [common.DirectoryInfo]. The
// same type backs the root's single source of truth, a non-root node's
// owner cache, and its foreign-resource cache.
type DirectoryCache struct {
	mu   sync.RWMutex
	dirs map[string]*common.DirectoryInfo
}

// NewDirectoryCache returns an empty cache.
func NewDirectoryCache() *DirectoryCache {
	return &DirectoryCache{dirs: make(map[string]*common.DirectoryInfo)}
}

// Put stores info under url, replacing any previous entry.
func (c *DirectoryCache) Put(url common.ResourceURL, info *common.DirectoryInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirs[url.String()] = info
}

// Get returns the cached entry for url, if any.
func (c *DirectoryCache) Get(url common.ResourceURL) (*common.DirectoryInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.dirs[url.String()]
	return d, ok
}

// Delete removes url's entry, if present.
func (c *DirectoryCache) Delete(url common.ResourceURL) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.dirs, url.String())
}

// Len reports the number of cached entries.
func (c *DirectoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.dirs)
}

// URLs returns the (unordered) set of cached URL strings.
func (c *DirectoryCache) URLs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.dirs))
	for k := range c.dirs {
		out = append(out, k)
	}
	return out
}
