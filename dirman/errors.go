// SPDX-License-Identifier: GPL-3.0-or-later

package dirman

import "errors"

// ErrNotSupported is returned by every entry point of the distributed
// DirMan variant. Only the centralized variant is implemented here
// (SPEC_FULL.md §4.6's resolved Open Question), matching the original's
// DirManCoreUnconfigured behavior for a core that was never wired in.
var ErrNotSupported = errors.New("dirman: distributed variant not supported")

// NewDistributed always fails with [ErrNotSupported]; it exists so
// callers that branch on a configured "dirman.core" value have a named
// symbol to call instead of silently falling back to centralized
// behavior.
func NewDistributed() (*Manager, error) {
	return nil, ErrNotSupported
}
