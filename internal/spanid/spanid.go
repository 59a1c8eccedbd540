// SPDX-License-Identifier: GPL-3.0-or-later

// Package spanid generates correlation identifiers for log spans.
package spanid

import "github.com/google/uuid"

// New returns a UUIDv7 string uniquely identifying a span.
//
// A span is a sequence of operations that can fail in a single, specific
// way — for example, a connection's establishment, or a single op's
// state-machine run from INIT to DONE. Attach the returned id to a logger
// with slog.Logger.With("spanID", spanid.New()) so every log line emitted
// while driving the span can be correlated.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Only fails if the system random source is broken; callers cannot
		// meaningfully recover, so fall back to the nil UUID rather than panic.
		return uuid.Nil.String()
	}
	return id.String()
}
