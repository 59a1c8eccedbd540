// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"sort"
	"sync"
)

// AccessRecord is one entry in the process-wide access registry: a key
// that some Get* call declared, with its declared type and default.
type AccessRecord struct {
	Key     string
	Type    string
	Default string
}

var (
	registryMu sync.Mutex
	registry   = map[string]AccessRecord{}
)

// recordAccess records key's declared type and default into the
// process-wide registry consumed by the /config Whookie hook. Every Get*
// call on every [Configuration] instance feeds the same registry, matching
// the "process-wide registry" language of spec §4.2 — the set of
// recognized keys is a property of the program, not of one Configuration
// value.
func recordAccess(key, typ string, def any) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[key] = AccessRecord{Key: key, Type: typ, Default: fmt.Sprintf("%v", def)}
}

// RegistrySnapshot returns every key any Get* call has declared so far,
// sorted by key, for display by the /config Whookie hook.
func RegistrySnapshot() []AccessRecord {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]AccessRecord, 0, len(registry))
	for _, rec := range registry {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ResetRegistryForTest clears the process-wide registry. Exposed only for
// tests that assert on an exact registry snapshot.
func ResetRegistryForTest() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = map[string]AccessRecord{}
}
