// SPDX-License-Identifier: GPL-3.0-or-later

// Package config implements the flat, hierarchical key-value configuration
// store shared by every faodel-go component: case-insensitive keys, typed
// accessors, role-prefixed override lookup, and file/environment reference
// expansion.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is a flat key-value store with typed accessors.
//
// Keys follow the "[role.]component.sub.option" convention. At lookup
// time, [Configuration.lookup] tries the caller's key with the active
// node role prepended, then without the role, then with the leading
// component segment stripped — enabling per-role overrides without
// requiring every caller to know about roles.
//
// Configuration has no internal locking: Append, SetNodeRole and
// AppendFromReferences write its maps unguarded, so it is not safe for
// concurrent use while any of them may run.
type Configuration struct {
	values                  map[string]string
	lists                   map[string][]string
	nodeRole                string
	referencesExpanded      bool
	additionalFilesExpanded map[string]bool
}

// New creates a [Configuration] seeded from a literal configuration-file
// string (the priority-2 source of §4.2: higher priority than accessor
// defaults, lower than file/environment references).
func New(literal string) *Configuration {
	c := &Configuration{
		values:                  make(map[string]string),
		lists:                   make(map[string][]string),
		additionalFilesExpanded: make(map[string]bool),
	}
	if literal != "" {
		_ = c.Append(literal)
	}
	return c
}

// SetNodeRole sets the active node role used for role-prefixed lookup.
func (c *Configuration) SetNodeRole(role string) {
	c.nodeRole = strings.ToLower(role)
}

// NodeRole returns the active node role, or "" if none was set.
func (c *Configuration) NodeRole() string {
	return c.nodeRole
}

// Append parses literal (the §6 line-oriented file syntax) and merges it
// into c, with later Append calls overriding earlier ones key-for-key.
//
// Lines are either "key value" (a plain set) or "key.[] value" (append to
// a multi-value list retrievable with [Configuration.GetStringSlice]).
// Blank lines and lines starting with '#' are ignored.
func (c *Configuration) Append(literal string) error {
	for i, rawLine := range strings.Split(literal, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := splitKeyValue(line)
		if !ok {
			return fmt.Errorf("config: malformed line %d: %q", i+1, rawLine)
		}
		if strings.HasSuffix(key, ".[]") {
			base := strings.ToLower(strings.TrimSuffix(key, ".[]"))
			c.lists[base] = append(c.lists[base], value)
			continue
		}
		c.values[strings.ToLower(key)] = value
	}
	return nil
}

// splitKeyValue splits a whitespace-separated "key value" line. The value
// may itself contain whitespace (e.g. a sentence); only the first run of
// whitespace is treated as the separator.
func splitKeyValue(line string) (key, value string, ok bool) {
	idx := strings.IndexAny(line, " \t")
	if idx < 0 {
		return line, "", true // a bare key means an empty-string value
	}
	key = line[:idx]
	value = strings.TrimSpace(line[idx+1:])
	return key, value, true
}

// lookup resolves key through the role-prefix chain described in §4.2:
// "<role>.<key>", then "<key>", then "<key-with-leading-segment-stripped>".
func (c *Configuration) lookup(key string) (string, bool) {
	key = strings.ToLower(key)
	if c.nodeRole != "" {
		if v, ok := c.values[c.nodeRole+"."+key]; ok {
			return v, true
		}
	}
	if v, ok := c.values[key]; ok {
		return v, true
	}
	if idx := strings.IndexByte(key, '.'); idx >= 0 {
		if v, ok := c.values[key[idx+1:]]; ok {
			return v, true
		}
	}
	return "", false
}

// GetString returns the string value of key, or def if absent.
func (c *Configuration) GetString(key, def string) string {
	v, ok := c.lookup(key)
	recordAccess(key, "string", def)
	if !ok {
		return def
	}
	return v
}

// GetStringSlice returns the accumulated "key.[] value" list for key.
func (c *Configuration) GetStringSlice(key string) []string {
	recordAccess(key, "[]string", nil)
	out := c.lists[strings.ToLower(key)]
	cp := make([]string, len(out))
	copy(cp, out)
	return cp
}

// GetBool returns the boolean value of key, or def if absent or malformed.
func (c *Configuration) GetBool(key string, def bool) (bool, error) {
	recordAccess(key, "bool", def)
	v, ok := c.lookup(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("config: key %q: %w", key, err)
	}
	return b, nil
}

// GetUInt returns the unsigned integer value of key, or def if absent or malformed.
func (c *Configuration) GetUInt(key string, def uint64) (uint64, error) {
	recordAccess(key, "uint", def)
	v, ok := c.lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def, fmt.Errorf("config: key %q: %w", key, err)
	}
	return n, nil
}

// GetInt returns the signed integer value of key, or def if absent or malformed.
func (c *Configuration) GetInt(key string, def int64) (int64, error) {
	recordAccess(key, "int", def)
	v, ok := c.lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def, fmt.Errorf("config: key %q: %w", key, err)
	}
	return n, nil
}

// GetDuration returns the [time.Duration] value of key (Go duration syntax,
// e.g. "5s", "250ms"), or def if absent or malformed.
func (c *Configuration) GetDuration(key string, def time.Duration) (time.Duration, error) {
	recordAccess(key, "duration", def)
	v, ok := c.lookup(key)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("config: key %q: %w", key, err)
	}
	return d, nil
}

// GetSize returns a byte-count value of key, accepting a "k"/"m"/"g"
// (case-insensitive) power-of-1024 suffix, or def if absent or malformed.
func (c *Configuration) GetSize(key string, def uint64) (uint64, error) {
	recordAccess(key, "size", def)
	v, ok := c.lookup(key)
	if !ok {
		return def, nil
	}
	n, err := parseSize(v)
	if err != nil {
		return def, fmt.Errorf("config: key %q: %w", key, err)
	}
	return n, nil
}

func parseSize(v string) (uint64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := uint64(1)
	last := v[len(v)-1]
	switch last {
	case 'k', 'K':
		mult = 1 << 10
		v = v[:len(v)-1]
	case 'm', 'M':
		mult = 1 << 20
		v = v[:len(v)-1]
	case 'g', 'G':
		mult = 1 << 30
		v = v[:len(v)-1]
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}

// AppendFromReferences expands config.additional_files (a literal list)
// and config.additional_files.<name>.if_defined = VAR rules (conditional
// on an environment variable) into c, reading each referenced file's
// contents as a further [Configuration.Append] call.
//
// It runs the expansion exactly once; subsequent calls are no-ops, so
// bootstrap.Init can call it unconditionally across reference-counted
// Init cycles.
func (c *Configuration) AppendFromReferences() error {
	if c.referencesExpanded {
		return nil
	}
	c.referencesExpanded = true

	for _, path := range c.GetStringSlice("config.additional_files") {
		if err := c.appendFile(path); err != nil {
			return err
		}
	}

	envRulePrefix := "config.additional_files."
	envRuleSuffix := ".if_defined"
	for key, value := range c.values {
		if !strings.HasPrefix(key, envRulePrefix) || !strings.HasSuffix(key, envRuleSuffix) {
			continue
		}
		envVar := value
		path, defined := os.LookupEnv(envVar)
		if !defined || path == "" {
			continue
		}
		if err := c.appendFile(path); err != nil {
			return err
		}
	}
	return nil
}

func (c *Configuration) appendFile(path string) error {
	if c.additionalFilesExpanded[path] {
		return nil
	}
	c.additionalFilesExpanded[path] = true
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading additional file %q: %w", path, err)
	}
	return c.Append(string(data))
}
