// SPDX-License-Identifier: GPL-3.0-or-later

package common

import (
	"fmt"
	"strings"
)

// ResourceURL names a resource as "<kind>:/<path>/<leaf>?<k=v>&<k=v>...".
//
// Kind tags the resource type (e.g. "dir", "dht", "pool"); Path is the
// hierarchical portion up to but excluding the final segment; Leaf is the
// final path segment. Options are unordered k=v pairs preserved in
// insertion order for stable round-tripping.
type ResourceURL struct {
	Kind    string
	Path    string
	Leaf    string
	options map[string]string
	order   []string
}

// ParseResourceURL parses s into a [ResourceURL].
//
// s must contain a kind, a ':', and an absolute path starting with '/'.
// An error is returned for any other shape.
func ParseResourceURL(s string) (ResourceURL, error) {
	var u ResourceURL
	colon := strings.IndexByte(s, ':')
	if colon < 0 {
		return u, fmt.Errorf("common: resource url %q missing kind separator ':'", s)
	}
	u.Kind = s[:colon]
	rest := s[colon+1:]

	if rest == "" || rest[0] != '/' {
		return u, fmt.Errorf("common: resource url %q path must start with '/'", s)
	}

	pathAndOpts := rest
	optIdx := strings.IndexByte(rest, '?')
	if optIdx >= 0 {
		pathAndOpts = rest[:optIdx]
		if err := u.parseOptions(rest[optIdx+1:]); err != nil {
			return ResourceURL{}, err
		}
	}

	trimmed := strings.TrimSuffix(pathAndOpts, "/")
	if trimmed == "" {
		trimmed = "/"
	}
	lastSlash := strings.LastIndexByte(trimmed, '/')
	u.Path = trimmed[:lastSlash]
	u.Leaf = trimmed[lastSlash+1:]
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

func (u *ResourceURL) parseOptions(s string) error {
	if s == "" {
		return nil
	}
	for _, kv := range strings.Split(s, "&") {
		if kv == "" {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			return fmt.Errorf("common: resource url option %q missing '='", kv)
		}
		u.SetOption(kv[:eq], kv[eq+1:])
	}
	return nil
}

// SetOption adds or overwrites an option, preserving first-seen insertion order.
func (u *ResourceURL) SetOption(key, value string) {
	if u.options == nil {
		u.options = make(map[string]string)
	}
	if _, exists := u.options[key]; !exists {
		u.order = append(u.order, key)
	}
	u.options[key] = value
}

// GetOption returns the value for key and whether it was present.
func (u ResourceURL) GetOption(key string) (string, bool) {
	v, ok := u.options[key]
	return v, ok
}

// RemoveOption deletes key from the option set, if present.
func (u *ResourceURL) RemoveOption(key string) {
	if _, ok := u.options[key]; !ok {
		return
	}
	delete(u.options, key)
	for i, k := range u.order {
		if k == key {
			u.order = append(u.order[:i], u.order[i+1:]...)
			break
		}
	}
}

// Options returns a copy of the option set as a map; its iteration order
// is not defined (String is what emits options in insertion order).
func (u ResourceURL) Options() map[string]string {
	out := make(map[string]string, len(u.options))
	for k, v := range u.options {
		out[k] = v
	}
	return out
}

// Parent returns the URL one level up the path lineage.
//
// "dir:/a/b/c" -> "dir:/a/b"; "dir:/a" -> "dir:/"; "dir:/" has no parent.
func (u ResourceURL) Parent() (ResourceURL, bool) {
	if u.Path == "/" {
		if u.Leaf == "" {
			return ResourceURL{}, false
		}
		return ResourceURL{Kind: u.Kind, Path: "/"}, true
	}
	trimmed := strings.TrimSuffix(u.Path, "/")
	lastSlash := strings.LastIndexByte(trimmed, '/')
	parentPath := trimmed[:lastSlash]
	if parentPath == "" {
		parentPath = "/"
	}
	return ResourceURL{
		Kind: u.Kind,
		Path: parentPath,
		Leaf: trimmed[lastSlash+1:],
	}, true
}

// String renders u back to "<kind>:/<path>/<leaf>?<k=v>&...", with options
// emitted in insertion order for stable round-tripping through Join/SetOption.
func (u ResourceURL) String() string {
	var sb strings.Builder
	sb.WriteString(u.Kind)
	sb.WriteByte(':')
	if u.Path != "/" {
		sb.WriteString(u.Path)
	}
	sb.WriteByte('/')
	sb.WriteString(u.Leaf)
	if len(u.order) > 0 {
		sb.WriteByte('?')
		for i, k := range u.order {
			if i > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(u.options[k])
		}
	}
	return sb.String()
}
