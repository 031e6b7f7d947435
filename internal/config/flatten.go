package config

import (
	"maps"
	"slices"
	"strings"
)

// Keys address the nested config map by dot-separated path, e.g. "admin.token".

var secretKeys = []string{"admin.token"}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	return slices.Contains(secretKeys, key)
}

// Flatten maps every leaf of m to its path. Empty nested maps have no leaves
// and disappear.
func Flatten(m map[string]any) map[string]any {
	flat := make(map[string]any)
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for k, v := range node {
			if child, ok := v.(map[string]any); ok {
				walk(prefix+k+".", child)
				continue
			}
			flat[prefix+k] = v
		}
	}
	walk("", m)
	return flat
}

// Unflatten is the inverse of Flatten. When a key is both a leaf and the
// prefix of another key, the nested map wins.
func Unflatten(flat map[string]any) map[string]any {
	root := make(map[string]any)
	for key, v := range flat {
		setPath(root, strings.Split(key, "."), v)
	}
	return root
}

func setPath(node map[string]any, path []string, v any) {
	last := len(path) - 1
	for _, part := range path[:last] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[part] = child
		}
		node = child
	}
	if _, isMap := node[path[last]].(map[string]any); isMap {
		return
	}
	node[path[last]] = v
}

// MaskSecrets returns a copy of flat in which each non-empty secret shows only
// "***" and its last four characters.
func MaskSecrets(flat map[string]any) map[string]any {
	out := maps.Clone(flat)
	for _, key := range secretKeys {
		s, ok := out[key].(string)
		if !ok || s == "" {
			continue
		}
		out[key] = "***" + s[max(len(s)-4, 0):]
	}
	return out
}
