// Package textutil holds small string helpers shared by configuration and
// outbound HTTP clients.
package textutil

import "strings"

// ParsePairs reads "name=value,name=value". Entries without "=" or with an
// empty side are ignored; a later duplicate name wins.
func ParsePairs(raw string) map[string]string {
	pairs := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		pairs[name] = value
	}
	return NormalizeStringMap(pairs)
}

// NormalizeStringMap trims names and values and drops entries where either is
// empty. The result is never nil.
func NormalizeStringMap(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for name, value := range values {
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		out[name] = value
	}
	return out
}
