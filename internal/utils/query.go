package utils

import "strings"

// ParseQueryList handles both repeated and comma-separated query params.
// Example:
//
//	?status=busy,critical           → ["busy","critical"]
//	?status=busy&status=critical    → ["busy","critical"]
//
// Blank entries are dropped; nil means the parameter was absent or empty.
func ParseQueryList(q map[string][]string, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
