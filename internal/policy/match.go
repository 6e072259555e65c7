package policy

import "strings"

// matchGlob reports whether a path value matches a wildcard pattern. `*`
// matches any run of characters including separators, `?` matches a single
// character. An empty or `*` pattern matches everything, mirroring the
// workspace rule format the deployment tier is configured with.
func matchGlob(pattern, value string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || pattern == "*" {
		return true
	}
	return wildcardMatch(pattern, value)
}

// wildcardMatch is an iterative two-pointer matcher: linear in the length of
// the inputs, no backtracking stack.
func wildcardMatch(pattern, value string) bool {
	pi, vi := 0, 0
	star, mark := -1, 0

	for vi < len(value) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == value[vi]):
			pi++
			vi++
		case pi < len(pattern) && pattern[pi] == '*':
			star = pi
			mark = vi
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			vi = mark
		default:
			return false
		}
	}

	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
