// Package pathutil holds slash-separated path checks shared by archive code.
package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	return HasSegment(p, ".") || HasSegment(p, "..")
}

// HasSegment reports whether seg appears as a whole component of p.
func HasSegment(p, seg string) bool {
	for _, s := range strings.Split(p, "/") {
		if s == seg {
			return true
		}
	}
	return false
}
