package tarball

import (
	"path"
	"strings"

	"github.com/keithlinneman/linnemanlabs-starter/internal/pathutil"
)

// NPM is the filter for registry tarballs: everything lives under package/
// and vendored dependency trees are dropped.
var NPM = Filter{Root: "package/", Exclude: "node_modules"}

// Filter strips an archive root prefix and rejects hidden and excluded paths.
type Filter struct {
	// Root is stripped once from the front of every path, e.g. "package/"
	Root string
	// Exclude rejects any path with a component equal to it
	Exclude string
}

// Normalize returns the collection path for a raw member path, or false when
// the member is not kept. For every kept path p, Normalize(p) returns p.
func (f Filter) Normalize(raw string) (string, bool) {
	// a backslash is a separator to zip readers and Windows extractors
	if strings.Contains(raw, `\`) {
		return "", false
	}
	p := strings.TrimPrefix(raw, "./")
	if pathutil.HasSegment(p, "..") {
		return "", false
	}
	if f.Root != "" {
		p = strings.TrimPrefix(p, f.Root)
	}
	p = path.Clean(p)

	switch {
	case p == "." || path.IsAbs(p):
		return "", false
	case strings.HasPrefix(p, "."):
		return "", false
	case f.Exclude != "" && pathutil.HasSegment(p, f.Exclude):
		return "", false
	case f.Root != "" && strings.HasPrefix(p, f.Root):
		// a second root directory would be stripped on the next pass
		return "", false
	}
	return p, true
}
