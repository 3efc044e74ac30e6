package bundle

import (
	"path"
	"strings"

	"github.com/keithlinneman/linnemanlabs-starter/internal/xerrors"
)

// Library is a script shipped by a package that the generated page loads.
type Library struct {
	// Module is the package that ships the file, e.g. "@ff6347/p5-easing"
	Module string `toml:"module" json:"module"`
	// Path is the file inside the package, e.g. "lib/p5.min.js"
	Path string `toml:"path" json:"path"`
	// File is the flattened name in minimal mode, defaults to the base of Path
	File string `toml:"file,omitempty" json:"file"`
	// Enabled scripts are active in index.html, the rest are commented out
	Enabled bool `toml:"enabled" json:"enabled"`
}

// FileName is the minimal-mode file name.
func (l Library) FileName() string {
	if l.File != "" {
		return l.File
	}
	return path.Base(l.Path)
}

// DefaultLibraries are the p5 core, sound addon and easing scripts.
func DefaultLibraries() []Library {
	return []Library{
		{Module: "p5", Path: "lib/p5.min.js", Enabled: true},
		{Module: "p5", Path: "lib/addons/p5.sound.min.js"},
		{Module: "@ff6347/p5-easing", Path: "dist/p5.easing.min.js"},
	}
}

// ValidateLibraries rejects incomplete entries and duplicate minimal names.
func ValidateLibraries(libs []Library) error {
	seen := make(map[string]string, len(libs))
	for i, l := range libs {
		if l.Module == "" || l.Path == "" {
			return xerrors.Newf("library %d: module and path are required", i)
		}
		if strings.HasPrefix(l.Path, "/") || strings.Contains(l.Path, "..") {
			return xerrors.Newf("library %d: path %q must be relative", i, l.Path)
		}
		name := l.FileName()
		if name == "" || name == "." || strings.Contains(name, "/") {
			return xerrors.Newf("library %d: invalid file name %q", i, name)
		}
		if prev, dup := seen[name]; dup {
			return xerrors.Newf("library %d: file %q already used by %s", i, name, prev)
		}
		seen[name] = l.Module
	}
	return nil
}
