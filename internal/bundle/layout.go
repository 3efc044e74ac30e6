package bundle

import (
	"path"
	"strings"
)

const (
	modulesDir = "modules/"
	libDir     = "lib/"
)

// Layout places package files in the archive and names the script paths the
// generated page uses. Both answers come from one value so they cannot drift.
type Layout interface {
	Mode() Mode
	// Place returns the archive path of a package file, or false to drop it.
	Place(module, file string) (string, bool)
	// ScriptRef is the src index.html uses for lib.
	ScriptRef(lib Library) string
	// EditorFiles reports whether editor and workspace settings are included.
	EditorFiles() bool
}

// LayoutFor returns the layout of m over libs.
func LayoutFor(m Mode, libs []Library) Layout {
	if m == Minimal {
		return minimalLayout{libs: libs}
	}
	return fullLayout{}
}

type fullLayout struct{}

func (fullLayout) Mode() Mode        { return Full }
func (fullLayout) EditorFiles() bool { return true }

func (fullLayout) Place(module, file string) (string, bool) {
	return modulesDir + module + "/" + file, true
}

func (fullLayout) ScriptRef(lib Library) string {
	return "./" + modulesDir + lib.Module + "/" + lib.Path
}

type minimalLayout struct{ libs []Library }

func (minimalLayout) Mode() Mode        { return Minimal }
func (minimalLayout) EditorFiles() bool { return false }

// Place keeps a file of any module when its path contains a library file
// name, flattened to lib/<name>. The first matching library wins.
func (l minimalLayout) Place(module, file string) (string, bool) {
	for _, lib := range l.libs {
		if name := lib.FileName(); strings.Contains(file, name) {
			return libDir + name, true
		}
	}
	return "", false
}

// rank orders candidates for one destination: an exact base name first, then
// a file shipped by the library's own module.
func (l minimalLayout) rank(module, file, dest string) int {
	score := 0
	if path.Base(file) == path.Base(dest) {
		score += 2
	}
	for _, lib := range l.libs {
		if libDir+lib.FileName() == dest && lib.Module == module {
			score++
			break
		}
	}
	return score
}

func (minimalLayout) ScriptRef(lib Library) string {
	return libDir + lib.FileName()
}
