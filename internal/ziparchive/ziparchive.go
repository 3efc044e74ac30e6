// Package ziparchive accumulates named entries and serializes them to a zip
// archive in one step.
package ziparchive

import (
	"bytes"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/keithlinneman/linnemanlabs-starter/internal/xerrors"
)

// FixedTime is the modification time of every entry (1980-01-01 UTC), the
// earliest a zip header can carry. Identical inputs produce identical bytes.
var FixedTime = time.Unix(315532800, 0).UTC()

// ErrAssembly marks a failure to serialize the archive.
var ErrAssembly = xerrors.New("archive assembly failed")

// Archive is not safe for concurrent use.
type Archive struct {
	entries map[string][]byte
	// first invalid path, reported at serialization
	bad error
}

// New returns an empty archive.
func New() *Archive {
	return &Archive{entries: make(map[string][]byte)}
}

// Add stores data at name, replacing any earlier entry with the same name.
func (a *Archive) Add(name string, data []byte) {
	clean, ok := cleanName(name)
	if !ok {
		if a.bad == nil {
			a.bad = xerrors.Newf("invalid entry name %q", name)
		}
		return
	}
	a.entries[clean] = data
}

// AddString is Add for text content.
func (a *Archive) AddString(name, text string) {
	a.Add(name, []byte(text))
}

// Has reports whether an entry exists at name.
func (a *Archive) Has(name string) bool {
	clean, ok := cleanName(name)
	if !ok {
		return false
	}
	_, exists := a.entries[clean]
	return exists
}

// Get returns the content stored at name.
func (a *Archive) Get(name string) ([]byte, bool) {
	clean, ok := cleanName(name)
	if !ok {
		return nil, false
	}
	data, exists := a.entries[clean]
	return data, exists
}

// Paths lists entry names in sorted order.
func (a *Archive) Paths() []string {
	out := make([]string, 0, len(a.entries))
	for p := range a.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len is the number of entries.
func (a *Archive) Len() int { return len(a.entries) }

// Size is the total uncompressed content size.
func (a *Archive) Size() int64 {
	var n int64
	for _, data := range a.entries {
		n += int64(len(data))
	}
	return n
}

// Bytes serializes the archive. On error no bytes are returned.
func (a *Archive) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := a.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write serializes the archive to w in sorted entry order. Every failure is
// marked ErrAssembly, and whatever reached w must be discarded.
func (a *Archive) Write(w io.Writer) error {
	if a.bad != nil {
		return xerrors.Mark(ErrAssembly, a.bad)
	}

	zw := zip.NewWriter(w)
	for _, name := range a.Paths() {
		h := &zip.FileHeader{Name: name, Method: zip.Deflate}
		h.SetMode(0o644)
		h.Modified = FixedTime
		fw, err := zw.CreateHeader(h)
		if err != nil {
			return xerrors.Mark(ErrAssembly, xerrors.Wrapf(err, "create %s", name))
		}
		if _, err := fw.Write(a.entries[name]); err != nil {
			return xerrors.Mark(ErrAssembly, xerrors.Wrapf(err, "write %s", name))
		}
	}
	if err := zw.Close(); err != nil {
		return xerrors.Mark(ErrAssembly, xerrors.Wrap(err, "finalize zip"))
	}
	return nil
}

// ValidName reports whether Add accepts name.
func ValidName(name string) bool {
	_, ok := cleanName(name)
	return ok
}

// cleanName keeps entry names relative and slash separated.
func cleanName(name string) (string, bool) {
	name = strings.ReplaceAll(name, `\`, "/")
	if name == "" || strings.HasPrefix(name, "/") {
		return "", false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", false
		}
	}
	clean := path.Clean(name)
	if clean == "." || strings.HasSuffix(name, "/") {
		return "", false
	}
	return clean, true
}
