package tarball

import (
	"archive/tar"
	"bytes"
	"io"
	"iter"

	"github.com/klauspost/compress/gzip"

	"github.com/keithlinneman/linnemanlabs-starter/internal/xerrors"
)

const (
	// DefaultMaxFileSize is the largest single member Decode will buffer
	DefaultMaxFileSize int64 = 20 * 1024 * 1024 // 20MB

	// DefaultMaxTotalSize caps the sum of all member sizes
	DefaultMaxTotalSize int64 = 200 * 1024 * 1024 // 200MB
)

// ErrFormat marks malformed, truncated or oversized archive input.
var ErrFormat = xerrors.New("archive format error")

var gzipMagic = []byte{0x1f, 0x8b}

// Entry is one regular-file member of an archive.
type Entry struct {
	Path string
	Data []byte
}

// Decoder holds size limits, the zero value uses the defaults.
type Decoder struct {
	MaxFileSize  int64
	MaxTotalSize int64
}

// Decode is Decoder{}.Entries(data).
func Decode(data []byte) iter.Seq2[Entry, error] {
	return Decoder{}.Entries(data)
}

// Entries yields every regular file in archive order with its data fully
// read. Directories, links and other member types are skipped. The first
// error ends the sequence and is marked ErrFormat. Ranging again restarts
// from the beginning of data.
func (d Decoder) Entries(data []byte) iter.Seq2[Entry, error] {
	maxFile, maxTotal := d.MaxFileSize, d.MaxTotalSize
	if maxFile <= 0 {
		maxFile = DefaultMaxFileSize
	}
	if maxTotal <= 0 {
		maxTotal = DefaultMaxTotalSize
	}

	return func(yield func(Entry, error) bool) {
		fail := func(err error) { yield(Entry{}, xerrors.Mark(ErrFormat, err)) }

		var r io.Reader = bytes.NewReader(data)
		var gz io.Reader
		if bytes.HasPrefix(data, gzipMagic) {
			gr, err := gzip.NewReader(r)
			if err != nil {
				fail(xerrors.Wrap(err, "open gzip"))
				return
			}
			defer gr.Close()
			gz = gr
			r = gr
		}

		tr := tar.NewReader(r)
		var total int64
		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				// the gzip checksum is only verified at the end of the stream
				if gz != nil {
					if _, err := io.Copy(io.Discard, io.LimitReader(gz, maxTotal)); err != nil {
						fail(xerrors.Wrap(err, "read gzip trailer"))
					}
				}
				return
			}
			if err != nil {
				fail(xerrors.Wrap(err, "read tar header"))
				return
			}
			if hdr.Typeflag != tar.TypeReg {
				continue
			}
			if hdr.Size > maxFile {
				fail(xerrors.Newf("file %s exceeds max size (%d > %d)", hdr.Name, hdr.Size, maxFile))
				return
			}

			content, err := io.ReadAll(io.LimitReader(tr, maxFile+1))
			if err != nil {
				fail(xerrors.Wrapf(err, "read %s", hdr.Name))
				return
			}
			if int64(len(content)) > maxFile {
				fail(xerrors.Newf("file %s exceeds max size after read", hdr.Name))
				return
			}

			total += int64(len(content))
			if total > maxTotal {
				fail(xerrors.Newf("total extracted size exceeds limit (%d bytes, max %d)", total, maxTotal))
				return
			}

			if !yield(Entry{Path: hdr.Name, Data: content}, nil) {
				return
			}
		}
	}
}
