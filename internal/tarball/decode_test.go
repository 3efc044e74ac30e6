package tarball

import (
	"archive/tar"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

type member struct {
	name     string
	body     string
	typeflag byte
}

// makeTar builds a tar archive in memory from the given members in order.
func makeTar(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		tf := m.typeflag
		if tf == 0 {
			tf = tar.TypeReg
		}
		hdr := &tar.Header{Name: m.name, Mode: 0o644, Typeflag: tf}
		switch tf {
		case tar.TypeReg:
			hdr.Size = int64(len(m.body))
		case tar.TypeSymlink:
			hdr.Linkname = "target"
		case tar.TypeDir:
			hdr.Mode = 0o755
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", m.name, err)
		}
		if tf == tar.TypeReg {
			if _, err := tw.Write([]byte(m.body)); err != nil {
				t.Fatalf("write %s: %v", m.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	return buf.Bytes()
}

func gz(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func collect(t *testing.T, d Decoder, data []byte) ([]Entry, error) {
	t.Helper()
	var out []Entry
	for e, err := range d.Entries(data) {
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

func TestDecode_PlainTarInOrder(t *testing.T) {
	data := makeTar(t,
		member{name: "package/package.json", body: `{"version":"1.2.3"}`},
		member{name: "package/lib/p5.min.js", body: "p5()"},
	)
	got, err := collect(t, Decoder{}, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].Path != "package/package.json" || got[1].Path != "package/lib/p5.min.js" {
		t.Fatalf("order = %q, %q", got[0].Path, got[1].Path)
	}
	if string(got[1].Data) != "p5()" {
		t.Fatalf("data = %q", got[1].Data)
	}
}

func TestDecode_GzipDetected(t *testing.T) {
	data := gz(t, makeTar(t, member{name: "package/index.js", body: "x"}))
	got, err := collect(t, Decoder{}, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Path != "package/index.js" {
		t.Fatalf("entries = %+v", got)
	}
}

func TestDecode_BinaryBytesPreserved(t *testing.T) {
	body := string([]byte{0x89, 'P', 'N', 'G', 0x00, 0xff, 0xfe})
	got, err := collect(t, Decoder{}, makeTar(t, member{name: "package/a.png", body: body}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got[0].Data, []byte(body)) {
		t.Fatalf("binary content altered: %v", got[0].Data)
	}
}

func TestDecode_SkipsNonRegular(t *testing.T) {
	data := makeTar(t,
		member{name: "package/", typeflag: tar.TypeDir},
		member{name: "package/link", typeflag: tar.TypeSymlink},
		member{name: "package/real.js", body: "ok"},
	)
	got, err := collect(t, Decoder{}, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Path != "package/real.js" {
		t.Fatalf("entries = %+v", got)
	}
}

func TestDecode_Empty(t *testing.T) {
	got, err := collect(t, Decoder{}, makeTar(t))
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestDecode_MalformedHeader(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 1024)
	_, err := collect(t, Decoder{}, data)
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
}

func TestDecode_TruncatedMember(t *testing.T) {
	data := makeTar(t, member{name: "package/big.js", body: strings.Repeat("a", 1000)})
	_, err := collect(t, Decoder{}, data[:512+100])
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
}

func TestDecode_BadGzip(t *testing.T) {
	data := append([]byte{0x1f, 0x8b, 0x00}, bytes.Repeat([]byte{0}, 20)...)
	_, err := collect(t, Decoder{}, data)
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
}

func TestDecode_GzipChecksumMismatch(t *testing.T) {
	data := gz(t, makeTar(t, member{name: "package/index.js", body: "console.log(1)"}))
	// trailer is crc32 then size, both little endian
	data[len(data)-8] ^= 0xff
	_, err := collect(t, Decoder{}, data)
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
}

func TestDecode_FileSizeLimit(t *testing.T) {
	data := makeTar(t, member{name: "package/big.js", body: strings.Repeat("a", 64)})
	_, err := collect(t, Decoder{MaxFileSize: 32}, data)
	if !errors.Is(err, ErrFormat) || !strings.Contains(err.Error(), "exceeds max size") {
		t.Fatalf("err = %v, want size ErrFormat", err)
	}
}

func TestDecode_TotalSizeLimit(t *testing.T) {
	data := makeTar(t,
		member{name: "package/a.js", body: strings.Repeat("a", 30)},
		member{name: "package/b.js", body: strings.Repeat("b", 30)},
	)
	got, err := collect(t, Decoder{MaxTotalSize: 40}, data)
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
	if len(got) != 1 {
		t.Fatalf("entries before failure = %d, want 1", len(got))
	}
}

func TestDecode_Restartable(t *testing.T) {
	data := makeTar(t,
		member{name: "package/a.js", body: "a"},
		member{name: "package/b.js", body: "b"},
	)
	seq := Decode(data)
	count := func() int {
		n := 0
		for _, err := range seq {
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			n++
		}
		return n
	}
	if a, b := count(), count(); a != 2 || b != 2 {
		t.Fatalf("counts = %d, %d, want 2, 2", a, b)
	}
}

func TestDecode_StopsOnBreak(t *testing.T) {
	data := makeTar(t,
		member{name: "package/a.js", body: "a"},
		member{name: "package/b.js", body: "b"},
	)
	n := 0
	for range Decode(data) {
		n++
		break
	}
	if n != 1 {
		t.Fatalf("iterations = %d, want 1", n)
	}
}
