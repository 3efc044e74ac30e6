package npm

import (
	"context"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keithlinneman/linnemanlabs-starter/internal/cryptoutil"
)

var tarballBody = []byte("fake tarball bytes")

func integrityOf(b []byte) string {
	s := sha512.Sum512(b)
	return "sha512-" + base64.StdEncoding.EncodeToString(s[:])
}

// newRegistry serves version documents at /<name>/<version> and tarballs at
// /tarballs/<file>.
func newRegistry(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, base string)) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(w, r, srv.URL)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, base string, opts ...Option) *Client {
	t.Helper()
	c, err := New(base, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_Defaults(t *testing.T) {
	c := newTestClient(t, "")
	if c.baseURL != DefaultRegistry {
		t.Fatalf("baseURL = %q", c.baseURL)
	}
	if _, err := New("ftp://registry"); err == nil {
		t.Fatal("expected error for non-http registry")
	}
}

func TestMetadataURL(t *testing.T) {
	c := newTestClient(t, "https://registry.example/")
	if got := c.MetadataURL(MustParse("@ff6347/p5-easing")); got != "https://registry.example/@ff6347/p5-easing/latest" {
		t.Fatalf("MetadataURL = %q", got)
	}
	if got := c.MetadataURL(Descriptor{Name: "p5"}); got != "https://registry.example/p5/latest" {
		t.Fatalf("MetadataURL = %q", got)
	}
}

func TestResolve_Success(t *testing.T) {
	srv := newRegistry(t, func(w http.ResponseWriter, r *http.Request, base string) {
		if r.URL.Path != "/@ff6347/p5-easing/latest" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name":"@ff6347/p5-easing","version":"0.3.1","dist":{"tarball":"%s/tarballs/e.tgz","shasum":"abc","integrity":"sha512-x"}}`, base)
	})
	dist, err := newTestClient(t, srv.URL).Resolve(context.Background(), MustParse("@ff6347/p5-easing"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dist.Version != "0.3.1" || dist.Tarball != srv.URL+"/tarballs/e.tgz" || dist.Shasum != "abc" || dist.Integrity != "sha512-x" {
		t.Fatalf("dist = %+v", dist)
	}
}

func TestResolve_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantSub string
	}{
		{"not found", http.StatusNotFound, `{"error":"not found"}`, "status 404"},
		{"bad json", http.StatusOK, `{not json`, "decode metadata"},
		{"no tarball", http.StatusOK, `{"version":"1.0.0","dist":{}}`, "no dist.tarball"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newRegistry(t, func(w http.ResponseWriter, r *http.Request, _ string) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := newTestClient(t, srv.URL).Resolve(context.Background(), MustParse("p5"))
			if !errors.Is(err, ErrResolution) {
				t.Fatalf("err = %v, want ErrResolution", err)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("err %q does not contain %q", err, tt.wantSub)
			}
		})
	}
}

func TestResolve_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := newTestClient(t, base).Resolve(context.Background(), MustParse("p5"))
	if !errors.Is(err, ErrResolution) {
		t.Fatalf("err = %v, want ErrResolution", err)
	}
}

func TestResolve_Timeout(t *testing.T) {
	srv := newRegistry(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	_, err := newTestClient(t, srv.URL, WithTimeout(20*time.Millisecond)).Resolve(context.Background(), MustParse("p5"))
	if !errors.Is(err, ErrResolution) {
		t.Fatalf("err = %v, want ErrResolution", err)
	}
}

func TestFetch_SuccessWithIntegrity(t *testing.T) {
	srv := newRegistry(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		_, _ = w.Write(tarballBody)
	})
	dist := Dist{Tarball: srv.URL + "/tarballs/p5.tgz", Integrity: integrityOf(tarballBody)}
	got, err := newTestClient(t, srv.URL).Fetch(context.Background(), dist)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != string(tarballBody) {
		t.Fatalf("body = %q", got)
	}
}

func TestFetch_ShasumFallback(t *testing.T) {
	srv := newRegistry(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		_, _ = w.Write(tarballBody)
	})
	s := sha1.Sum(tarballBody)
	dist := Dist{Tarball: srv.URL + "/t.tgz", Shasum: hex.EncodeToString(s[:])}
	if _, err := newTestClient(t, srv.URL).Fetch(context.Background(), dist); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
}

func TestFetch_IntegrityMismatch(t *testing.T) {
	srv := newRegistry(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		_, _ = w.Write([]byte("tampered"))
	})
	dist := Dist{Tarball: srv.URL + "/t.tgz", Integrity: integrityOf(tarballBody)}
	_, err := newTestClient(t, srv.URL).Fetch(context.Background(), dist)
	if !errors.Is(err, ErrFetch) || !errors.Is(err, cryptoutil.ErrIntegrity) {
		t.Fatalf("err = %v, want ErrFetch and ErrIntegrity", err)
	}

	// disabled verification accepts the body
	if _, err := newTestClient(t, srv.URL, WithIntegrityCheck(false)).Fetch(context.Background(), dist); err != nil {
		t.Fatalf("Fetch without verification: %v", err)
	}
}

func TestFetch_Non2xx(t *testing.T) {
	srv := newRegistry(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		http.Error(w, "gone", http.StatusGone)
	})
	_, err := newTestClient(t, srv.URL).Fetch(context.Background(), Dist{Tarball: srv.URL + "/t.tgz"})
	if !errors.Is(err, ErrFetch) || !strings.Contains(err.Error(), "status 410") {
		t.Fatalf("err = %v, want ErrFetch status 410", err)
	}
}

func TestFetch_TooLarge(t *testing.T) {
	srv := newRegistry(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	})
	_, err := newTestClient(t, srv.URL, WithMaxTarballBytes(10)).Fetch(context.Background(), Dist{Tarball: srv.URL + "/t.tgz"})
	if !errors.Is(err, ErrFetch) || !strings.Contains(err.Error(), "exceeds max size") {
		t.Fatalf("err = %v, want size ErrFetch", err)
	}
}

func TestFetch_EmptyURL(t *testing.T) {
	_, err := newTestClient(t, "").Fetch(context.Background(), Dist{})
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("err = %v, want ErrFetch", err)
	}
}
