package pipeline

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/keithlinneman/linnemanlabs-starter/internal/bundle"
	"github.com/keithlinneman/linnemanlabs-starter/internal/cfg"
)

func tgz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for p, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: "package/" + p, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// registry serves /<name>/<version> metadata and /-/<name> tarballs.
func registry(t *testing.T, pkgs map[string][]byte) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name, ok := strings.CutPrefix(r.URL.Path, "/-/"); ok {
			_, _ = w.Write(pkgs[name])
			return
		}
		p := strings.TrimPrefix(r.URL.Path, "/")
		name := p[:strings.LastIndex(p, "/")]
		if _, ok := pkgs[name]; !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"dist":{"tarball":"%s/-/%s"}}`, srv.URL, name)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, registryURL string, args ...string) cfg.App {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c cfg.App
	cfg.Register(fs, &c)
	if err := fs.Parse(append([]string{"-registry-url=" + registryURL}, args...)); err != nil {
		t.Fatal(err)
	}
	return c
}

type spyObserver struct {
	mu          sync.Mutex
	extractions []string
	bundles     []string
}

func (s *spyObserver) ObserveExtraction(module, outcome string, _ float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extractions = append(s.extractions, module+"="+outcome)
}

func (s *spyObserver) ObserveBundle(mode string, degraded bool, _ float64, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles = append(s.bundles, fmt.Sprintf("%s/%v", mode, degraded))
}

type fakeSSM struct{ value string }

func (f fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: aws.String(f.value)}}, nil
}

func TestNeedsAWS(t *testing.T) {
	if NeedsAWS(cfg.App{}) {
		t.Fatal("empty config needs no AWS")
	}
	if !NeedsAWS(cfg.App{PackagesSSMParam: "/starter/packages"}) || !NeedsAWS(cfg.App{ArchiveS3Bucket: "b"}) {
		t.Fatal("ssm or s3 settings need AWS")
	}
}

func TestBuild_InlinePackages(t *testing.T) {
	srv := registry(t, map[string][]byte{
		"p5":                tgz(t, map[string]string{"package.json": `{"version":"1.9.0"}`, "lib/p5.min.js": "p5"}),
		"@ff6347/p5-easing": tgz(t, map[string]string{"package.json": `{"version":"0.1.0"}`, "dist/p5.easing.min.js": "e"}),
	})
	obs := &spyObserver{}
	b, man, err := Build(context.Background(), testConfig(t, srv.URL), Deps{Observer: obs})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if man.Source != "inline" || len(b.Packages()) != 2 {
		t.Fatalf("manifest = %+v", man)
	}

	bun, err := b.Build(context.Background(), bundle.Minimal)
	if err != nil {
		t.Fatal(err)
	}
	if len(bun.Degraded) != 0 {
		t.Fatalf("degraded = %v", bun.Degraded)
	}
	if !strings.HasPrefix(bun.Filename, "p5-starter-") || !strings.HasSuffix(bun.Filename, "-minimal.zip") {
		t.Fatalf("filename = %q", bun.Filename)
	}
	if len(obs.extractions) != 2 || len(obs.bundles) != 1 || obs.bundles[0] != "minimal/false" {
		t.Fatalf("observer = %v %v", obs.extractions, obs.bundles)
	}
}

func TestBuild_ManifestFile(t *testing.T) {
	srv := registry(t, map[string][]byte{
		"three": tgz(t, map[string]string{"package.json": `{"version":"0.160.0"}`, "build/three.module.min.js": "three"}),
	})
	path := filepath.Join(t.TempDir(), "packages.toml")
	doc := `
[[package]]
name = "three"

[[library]]
module = "three"
path = "build/three.module.min.js"
enabled = true
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	b, man, err := Build(context.Background(), testConfig(t, srv.URL, "-packages-file="+path, "-archive-prefix=three-starter"), Deps{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.HasPrefix(man.Source, "file:") {
		t.Fatalf("source = %q", man.Source)
	}
	libs := b.Libraries()
	if len(libs) != 1 || libs[0].Module != "three" {
		t.Fatalf("libraries = %v", libs)
	}
	bun, err := b.Build(context.Background(), bundle.Minimal)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range bun.Entries {
		if e == "lib/three.module.min.js" {
			found = true
		}
	}
	if !found {
		t.Fatalf("entries = %v", bun.Entries)
	}
}

func TestBuild_SSMParameter(t *testing.T) {
	srv := registry(t, map[string][]byte{
		"p5": tgz(t, map[string]string{"package.json": `{"version":"1.9.0"}`}),
	})
	conf := testConfig(t, srv.URL, "-packages-ssm-param=/starter/packages")
	b, man, err := Build(context.Background(), conf, Deps{SSM: fakeSSM{value: "p5@1.9.0"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if man.Source != "ssm:/starter/packages" {
		t.Fatalf("source = %q", man.Source)
	}
	if pk := b.Packages(); len(pk) != 1 || pk[0].Version != "1.9.0" {
		t.Fatalf("packages = %v", pk)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad package list", []string{"-packages=p5,p5"}, "load package manifest"},
		{"missing file", []string{"-packages-file=/does/not/exist.toml"}, "load package manifest"},
		{"bad registry", []string{"-registry-url=ftp://x"}, "create registry client"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Build(context.Background(), testConfig(t, "http://127.0.0.1:1", tt.args...), Deps{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}
