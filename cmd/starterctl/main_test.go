package main

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keithlinneman/linnemanlabs-starter/internal/bundlehttp"
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

func fakeRegistry(t *testing.T) *httptest.Server {
	t.Helper()
	p5 := tgz(t, map[string]string{
		"package.json":   `{"name":"p5"}`,
		"lib/p5.min.js":  "/* p5 */",
		"lib/p5.js":      "/* p5 full */",
		"docs/readme.md": "docs",
	})
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/p5/1.9.0":
			fmt.Fprintf(w, `{"dist":{"tarball":"%s/-/p5.tgz"}}`, srv.URL)
		case "/-/p5.tgz":
			_, _ = w.Write(p5)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// run executes the root command and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "starterctl ") {
		t.Fatalf("output = %q", out)
	}
}

func TestPackagesCommand_JSON(t *testing.T) {
	out, _, err := run(t, "packages", "--json", "--packages=p5@1.9.0,@ff6347/p5-easing")
	if err != nil {
		t.Fatalf("packages: %v", err)
	}
	var resp bundlehttp.PackagesResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(resp.Packages) != 2 || resp.Packages[0].Name != "p5" || resp.Packages[0].Version != "1.9.0" {
		t.Fatalf("packages = %+v", resp.Packages)
	}
	if resp.Packages[1].Name != "@ff6347/p5-easing" {
		t.Fatalf("scoped package = %+v", resp.Packages[1])
	}
	if len(resp.Libraries) == 0 {
		t.Fatal("default libraries missing")
	}
}

func TestPackagesCommand_Table(t *testing.T) {
	out, _, err := run(t, "packages", "--packages=p5")
	if err != nil {
		t.Fatalf("packages: %v", err)
	}
	if !strings.Contains(out, "PACKAGE") || !strings.Contains(out, "latest") {
		t.Fatalf("table = %q", out)
	}
}

func TestPackagesCommand_EnvFallback(t *testing.T) {
	t.Setenv("STARTER_PACKAGES", "three@0.160.0")

	out, _, err := run(t, "packages", "--json")
	if err != nil {
		t.Fatalf("packages: %v", err)
	}
	if !strings.Contains(out, `"three"`) {
		t.Fatalf("env package list not used: %s", out)
	}
}

func TestPackagesCommand_FlagBeatsEnv(t *testing.T) {
	t.Setenv("STARTER_PACKAGES", "three@0.160.0")

	out, errOut, err := run(t, "packages", "--json", "--packages=p5")
	if err != nil {
		t.Fatalf("packages: %v", err)
	}
	if strings.Contains(out, "three") {
		t.Fatalf("env should not override explicit flag: %s", out)
	}
	if !strings.Contains(errOut, "overrides env") {
		t.Fatalf("override not reported, stderr = %q", errOut)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	_, _, err := run(t, "packages", "--fetch-timeout=0s")
	if err == nil || !strings.Contains(err.Error(), "FETCH_TIMEOUT") {
		t.Fatalf("err = %v", err)
	}
}

func TestBuildCommand_Minimal(t *testing.T) {
	reg := fakeRegistry(t)
	dir := t.TempDir()

	out, _, err := run(t, "build", "--minimal", "--json",
		"--registry-url="+reg.URL,
		"--packages=p5@1.9.0",
		"-o", dir,
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var sum buildSummary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if sum.Mode != "minimal" || filepath.Dir(sum.Path) != dir {
		t.Fatalf("summary = %+v", sum)
	}
	if len(sum.Degraded) != 0 {
		t.Fatalf("degraded = %v", sum.Degraded)
	}

	data, err := os.ReadFile(sum.Path)
	if err != nil {
		t.Fatal(err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	joined := strings.Join(names, "\n")
	if !strings.Contains(joined, "p5.min.js") || !strings.Contains(joined, "index.html") {
		t.Fatalf("entries = %v", names)
	}
	if strings.Contains(joined, "readme.md") {
		t.Fatalf("minimal archive should not carry package docs: %v", names)
	}
}

func TestBuildCommand_OutputFile(t *testing.T) {
	reg := fakeRegistry(t)
	path := filepath.Join(t.TempDir(), "starter.zip")

	out, _, err := run(t, "build", "--registry-url="+reg.URL, "--packages=p5@1.9.0", "-o", path)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(out, "wrote "+path) {
		t.Fatalf("output = %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("archive not written: %v", err)
	}
}

func TestBuildCommand_DegradedWarns(t *testing.T) {
	reg := fakeRegistry(t)
	path := filepath.Join(t.TempDir(), "starter.zip")

	_, errOut, err := run(t, "build", "--registry-url="+reg.URL, "--packages=p5@1.9.0,missing@1.0.0", "-o", path)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(errOut, "missing modules: missing") {
		t.Fatalf("stderr = %q", errOut)
	}
}
