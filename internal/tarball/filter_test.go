package tarball

import "testing"

func TestFilter_Normalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		keep bool
	}{
		{"package/package.json", "package.json", true},
		{"package/lib/p5.min.js", "lib/p5.min.js", true},
		{"./package/lib/p5.js", "lib/p5.js", true},
		{"lib/unprefixed.js", "lib/unprefixed.js", true},
		{"package/lib/.x/keep.js", "lib/.x/keep.js", true},
		{"package/.github/workflows/ci.yml", "", false},
		{"package/.npmignore", "", false},
		{".hidden", "", false},
		{"package/node_modules/dep/index.js", "", false},
		{"package/lib/node_modules/dep.js", "", false},
		{"package/../escape.js", "", false},
		{"/etc/passwd", "", false},
		{"package/", "", false},
		{"", "", false},
		{"package/package/inner.js", "", false},
		{`package/a\..\..\..\evil.js`, "", false},
		{`package\lib\p5.js`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NPM.Normalize(tt.raw)
			if ok != tt.keep || got != tt.want {
				t.Fatalf("Normalize(%q) = %q, %v, want %q, %v", tt.raw, got, ok, tt.want, tt.keep)
			}
		})
	}
}

func TestFilter_HiddenDirectoryUnderRoot(t *testing.T) {
	if _, ok := NPM.Normalize("package/.github/workflows/ci.yml"); ok {
		t.Fatal("hidden directory after prefix strip must be rejected")
	}
}

func TestFilter_Idempotent(t *testing.T) {
	raws := []string{
		"package/package.json",
		"package/lib/addons/p5.sound.min.js",
		"package/dist/p5.easing.min.js",
		"./package/a/./b.js",
		"top.js",
	}
	for _, raw := range raws {
		once, ok := NPM.Normalize(raw)
		if !ok {
			t.Fatalf("Normalize(%q) rejected", raw)
		}
		twice, ok := NPM.Normalize(once)
		if !ok || twice != once {
			t.Fatalf("Normalize(%q) = %q, %v, want %q unchanged", once, twice, ok, once)
		}
	}
}

func TestFilter_PureAcrossCalls(t *testing.T) {
	for range 3 {
		if got, ok := NPM.Normalize("package/lib/p5.js"); !ok || got != "lib/p5.js" {
			t.Fatalf("got %q, %v", got, ok)
		}
	}
}

func TestFilter_ZeroValueKeepsEverythingVisible(t *testing.T) {
	var f Filter
	if got, ok := f.Normalize("package/node_modules/x.js"); !ok || got != "package/node_modules/x.js" {
		t.Fatalf("got %q, %v", got, ok)
	}
	if _, ok := f.Normalize(".env"); ok {
		t.Fatal("hidden files are always rejected")
	}
}
