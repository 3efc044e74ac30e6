package pathutil

import "testing"

func TestHasDotSegments(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"lib/p5.min.js", false},
		{"lib/./p5.js", true},
		{"lib/../up", true},
		{".", true},
		{"..", true},
		{"...", false},
		{".hidden", false},
		{"dist/.cache/x", false},
		{"lib/.", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := HasDotSegments(tt.path); got != tt.want {
				t.Fatalf("HasDotSegments(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestHasSegment(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"node_modules/a/index.js", true},
		{"lib/node_modules/a.js", true},
		{"lib/node_modules", true},
		{"lib/node_modules_shim.js", false},
		{"my-node_modules/a.js", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := HasSegment(tt.path, "node_modules"); got != tt.want {
			t.Fatalf("HasSegment(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
