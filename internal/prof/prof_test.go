package prof

import (
	"context"
	"testing"
)

func TestStart_Disabled(t *testing.T) {
	stop, err := Start(context.Background(), Options{Enabled: false, ServerAddress: "::bad::"})
	if err != nil {
		t.Fatalf("disabled should never error, got: %v", err)
	}
	stop()
	stop()
}

func TestStart_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no server", Options{Enabled: true, AppName: "starter"}},
		{"no app", Options{Enabled: true, ServerAddress: "http://pyroscope:4040"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stop, err := Start(context.Background(), tt.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if stop == nil {
				t.Fatal("stop must be non-nil even on error")
			}
			stop()
		})
	}
}

func TestConfig(t *testing.T) {
	cfg, err := Options{
		AppName:       "starter.server",
		ServerAddress: "http://pyroscope:4040",
		TenantID:      "tenant",
		Tags:          map[string]string{"version": "1.0.0"},
	}.config()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ApplicationName != "starter.server" || cfg.TenantID != "tenant" || cfg.Tags["version"] != "1.0.0" {
		t.Fatalf("config = %+v", cfg)
	}
	if len(cfg.ProfileTypes) != len(profileTypes) {
		t.Fatalf("profile types = %d", len(cfg.ProfileTypes))
	}
}
