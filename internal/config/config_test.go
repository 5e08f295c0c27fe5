package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	if err := DefaultServerConfig().Validate(); err != nil {
		t.Fatalf("default server config invalid: %v", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	data := []byte("addr: \":9090\"\nexpected_nodes: 4\nslow_threshold: 250ms\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultServerConfig()
	if err := LoadFile(path, &cfg); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("addr = %q, want :9090", cfg.Addr)
	}
	if cfg.ExpectedNodes != 4 {
		t.Errorf("expected_nodes = %d, want 4", cfg.ExpectedNodes)
	}
	if cfg.SlowThreshold != 250*time.Millisecond {
		t.Errorf("slow_threshold = %s, want 250ms", cfg.SlowThreshold)
	}
	// Untouched keys keep their defaults.
	if cfg.Policy != "bounded-queue" {
		t.Errorf("policy = %q, want bounded-queue", cfg.Policy)
	}
}

func TestLoadFileMissingIsNoop(t *testing.T) {
	cfg := DefaultServerConfig()
	if err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err != nil {
		t.Fatalf("LoadFile on missing file: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("addr = %q, want default", cfg.Addr)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TDIST_EXPECTED_NODES", "3")
	t.Setenv("TDIST_SLOW_THRESHOLD", "1s")
	t.Setenv("TDIST_POLICY", "classic")

	cfg := DefaultServerConfig()
	cfg.ApplyEnv()
	if cfg.ExpectedNodes != 3 {
		t.Errorf("expected_nodes = %d, want 3", cfg.ExpectedNodes)
	}
	if cfg.SlowThreshold != time.Second {
		t.Errorf("slow_threshold = %s, want 1s", cfg.SlowThreshold)
	}
	if cfg.Policy != "classic" {
		t.Errorf("policy = %q, want classic", cfg.Policy)
	}
}

func TestServerValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr bool
	}{
		{"default", func(c *ServerConfig) {}, false},
		{"zero nodes", func(c *ServerConfig) { c.ExpectedNodes = 0 }, true},
		{"zero max queue", func(c *ServerConfig) { c.MaxQueueSize = 0 }, true},
		{"negative threshold", func(c *ServerConfig) { c.SlowThreshold = -time.Second }, true},
		{"bad policy", func(c *ServerConfig) { c.Policy = "random" }, true},
		{"classic", func(c *ServerConfig) { c.Policy = "classic" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkerValidate(t *testing.T) {
	cfg := DefaultWorkerConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without list_command and run_command")
	}
	cfg.ListCommand = "go test -list '.*' ./..."
	cfg.RunCommand = "go test -run '{id}' ./..."
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("LoadEnv on missing file: %v", err)
	}
}
