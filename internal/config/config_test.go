// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServerConfig_ExampleFile(t *testing.T) {
	cfgPath := filepath.Join("..", "..", "configs", "server.example.yaml")
	cfg, err := LoadServerConfig(cfgPath)
	if err != nil {
		t.Fatalf("failed to load server example config: %v", err)
	}

	if cfg.Server.Listen != "0.0.0.0:9847" {
		t.Errorf("expected listen '0.0.0.0:9847', got %q", cfg.Server.Listen)
	}
	if cfg.Server.MaxClients != 100 {
		t.Errorf("expected max_clients 100, got %d", cfg.Server.MaxClients)
	}
	if cfg.Server.SessionTimeout != 30*time.Minute {
		t.Errorf("expected session_timeout 30m, got %s", cfg.Server.SessionTimeout)
	}
	if cfg.Server.ChunkSizeRaw != 1024*1024 {
		t.Errorf("expected chunk_size 1mb, got %d", cfg.Server.ChunkSizeRaw)
	}
	if cfg.Storage.Root != "/var/lib/ndrive/storage" {
		t.Errorf("expected storage.root '/var/lib/ndrive/storage', got %q", cfg.Storage.Root)
	}
	if cfg.Storage.MetadataDir != "/var/lib/ndrive/storage/.metadata" {
		t.Errorf("expected default metadata_dir under root, got %q", cfg.Storage.MetadataDir)
	}
	if !cfg.Admin.Enabled {
		t.Error("expected admin.enabled true")
	}
	if len(cfg.Admin.ParsedCIDRs) != 2 {
		t.Fatalf("expected 2 parsed CIDRs, got %d", len(cfg.Admin.ParsedCIDRs))
	}
	if !cfg.Maintenance.Enabled {
		t.Error("expected maintenance.enabled true")
	}
	if cfg.Maintenance.ArchiveExtension() != ".tar.gz" {
		t.Errorf("expected archive extension '.tar.gz', got %q", cfg.Maintenance.ArchiveExtension())
	}
}

func TestLoadClientConfig_ExampleFile(t *testing.T) {
	cfgPath := filepath.Join("..", "..", "configs", "client.example.yaml")
	cfg, err := LoadClientConfig(cfgPath)
	if err != nil {
		t.Fatalf("failed to load client example config: %v", err)
	}

	if cfg.Client.Username != "alice" {
		t.Errorf("expected client.username 'alice', got %q", cfg.Client.Username)
	}
	if cfg.Server.Address != "drive.nishisan.dev:9847" {
		t.Errorf("expected server address 'drive.nishisan.dev:9847', got %q", cfg.Server.Address)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("expected max_attempts 5, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected logging level 'info', got %q", cfg.Logging.Level)
	}
}

// validServerYAML retorna um YAML mínimo válido para testes.
// Testes de validação podem substituir campos com writeTempConfig.
const validServerYAML = `
server:
  listen: "127.0.0.1:9847"
storage:
  root: /tmp/ndrive
`

func TestLoadServerConfig_Defaults(t *testing.T) {
	cfgPath := writeTempConfig(t, validServerYAML)
	cfg, err := LoadServerConfig(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.MaxClients != 100 {
		t.Errorf("expected default max_clients 100, got %d", cfg.Server.MaxClients)
	}
	if cfg.Server.SessionTimeout != 30*time.Minute {
		t.Errorf("expected default session_timeout 30m, got %s", cfg.Server.SessionTimeout)
	}
	if cfg.Server.ChunkSizeRaw != 1024*1024 {
		t.Errorf("expected default chunk_size 1mb, got %d", cfg.Server.ChunkSizeRaw)
	}
	if cfg.Server.NetworkBufferRaw != 256*1024 {
		t.Errorf("expected default network_buffer 256kb, got %d", cfg.Server.NetworkBufferRaw)
	}
	if cfg.Server.BandwidthRaw != 0 {
		t.Errorf("expected no bandwidth limit by default, got %d", cfg.Server.BandwidthRaw)
	}
	if cfg.Storage.MetadataDir != filepath.Join("/tmp/ndrive", ".metadata") {
		t.Errorf("expected default metadata_dir, got %q", cfg.Storage.MetadataDir)
	}
	if cfg.Storage.UsersFile != filepath.Join("/tmp/ndrive", ".metadata", "users.json") {
		t.Errorf("expected default users_file, got %q", cfg.Storage.UsersFile)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("expected default logging info/json, got %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadServerConfig_MissingStorageRoot(t *testing.T) {
	content := `
server:
  listen: "127.0.0.1:9847"
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadServerConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for missing storage.root")
	}
}

func TestLoadServerConfig_ChunkSizeTooSmall(t *testing.T) {
	content := `
server:
  listen: "127.0.0.1:9847"
  chunk_size: 4kb
storage:
  root: /tmp/ndrive
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadServerConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for chunk_size < 64kb")
	}
}

func TestLoadServerConfig_ChunkSizeTooLarge(t *testing.T) {
	content := `
server:
  listen: "127.0.0.1:9847"
  chunk_size: 32mb
storage:
  root: /tmp/ndrive
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadServerConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for chunk_size > 16mb")
	}
}

func TestLoadServerConfig_NetworkBufferTooSmall(t *testing.T) {
	content := `
server:
  listen: "127.0.0.1:9847"
  network_buffer: 1kb
storage:
  root: /tmp/ndrive
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadServerConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for network_buffer < 4kb")
	}
}

func TestLoadServerConfig_NetworkBufferTooLarge(t *testing.T) {
	content := `
server:
  listen: "127.0.0.1:9847"
  network_buffer: 8mb
storage:
  root: /tmp/ndrive
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadServerConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for network_buffer > 4mb")
	}
}

func TestLoadServerConfig_AdminRequiresOrigins(t *testing.T) {
	content := `
server:
  listen: "127.0.0.1:9847"
storage:
  root: /tmp/ndrive
admin:
  enabled: true
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadServerConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for admin enabled without allow_origins")
	}
}

func TestLoadServerConfig_AdminOriginsParsing(t *testing.T) {
	content := `
server:
  listen: "127.0.0.1:9847"
storage:
  root: /tmp/ndrive
admin:
  enabled: true
  allow_origins:
    - "192.168.1.10"
    - "10.0.0.0/8"
    - "::1"
`
	cfgPath := writeTempConfig(t, content)
	cfg, err := LoadServerConfig(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Admin.ParsedCIDRs) != 3 {
		t.Fatalf("expected 3 parsed CIDRs, got %d", len(cfg.Admin.ParsedCIDRs))
	}
	if ones, _ := cfg.Admin.ParsedCIDRs[0].Mask.Size(); ones != 32 {
		t.Errorf("expected single IPv4 to become /32, got /%d", ones)
	}
	if ones, _ := cfg.Admin.ParsedCIDRs[2].Mask.Size(); ones != 128 {
		t.Errorf("expected single IPv6 to become /128, got /%d", ones)
	}
}

func TestLoadServerConfig_AdminInvalidOrigin(t *testing.T) {
	content := `
server:
  listen: "127.0.0.1:9847"
storage:
  root: /tmp/ndrive
admin:
  enabled: true
  allow_origins:
    - "not-an-ip"
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadServerConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for invalid allow_origins entry")
	}
}

func TestLoadServerConfig_MirrorRequiresBucket(t *testing.T) {
	content := `
server:
  listen: "127.0.0.1:9847"
storage:
  root: /tmp/ndrive
mirror:
  enabled: true
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadServerConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for mirror enabled without bucket")
	}
}

func TestLoadServerConfig_MaintenanceDefaults(t *testing.T) {
	content := `
server:
  listen: "127.0.0.1:9847"
storage:
  root: /tmp/ndrive
maintenance:
  enabled: true
`
	cfgPath := writeTempConfig(t, content)
	cfg, err := LoadServerConfig(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Maintenance.Schedule != "0 3 * * *" {
		t.Errorf("expected default schedule '0 3 * * *', got %q", cfg.Maintenance.Schedule)
	}
	if cfg.Maintenance.CompressionMode != "gzip" {
		t.Errorf("expected default compression_mode gzip, got %q", cfg.Maintenance.CompressionMode)
	}
	if cfg.Maintenance.MaxArchives != 7 {
		t.Errorf("expected default max_archives 7, got %d", cfg.Maintenance.MaxArchives)
	}
	if cfg.Maintenance.StaleUploadAge != 24*time.Hour {
		t.Errorf("expected default stale_upload_age 24h, got %s", cfg.Maintenance.StaleUploadAge)
	}
	if cfg.Maintenance.ArchiveDir != filepath.Join("/tmp/ndrive", ".metadata", "archives") {
		t.Errorf("expected default archive_dir, got %q", cfg.Maintenance.ArchiveDir)
	}
}

func TestLoadServerConfig_InvalidCompressionMode(t *testing.T) {
	content := `
server:
  listen: "127.0.0.1:9847"
storage:
  root: /tmp/ndrive
maintenance:
  enabled: true
  compression_mode: lz4
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadServerConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for unsupported compression_mode")
	}
}

func TestLoadClientConfig_MissingUsername(t *testing.T) {
	content := `
client:
  username: ""
server:
  address: "localhost:9847"
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadClientConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for empty client.username")
	}
}

func TestLoadClientConfig_MissingAddress(t *testing.T) {
	content := `
client:
  username: alice
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadClientConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for empty server.address")
	}
}

func TestLoadClientConfig_PasswordFromEnv(t *testing.T) {
	t.Setenv("NDRIVE_PASSWORD", "from-env")
	content := `
client:
  username: alice
  password: from-yaml
server:
  address: "localhost:9847"
`
	cfgPath := writeTempConfig(t, content)
	cfg, err := LoadClientConfig(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Client.Password != "from-env" {
		t.Errorf("expected env password to win, got %q", cfg.Client.Password)
	}
}

func TestLoadClientConfig_DefaultRetry(t *testing.T) {
	content := `
client:
  username: alice
server:
  address: "localhost:9847"
`
	cfgPath := writeTempConfig(t, content)
	cfg, err := LoadClientConfig(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("expected default max_attempts 5, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.InitialDelay != time.Second {
		t.Errorf("expected default initial_delay 1s, got %s", cfg.Retry.InitialDelay)
	}
	if cfg.Retry.MaxDelay != 5*time.Minute {
		t.Errorf("expected default max_delay 5m, got %s", cfg.Retry.MaxDelay)
	}
}

func TestLoadServerConfig_FileNotFound(t *testing.T) {
	_, err := LoadServerConfig("/nonexistent/path/server.yaml")
	if err == nil {
		t.Fatal("expected error for non-existent file")
	}
}

func TestLoadServerConfig_InvalidYAML(t *testing.T) {
	cfgPath := writeTempConfig(t, "{{invalid yaml}}")
	_, err := LoadServerConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestParseByteSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		err  bool
	}{
		{"1mb", 1024 * 1024, false},
		{"256MB", 256 * 1024 * 1024, false},
		{"1gb", 1024 * 1024 * 1024, false},
		{"64kb", 64 * 1024, false},
		{"512b", 512, false},
		{"1048576", 1048576, false},
		{"", 0, true},
		{"abc", 0, true},
		{"12xy", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseByteSize(tc.in)
		if tc.err {
			if err == nil {
				t.Errorf("ParseByteSize(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseByteSize(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}
