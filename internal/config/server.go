// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig representa a configuração completa do ndrive-server.
type ServerConfig struct {
	Server      ServerListen      `yaml:"server"`
	Storage     StorageInfo       `yaml:"storage"`
	Logging     LoggingInfo       `yaml:"logging"`
	Admin       AdminConfig       `yaml:"admin"`
	Mirror      MirrorConfig      `yaml:"mirror"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// ServerListen contém o listener TCP e os limites de sessão.
type ServerListen struct {
	Listen           string        `yaml:"listen"`          // default: "0.0.0.0:9847"
	MaxClients       int           `yaml:"max_clients"`     // default: 100
	SessionTimeout   time.Duration `yaml:"session_timeout"` // default: 30m
	ChunkSize        string        `yaml:"chunk_size"`      // ex: "1mb" (default: 1mb)
	ChunkSizeRaw     int64         `yaml:"-"`
	NetworkBuffer    string        `yaml:"network_buffer"` // buffer de socket e de leitura, ex: "256kb"
	NetworkBufferRaw int64         `yaml:"-"`
	BandwidthLimit   string        `yaml:"bandwidth_limit"` // por conexão, ex: "10mb"; vazio = sem limite
	BandwidthRaw     int64         `yaml:"-"`
	DSCP             string        `yaml:"dscp"` // ex: "EF", "AF21"; vazio = sem marcação
}

// StorageInfo contém os caminhos de dados do servidor.
type StorageInfo struct {
	Root        string `yaml:"root"`         // raiz dos arquivos dos usuários
	MetadataDir string `yaml:"metadata_dir"` // default: <root>/.metadata
	UsersFile   string `yaml:"users_file"`   // default: <metadata_dir>/users.json
}

// LoggingInfo contém configurações de logging.
type LoggingInfo struct {
	Level      string `yaml:"level"`       // debug|info|warn|error (default: info)
	Format     string `yaml:"format"`      // json|text (default: json)
	File       string `yaml:"file"`        // vazio = stdout apenas
	SessionDir string `yaml:"session_dir"` // vazio = sem logs por sessão
}

// AdminConfig configura o listener HTTP de observabilidade
// (health, métricas Prometheus, eventos e histórico de sessões).
type AdminConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Listen       string        `yaml:"listen"`        // default: "127.0.0.1:9849"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 15s
	IdleTimeout  time.Duration `yaml:"idle_timeout"`  // default: 60s
	AllowOrigins []string      `yaml:"allow_origins"` // IP ou CIDR (deny-by-default)

	// Persistência de eventos de sessão e transferência
	EventsFile     string `yaml:"events_file"`      // default: "events.jsonl"
	EventsMaxLines int    `yaml:"events_max_lines"` // default: 10000

	// Persistência de histórico de sessões finalizadas
	SessionHistoryFile     string `yaml:"session_history_file"`      // default: "session-history.jsonl"
	SessionHistoryMaxLines int    `yaml:"session_history_max_lines"` // default: 5000

	// Parsed é preenchido em validate(); não vem do YAML.
	ParsedCIDRs []*net.IPNet `yaml:"-"`
}

// MirrorConfig configura o espelhamento de uploads finalizados para S3.
type MirrorConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`         // default: "us-east-1"
	Endpoint      string        `yaml:"endpoint"`       // vazio = AWS; URL para MinIO e afins
	Prefix        string        `yaml:"prefix"`         // default: "ndrive"
	QueueSize     int           `yaml:"queue_size"`     // default: 128
	UploadTimeout time.Duration `yaml:"upload_timeout"` // default: 5m

	// Credenciais estáticas; vazias usam a cadeia default do SDK
	// (env, shared config, IAM role).
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// Endpoints custom (MinIO, Localstack) normalmente exigem
	// path-style; default true quando endpoint é definido.
	ForcePathStyle bool `yaml:"force_path_style"`
}

// MaintenanceConfig configura as rotinas agendadas do servidor.
type MaintenanceConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Schedule        string        `yaml:"schedule"`         // cron spec (default: "0 3 * * *")
	ArchiveDir      string        `yaml:"archive_dir"`      // default: <metadata_dir>/archives
	CompressionMode string        `yaml:"compression_mode"` // gzip|zst (default: gzip)
	MaxArchives     int           `yaml:"max_archives"`     // default: 7
	StaleUploadAge  time.Duration `yaml:"stale_upload_age"` // default: 24h
	OrphanScan      bool          `yaml:"orphan_scan"`      // opt-in
}

// ArchiveExtension retorna a extensão dos arquivos de snapshot gerados
// pela manutenção, conforme o compression_mode.
func (m MaintenanceConfig) ArchiveExtension() string {
	switch m.CompressionMode {
	case "zst":
		return ".tar.zst"
	default:
		return ".tar.gz"
	}
}

// LoadServerConfig lê e valida o arquivo YAML de configuração do server.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading server config: %w", err)
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating server config: %w", err)
	}

	return &cfg, nil
}

func (c *ServerConfig) validate() error {
	if c.Server.Listen == "" {
		c.Server.Listen = "0.0.0.0:9847"
	}
	if c.Server.MaxClients <= 0 {
		c.Server.MaxClients = 100
	}
	if c.Server.SessionTimeout <= 0 {
		c.Server.SessionTimeout = 30 * time.Minute
	}

	if c.Server.ChunkSize == "" {
		c.Server.ChunkSize = "1mb"
	}
	chunk, err := ParseByteSize(c.Server.ChunkSize)
	if err != nil {
		return fmt.Errorf("server.chunk_size: %w", err)
	}
	if chunk < 64*1024 {
		return fmt.Errorf("server.chunk_size must be at least 64kb, got %s", c.Server.ChunkSize)
	}
	if chunk > 16*1024*1024 {
		return fmt.Errorf("server.chunk_size must be at most 16mb, got %s", c.Server.ChunkSize)
	}
	c.Server.ChunkSizeRaw = chunk

	if c.Server.NetworkBuffer == "" {
		c.Server.NetworkBuffer = "256kb"
	}
	netBuf, err := ParseByteSize(c.Server.NetworkBuffer)
	if err != nil {
		return fmt.Errorf("server.network_buffer: %w", err)
	}
	if netBuf < 4*1024 {
		return fmt.Errorf("server.network_buffer must be at least 4kb, got %s", c.Server.NetworkBuffer)
	}
	if netBuf > 4*1024*1024 {
		return fmt.Errorf("server.network_buffer must be at most 4mb, got %s", c.Server.NetworkBuffer)
	}
	c.Server.NetworkBufferRaw = netBuf

	if c.Server.BandwidthLimit != "" {
		bw, err := ParseByteSize(c.Server.BandwidthLimit)
		if err != nil {
			return fmt.Errorf("server.bandwidth_limit: %w", err)
		}
		if bw <= 0 {
			return fmt.Errorf("server.bandwidth_limit must be > 0, got %s", c.Server.BandwidthLimit)
		}
		c.Server.BandwidthRaw = bw
	}

	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root is required")
	}
	if c.Storage.MetadataDir == "" {
		c.Storage.MetadataDir = filepath.Join(c.Storage.Root, ".metadata")
	}
	if c.Storage.UsersFile == "" {
		c.Storage.UsersFile = filepath.Join(c.Storage.MetadataDir, "users.json")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	// Admin defaults e validação
	if c.Admin.Enabled {
		if c.Admin.Listen == "" {
			c.Admin.Listen = "127.0.0.1:9849"
		}
		if c.Admin.ReadTimeout <= 0 {
			c.Admin.ReadTimeout = 5 * time.Second
		}
		if c.Admin.WriteTimeout <= 0 {
			c.Admin.WriteTimeout = 15 * time.Second
		}
		if c.Admin.IdleTimeout <= 0 {
			c.Admin.IdleTimeout = 60 * time.Second
		}
		if c.Admin.EventsFile == "" {
			c.Admin.EventsFile = "events.jsonl"
		}
		if c.Admin.EventsMaxLines <= 0 {
			c.Admin.EventsMaxLines = 10000
		}
		if c.Admin.SessionHistoryFile == "" {
			c.Admin.SessionHistoryFile = "session-history.jsonl"
		}
		if c.Admin.SessionHistoryMaxLines <= 0 {
			c.Admin.SessionHistoryMaxLines = 5000
		}
		if len(c.Admin.AllowOrigins) == 0 {
			return fmt.Errorf("admin.allow_origins is required when admin is enabled (deny-by-default)")
		}
		for _, origin := range c.Admin.AllowOrigins {
			_, cidr, err := net.ParseCIDR(origin)
			if err != nil {
				// Tenta como IP único → converte para /32 ou /128
				ip := net.ParseIP(strings.TrimSpace(origin))
				if ip == nil {
					return fmt.Errorf("admin.allow_origins: %q is not a valid IP or CIDR", origin)
				}
				if ip.To4() != nil {
					_, cidr, _ = net.ParseCIDR(ip.String() + "/32")
				} else {
					_, cidr, _ = net.ParseCIDR(ip.String() + "/128")
				}
			}
			c.Admin.ParsedCIDRs = append(c.Admin.ParsedCIDRs, cidr)
		}
	}

	// Mirror defaults e validação
	if c.Mirror.Enabled {
		if c.Mirror.Bucket == "" {
			return fmt.Errorf("mirror.bucket is required when mirror is enabled")
		}
		if c.Mirror.Region == "" {
			c.Mirror.Region = "us-east-1"
		}
		if c.Mirror.Prefix == "" {
			c.Mirror.Prefix = "ndrive"
		}
		if c.Mirror.QueueSize <= 0 {
			c.Mirror.QueueSize = 128
		}
		if c.Mirror.UploadTimeout <= 0 {
			c.Mirror.UploadTimeout = 5 * time.Minute
		}
		if (c.Mirror.AccessKeyID == "") != (c.Mirror.SecretAccessKey == "") {
			return fmt.Errorf("mirror.access_key_id and mirror.secret_access_key must be set together")
		}
		if c.Mirror.Endpoint != "" {
			c.Mirror.ForcePathStyle = true
		}
	}

	// Maintenance defaults
	if c.Maintenance.Enabled {
		if c.Maintenance.Schedule == "" {
			c.Maintenance.Schedule = "0 3 * * *"
		}
		if c.Maintenance.ArchiveDir == "" {
			c.Maintenance.ArchiveDir = filepath.Join(c.Storage.MetadataDir, "archives")
		}
		if c.Maintenance.CompressionMode == "" {
			c.Maintenance.CompressionMode = "gzip"
		}
		c.Maintenance.CompressionMode = strings.ToLower(strings.TrimSpace(c.Maintenance.CompressionMode))
		if c.Maintenance.CompressionMode != "gzip" && c.Maintenance.CompressionMode != "zst" {
			return fmt.Errorf("maintenance.compression_mode must be gzip or zst, got %q", c.Maintenance.CompressionMode)
		}
		if c.Maintenance.MaxArchives < 1 {
			c.Maintenance.MaxArchives = 7
		}
		if c.Maintenance.StaleUploadAge <= 0 {
			c.Maintenance.StaleUploadAge = 24 * time.Hour
		}
	}

	return nil
}

// ParseByteSize converte strings human-readable como "256mb", "1gb" para bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Ordenado do sufixo mais longo para o mais curto
	// para evitar que "mb" matche como "b"
	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	// Tenta interpretar como número puro (bytes)
	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}
