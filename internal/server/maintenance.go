// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/nishisan-dev/n-drive/internal/catalog"
	"github.com/nishisan-dev/n-drive/internal/config"
	"github.com/nishisan-dev/n-drive/internal/server/observability"
	"github.com/robfig/cron/v3"
)

// Maintenance agenda as rotinas periódicas do servidor via cron:
// arquivamento dos snapshots de metadata, limpeza de uploads
// abandonados e a varredura de órfãos no storage.
type Maintenance struct {
	cfg     *config.ServerConfig
	logger  *slog.Logger
	catalog *catalog.Service
	events  *observability.EventStore // opcional

	cron    *cron.Cron
	mu      sync.Mutex // garante apenas uma execução por vez
	running bool
}

// NewMaintenance valida a cron spec e registra a execução agendada.
func NewMaintenance(cfg *config.ServerConfig, logger *slog.Logger, cat *catalog.Service, events *observability.EventStore) (*Maintenance, error) {
	m := &Maintenance{
		cfg:     cfg,
		logger:  logger.With("component", "maintenance"),
		catalog: cat,
		events:  events,
	}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if _, err := c.AddFunc(cfg.Maintenance.Schedule, m.execute); err != nil {
		return nil, fmt.Errorf("maintenance schedule %q: %w", cfg.Maintenance.Schedule, err)
	}

	m.cron = c
	return m, nil
}

// Start inicia o agendador.
func (m *Maintenance) Start() {
	m.logger.Info("maintenance scheduler started", "schedule", m.cfg.Maintenance.Schedule)
	m.cron.Start()
}

// Stop para o agendador e aguarda jobs em andamento.
func (m *Maintenance) Stop(ctx context.Context) {
	stopCtx := m.cron.Stop()

	select {
	case <-stopCtx.Done():
		m.logger.Info("maintenance scheduler stopped")
	case <-ctx.Done():
		m.logger.Warn("maintenance scheduler stop timed out")
	}
}

func (m *Maintenance) execute() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Warn("maintenance already running, skipping scheduled execution")
		return
	}
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	m.logger.Info("maintenance triggered")

	if path, err := m.ArchiveSnapshots(); err != nil {
		m.logger.Error("snapshot archive failed", "error", err)
	} else {
		m.logger.Info("snapshot archive written", "path", path)
	}

	if n, err := m.ReapStaleUploads(); err != nil {
		m.logger.Error("stale upload reaper failed", "error", err)
	} else if n > 0 {
		m.logger.Info("stale uploads reaped", "count", n)
	}

	if m.cfg.Maintenance.OrphanScan {
		if n, err := m.ScanOrphans(); err != nil {
			m.logger.Error("orphan scan failed", "error", err)
		} else if n > 0 {
			m.logger.Warn("orphan files found", "count", n)
		}
	}
}

// ArchiveSnapshots empacota os snapshots JSON do diretório de metadata
// em um tar comprimido. Grava em .tmp → rename para o nome final com
// timestamp, e depois remove os archives excedentes.
func (m *Maintenance) ArchiveSnapshots() (string, error) {
	metaDir := m.cfg.Storage.MetadataDir
	archiveDir := m.cfg.Maintenance.ArchiveDir
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}

	entries, err := os.ReadDir(metaDir)
	if err != nil {
		return "", fmt.Errorf("reading metadata directory: %w", err)
	}

	tmp, err := os.CreateTemp(archiveDir, "meta-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp archive: %w", err)
	}
	tmpPath := tmp.Name()

	if err := m.writeArchive(tmp, metaDir, entries); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing temp archive: %w", err)
	}

	// Timestamp com ponto decimal trocado por traço para portabilidade em FS.
	timestamp := time.Now().UTC().Format("2006-01-02T15-04-05.000")
	timestamp = strings.ReplaceAll(timestamp, ".", "-")
	finalPath := filepath.Join(archiveDir, "meta-"+timestamp+m.cfg.Maintenance.ArchiveExtension())

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming temp to final: %w", err)
	}

	if err := pruneArchives(archiveDir, m.cfg.Maintenance.ArchiveExtension(), m.cfg.Maintenance.MaxArchives); err != nil {
		m.logger.Warn("pruning old archives", "error", err)
	}

	return finalPath, nil
}

// writeArchive escreve os arquivos .json do diretório de metadata no
// writer, via tar e o compressor configurado.
func (m *Maintenance) writeArchive(w io.Writer, metaDir string, entries []os.DirEntry) error {
	compressor, err := newArchiveCompressor(w, m.cfg.Maintenance.CompressionMode)
	if err != nil {
		return err
	}

	tw := tar.NewWriter(compressor)

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := addFileToTar(tw, filepath.Join(metaDir, e.Name()), e.Name()); err != nil {
			tw.Close()
			compressor.Close()
			return err
		}
	}

	if err := tw.Close(); err != nil {
		compressor.Close()
		return fmt.Errorf("closing tar writer: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return fmt.Errorf("closing compressor: %w", err)
	}
	return nil
}

// newArchiveCompressor cria um io.WriteCloser com base no compression_mode.
func newArchiveCompressor(w io.Writer, mode string) (io.WriteCloser, error) {
	switch mode {
	case "zst":
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	default: // gzip
		gzWriter, err := pgzip.NewWriterLevel(w, pgzip.BestSpeed)
		if err != nil {
			return nil, fmt.Errorf("creating gzip writer: %w", err)
		}
		if err := gzWriter.SetConcurrency(1<<20, runtime.GOMAXPROCS(0)); err != nil {
			return nil, fmt.Errorf("configuring gzip concurrency: %w", err)
		}
		return gzWriter, nil
	}
}

// addFileToTar adiciona um arquivo regular ao tar. Stat via fd aberto e
// LimitReader evitam "write too long" se o snapshot mudar durante o tar.
func addFileToTar(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	header, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return fmt.Errorf("creating tar header for %s: %w", path, err)
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("writing tar header for %s: %w", path, err)
	}
	if _, err := io.Copy(tw, io.LimitReader(f, fi.Size())); err != nil {
		return fmt.Errorf("writing %s to tar: %w", path, err)
	}
	return nil
}

// pruneArchives remove archives excedentes, mantendo os maxArchives mais
// recentes. Os nomes carregam o timestamp, então ordem lexicográfica é
// ordem cronológica.
func pruneArchives(dir, ext string, maxArchives int) error {
	if maxArchives <= 0 {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading archive directory: %w", err)
	}

	var archives []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "meta-") && strings.HasSuffix(e.Name(), ext) {
			archives = append(archives, e.Name())
		}
	}
	sort.Strings(archives)

	if len(archives) > maxArchives {
		for _, name := range archives[:len(archives)-maxArchives] {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return fmt.Errorf("removing old archive %s: %w", name, err)
			}
		}
	}
	return nil
}

// ReapStaleUploads remove uploads incompletos cuja última atividade é
// mais antiga que stale_upload_age: dados físicos e registro do catálogo.
// Um restart zera o progresso em memória, então uploads interrompidos
// acabam colhidos aqui depois do TTL.
func (m *Maintenance) ReapStaleUploads() (int, error) {
	ttl := m.cfg.Maintenance.StaleUploadAge
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-ttl)

	reaped := 0
	for _, f := range m.catalog.Files().All() {
		if f.Complete || f.UpdatedAt.After(cutoff) {
			continue
		}
		if err := m.catalog.DeleteFile(f.OwnerID, f.ID); err != nil {
			m.logger.Warn("reaping stale upload",
				"file_id", f.ID, "owner", f.OwnerID, "error", err)
			continue
		}
		reaped++
		m.logger.Info("stale upload reaped",
			"file_id", f.ID,
			"owner", f.OwnerID,
			"name", f.Name,
			"age", time.Since(f.UpdatedAt).Round(time.Minute).String())
		if m.events != nil {
			m.events.PushEvent("warn", "stale_upload_reaped", f.OwnerID,
				fmt.Sprintf("incomplete upload %s (%s) removed after %s idle", f.ID, f.Name, ttl))
		}
	}
	return reaped, nil
}

// ScanOrphans percorre o storage físico e loga arquivos que não constam
// no catálogo. Nunca deleta: a decisão fica com o operador.
func (m *Maintenance) ScanOrphans() (int, error) {
	known := make(map[string]struct{})
	for _, f := range m.catalog.Files().All() {
		known[filepath.Clean(f.Path)] = struct{}{}
	}

	metaDir := filepath.Clean(m.cfg.Storage.MetadataDir)
	sessionDir := filepath.Clean(m.cfg.Logging.SessionDir)

	orphans := 0
	err := filepath.WalkDir(m.cfg.Storage.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			clean := filepath.Clean(path)
			if clean == metaDir || (m.cfg.Logging.SessionDir != "" && clean == sessionDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := known[filepath.Clean(path)]; !ok {
			orphans++
			m.logger.Warn("orphan file on storage", "path", path)
		}
		return nil
	})
	if err != nil {
		return orphans, fmt.Errorf("walking storage root: %w", err)
	}

	if orphans > 0 && m.events != nil {
		m.events.PushEvent("warn", "orphan_scan", "",
			fmt.Sprintf("%d file(s) on disk not present in the catalog", orphans))
	}
	return orphans, nil
}
