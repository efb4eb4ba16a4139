// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package server implementa o servidor n-drive: o listener TCP do
// protocolo binário, o ciclo de vida das sessões multiusuário e a API
// HTTP de administração.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/nishisan-dev/n-drive/internal/catalog"
	"github.com/nishisan-dev/n-drive/internal/config"
	"github.com/nishisan-dev/n-drive/internal/mirror"
	"github.com/nishisan-dev/n-drive/internal/server/observability"
	"github.com/nishisan-dev/n-drive/internal/storage"
	"github.com/nishisan-dev/n-drive/internal/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Capacidade dos ring buffers in-memory da API de administração. O
	// histórico completo vive nos arquivos JSONL.
	eventRingSize          = 512
	sessionHistoryRingSize = 256

	adminShutdownTimeout = 5 * time.Second
	maintenanceStopGrace = 30 * time.Second
)

// Run abre o listener TCP e bloqueia até o context ser cancelado.
func Run(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.Listen, err)
	}
	return RunWithListener(ctx, ln, cfg, logger)
}

// RunWithListener monta as dependências do servidor sobre um listener já
// aberto e roda o accept loop até o context ser cancelado. Separado de
// Run para que testes usem um listener em porta efêmera.
func RunWithListener(ctx context.Context, ln net.Listener, cfg *config.ServerConfig, logger *slog.Logger) error {
	defer ln.Close()

	// Os stores abrem arquivos sob o diretório de metadata já na carga.
	if err := os.MkdirAll(cfg.Storage.MetadataDir, 0755); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}

	store, err := storage.NewLocal(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("opening storage root: %w", err)
	}

	cat, err := catalog.NewService(store.Root(), cfg.Storage.MetadataDir, store, logger)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	accounts, err := users.NewJSONStore(cfg.Storage.UsersFile, logger)
	if err != nil {
		return fmt.Errorf("loading user store: %w", err)
	}

	manager := NewManager(cfg.Server.MaxClients, cfg.Server.SessionTimeout, logger)
	manager.StartSweeper(ctx)

	handler, err := NewHandler(cfg, logger, cat, store, accounts, manager)
	if err != nil {
		return err
	}

	sysmon := NewSystemMonitor(logger, store.Root())
	sysmon.Start()
	defer sysmon.Stop()
	handler.sysmon = sysmon

	// API de administração: stores JSONL, métricas Prometheus e o
	// listener HTTP com ACL por CIDR.
	var adminSrv *http.Server
	if cfg.Admin.Enabled {
		events, err := observability.NewEventStore(
			metadataPath(cfg, cfg.Admin.EventsFile), eventRingSize, cfg.Admin.EventsMaxLines)
		if err != nil {
			return fmt.Errorf("opening event store: %w", err)
		}
		defer events.Close()
		handler.events = events

		history, err := observability.NewSessionHistoryStore(
			metadataPath(cfg, cfg.Admin.SessionHistoryFile), sessionHistoryRingSize, cfg.Admin.SessionHistoryMaxLines)
		if err != nil {
			return fmt.Errorf("opening session history store: %w", err)
		}
		defer history.Close()
		handler.history = history

		registry := prometheus.NewRegistry()
		handler.collector = observability.NewCollector(registry, handler)

		router := observability.NewRouter(handler, cfg,
			observability.NewACL(cfg.Admin.ParsedCIDRs),
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		adminSrv = &http.Server{
			Addr:         cfg.Admin.Listen,
			Handler:      router,
			ReadTimeout:  cfg.Admin.ReadTimeout,
			WriteTimeout: cfg.Admin.WriteTimeout,
			IdleTimeout:  cfg.Admin.IdleTimeout,
		}
		go func() {
			logger.Info("admin API listening", "address", cfg.Admin.Listen)
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin API server", "error", err)
			}
		}()

		events.PushEvent("info", "server_start", "",
			fmt.Sprintf("server listening on %s", ln.Addr().String()))
	}

	if cfg.Mirror.Enabled {
		uploader, err := mirror.NewUploader(ctx, cfg.Mirror, logger)
		if err != nil {
			return fmt.Errorf("configuring mirror: %w", err)
		}
		uploader.Start()
		defer uploader.Stop()
		handler.mirror = uploader
		logger.Info("mirror enabled", "bucket", cfg.Mirror.Bucket, "prefix", cfg.Mirror.Prefix)
	}

	if cfg.Maintenance.Enabled {
		mnt, err := NewMaintenance(cfg, logger, cat, handler.events)
		if err != nil {
			return err
		}
		mnt.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), maintenanceStopGrace)
			defer cancel()
			mnt.Stop(stopCtx)
		}()
	}

	handler.StartStatsReporter(ctx)

	logger.Info("server listening",
		"address", ln.Addr().String(),
		"storage", store.Root(),
		"chunk_size", cfg.Server.ChunkSizeRaw,
		"max_clients", cfg.Server.MaxClients)

	// Fecha o listener quando o context for cancelado; o accept loop sai
	// pelo erro e executa o shutdown ordenado.
	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				manager.CloseAll()
				if adminSrv != nil {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
					adminSrv.Shutdown(shutdownCtx)
					cancel()
				}
				logger.Info("server shutdown complete")
				return nil
			default:
				logger.Error("accepting connection", "error", err)
				continue
			}
		}

		go handler.HandleConnection(ctx, conn)
	}
}

// metadataPath resolve nomes de arquivo relativos para dentro do
// diretório de metadata.
func metadataPath(cfg *config.ServerConfig, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.Storage.MetadataDir, name)
}
