// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package observability

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/nishisan-dev/n-drive/internal/config"
)

// startTime registra quando o processo iniciou (para cálculo de uptime).
var startTime = time.Now()

// Version é preenchida via ldflags no build (-X ...Version=x.y.z).
var Version = "dev"

// HandlerMetrics define a interface read-only que o router precisa do server.Handler.
// Isso desacopla o pacote observability do server sem expor o Handler inteiro.
type HandlerMetrics interface {
	MetricsSnapshot() MetricsData
	SessionsSnapshot() []SessionSummary
	SessionHistorySnapshot(limit int) []SessionHistoryEntry
	EventsSnapshot(limit int) []EventEntry
}

// NewRouter cria o http.Handler para a API de administração.
// Aplica middleware ACL em todas as rotas. prom é o handler do endpoint
// Prometheus (/metrics); nil desabilita a rota.
func NewRouter(metrics HandlerMetrics, cfg *config.ServerConfig, acl *ACL, prom http.Handler) http.Handler {
	mux := http.NewServeMux()

	// API v1
	mux.HandleFunc("GET /api/v1/health", handleHealth)
	mux.HandleFunc("GET /api/v1/metrics", makeMetricsHandler(metrics))
	mux.HandleFunc("GET /api/v1/sessions", makeSessionsHandler(metrics))
	mux.HandleFunc("GET /api/v1/sessions/history", makeSessionHistoryHandler(metrics))
	mux.HandleFunc("GET /api/v1/events", makeEventsHandler(metrics))
	mux.HandleFunc("GET /api/v1/config/effective", makeConfigHandler(cfg))

	// Endpoint Prometheus (text format)
	if prom != nil {
		mux.Handle("GET /metrics", prom)
	}

	// Página raiz mínima
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<!DOCTYPE html><html><head><title>N-Drive Admin</title></head><body><h1>N-Drive Server</h1><p>API em /api/v1/.</p></body></html>`))
	})

	return acl.Middleware(mux)
}

// handleHealth retorna status do processo, uptime, versão e números do runtime.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthResponse{
		Status:  "ok",
		Uptime:  time.Since(startTime).String(),
		Version: Version,
		Go:      runtime.Version(),
		Stats: &RuntimeStats{
			GoRoutines:  runtime.NumGoroutine(),
			CPUCores:    runtime.NumCPU(),
			HeapAllocMB: float64(mem.HeapAlloc) / (1024 * 1024),
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

// makeMetricsHandler retorna um handler que coleta métricas do Handler.
func makeMetricsHandler(metrics HandlerMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := metrics.MetricsSnapshot()
		resp := MetricsResponse{
			TrafficInBytes:    data.TrafficIn,
			TrafficOutBytes:   data.TrafficOut,
			DiskReadBytes:     data.DiskRead,
			DiskWriteBytes:    data.DiskWrite,
			ActiveConns:       data.ActiveConns,
			Sessions:          data.Sessions,
			Users:             data.Users,
			Files:             data.Files,
			Directories:       data.Directories,
			StoredBytes:       data.StoredBytes,
			StorageUsePercent: data.StorageUsePercent,
			StorageFreeBytes:  data.StorageFreeBytes,
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// makeSessionsHandler lista as sessões ativas.
func makeSessionsHandler(metrics HandlerMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := metrics.SessionsSnapshot()
		if sessions == nil {
			sessions = []SessionSummary{}
		}
		writeJSON(w, http.StatusOK, sessions)
	}
}

// makeSessionHistoryHandler lista sessões finalizadas (?limit=N, default 100).
func makeSessionHistoryHandler(metrics HandlerMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := metrics.SessionHistorySnapshot(limitParam(r, 100))
		if entries == nil {
			entries = []SessionHistoryEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// makeEventsHandler lista eventos operacionais recentes (?limit=N, default 100).
func makeEventsHandler(metrics HandlerMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events := metrics.EventsSnapshot(limitParam(r, 100))
		if events == nil {
			events = []EventEntry{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}

// makeConfigHandler expõe a configuração efetiva (campos seguros apenas).
func makeConfigHandler(cfg *config.ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := ConfigEffective{
			ServerListen:       cfg.Server.Listen,
			AdminListen:        cfg.Admin.Listen,
			MaxClients:         cfg.Server.MaxClients,
			SessionTimeout:     cfg.Server.SessionTimeout.String(),
			ChunkSizeBytes:     cfg.Server.ChunkSizeRaw,
			NetworkBufferBytes: cfg.Server.NetworkBufferRaw,
			BandwidthLimit:     cfg.Server.BandwidthLimit,
			DSCP:               cfg.Server.DSCP,
			LogLevel:           cfg.Logging.Level,
			Mirror: MirrorSafe{
				Enabled: cfg.Mirror.Enabled,
				Bucket:  cfg.Mirror.Bucket,
				Prefix:  cfg.Mirror.Prefix,
			},
			Maintenance: MaintenanceSafe{
				Enabled:         cfg.Maintenance.Enabled,
				Schedule:        cfg.Maintenance.Schedule,
				CompressionMode: cfg.Maintenance.CompressionMode,
				MaxArchives:     cfg.Maintenance.MaxArchives,
			},
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// limitParam extrai o query param "limit" com um default.
func limitParam(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// writeJSON serializa v como JSON e envia com status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
