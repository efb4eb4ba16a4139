// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package observability

// HealthResponse é retornado por GET /api/v1/health.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Go      string        `json:"go"`
	Stats   *RuntimeStats `json:"stats,omitempty"`
}

// RuntimeStats expõe números do runtime Go no health endpoint.
type RuntimeStats struct {
	GoRoutines  int     `json:"goroutines"`
	CPUCores    int     `json:"cpu_cores"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
}

// MetricsData contém os contadores acumulados coletados do server.Handler.
// Os valores de tráfego e disco crescem monotonicamente desde o start do
// processo; os campos StorageUse/StorageFree refletem o volume que hospeda
// o storage físico.
type MetricsData struct {
	TrafficIn         int64
	TrafficOut        int64
	DiskRead          int64
	DiskWrite         int64
	ActiveConns       int32
	Sessions          int
	Users             int
	Files             int
	Directories       int
	StoredBytes       int64
	StorageUsePercent float64
	StorageFreeBytes  uint64
}

// MetricsResponse é retornado por GET /api/v1/metrics.
type MetricsResponse struct {
	TrafficInBytes    int64   `json:"traffic_in_bytes"`
	TrafficOutBytes   int64   `json:"traffic_out_bytes"`
	DiskReadBytes     int64   `json:"disk_read_bytes"`
	DiskWriteBytes    int64   `json:"disk_write_bytes"`
	ActiveConns       int32   `json:"active_conns"`
	Sessions          int     `json:"sessions"`
	Users             int     `json:"users"`
	Files             int     `json:"files"`
	Directories       int     `json:"directories"`
	StoredBytes       int64   `json:"stored_bytes"`
	StorageUsePercent float64 `json:"storage_use_percent"`
	StorageFreeBytes  uint64  `json:"storage_free_bytes"`
}

// SessionSummary é usado na lista de GET /api/v1/sessions.
type SessionSummary struct {
	SessionID    string `json:"session_id"`
	User         string `json:"user,omitempty"` // vazio até o login
	RemoteAddr   string `json:"remote_addr"`
	State        string `json:"state"` // auth_required | authenticated | disconnecting
	StartedAt    string `json:"started_at"`
	LastActivity string `json:"last_activity"`
	IdleSecs     int64  `json:"idle_secs"`
	BytesIn      int64  `json:"bytes_in"`
	BytesOut     int64  `json:"bytes_out"`

	// Transferências em andamento. Nil quando a sessão está ociosa.
	Upload   *TransferDetail `json:"upload,omitempty"`
	Download *TransferDetail `json:"download,omitempty"`
}

// TransferDetail descreve o progresso de um upload ou download ativo.
type TransferDetail struct {
	FileID      string  `json:"file_id"`
	FileName    string  `json:"file_name"`
	TotalChunks int     `json:"total_chunks"`
	DoneChunks  int     `json:"done_chunks"`
	Percent     float64 `json:"percent"`
	StartedAt   string  `json:"started_at"`
}

// EventEntry representa um evento operacional no ring buffer.
type EventEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"` // info | warn | error
	Type      string `json:"type"`  // login | login_failed | upload_complete | capacity_reject | ...
	User      string `json:"user,omitempty"`
	Session   string `json:"session,omitempty"`
	Message   string `json:"message"`
}

// SessionHistoryEntry registra uma sessão finalizada para GET /api/v1/sessions/history.
type SessionHistoryEntry struct {
	SessionID      string `json:"session_id"`
	User           string `json:"user,omitempty"`
	RemoteAddr     string `json:"remote_addr"`
	ConnectedAt    string `json:"connected_at"`
	DisconnectedAt string `json:"disconnected_at"`
	Duration       string `json:"duration"`
	BytesIn        int64  `json:"bytes_in"`
	BytesOut       int64  `json:"bytes_out"`
	Commands       int64  `json:"commands"`
	Result         string `json:"result"` // ok | timeout | error
}

// ConfigEffective é retornado por GET /api/v1/config/effective.
type ConfigEffective struct {
	ServerListen       string          `json:"server_listen"`
	AdminListen        string          `json:"admin_listen"`
	MaxClients         int             `json:"max_clients"`
	SessionTimeout     string          `json:"session_timeout"`
	ChunkSizeBytes     int64           `json:"chunk_size_bytes"`
	NetworkBufferBytes int64           `json:"network_buffer_bytes"`
	BandwidthLimit     string          `json:"bandwidth_limit,omitempty"`
	DSCP               string          `json:"dscp,omitempty"`
	LogLevel           string          `json:"log_level"`
	Mirror             MirrorSafe      `json:"mirror"`
	Maintenance        MaintenanceSafe `json:"maintenance"`
}

// MirrorSafe é uma visão segura (sem credenciais nem endpoint interno) do mirror.
type MirrorSafe struct {
	Enabled bool   `json:"enabled"`
	Bucket  string `json:"bucket,omitempty"`
	Prefix  string `json:"prefix,omitempty"`
}

// MaintenanceSafe é uma visão segura da config de manutenção.
type MaintenanceSafe struct {
	Enabled         bool   `json:"enabled"`
	Schedule        string `json:"schedule,omitempty"`
	CompressionMode string `json:"compression_mode,omitempty"`
	MaxArchives     int    `json:"max_archives,omitempty"`
}
