// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"math"
	"sort"
	"time"

	"github.com/nishisan-dev/n-drive/internal/server/observability"
)

// MetricsSnapshot retorna os contadores acumulados do servidor. Alimenta
// tanto a API de administração quanto o collector Prometheus.
func (h *Handler) MetricsSnapshot() observability.MetricsData {
	data := observability.MetricsData{
		TrafficIn:   h.TrafficIn.Load(),
		TrafficOut:  h.TrafficOut.Load(),
		DiskRead:    h.DiskRead.Load(),
		DiskWrite:   h.DiskWrite.Load(),
		ActiveConns: h.ActiveConns.Load(),
		Sessions:    h.manager.Count(),
		Users:       h.users.Count(),
		Files:       h.catalog.Files().Count(),
		Directories: h.catalog.Directories().Count(),
		StoredBytes: h.catalog.Files().TotalBytes(),
	}
	if h.sysmon != nil {
		sys := h.sysmon.Stats()
		data.StorageUsePercent = sys.StorageUsePercent
		data.StorageFreeBytes = sys.StorageFreeBytes
	}
	return data
}

// SessionsSnapshot retorna as sessões ativas ordenadas por início.
func (h *Handler) SessionsSnapshot() []observability.SessionSummary {
	out := make([]observability.SessionSummary, 0, h.manager.Count())
	h.manager.Range(func(s *Session) bool {
		sum := observability.SessionSummary{
			SessionID:    s.ID,
			User:         s.UserID(),
			RemoteAddr:   s.remote,
			State:        s.State().String(),
			StartedAt:    s.startedAt.Format(time.RFC3339),
			LastActivity: s.LastActivity().Format(time.RFC3339),
			IdleSecs:     int64(s.IdleFor().Seconds()),
			BytesIn:      s.bytesIn.Load(),
			BytesOut:     s.bytesOut.Load(),
		}
		if up, ok := s.uploadSnapshot(); ok {
			sum.Upload = transferDetail(up.fileID, up.fileName, up.totalChunks, up.received, up.startedAt)
		}
		if down, ok := s.downloadSnapshot(); ok {
			sum.Download = transferDetail(down.fileID, down.fileName, down.totalChunks, down.served, down.startedAt)
		}
		out = append(out, sum)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt < out[j].StartedAt })
	return out
}

func transferDetail(fileID, fileName string, totalChunks, doneChunks int, startedAt time.Time) *observability.TransferDetail {
	pct := 0.0
	if totalChunks > 0 {
		pct = float64(doneChunks) / float64(totalChunks) * 100
	}
	return &observability.TransferDetail{
		FileID:      fileID,
		FileName:    fileName,
		TotalChunks: totalChunks,
		DoneChunks:  doneChunks,
		Percent:     math.Round(pct*10) / 10,
		StartedAt:   startedAt.Format(time.RFC3339),
	}
}

// SessionHistorySnapshot retorna as últimas sessões encerradas.
func (h *Handler) SessionHistorySnapshot(limit int) []observability.SessionHistoryEntry {
	if h.history == nil {
		return nil
	}
	return h.history.Recent(limit)
}

// EventsSnapshot retorna os eventos operacionais mais recentes.
func (h *Handler) EventsSnapshot(limit int) []observability.EventEntry {
	if h.events == nil {
		return nil
	}
	return h.events.Recent(limit)
}
