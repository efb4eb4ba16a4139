// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nishisan-dev/n-drive/internal/protocol"
)

// handleDownloadInit abre um download de um arquivo completo do usuário.
// O arquivo é re-fatiado com o ChunkSize atual do servidor; o total de
// chunks do upload original é irrelevante aqui.
func (h *Handler) handleDownloadInit(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	var body protocol.DownloadInitRequest
	if err := protocol.UnmarshalBody(req, &body); err != nil {
		return h.failure(s, req, "malformed download init request")
	}
	if body.FileID == "" {
		return h.failure(s, req, "file id is required")
	}

	f, err := h.catalog.FileForDownload(s.UserID(), body.FileID)
	if err != nil {
		s.logger.Warn("download init failed", "file_id", body.FileID, "error", err)
		return h.failure(s, req, catalogMessage(err))
	}

	// O tamanho físico manda no fatiamento; se divergir do declarado o
	// client ainda recebe exatamente os bytes que existem em disco.
	size, err := h.store.FileSize(f.Path)
	if err != nil {
		s.logger.Error("reading file size", "file_id", f.ID, "path", f.Path, "error", err)
		return h.failure(s, req, "storage read failed")
	}

	chunkSize := h.cfg.Server.ChunkSizeRaw
	totalChunks := int((size + chunkSize - 1) / chunkSize)

	s.setDownload(&downloadState{
		fileID:      f.ID,
		fileName:    f.Name,
		path:        f.Path,
		fileSize:    size,
		chunkSize:   chunkSize,
		totalChunks: totalChunks,
		startedAt:   time.Now(),
	})

	s.logger.Info("download started",
		"file_id", f.ID,
		"name", f.Name,
		"size", size,
		"total_chunks", totalChunks)

	return h.respond(s, req, protocol.DownloadInitResponse{
		Success:     true,
		FileID:      f.ID,
		FileName:    f.Name,
		FileSize:    size,
		ContentType: f.ContentType,
		ChunkSize:   int(chunkSize),
		TotalChunks: totalChunks,
	})
}

// handleDownloadChunk lê o chunk pedido em um buffer do pool e o devolve
// como payload cru. Falhas viram pacote Error com OriginalCommandCode —
// a resposta de chunk não tem corpo JSON onde levar a mensagem.
func (h *Handler) handleDownloadChunk(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	d := s.currentDownload()
	if d == nil {
		return h.failure(s, req, "no download in progress")
	}

	fileID := req.Meta(protocol.MetaFileID)
	if fileID == "" || fileID != d.fileID {
		return h.failure(s, req, "unknown file id")
	}
	index, ok := req.MetaInt(protocol.MetaChunkIndex)
	if !ok || index < 0 {
		return h.failure(s, req, "missing chunk index")
	}

	offset := int64(index) * d.chunkSize
	if offset >= d.fileSize {
		return h.failure(s, req, fmt.Sprintf("chunk index %d out of range", index))
	}

	want := d.chunkSize
	if remaining := d.fileSize - offset; remaining < want {
		want = remaining
	}

	bufp := h.chunkPool.Get().(*[]byte)
	buf := *bufp
	if int64(len(buf)) < want {
		buf = make([]byte, want)
		*bufp = buf
	}

	n, err := h.store.ReadChunkAt(d.path, offset, buf[:want])
	if err != nil {
		h.chunkPool.Put(bufp)
		s.logger.Error("reading chunk", "file_id", d.fileID, "chunk", index, "error", err)
		return h.failure(s, req, "storage read failed")
	}
	h.DiskRead.Add(int64(n))

	s.advanceDownload(index)

	// O buffer fica emprestado na sessão até o encode copiar o payload
	// para o frame; o loop da conexão o devolve ao pool.
	s.holdChunkBuf(bufp)

	resp := h.respond(s, req, nil)
	resp.Metadata[protocol.MetaFileID] = d.fileID
	resp.Metadata[protocol.MetaChunkIndex] = strconv.Itoa(index)
	resp.Metadata[protocol.MetaIsLastChunk] = strconv.FormatBool(index == d.totalChunks-1)
	resp.Payload = buf[:n]
	return resp
}

// handleDownloadComplete encerra o download da sessão. É só um ack; os
// chunks já foram entregues.
func (h *Handler) handleDownloadComplete(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	d := s.currentDownload()
	if d == nil {
		return h.failure(s, req, "no download in progress")
	}

	var body protocol.DownloadCompleteRequest
	if err := protocol.UnmarshalBody(req, &body); err != nil {
		return h.failure(s, req, "malformed download complete request")
	}
	if body.FileID != "" && body.FileID != d.fileID {
		return h.failure(s, req, "unknown file id")
	}

	s.logger.Info("download complete",
		"file_id", d.fileID,
		"name", d.fileName,
		"chunks", d.totalChunks,
		"elapsed", time.Since(d.startedAt).Round(time.Millisecond).String())

	s.setDownload(nil)
	return h.respond(s, req, protocol.StatusResponse{Success: true})
}
