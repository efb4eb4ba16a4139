// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"context"
	"fmt"
	"time"

	"github.com/nishisan-dev/n-drive/internal/protocol"
)

// handleUploadInit abre um upload novo: cria o arquivo físico vazio, a
// entrada de catálogo com complete=false e o estado de progresso da
// sessão. Uma sessão carrega no máximo um upload por vez. O diretório de
// destino opcional viaja na metadata DirectoryId.
func (h *Handler) handleUploadInit(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	if up := s.currentUpload(); up != nil {
		return h.failure(s, req, fmt.Sprintf("upload of %s already in progress", up.fileName))
	}

	var body protocol.UploadInitRequest
	if err := protocol.UnmarshalBody(req, &body); err != nil {
		return h.failure(s, req, "malformed upload init request")
	}
	if body.FileName == "" {
		return h.failure(s, req, "file name is required")
	}
	if body.FileSize <= 0 {
		return h.failure(s, req, "file size must be positive")
	}

	chunkSize := h.cfg.Server.ChunkSizeRaw
	totalChunks := int((body.FileSize + chunkSize - 1) / chunkSize)
	directoryID := req.Meta(protocol.MetaDirectoryID)

	meta, err := h.catalog.CreateFileEntry(s.UserID(), body.FileName, body.FileSize,
		body.ContentType, directoryID, totalChunks)
	if err != nil {
		s.logger.Warn("upload init failed", "name", body.FileName, "error", err)
		return h.failure(s, req, catalogMessage(err))
	}

	s.setUpload(&uploadState{
		fileID:       meta.ID,
		fileName:     meta.Name,
		path:         meta.Path,
		declaredSize: body.FileSize,
		chunkSize:    chunkSize,
		totalChunks:  totalChunks,
		startedAt:    time.Now(),
	})

	s.logger.Info("upload started",
		"file_id", meta.ID,
		"name", meta.Name,
		"size", body.FileSize,
		"total_chunks", totalChunks,
		"directory_id", directoryID)

	return h.respond(s, req, protocol.UploadInitResponse{
		Success:     true,
		FileID:      meta.ID,
		ChunkSize:   int(chunkSize),
		TotalChunks: totalChunks,
	})
}

// handleUploadChunk grava um chunk no offset index*chunkSize. A entrega
// é estritamente em ordem: o índice aceito é sempre o próximo esperado.
// Chunks intermediários têm exatamente chunkSize bytes; o último pode
// ser menor mesmo sem o flag IsLastChunk.
func (h *Handler) handleUploadChunk(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	up := s.currentUpload()
	if up == nil {
		return h.failure(s, req, "no upload in progress")
	}

	fileID := req.Meta(protocol.MetaFileID)
	if fileID == "" || fileID != up.fileID {
		return h.failure(s, req, "unknown file id")
	}
	index, ok := req.MetaInt(protocol.MetaChunkIndex)
	if !ok {
		return h.failure(s, req, "missing chunk index")
	}
	if index != up.received {
		return h.failure(s, req,
			fmt.Sprintf("out of order chunk: expected %d, got %d", up.received, index))
	}
	if index >= up.totalChunks {
		return h.failure(s, req, fmt.Sprintf("chunk index %d out of range", index))
	}
	if len(req.Payload) == 0 {
		return h.failure(s, req, "empty chunk")
	}

	last := index == up.totalChunks-1
	switch {
	case !last && int64(len(req.Payload)) != up.chunkSize:
		return h.failure(s, req,
			fmt.Sprintf("chunk %d must have exactly %d bytes", index, up.chunkSize))
	case last && int64(len(req.Payload)) > up.chunkSize:
		return h.failure(s, req, "last chunk exceeds chunk size")
	}

	offset := int64(index) * up.chunkSize
	if err := h.store.WriteChunkAt(up.path, offset, req.Payload); err != nil {
		s.logger.Error("writing chunk", "file_id", up.fileID, "chunk", index, "error", err)
		return h.failure(s, req, "storage write failed")
	}
	h.DiskWrite.Add(int64(len(req.Payload)))

	received := s.advanceUpload(int64(len(req.Payload)))

	// IsLastChunk marca complete mesmo que o client encerre antes do
	// total declarado; o Finalize ainda exige todos os chunks.
	complete := received == up.totalChunks || req.MetaBool(protocol.MetaIsLastChunk)
	if err := h.catalog.Files().UpdateProgress(up.fileID, received, complete); err != nil {
		s.logger.Error("updating upload progress", "file_id", up.fileID, "error", err)
	}

	return h.respond(s, req, protocol.UploadChunkResponse{
		Success:        true,
		FileID:         up.fileID,
		ChunkIndex:     index,
		ReceivedChunks: received,
	})
}

// handleUploadComplete finaliza o upload: exige todos os chunks, marca
// complete no catálogo e encaminha o arquivo para o mirror quando
// habilitado. Divergência entre tamanho declarado e gravado é logada,
// não é fatal.
func (h *Handler) handleUploadComplete(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	up := s.currentUpload()
	if up == nil {
		return h.failure(s, req, "no upload in progress")
	}

	var body protocol.UploadCompleteRequest
	if err := protocol.UnmarshalBody(req, &body); err != nil {
		return h.failure(s, req, "malformed upload complete request")
	}
	if body.FileID != "" && body.FileID != up.fileID {
		return h.failure(s, req, "unknown file id")
	}
	if up.received < up.totalChunks {
		return h.failure(s, req,
			fmt.Sprintf("upload incomplete: %d of %d chunks received", up.received, up.totalChunks))
	}

	if err := h.catalog.Files().UpdateProgress(up.fileID, up.received, true); err != nil {
		s.logger.Error("finalizing upload", "file_id", up.fileID, "error", err)
		return h.failure(s, req, "could not finalize upload")
	}

	if size, err := h.store.FileSize(up.path); err == nil && size != up.declaredSize {
		s.logger.Warn("uploaded size differs from declared size",
			"file_id", up.fileID, "declared", up.declaredSize, "written", size)
	}

	s.logger.Info("upload complete",
		"file_id", up.fileID,
		"name", up.fileName,
		"bytes", up.bytesWritten,
		"chunks", up.received,
		"elapsed", time.Since(up.startedAt).Round(time.Millisecond).String())
	h.pushSessionEvent(s, "info", "upload_complete",
		fmt.Sprintf("file %s (%d bytes) uploaded by %s", up.fileName, up.bytesWritten, s.UserID()))

	if h.mirror != nil {
		if f, err := h.catalog.Files().GetOwned(up.fileID, s.UserID()); err == nil {
			if !h.mirror.Enqueue(s.UserID(), f) {
				s.logger.Warn("mirror queue full, file not replicated", "file_id", up.fileID)
			}
		}
	}

	fileID := up.fileID
	s.setUpload(nil)

	return h.respond(s, req, protocol.UploadCompleteResponse{
		Success: true,
		FileID:  fileID,
	})
}
