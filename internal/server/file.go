// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"context"
	"fmt"

	"github.com/nishisan-dev/n-drive/internal/protocol"
)

// handleFileList retorna todos os arquivos do usuário, incluindo uploads
// em andamento (IsComplete=false).
func (h *Handler) handleFileList(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	files := h.catalog.Files().ListByOwner(s.UserID())
	infos := make([]protocol.FileInfo, 0, len(files))
	for _, f := range files {
		infos = append(infos, toFileInfo(f))
	}
	return h.respond(s, req, protocol.FileListResponse{
		Success: true,
		Files:   infos,
	})
}

// handleFileDelete remove os dados físicos e a metadata de um arquivo.
func (h *Handler) handleFileDelete(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	var body protocol.FileDeleteRequest
	if err := protocol.UnmarshalBody(req, &body); err != nil {
		return h.failure(s, req, "malformed file delete request")
	}
	if body.FileID == "" {
		return h.failure(s, req, "file id is required")
	}

	// Captura a metadata antes do delete: o mirror precisa do nome para
	// montar a chave do objeto remoto.
	meta, metaErr := h.catalog.Files().GetOwned(body.FileID, s.UserID())

	if err := h.catalog.DeleteFile(s.UserID(), body.FileID); err != nil {
		s.logger.Warn("file delete failed", "file_id", body.FileID, "error", err)
		return h.failure(s, req, catalogMessage(err))
	}

	if h.mirror != nil && metaErr == nil {
		if !h.mirror.EnqueueDelete(s.UserID(), meta) {
			s.logger.Warn("mirror queue full, remote copy not deleted", "file_id", meta.ID)
		}
	}

	h.pushSessionEvent(s, "info", "file_delete",
		fmt.Sprintf("file %s deleted by %s", body.FileID, s.UserID()))

	return h.respond(s, req, protocol.StatusResponse{Success: true})
}

// handleFileMove move um lote de arquivos para outro diretório (target
// vazio = raiz). A operação é tudo-ou-nada: falha em qualquer arquivo
// desfaz os moves já feitos.
func (h *Handler) handleFileMove(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	var body protocol.FileMoveRequest
	if err := protocol.UnmarshalBody(req, &body); err != nil {
		return h.failure(s, req, "malformed file move request")
	}
	if len(body.FileIDs) == 0 {
		return h.failure(s, req, "no file ids given")
	}

	moved, err := h.catalog.MoveFiles(s.UserID(), body.FileIDs, body.TargetDirectoryID)
	if err != nil {
		s.logger.Warn("file move failed",
			"files", len(body.FileIDs), "target", body.TargetDirectoryID, "error", err)
		return h.failure(s, req, catalogMessage(err))
	}

	return h.respond(s, req, protocol.FileMoveResponse{
		Success:    true,
		MovedCount: moved,
	})
}
