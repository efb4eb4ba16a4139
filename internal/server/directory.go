// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/nishisan-dev/n-drive/internal/catalog"
	"github.com/nishisan-dev/n-drive/internal/protocol"
)

// catalogMessage traduz os erros do catálogo em mensagens para o client.
// Detalhes internos (paths, ids de outros donos) nunca vazam.
func catalogMessage(err error) string {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return "not found"
	case errors.Is(err, catalog.ErrConflict):
		return "conflict: name already exists"
	case errors.Is(err, catalog.ErrNotEmpty):
		return "directory is not empty"
	case errors.Is(err, catalog.ErrInvalidName):
		return "invalid name"
	case errors.Is(err, catalog.ErrFileIncomplete):
		return "file upload is not complete"
	default:
		return "operation failed"
	}
}

func toDirectoryInfo(d catalog.DirectoryMetadata) protocol.DirectoryInfo {
	return protocol.DirectoryInfo{
		DirectoryID:       d.ID,
		DirectoryName:     d.Name,
		ParentDirectoryID: d.ParentID,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func toFileInfo(f catalog.FileMetadata) protocol.FileInfo {
	return protocol.FileInfo{
		FileID:      f.ID,
		FileName:    f.Name,
		FileSize:    f.Size,
		ContentType: f.ContentType,
		DirectoryID: f.DirectoryID,
		IsComplete:  f.Complete,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// handleDirectoryCreate cria um diretório. O pai opcional viaja na
// metadata ParentDirectoryId; ausente cria na raiz do usuário.
func (h *Handler) handleDirectoryCreate(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	var body protocol.DirectoryCreateRequest
	if err := protocol.UnmarshalBody(req, &body); err != nil {
		return h.failure(s, req, "malformed directory create request")
	}

	parentID := req.Meta(protocol.MetaParentDirectoryID)
	dir, err := h.catalog.CreateDirectory(s.UserID(), body.DirectoryName, parentID)
	if err != nil {
		s.logger.Warn("directory create failed", "name", body.DirectoryName, "error", err)
		return h.failure(s, req, catalogMessage(err))
	}

	info := toDirectoryInfo(dir)
	return h.respond(s, req, protocol.DirectoryCreateResponse{
		Success:   true,
		Directory: &info,
	})
}

// handleDirectoryList retorna todos os diretórios do usuário; o client
// remonta a árvore pelos ParentDirectoryId.
func (h *Handler) handleDirectoryList(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	dirs := h.catalog.Directories().ListByOwner(s.UserID())
	infos := make([]protocol.DirectoryInfo, 0, len(dirs))
	for _, d := range dirs {
		infos = append(infos, toDirectoryInfo(d))
	}
	return h.respond(s, req, protocol.DirectoryListResponse{
		Success:     true,
		Directories: infos,
	})
}

// handleDirectoryRename renomeia o diretório; o catálogo reescreve os
// paths de toda a subárvore.
func (h *Handler) handleDirectoryRename(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	var body protocol.DirectoryRenameRequest
	if err := protocol.UnmarshalBody(req, &body); err != nil {
		return h.failure(s, req, "malformed directory rename request")
	}
	if body.DirectoryID == "" {
		return h.failure(s, req, "directory id is required")
	}

	dir, err := h.catalog.RenameDirectory(s.UserID(), body.DirectoryID, body.NewName)
	if err != nil {
		s.logger.Warn("directory rename failed",
			"directory_id", body.DirectoryID, "new_name", body.NewName, "error", err)
		return h.failure(s, req, catalogMessage(err))
	}

	info := toDirectoryInfo(dir)
	return h.respond(s, req, protocol.DirectoryRenameResponse{
		Success:   true,
		Directory: &info,
	})
}

// handleDirectoryDelete remove um diretório. O flag Recursive viaja na
// metadata; sem ele, diretório com filhos é recusado.
func (h *Handler) handleDirectoryDelete(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	var body protocol.DirectoryDeleteRequest
	if err := protocol.UnmarshalBody(req, &body); err != nil {
		return h.failure(s, req, "malformed directory delete request")
	}
	if body.DirectoryID == "" {
		return h.failure(s, req, "directory id is required")
	}

	recursive := req.MetaBool(protocol.MetaRecursive)
	if err := h.catalog.DeleteDirectory(s.UserID(), body.DirectoryID, recursive); err != nil {
		s.logger.Warn("directory delete failed",
			"directory_id", body.DirectoryID, "recursive", recursive, "error", err)
		return h.failure(s, req, catalogMessage(err))
	}

	if recursive {
		h.pushSessionEvent(s, "info", "directory_delete",
			fmt.Sprintf("directory %s deleted recursively by %s", body.DirectoryID, s.UserID()))
	}

	return h.respond(s, req, protocol.StatusResponse{Success: true})
}

// handleDirectoryContents lista os filhos diretos de um diretório. O id
// viaja na metadata DirectoryId; ausente lista a raiz do usuário.
func (h *Handler) handleDirectoryContents(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	directoryID := req.Meta(protocol.MetaDirectoryID)

	dirs, files, err := h.catalog.Contents(s.UserID(), directoryID)
	if err != nil {
		s.logger.Warn("directory contents failed", "directory_id", directoryID, "error", err)
		return h.failure(s, req, catalogMessage(err))
	}

	dirInfos := make([]protocol.DirectoryInfo, 0, len(dirs))
	for _, d := range dirs {
		dirInfos = append(dirInfos, toDirectoryInfo(d))
	}
	fileInfos := make([]protocol.FileInfo, 0, len(files))
	for _, f := range files {
		fileInfos = append(fileInfos, toFileInfo(f))
	}

	return h.respond(s, req, protocol.DirectoryContentsResponse{
		Success:     true,
		DirectoryID: directoryID,
		Directories: dirInfos,
		Files:       fileInfos,
	})
}
