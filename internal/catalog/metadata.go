// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package catalog implementa os catálogos de metadata de arquivos e
// diretórios: índices em memória com snapshot JSON em disco, donos
// exclusivos de todos os registros de metadata do servidor.
package catalog

import (
	"errors"
	"time"
)

// Erros do catálogo.
var (
	ErrNotFound       = errors.New("catalog: record not found")
	ErrConflict       = errors.New("catalog: name already exists")
	ErrNotEmpty       = errors.New("catalog: directory is not empty")
	ErrInvalidName    = errors.New("catalog: invalid name")
	ErrFileIncomplete = errors.New("catalog: file upload is not complete")
)

// DirectoryMetadata é o registro de um diretório lógico. ParentID vazio
// indica que o diretório está na raiz do dono. Path é o caminho físico
// absoluto correspondente no storage.
type DirectoryMetadata struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parent_id,omitempty"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileMetadata é o registro de um arquivo. DirectoryID vazio indica raiz.
// Invariantes: ChunksReceived <= TotalChunks; Complete implica
// ChunksReceived == TotalChunks.
type FileMetadata struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Name           string    `json:"name"`
	Size           int64     `json:"size"`
	ContentType    string    `json:"content_type,omitempty"`
	DirectoryID    string    `json:"directory_id,omitempty"`
	Path           string    `json:"path"`
	ChunksReceived int       `json:"chunks_received"`
	TotalChunks    int       `json:"total_chunks"`
	Complete       bool      `json:"complete"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Storage é a visão do catálogo sobre o adaptador físico. As operações
// compostas (create, rename, delete recursivo, move) orquestram estas
// chamadas e tentam rollback quando a persistência de metadata falha.
type Storage interface {
	CreateFile(path string) error
	DeleteFile(path string) error
	MoveFile(oldPath, newPath string) error
	Exists(path string) bool
	CreateDirectory(path string) error
	DeleteDirectory(path string, recursive bool) error
	MoveDirectory(oldPath, newPath string) error
}
