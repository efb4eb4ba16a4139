// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Corpos JSON dos requests e responses. Os nomes de campo no wire são
// PascalCase ("Username", "FileId", ...); timestamps serializam em RFC3339.
// Chunks binários NÃO viajam nesses corpos: o payload cru do pacote carrega
// os bytes (requests de UploadChunk, responses de DownloadChunk).

// StatusResponse é o corpo mínimo de resposta, usado por Logout, FileDelete,
// DirectoryDelete, DownloadComplete e pelos pacotes genéricos Success/Error.
type StatusResponse struct {
	Success bool   `json:"Success"`
	Message string `json:"Message,omitempty"`
}

// FileInfo descreve um arquivo do catálogo na visão do client.
type FileInfo struct {
	FileID      string    `json:"FileId"`
	FileName    string    `json:"FileName"`
	FileSize    int64     `json:"FileSize"`
	ContentType string    `json:"ContentType,omitempty"`
	DirectoryID string    `json:"DirectoryId,omitempty"`
	IsComplete  bool      `json:"IsComplete"`
	CreatedAt   time.Time `json:"CreatedAt"`
	UpdatedAt   time.Time `json:"UpdatedAt"`
}

// DirectoryInfo descreve um diretório do catálogo na visão do client.
type DirectoryInfo struct {
	DirectoryID       string    `json:"DirectoryId"`
	DirectoryName     string    `json:"DirectoryName"`
	ParentDirectoryID string    `json:"ParentDirectoryId,omitempty"`
	CreatedAt         time.Time `json:"CreatedAt"`
	UpdatedAt         time.Time `json:"UpdatedAt"`
}

type LoginRequest struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
}

type LoginResponse struct {
	Success  bool   `json:"Success"`
	Message  string `json:"Message,omitempty"`
	UserID   string `json:"UserId,omitempty"`
	Username string `json:"Username,omitempty"`
}

type CreateAccountRequest struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
	Email    string `json:"Email,omitempty"`
}

type CreateAccountResponse struct {
	Success bool   `json:"Success"`
	Message string `json:"Message,omitempty"`
	UserID  string `json:"UserId,omitempty"`
}

type FileListResponse struct {
	Success bool       `json:"Success"`
	Message string     `json:"Message,omitempty"`
	Files   []FileInfo `json:"Files"`
}

type UploadInitRequest struct {
	FileName    string `json:"FileName"`
	FileSize    int64  `json:"FileSize"`
	ContentType string `json:"ContentType,omitempty"`
}

type UploadInitResponse struct {
	Success     bool   `json:"Success"`
	Message     string `json:"Message,omitempty"`
	FileID      string `json:"FileId,omitempty"`
	ChunkSize   int    `json:"ChunkSize,omitempty"`
	TotalChunks int    `json:"TotalChunks,omitempty"`
}

type UploadChunkResponse struct {
	Success        bool   `json:"Success"`
	Message        string `json:"Message,omitempty"`
	FileID         string `json:"FileId,omitempty"`
	ChunkIndex     int    `json:"ChunkIndex"`
	ReceivedChunks int    `json:"ReceivedChunks"`
}

type UploadCompleteRequest struct {
	FileID string `json:"FileId"`
}

type UploadCompleteResponse struct {
	Success bool   `json:"Success"`
	Message string `json:"Message,omitempty"`
	FileID  string `json:"FileId,omitempty"`
}

type DownloadInitRequest struct {
	FileID string `json:"FileId"`
}

type DownloadInitResponse struct {
	Success     bool   `json:"Success"`
	Message     string `json:"Message,omitempty"`
	FileID      string `json:"FileId,omitempty"`
	FileName    string `json:"FileName,omitempty"`
	FileSize    int64  `json:"FileSize,omitempty"`
	ContentType string `json:"ContentType,omitempty"`
	ChunkSize   int    `json:"ChunkSize,omitempty"`
	TotalChunks int    `json:"TotalChunks,omitempty"`
}

type DownloadCompleteRequest struct {
	FileID string `json:"FileId"`
}

type FileDeleteRequest struct {
	FileID string `json:"FileId"`
}

type DirectoryCreateRequest struct {
	DirectoryName string `json:"DirectoryName"`
}

type DirectoryCreateResponse struct {
	Success   bool           `json:"Success"`
	Message   string         `json:"Message,omitempty"`
	Directory *DirectoryInfo `json:"Directory,omitempty"`
}

type DirectoryListResponse struct {
	Success     bool            `json:"Success"`
	Message     string          `json:"Message,omitempty"`
	Directories []DirectoryInfo `json:"Directories"`
}

type DirectoryRenameRequest struct {
	DirectoryID string `json:"DirectoryId"`
	NewName     string `json:"NewName"`
}

type DirectoryRenameResponse struct {
	Success   bool           `json:"Success"`
	Message   string         `json:"Message,omitempty"`
	Directory *DirectoryInfo `json:"Directory,omitempty"`
}

type DirectoryDeleteRequest struct {
	DirectoryID string `json:"DirectoryId"`
}

type FileMoveRequest struct {
	FileIDs           []string `json:"FileIds"`
	TargetDirectoryID string   `json:"TargetDirectoryId,omitempty"`
}

type FileMoveResponse struct {
	Success    bool   `json:"Success"`
	Message    string `json:"Message,omitempty"`
	MovedCount int    `json:"MovedCount"`
}

type DirectoryContentsResponse struct {
	Success     bool            `json:"Success"`
	Message     string          `json:"Message,omitempty"`
	DirectoryID string          `json:"DirectoryId,omitempty"`
	Directories []DirectoryInfo `json:"Directories"`
	Files       []FileInfo      `json:"Files"`
}

// MarshalBody serializa um corpo JSON para o payload de um pacote.
func MarshalBody(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding message body: %w", err)
	}
	return data, nil
}

// UnmarshalBody decodifica o payload JSON de um pacote. Payload vazio é
// tratado como corpo vazio (structs de request sem campos obrigatórios).
func UnmarshalBody(p *Packet, v any) error {
	if len(p.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(p.Payload, v); err != nil {
		return fmt.Errorf("%w: decoding %s body: %v", ErrMalformedPacket, CommandName(p.Command), err)
	}
	return nil
}
