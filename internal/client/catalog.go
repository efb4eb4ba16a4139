// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package client

import (
	"strconv"

	"github.com/nishisan-dev/n-drive/internal/protocol"
)

// CreateDirectory cria um diretório sob parentID ("" cria na raiz).
func (c *Client) CreateDirectory(name, parentID string) (protocol.DirectoryInfo, error) {
	var meta map[string]string
	if parentID != "" {
		meta = map[string]string{protocol.MetaParentDirectoryID: parentID}
	}

	resp, err := c.do(protocol.CmdDirectoryCreateRequest, protocol.DirectoryCreateRequest{
		DirectoryName: name,
	}, meta)
	if err != nil {
		return protocol.DirectoryInfo{}, err
	}

	var out protocol.DirectoryCreateResponse
	if err := protocol.UnmarshalBody(resp, &out); err != nil {
		return protocol.DirectoryInfo{}, err
	}
	if !out.Success || out.Directory == nil {
		return protocol.DirectoryInfo{}, &ServerError{Command: "DirectoryCreateRequest", Message: out.Message}
	}
	return *out.Directory, nil
}

// ListDirectories retorna todos os diretórios do usuário. A árvore é
// remontada pelo caller através dos ParentDirectoryId.
func (c *Client) ListDirectories() ([]protocol.DirectoryInfo, error) {
	resp, err := c.do(protocol.CmdDirectoryListRequest, nil, nil)
	if err != nil {
		return nil, err
	}

	var out protocol.DirectoryListResponse
	if err := protocol.UnmarshalBody(resp, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &ServerError{Command: "DirectoryListRequest", Message: out.Message}
	}
	return out.Directories, nil
}

// DirectoryContents lista os filhos diretos de um diretório ("" lista a
// raiz do usuário).
func (c *Client) DirectoryContents(directoryID string) (protocol.DirectoryContentsResponse, error) {
	var meta map[string]string
	if directoryID != "" {
		meta = map[string]string{protocol.MetaDirectoryID: directoryID}
	}

	resp, err := c.do(protocol.CmdDirectoryContentsRequest, nil, meta)
	if err != nil {
		return protocol.DirectoryContentsResponse{}, err
	}

	var out protocol.DirectoryContentsResponse
	if err := protocol.UnmarshalBody(resp, &out); err != nil {
		return protocol.DirectoryContentsResponse{}, err
	}
	if !out.Success {
		return out, &ServerError{Command: "DirectoryContentsRequest", Message: out.Message}
	}
	return out, nil
}

// RenameDirectory renomeia um diretório e retorna a metadata atualizada.
func (c *Client) RenameDirectory(directoryID, newName string) (protocol.DirectoryInfo, error) {
	resp, err := c.do(protocol.CmdDirectoryRenameRequest, protocol.DirectoryRenameRequest{
		DirectoryID: directoryID,
		NewName:     newName,
	}, nil)
	if err != nil {
		return protocol.DirectoryInfo{}, err
	}

	var out protocol.DirectoryRenameResponse
	if err := protocol.UnmarshalBody(resp, &out); err != nil {
		return protocol.DirectoryInfo{}, err
	}
	if !out.Success || out.Directory == nil {
		return protocol.DirectoryInfo{}, &ServerError{Command: "DirectoryRenameRequest", Message: out.Message}
	}
	return *out.Directory, nil
}

// DeleteDirectory remove um diretório. Sem recursive, um diretório com
// filhos é recusado pelo servidor.
func (c *Client) DeleteDirectory(directoryID string, recursive bool) error {
	meta := map[string]string{
		protocol.MetaRecursive: strconv.FormatBool(recursive),
	}
	return c.doStatus(protocol.CmdDirectoryDeleteRequest, protocol.DirectoryDeleteRequest{
		DirectoryID: directoryID,
	}, meta)
}

// ListFiles retorna todos os arquivos do usuário, inclusive uploads em
// andamento (IsComplete=false).
func (c *Client) ListFiles() ([]protocol.FileInfo, error) {
	resp, err := c.do(protocol.CmdFileListRequest, nil, nil)
	if err != nil {
		return nil, err
	}

	var out protocol.FileListResponse
	if err := protocol.UnmarshalBody(resp, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &ServerError{Command: "FileListRequest", Message: out.Message}
	}
	return out.Files, nil
}

// MoveFiles move um lote de arquivos para targetDirectoryID ("" move
// para a raiz). Retorna quantos arquivos foram movidos.
func (c *Client) MoveFiles(fileIDs []string, targetDirectoryID string) (int, error) {
	resp, err := c.do(protocol.CmdFileMoveRequest, protocol.FileMoveRequest{
		FileIDs:           fileIDs,
		TargetDirectoryID: targetDirectoryID,
	}, nil)
	if err != nil {
		return 0, err
	}

	var out protocol.FileMoveResponse
	if err := protocol.UnmarshalBody(resp, &out); err != nil {
		return 0, err
	}
	if !out.Success {
		return 0, &ServerError{Command: "FileMoveRequest", Message: out.Message}
	}
	return out.MovedCount, nil
}

// DeleteFile remove o arquivo e seus dados físicos no servidor.
func (c *Client) DeleteFile(fileID string) error {
	return c.doStatus(protocol.CmdFileDeleteRequest, protocol.FileDeleteRequest{
		FileID: fileID,
	}, nil)
}
