// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package client

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nishisan-dev/n-drive/internal/protocol"
)

// UploadFile envia um arquivo do disco. O nome no servidor é o basename
// do path e o content type é inferido da extensão. Retorna o id do
// arquivo criado.
func (c *Client) UploadFile(path, directoryID string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	return c.Upload(filepath.Base(path), info.Size(), contentType, f, directoryID)
}

// Upload envia size bytes de r como um arquivo novo, em chunks
// estritamente em ordem do tamanho negociado no init. O último chunk
// carrega o resto e o flag IsLastChunk. Retorna o id do arquivo criado.
func (c *Client) Upload(name string, size int64, contentType string, r io.Reader, directoryID string) (string, error) {
	var meta map[string]string
	if directoryID != "" {
		meta = map[string]string{protocol.MetaDirectoryID: directoryID}
	}

	resp, err := c.do(protocol.CmdUploadInitRequest, protocol.UploadInitRequest{
		FileName:    name,
		FileSize:    size,
		ContentType: contentType,
	}, meta)
	if err != nil {
		return "", err
	}

	var init protocol.UploadInitResponse
	if err := protocol.UnmarshalBody(resp, &init); err != nil {
		return "", err
	}
	if !init.Success {
		return "", &ServerError{Command: "FileUploadInitRequest", Message: init.Message}
	}
	if init.ChunkSize <= 0 || init.TotalChunks <= 0 {
		return "", fmt.Errorf("client: invalid upload init: chunk_size=%d total_chunks=%d",
			init.ChunkSize, init.TotalChunks)
	}

	c.logger.Debug("upload started",
		"file_id", init.FileID,
		"name", name,
		"size", size,
		"total_chunks", init.TotalChunks)

	buf := make([]byte, init.ChunkSize)
	chunkSize := int64(init.ChunkSize)
	for index := 0; index < init.TotalChunks; index++ {
		want := chunkSize
		if remaining := size - int64(index)*chunkSize; remaining < want {
			want = remaining
		}
		if _, err := io.ReadFull(r, buf[:want]); err != nil {
			return "", fmt.Errorf("reading chunk %d of %s: %w", index, name, err)
		}

		req := c.newRequest(protocol.CmdUploadChunkRequest)
		req.Metadata[protocol.MetaFileID] = init.FileID
		req.Metadata[protocol.MetaChunkIndex] = strconv.Itoa(index)
		req.Metadata[protocol.MetaIsLastChunk] = strconv.FormatBool(index == init.TotalChunks-1)
		req.Payload = buf[:want]

		chunkResp, err := c.roundTrip(req)
		if err != nil {
			return "", fmt.Errorf("uploading chunk %d of %s: %w", index, name, err)
		}

		var ack protocol.UploadChunkResponse
		if err := protocol.UnmarshalBody(chunkResp, &ack); err != nil {
			return "", err
		}
		if !ack.Success {
			return "", &ServerError{Command: "FileUploadChunkRequest", Message: ack.Message}
		}
		if ack.ChunkIndex != index {
			return "", fmt.Errorf("client: server acked chunk %d, sent %d", ack.ChunkIndex, index)
		}
	}

	doneResp, err := c.do(protocol.CmdUploadCompleteRequest, protocol.UploadCompleteRequest{
		FileID: init.FileID,
	}, nil)
	if err != nil {
		return "", err
	}

	var done protocol.UploadCompleteResponse
	if err := protocol.UnmarshalBody(doneResp, &done); err != nil {
		return "", err
	}
	if !done.Success {
		return "", &ServerError{Command: "FileUploadCompleteRequest", Message: done.Message}
	}

	c.logger.Debug("upload complete", "file_id", done.FileID, "name", name, "bytes", size)
	return done.FileID, nil
}

// Download baixa um arquivo completo para w e retorna a metadata do
// init (nome, tamanho, content type). Os chunks chegam em ordem; o
// flag IsLastChunk do servidor é conferido contra o total anunciado.
func (c *Client) Download(fileID string, w io.Writer) (protocol.DownloadInitResponse, error) {
	resp, err := c.do(protocol.CmdDownloadInitRequest, protocol.DownloadInitRequest{
		FileID: fileID,
	}, nil)
	if err != nil {
		return protocol.DownloadInitResponse{}, err
	}

	var init protocol.DownloadInitResponse
	if err := protocol.UnmarshalBody(resp, &init); err != nil {
		return protocol.DownloadInitResponse{}, err
	}
	if !init.Success {
		return init, &ServerError{Command: "FileDownloadInitRequest", Message: init.Message}
	}

	c.logger.Debug("download started",
		"file_id", init.FileID,
		"name", init.FileName,
		"size", init.FileSize,
		"total_chunks", init.TotalChunks)

	var received int64
	for index := 0; index < init.TotalChunks; index++ {
		req := c.newRequest(protocol.CmdDownloadChunkRequest)
		req.Metadata[protocol.MetaFileID] = init.FileID
		req.Metadata[protocol.MetaChunkIndex] = strconv.Itoa(index)

		chunkResp, err := c.roundTrip(req)
		if err != nil {
			return init, fmt.Errorf("downloading chunk %d of %s: %w", index, init.FileName, err)
		}

		if got, ok := chunkResp.MetaInt(protocol.MetaChunkIndex); ok && got != index {
			return init, fmt.Errorf("client: server sent chunk %d, asked %d", got, index)
		}
		last := index == init.TotalChunks-1
		if chunkResp.MetaBool(protocol.MetaIsLastChunk) != last {
			return init, fmt.Errorf("client: chunk %d has wrong IsLastChunk flag", index)
		}

		if _, err := w.Write(chunkResp.Payload); err != nil {
			return init, fmt.Errorf("writing chunk %d of %s: %w", index, init.FileName, err)
		}
		received += int64(len(chunkResp.Payload))
	}

	if received != init.FileSize {
		return init, fmt.Errorf("client: downloaded %d bytes of %s, server announced %d",
			received, init.FileName, init.FileSize)
	}

	if err := c.doStatus(protocol.CmdDownloadCompleteRequest, protocol.DownloadCompleteRequest{
		FileID: init.FileID,
	}, nil); err != nil {
		return init, err
	}

	c.logger.Debug("download complete", "file_id", init.FileID, "name", init.FileName, "bytes", received)
	return init, nil
}

// DownloadFile baixa um arquivo para o path dado, criando-o com 0644.
func (c *Client) DownloadFile(fileID, path string) (protocol.DownloadInitResponse, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return protocol.DownloadInitResponse{}, fmt.Errorf("creating %s: %w", path, err)
	}

	info, err := c.Download(fileID, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("closing %s: %w", path, closeErr)
	}
	if err != nil {
		os.Remove(path)
		return info, err
	}
	return info, nil
}
