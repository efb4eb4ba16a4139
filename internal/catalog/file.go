// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package catalog

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// FileCatalog indexa FileMetadata por id. Mutações persistem o snapshot
// sob o lock de escrita, com uma exceção: UpdateProgress só grava em
// disco quando o upload completa. Um crash no meio de um upload deixa o
// registro com complete=false no snapshot, que é o estado correto — o
// arquivo fica visível na listagem mas nunca é servido para download.
type FileCatalog struct {
	mu     sync.RWMutex
	files  map[string]FileMetadata
	path   string
	logger *slog.Logger
}

// NewFileCatalog carrega o snapshot de path, ou inicia vazio.
func NewFileCatalog(path string, logger *slog.Logger) (*FileCatalog, error) {
	var records []FileMetadata
	if err := loadSnapshot(path, &records); err != nil {
		return nil, fmt.Errorf("loading file catalog: %w", err)
	}
	c := &FileCatalog{
		files:  make(map[string]FileMetadata, len(records)),
		path:   path,
		logger: logger,
	}
	incomplete := 0
	for _, f := range records {
		if !f.Complete {
			incomplete++
		}
		c.files[f.ID] = f
	}
	logger.Info("file catalog loaded", "files", len(c.files), "incomplete", incomplete, "snapshot", path)
	return c, nil
}

func (c *FileCatalog) persistLocked() error {
	records := make([]FileMetadata, 0, len(c.files))
	for _, f := range c.files {
		records = append(records, f)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return writeSnapshot(c.path, records)
}

// Get retorna o arquivo por id.
func (c *FileCatalog) Get(id string) (FileMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.files[id]
	return f, ok
}

// GetOwned retorna o arquivo se ele existir e pertencer a ownerID.
func (c *FileCatalog) GetOwned(id, ownerID string) (FileMetadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.files[id]
	if !ok || f.OwnerID != ownerID {
		return FileMetadata{}, ErrNotFound
	}
	return f, nil
}

// Put insere ou substitui um registro e persiste o snapshot.
func (c *FileCatalog) Put(meta FileMetadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, existed := c.files[meta.ID]
	c.files[meta.ID] = meta
	if err := c.persistLocked(); err != nil {
		if existed {
			c.files[meta.ID] = prev
		} else {
			delete(c.files, meta.ID)
		}
		return err
	}
	return nil
}

// PutBatch substitui vários registros em uma única mutação atômica.
func (c *FileCatalog) PutBatch(metas []FileMetadata) error {
	if len(metas) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := make(map[string]FileMetadata, len(metas))
	added := make([]string, 0, len(metas))
	for _, m := range metas {
		if old, ok := c.files[m.ID]; ok {
			prev[m.ID] = old
		} else {
			added = append(added, m.ID)
		}
		c.files[m.ID] = m
	}
	if err := c.persistLocked(); err != nil {
		for id, old := range prev {
			c.files[id] = old
		}
		for _, id := range added {
			delete(c.files, id)
		}
		return err
	}
	return nil
}

// DeleteBatch remove os ids informados e persiste o snapshot.
func (c *FileCatalog) DeleteBatch(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := make(map[string]FileMetadata, len(ids))
	for _, id := range ids {
		if old, ok := c.files[id]; ok {
			prev[id] = old
			delete(c.files, id)
		}
	}
	if err := c.persistLocked(); err != nil {
		for id, old := range prev {
			c.files[id] = old
		}
		return err
	}
	return nil
}

// UpdateProgress registra o avanço de um upload. O snapshot só é
// persistido na transição para complete; o contador intermediário vive
// apenas em memória e um restart o zera junto com o upload.
func (c *FileCatalog) UpdateProgress(id string, chunksReceived int, complete bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[id]
	if !ok {
		return ErrNotFound
	}
	prev := f
	f.ChunksReceived = chunksReceived
	f.Complete = complete
	f.UpdatedAt = time.Now().UTC()
	c.files[id] = f
	if complete && !prev.Complete {
		if err := c.persistLocked(); err != nil {
			c.files[id] = prev
			return err
		}
	}
	return nil
}

// ListByOwner retorna todos os arquivos do dono, ordenados por nome.
func (c *FileCatalog) ListByOwner(ownerID string) []FileMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []FileMetadata
	for _, f := range c.files {
		if f.OwnerID == ownerID {
			out = append(out, f)
		}
	}
	sortFiles(out)
	return out
}

// ListByDirectory retorna os arquivos do dono em directoryID (vazio = raiz).
func (c *FileCatalog) ListByDirectory(ownerID, directoryID string) []FileMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []FileMetadata
	for _, f := range c.files {
		if f.OwnerID == ownerID && f.DirectoryID == directoryID {
			out = append(out, f)
		}
	}
	sortFiles(out)
	return out
}

// ListByDirectorySet retorna os arquivos do dono cujo directory_id está
// no conjunto informado. Usado pelo delete recursivo.
func (c *FileCatalog) ListByDirectorySet(ownerID string, dirIDs map[string]bool) []FileMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []FileMetadata
	for _, f := range c.files {
		if f.OwnerID == ownerID && dirIDs[f.DirectoryID] {
			out = append(out, f)
		}
	}
	sortFiles(out)
	return out
}

// All retorna todos os arquivos de todos os donos, ordenados por nome.
// Usado pelas rotinas de manutenção (reaper e varredura de órfãos).
func (c *FileCatalog) All() []FileMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]FileMetadata, 0, len(c.files))
	for _, f := range c.files {
		out = append(out, f)
	}
	sortFiles(out)
	return out
}

// Count retorna o total de arquivos no catálogo.
func (c *FileCatalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.files)
}

// TotalBytes soma o tamanho declarado de todos os arquivos completos.
func (c *FileCatalog) TotalBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, f := range c.files {
		if f.Complete {
			total += f.Size
		}
	}
	return total
}

func sortFiles(files []FileMetadata) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].Name != files[j].Name {
			return files[i].Name < files[j].Name
		}
		return files[i].ID < files[j].ID
	})
}
