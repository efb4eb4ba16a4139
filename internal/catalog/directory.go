// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package catalog

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// DirectoryCatalog indexa DirectoryMetadata por id. Toda mutação
// persiste o snapshot antes de liberar o lock; leitores recebem cópias.
type DirectoryCatalog struct {
	mu     sync.RWMutex
	dirs   map[string]DirectoryMetadata
	path   string
	logger *slog.Logger
}

// NewDirectoryCatalog carrega o snapshot de path, ou inicia vazio se o
// arquivo ainda não existe.
func NewDirectoryCatalog(path string, logger *slog.Logger) (*DirectoryCatalog, error) {
	var records []DirectoryMetadata
	if err := loadSnapshot(path, &records); err != nil {
		return nil, fmt.Errorf("loading directory catalog: %w", err)
	}
	c := &DirectoryCatalog{
		dirs:   make(map[string]DirectoryMetadata, len(records)),
		path:   path,
		logger: logger,
	}
	for _, d := range records {
		c.dirs[d.ID] = d
	}
	logger.Info("directory catalog loaded", "directories", len(c.dirs), "snapshot", path)
	return c, nil
}

// persistLocked grava o snapshot ordenado por id. Chamador segura c.mu.
func (c *DirectoryCatalog) persistLocked() error {
	records := make([]DirectoryMetadata, 0, len(c.dirs))
	for _, d := range c.dirs {
		records = append(records, d)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return writeSnapshot(c.path, records)
}

// Get retorna o diretório por id.
func (c *DirectoryCatalog) Get(id string) (DirectoryMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.dirs[id]
	return d, ok
}

// GetOwned retorna o diretório se ele existir e pertencer a ownerID.
// Diretório de outro dono é indistinguível de inexistente.
func (c *DirectoryCatalog) GetOwned(id, ownerID string) (DirectoryMetadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.dirs[id]
	if !ok || d.OwnerID != ownerID {
		return DirectoryMetadata{}, ErrNotFound
	}
	return d, nil
}

// ExistsWithName verifica se o dono já tem um diretório com o mesmo nome
// (comparação case-insensitive, NFC) sob o mesmo pai, ignorando excludeID.
func (c *DirectoryCatalog) ExistsWithName(ownerID, parentID, name, excludeID string) bool {
	want := foldName(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.dirs {
		if d.ID == excludeID {
			continue
		}
		if d.OwnerID == ownerID && d.ParentID == parentID && foldName(d.Name) == want {
			return true
		}
	}
	return false
}

// Put insere ou substitui um registro e persiste o snapshot.
func (c *DirectoryCatalog) Put(meta DirectoryMetadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, existed := c.dirs[meta.ID]
	c.dirs[meta.ID] = meta
	if err := c.persistLocked(); err != nil {
		if existed {
			c.dirs[meta.ID] = prev
		} else {
			delete(c.dirs, meta.ID)
		}
		return err
	}
	return nil
}

// PutBatch substitui vários registros em uma única mutação atômica.
func (c *DirectoryCatalog) PutBatch(metas []DirectoryMetadata) error {
	if len(metas) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := make(map[string]DirectoryMetadata, len(metas))
	added := make([]string, 0, len(metas))
	for _, m := range metas {
		if old, ok := c.dirs[m.ID]; ok {
			prev[m.ID] = old
		} else {
			added = append(added, m.ID)
		}
		c.dirs[m.ID] = m
	}
	if err := c.persistLocked(); err != nil {
		for id, old := range prev {
			c.dirs[id] = old
		}
		for _, id := range added {
			delete(c.dirs, id)
		}
		return err
	}
	return nil
}

// DeleteBatch remove os ids informados e persiste o snapshot.
func (c *DirectoryCatalog) DeleteBatch(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := make(map[string]DirectoryMetadata, len(ids))
	for _, id := range ids {
		if old, ok := c.dirs[id]; ok {
			prev[id] = old
			delete(c.dirs, id)
		}
	}
	if err := c.persistLocked(); err != nil {
		for id, old := range prev {
			c.dirs[id] = old
		}
		return err
	}
	return nil
}

// ListByOwner retorna todos os diretórios do dono, ordenados por nome.
func (c *DirectoryCatalog) ListByOwner(ownerID string) []DirectoryMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []DirectoryMetadata
	for _, d := range c.dirs {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	sortDirectories(out)
	return out
}

// ListChildren retorna os filhos diretos de parentID (vazio = raiz).
func (c *DirectoryCatalog) ListChildren(ownerID, parentID string) []DirectoryMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []DirectoryMetadata
	for _, d := range c.dirs {
		if d.OwnerID == ownerID && d.ParentID == parentID {
			out = append(out, d)
		}
	}
	sortDirectories(out)
	return out
}

// Subtree retorna rootID e todos os seus descendentes em ordem BFS
// (raiz primeiro). A travessia é iterativa; ciclos acidentais de
// parent_id não travam o servidor.
func (c *DirectoryCatalog) Subtree(rootID string) []DirectoryMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()

	root, ok := c.dirs[rootID]
	if !ok {
		return nil
	}

	children := make(map[string][]string, len(c.dirs))
	for id, d := range c.dirs {
		if d.ParentID != "" {
			children[d.ParentID] = append(children[d.ParentID], id)
		}
	}
	for _, ids := range children {
		sort.Strings(ids)
	}

	out := []DirectoryMetadata{root}
	visited := map[string]bool{rootID: true}
	queue := append([]string(nil), children[rootID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		out = append(out, c.dirs[id])
		queue = append(queue, children[id]...)
	}
	return out
}

// Count retorna o total de diretórios no catálogo.
func (c *DirectoryCatalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.dirs)
}

func sortDirectories(dirs []DirectoryMetadata) {
	sort.Slice(dirs, func(i, j int) bool {
		if dirs[i].Name != dirs[j].Name {
			return dirs[i].Name < dirs[j].Name
		}
		return dirs[i].ID < dirs[j].ID
	})
}
