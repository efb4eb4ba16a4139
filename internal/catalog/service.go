// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package catalog

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service coordena os dois catálogos e o storage físico. As operações
// compostas (criar, renomear, mover, deletar) serializam em svc.mu para
// que física e metadata avancem juntas; leituras vão direto aos
// catálogos e nunca bloqueiam atrás de uma mutação.
//
// Ordem de lock: svc.mu > DirectoryCatalog.mu > FileCatalog.mu.
type Service struct {
	mu     sync.Mutex
	dirs   *DirectoryCatalog
	files  *FileCatalog
	store  Storage
	root   string
	logger *slog.Logger
}

// NewService carrega os snapshots de snapshotDir (directories.json e
// files.json) e liga os catálogos ao storage físico em storageRoot.
func NewService(storageRoot, snapshotDir string, store Storage, logger *slog.Logger) (*Service, error) {
	dirs, err := NewDirectoryCatalog(filepath.Join(snapshotDir, "directories.json"), logger)
	if err != nil {
		return nil, err
	}
	files, err := NewFileCatalog(filepath.Join(snapshotDir, "files.json"), logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		dirs:   dirs,
		files:  files,
		store:  store,
		root:   storageRoot,
		logger: logger,
	}, nil
}

// Directories expõe o catálogo de diretórios para leituras diretas.
func (s *Service) Directories() *DirectoryCatalog { return s.dirs }

// Files expõe o catálogo de arquivos para leituras diretas.
func (s *Service) Files() *FileCatalog { return s.files }

// UserRoot retorna o diretório físico raiz do dono.
func (s *Service) UserRoot(ownerID string) string {
	return filepath.Join(s.root, SanitizeName(ownerID))
}

// EnsureUserRoot garante que a raiz física do dono existe.
func (s *Service) EnsureUserRoot(ownerID string) error {
	return s.store.CreateDirectory(s.UserRoot(ownerID))
}

// CreateDirectory cria um diretório lógico e físico para o dono.
// parentID vazio cria na raiz. Nome duplicado sob o mesmo pai
// (case-insensitive) retorna ErrConflict.
func (s *Service) CreateDirectory(ownerID, name, parentID string) (DirectoryMetadata, error) {
	clean := SanitizeName(name)
	if strings.TrimSpace(name) == "" {
		return DirectoryMetadata{}, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.UserRoot(ownerID)
	if parentID != "" {
		parent, err := s.dirs.GetOwned(parentID, ownerID)
		if err != nil {
			return DirectoryMetadata{}, fmt.Errorf("%w: parent directory %s", ErrNotFound, parentID)
		}
		base = parent.Path
	}
	if s.dirs.ExistsWithName(ownerID, parentID, clean, "") {
		return DirectoryMetadata{}, fmt.Errorf("%w: %s", ErrConflict, clean)
	}

	path := filepath.Join(base, clean)
	if err := s.store.CreateDirectory(path); err != nil {
		return DirectoryMetadata{}, err
	}

	now := time.Now().UTC()
	meta := DirectoryMetadata{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      clean,
		ParentID:  parentID,
		Path:      path,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.dirs.Put(meta); err != nil {
		if rbErr := s.store.DeleteDirectory(path, false); rbErr != nil {
			s.logger.Error("rollback of physical directory failed", "path", path, "error", rbErr)
		}
		return DirectoryMetadata{}, err
	}
	s.logger.Info("directory created", "owner", ownerID, "directory_id", meta.ID, "name", clean)
	return meta, nil
}

// RenameDirectory renomeia o diretório e reescreve o path de todos os
// descendentes (diretórios e arquivos) na mesma transação lógica. Se a
// persistência de metadata falhar, o rename físico é desfeito.
func (s *Service) RenameDirectory(ownerID, directoryID, newName string) (DirectoryMetadata, error) {
	clean := SanitizeName(newName)
	if strings.TrimSpace(newName) == "" {
		return DirectoryMetadata{}, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.dirs.GetOwned(directoryID, ownerID)
	if err != nil {
		return DirectoryMetadata{}, err
	}
	if s.dirs.ExistsWithName(ownerID, dir.ParentID, clean, dir.ID) {
		return DirectoryMetadata{}, fmt.Errorf("%w: %s", ErrConflict, clean)
	}

	oldPath := dir.Path
	newPath := filepath.Join(filepath.Dir(oldPath), clean)
	if newPath == oldPath {
		return dir, nil
	}

	if err := s.store.MoveDirectory(oldPath, newPath); err != nil {
		return DirectoryMetadata{}, err
	}

	now := time.Now().UTC()
	subtree := s.dirs.Subtree(directoryID)
	originalDirs := append([]DirectoryMetadata(nil), subtree...)
	updatedDirs := make([]DirectoryMetadata, len(subtree))
	for i, d := range subtree {
		d.Path = rewritePrefix(d.Path, oldPath, newPath)
		if d.ID == directoryID {
			d.Name = clean
		}
		d.UpdatedAt = now
		updatedDirs[i] = d
	}

	var updatedFiles []FileMetadata
	for _, f := range s.files.ListByOwner(ownerID) {
		if !pathWithin(f.Path, oldPath) {
			continue
		}
		f.Path = rewritePrefix(f.Path, oldPath, newPath)
		f.UpdatedAt = now
		updatedFiles = append(updatedFiles, f)
	}

	if err := s.dirs.PutBatch(updatedDirs); err != nil {
		if rbErr := s.store.MoveDirectory(newPath, oldPath); rbErr != nil {
			s.logger.Error("rollback of directory rename failed", "path", newPath, "error", rbErr)
		}
		return DirectoryMetadata{}, err
	}
	if err := s.files.PutBatch(updatedFiles); err != nil {
		if rbErr := s.dirs.PutBatch(originalDirs); rbErr != nil {
			s.logger.Error("rollback of directory metadata failed", "directory_id", directoryID, "error", rbErr)
		}
		if rbErr := s.store.MoveDirectory(newPath, oldPath); rbErr != nil {
			s.logger.Error("rollback of directory rename failed", "path", newPath, "error", rbErr)
		}
		return DirectoryMetadata{}, err
	}

	s.logger.Info("directory renamed", "owner", ownerID, "directory_id", directoryID,
		"new_name", clean, "descendant_dirs", len(updatedDirs)-1, "descendant_files", len(updatedFiles))
	return updatedDirs[0], nil
}

// DeleteDirectory remove um diretório. Sem recursive, diretório com
// filhos ou arquivos retorna ErrNotEmpty. Com recursive, a subárvore é
// percorrida em BFS e destruída de baixo para cima: primeiro os
// arquivos, depois os diretórios das folhas até a raiz. Falhas físicas
// individuais são logadas e não interrompem a remoção da metadata.
func (s *Service) DeleteDirectory(ownerID, directoryID string, recursive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.dirs.GetOwned(directoryID, ownerID)
	if err != nil {
		return err
	}

	subtree := s.dirs.Subtree(directoryID)
	ids := make(map[string]bool, len(subtree))
	for _, d := range subtree {
		ids[d.ID] = true
	}
	files := s.files.ListByDirectorySet(ownerID, ids)

	if !recursive {
		if len(subtree) > 1 || len(files) > 0 {
			return fmt.Errorf("%w: %s", ErrNotEmpty, dir.Name)
		}
		if err := s.store.DeleteDirectory(dir.Path, false); err != nil {
			return err
		}
		return s.dirs.DeleteBatch([]string{directoryID})
	}

	fileIDs := make([]string, 0, len(files))
	for _, f := range files {
		if err := s.store.DeleteFile(f.Path); err != nil {
			s.logger.Warn("failed to delete file data during recursive delete",
				"file_id", f.ID, "path", f.Path, "error", err)
		}
		fileIDs = append(fileIDs, f.ID)
	}
	if err := s.files.DeleteBatch(fileIDs); err != nil {
		return err
	}

	dirIDs := make([]string, 0, len(subtree))
	for i := len(subtree) - 1; i >= 0; i-- {
		d := subtree[i]
		if err := s.store.DeleteDirectory(d.Path, true); err != nil {
			s.logger.Warn("failed to delete physical directory during recursive delete",
				"directory_id", d.ID, "path", d.Path, "error", err)
		}
		dirIDs = append(dirIDs, d.ID)
	}
	if err := s.dirs.DeleteBatch(dirIDs); err != nil {
		return err
	}

	s.logger.Info("directory deleted", "owner", ownerID, "directory_id", directoryID,
		"recursive", recursive, "directories", len(dirIDs), "files", len(fileIDs))
	return nil
}

// Contents retorna os filhos diretos (subdiretórios e arquivos) de
// directoryID. directoryID vazio lista a raiz do dono.
func (s *Service) Contents(ownerID, directoryID string) ([]DirectoryMetadata, []FileMetadata, error) {
	if directoryID != "" {
		if _, err := s.dirs.GetOwned(directoryID, ownerID); err != nil {
			return nil, nil, err
		}
	}
	return s.dirs.ListChildren(ownerID, directoryID), s.files.ListByDirectory(ownerID, directoryID), nil
}

// MoveFiles move um lote de arquivos para targetDirectoryID (vazio =
// raiz do dono). Colisão de nome físico no destino ganha um sufixo de
// timestamp. Se qualquer move físico falhar, os já movidos voltam para
// o lugar de origem antes do erro ser retornado.
func (s *Service) MoveFiles(ownerID string, fileIDs []string, targetDirectoryID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	targetPath := s.UserRoot(ownerID)
	if targetDirectoryID != "" {
		target, err := s.dirs.GetOwned(targetDirectoryID, ownerID)
		if err != nil {
			return 0, fmt.Errorf("%w: target directory %s", ErrNotFound, targetDirectoryID)
		}
		targetPath = target.Path
	} else if err := s.store.CreateDirectory(targetPath); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	type movedFile struct {
		oldPath string
		newPath string
	}
	var moved []movedFile
	updated := make([]FileMetadata, 0, len(fileIDs))

	rollback := func() {
		for i := len(moved) - 1; i >= 0; i-- {
			if err := s.store.MoveFile(moved[i].newPath, moved[i].oldPath); err != nil {
				s.logger.Error("rollback of file move failed",
					"from", moved[i].newPath, "to", moved[i].oldPath, "error", err)
			}
		}
	}

	for _, id := range fileIDs {
		f, err := s.files.GetOwned(id, ownerID)
		if err != nil {
			rollback()
			return 0, fmt.Errorf("%w: file %s", ErrNotFound, id)
		}
		if !f.Complete {
			rollback()
			return 0, fmt.Errorf("%w: %s", ErrFileIncomplete, f.Name)
		}
		if f.DirectoryID == targetDirectoryID {
			continue
		}

		newPath := s.dedupPath(targetPath, filepath.Base(f.Path))
		if err := s.store.MoveFile(f.Path, newPath); err != nil {
			rollback()
			return 0, err
		}
		moved = append(moved, movedFile{oldPath: f.Path, newPath: newPath})

		f.DirectoryID = targetDirectoryID
		f.Path = newPath
		f.UpdatedAt = now
		updated = append(updated, f)
	}

	if err := s.files.PutBatch(updated); err != nil {
		rollback()
		return 0, err
	}

	s.logger.Info("files moved", "owner", ownerID, "count", len(updated), "target", targetDirectoryID)
	return len(updated), nil
}

// DeleteFile remove os dados físicos e a metadata de um arquivo. Se a
// remoção física falhar a metadata é preservada para nova tentativa.
func (s *Service) DeleteFile(ownerID, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.files.GetOwned(fileID, ownerID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteFile(f.Path); err != nil {
		return err
	}
	if err := s.files.DeleteBatch([]string{fileID}); err != nil {
		s.logger.Error("file data deleted but metadata removal failed", "file_id", fileID, "error", err)
		return err
	}
	s.logger.Info("file deleted", "owner", ownerID, "file_id", fileID, "name", f.Name)
	return nil
}

// CreateFileEntry registra um novo upload: cria o arquivo físico vazio
// no diretório de destino e persiste a metadata com complete=false.
func (s *Service) CreateFileEntry(ownerID, name string, size int64, contentType, directoryID string, totalChunks int) (FileMetadata, error) {
	clean := SanitizeName(name)
	if strings.TrimSpace(name) == "" {
		return FileMetadata{}, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.UserRoot(ownerID)
	if directoryID != "" {
		dir, err := s.dirs.GetOwned(directoryID, ownerID)
		if err != nil {
			return FileMetadata{}, fmt.Errorf("%w: directory %s", ErrNotFound, directoryID)
		}
		base = dir.Path
	} else if err := s.store.CreateDirectory(base); err != nil {
		return FileMetadata{}, err
	}

	id := uuid.NewString()
	path := filepath.Join(base, id+"_"+clean)
	if err := s.store.CreateFile(path); err != nil {
		return FileMetadata{}, err
	}

	now := time.Now().UTC()
	meta := FileMetadata{
		ID:          id,
		OwnerID:     ownerID,
		Name:        clean,
		Size:        size,
		ContentType: contentType,
		DirectoryID: directoryID,
		Path:        path,
		TotalChunks: totalChunks,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.files.Put(meta); err != nil {
		if rbErr := s.store.DeleteFile(path); rbErr != nil {
			s.logger.Error("rollback of physical file failed", "path", path, "error", rbErr)
		}
		return FileMetadata{}, err
	}
	return meta, nil
}

// FileForDownload retorna a metadata de um arquivo pronto para ser lido.
// Uploads em andamento retornam ErrFileIncomplete.
func (s *Service) FileForDownload(ownerID, fileID string) (FileMetadata, error) {
	f, err := s.files.GetOwned(fileID, ownerID)
	if err != nil {
		return FileMetadata{}, err
	}
	if !f.Complete {
		return FileMetadata{}, fmt.Errorf("%w: %s", ErrFileIncomplete, f.Name)
	}
	return f, nil
}

// dedupPath resolve colisões de nome físico no destino anexando um
// sufixo de timestamp antes da extensão.
func (s *Service) dedupPath(dir, base string) string {
	path := filepath.Join(dir, base)
	if !s.store.Exists(path) {
		return path
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+"_"+strconv.FormatInt(time.Now().UnixNano(), 10)+ext)
}

// rewritePrefix troca o prefixo oldPrefix de path por newPrefix.
func rewritePrefix(path, oldPrefix, newPrefix string) string {
	if path == oldPrefix {
		return newPrefix
	}
	return newPrefix + strings.TrimPrefix(path, oldPrefix)
}

// pathWithin reporta se path está sob root (ou é o próprio root).
func pathWithin(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
