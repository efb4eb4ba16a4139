// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package storage implementa o adaptador de armazenamento físico local.
// Todas as operações validam que o caminho alvo está contido na raiz
// configurada antes de tocar o filesystem.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Erros do adaptador físico.
var (
	ErrStorage     = errors.New("storage: operation failed")
	ErrOutsideRoot = errors.New("storage: path escapes storage root")
)

// Local grava e lê arquivos sob uma raiz única. Escritas e leituras de
// chunk abrem o arquivo por operação; nenhum descriptor fica retido
// entre chamadas.
type Local struct {
	root string
}

// NewLocal resolve root para um caminho absoluto e garante que ele
// existe no disco.
func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving root %s: %v", ErrStorage, root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating root %s: %v", ErrStorage, abs, err)
	}
	return &Local{root: abs}, nil
}

// Root retorna a raiz absoluta do storage.
func (l *Local) Root() string { return l.root }

// resolve normaliza path e garante que ele não escapa da raiz.
func (l *Local) resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: resolving %s: %v", ErrStorage, path, err)
	}
	rel, err := filepath.Rel(l.root, abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return abs, nil
}

// CreateFile cria um arquivo vazio, criando os diretórios pais se
// necessário. Arquivo existente é truncado: um novo upload para o mesmo
// caminho recomeça do zero.
func (l *Local) CreateFile(path string) error {
	abs, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("%w: creating parent dirs for %s: %v", ErrStorage, path, err)
	}
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: creating file %s: %v", ErrStorage, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing file %s: %v", ErrStorage, path, err)
	}
	return nil
}

// WriteChunkAt grava data no offset indicado. O arquivo precisa ter
// sido criado antes por CreateFile.
func (l *Local) WriteChunkAt(path string, offset int64, data []byte) error {
	abs, err := l.resolve(path)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(abs, os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening file %s for write: %v", ErrStorage, path, err)
	}
	defer f.Close()
	if _, err := f.WriteAt(data, offset); err != nil {
		return fmt.Errorf("%w: writing %d bytes at offset %d of %s: %v", ErrStorage, len(data), offset, path, err)
	}
	return nil
}

// ReadChunkAt preenche buf a partir do offset indicado e retorna quantos
// bytes foram lidos. EOF parcial não é erro: o chamador dimensiona buf
// pelo tamanho do chunk e valida a contagem.
func (l *Local) ReadChunkAt(path string, offset int64, buf []byte) (int, error) {
	abs, err := l.resolve(path)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return 0, fmt.Errorf("%w: opening file %s for read: %v", ErrStorage, path, err)
	}
	defer f.Close()
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("%w: reading %d bytes at offset %d of %s: %v", ErrStorage, len(buf), offset, path, err)
	}
	return n, nil
}

// FileSize retorna o tamanho em bytes do arquivo.
func (l *Local) FileSize(path string) (int64, error) {
	abs, err := l.resolve(path)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %v", ErrStorage, path, err)
	}
	return info.Size(), nil
}

// Exists reporta se o caminho existe no disco.
func (l *Local) Exists(path string) bool {
	abs, err := l.resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// MoveFile move um arquivo, criando os diretórios pais do destino.
func (l *Local) MoveFile(oldPath, newPath string) error {
	oldAbs, err := l.resolve(oldPath)
	if err != nil {
		return err
	}
	newAbs, err := l.resolve(newPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		return fmt.Errorf("%w: creating parent dirs for %s: %v", ErrStorage, newPath, err)
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return fmt.Errorf("%w: moving %s to %s: %v", ErrStorage, oldPath, newPath, err)
	}
	return nil
}

// DeleteFile remove um arquivo. Arquivo inexistente não é erro, para
// que remoções repetidas e limpezas de rollback sejam idempotentes.
func (l *Local) DeleteFile(path string) error {
	abs, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: deleting file %s: %v", ErrStorage, path, err)
	}
	return nil
}

// CreateDirectory cria o diretório e os pais que faltarem.
func (l *Local) CreateDirectory(path string) error {
	abs, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("%w: creating directory %s: %v", ErrStorage, path, err)
	}
	return nil
}

// DeleteDirectory remove um diretório. Sem recursive, diretório não
// vazio é erro. Diretório inexistente não é erro.
func (l *Local) DeleteDirectory(path string, recursive bool) error {
	abs, err := l.resolve(path)
	if err != nil {
		return err
	}
	if recursive {
		if err := os.RemoveAll(abs); err != nil {
			return fmt.Errorf("%w: deleting directory tree %s: %v", ErrStorage, path, err)
		}
		return nil
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: deleting directory %s: %v", ErrStorage, path, err)
	}
	return nil
}

// MoveDirectory renomeia um diretório inteiro.
func (l *Local) MoveDirectory(oldPath, newPath string) error {
	oldAbs, err := l.resolve(oldPath)
	if err != nil {
		return err
	}
	newAbs, err := l.resolve(newPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		return fmt.Errorf("%w: creating parent dirs for %s: %v", ErrStorage, newPath, err)
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return fmt.Errorf("%w: moving directory %s to %s: %v", ErrStorage, oldPath, newPath, err)
	}
	return nil
}
