// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package users implementa o cadastro de contas do servidor: cada conta
// tem um id opaco, username único (case-insensitive), e-mail e hash
// bcrypt da senha, persistidos em um JSON único.
package users

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
)

// Erros do cadastro de usuários.
var (
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	ErrUserExists         = errors.New("users: user already exists")
	ErrInvalidUsername    = errors.New("users: invalid username")
	ErrInvalidPassword    = errors.New("users: invalid password")
)

// minPasswordLength é o mínimo aceito em contas novas.
const minPasswordLength = 4

// usernamePattern limita usernames a caracteres seguros para logs e
// caminhos. A unicidade é avaliada sobre o fold (NFC + minúsculas).
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._@-]{2,63}$`)

// User é uma conta cadastrada. O ID é opaco e estável; o username é o
// nome de login escolhido na criação.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store é o que o servidor precisa de um cadastro de contas.
type Store interface {
	// Create registra uma conta nova e retorna o registro criado.
	Create(username, password, email string) (User, error)
	// Verify valida o par usuário/senha e retorna a conta. Usuário
	// inexistente e senha errada retornam o mesmo ErrInvalidCredentials.
	Verify(username, password string) (User, error)
	// Get retorna a conta pelo id opaco.
	Get(id string) (User, bool)
	// Count retorna o número de contas cadastradas.
	Count() int
}

// JSONStore persiste as contas em um único arquivo JSON, reescrito de
// forma atômica a cada mutação. O índice principal é o fold do
// username; byID cobre as consultas por id de sessão.
type JSONStore struct {
	mu     sync.RWMutex
	byName map[string]User
	byID   map[string]User
	path   string
	cost   int
	logger *slog.Logger
}

// NewJSONStore carrega o cadastro de path, ou inicia vazio se o arquivo
// não existe ainda.
func NewJSONStore(path string, logger *slog.Logger) (*JSONStore, error) {
	s := &JSONStore{
		byName: make(map[string]User),
		byID:   make(map[string]User),
		path:   path,
		cost:   bcrypt.DefaultCost,
		logger: logger,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("user store initialized empty", "path", path)
			return s, nil
		}
		return nil, fmt.Errorf("reading user store %s: %w", path, err)
	}
	var records []User
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parsing user store %s: %w", path, err)
		}
	}
	for _, u := range records {
		s.byName[foldUsername(u.Username)] = u
		s.byID[u.ID] = u
	}
	logger.Info("user store loaded", "users", len(s.byID), "path", path)
	return s, nil
}

// Create valida, gera o hash e persiste a conta nova. O username é
// único sob fold: "Alice" e "alice" colidem.
func (s *JSONStore) Create(username, password, email string) (User, error) {
	if !usernamePattern.MatchString(username) {
		return User{}, fmt.Errorf("%w: must match %s", ErrInvalidUsername, usernamePattern.String())
	}
	if len(password) < minPasswordLength {
		return User{}, fmt.Errorf("%w: minimum length is %d", ErrInvalidPassword, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}

	u := User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := foldUsername(username)
	if _, ok := s.byName[key]; ok {
		return User{}, fmt.Errorf("%w: %s", ErrUserExists, username)
	}
	s.byName[key] = u
	s.byID[u.ID] = u
	if err := s.saveLocked(); err != nil {
		delete(s.byName, key)
		delete(s.byID, u.ID)
		return User{}, err
	}
	s.logger.Info("user account created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Verify compara a senha com o hash bcrypt armazenado.
func (s *JSONStore) Verify(username, password string) (User, error) {
	s.mu.RLock()
	u, ok := s.byName[foldUsername(username)]
	s.mu.RUnlock()
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Get retorna a conta pelo id opaco.
func (s *JSONStore) Get(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	return u, ok
}

// Count retorna o total de contas cadastradas.
func (s *JSONStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// foldUsername reduz o username à forma comparada na unicidade:
// NFC + minúsculas, o mesmo fold usado nos catálogos de nomes.
func foldUsername(username string) string {
	return strings.ToLower(norm.NFC.String(username))
}

// saveLocked grava o JSON em um temporário e renomeia por cima do
// destino. Chamador segura s.mu.
func (s *JSONStore) saveLocked() error {
	records := make([]User, 0, len(s.byID))
	for _, u := range s.byID {
		records = append(records, u)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Username < records[j].Username })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling user store: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating user store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".users.tmp-*")
	if err != nil {
		return fmt.Errorf("creating user store temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing user store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing user store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing user store temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod user store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("committing user store: %w", err)
	}
	return nil
}
