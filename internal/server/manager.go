// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// sweepInterval é a frequência da varredura de sessões ociosas.
const sweepInterval = 1 * time.Minute

// Manager mantém o registro de sessões ativas, aplica o limite de
// admissão e derruba sessões que estouram o timeout de inatividade.
type Manager struct {
	sessions sync.Map // session id → *Session
	count    atomic.Int32
	max      int32
	timeout  time.Duration
	logger   *slog.Logger
}

// NewManager cria um Manager com o limite de clientes e o timeout de
// sessão configurados.
func NewManager(maxClients int, timeout time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		max:     int32(maxClients),
		timeout: timeout,
		logger:  logger,
	}
}

// Reserve tenta reservar uma vaga de sessão. Retorna false quando o
// servidor está no limite; nesse caso nenhuma vaga é consumida.
func (m *Manager) Reserve() bool {
	if m.count.Add(1) > m.max {
		m.count.Add(-1)
		return false
	}
	return true
}

// Release devolve uma vaga reservada cuja sessão não chegou a ser
// registrada.
func (m *Manager) Release() {
	m.count.Add(-1)
}

// Add registra uma sessão cuja vaga já foi reservada com Reserve.
func (m *Manager) Add(s *Session) {
	m.sessions.Store(s.ID, s)
}

// Remove tira a sessão do registro e devolve a vaga.
func (m *Manager) Remove(s *Session) {
	if _, loaded := m.sessions.LoadAndDelete(s.ID); loaded {
		m.count.Add(-1)
	}
}

// Count retorna o número de sessões ativas.
func (m *Manager) Count() int {
	return int(m.count.Load())
}

// Get retorna a sessão pelo id.
func (m *Manager) Get(id string) (*Session, bool) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Range itera as sessões ativas.
func (m *Manager) Range(fn func(s *Session) bool) {
	m.sessions.Range(func(_, v any) bool {
		return fn(v.(*Session))
	})
}

// StartSweeper varre as sessões a cada minuto e fecha as que passaram
// do timeout de inatividade. Fechar a conexão faz o loop da sessão
// sair com erro de leitura e executar a limpeza normal.
func (m *Manager) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Manager) sweep() {
	now := time.Now()
	m.Range(func(s *Session) bool {
		idle := now.Sub(s.LastActivity())
		if idle < m.timeout {
			return true
		}
		m.logger.Warn("closing idle session",
			"session", s.ID,
			"user", s.UserID(),
			"remote", s.remote,
			"idle", idle.Round(time.Second).String(),
		)
		s.setState(StateDisconnecting)
		s.Close()
		return true
	})
}

// CloseAll fecha todas as sessões ativas. Usado no shutdown do servidor
// depois do listener parar de aceitar conexões novas.
func (m *Manager) CloseAll() {
	m.Range(func(s *Session) bool {
		s.setState(StateDisconnecting)
		s.Close()
		return true
	})
}
