// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SessionState é o estado do ciclo de vida de uma sessão.
type SessionState int32

const (
	// StateAuthRequired é o estado inicial: só Login e CreateAccount
	// são aceitos.
	StateAuthRequired SessionState = iota
	// StateAuthenticated aceita o conjunto completo de comandos.
	StateAuthenticated
	// StateDisconnecting é terminal: a resposta de logout já foi
	// enfileirada e o loop da conexão vai encerrar.
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateAuthRequired:
		return "auth_required"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// uploadState é o upload em andamento de uma sessão. Uma sessão carrega
// no máximo um upload por vez; os chunks chegam estritamente em ordem.
type uploadState struct {
	fileID       string
	fileName     string
	path         string
	declaredSize int64
	chunkSize    int64
	totalChunks  int
	received     int
	bytesWritten int64
	startedAt    time.Time
}

// downloadState é o download em andamento de uma sessão.
type downloadState struct {
	fileID      string
	fileName    string
	path        string
	fileSize    int64
	chunkSize   int64
	totalChunks int
	served      int
	startedAt   time.Time
}

// Session é o estado de uma conexão TCP aceita. Todo o tráfego da
// sessão passa por uma única goroutine (o loop da conexão); os campos
// atômicos e o mutex existem para os leitores de fora — sweeper,
// stats reporter e API de observabilidade.
type Session struct {
	ID        string
	conn      net.Conn
	writer    io.Writer // conn, possivelmente embrulhada em throttle
	logger    *slog.Logger
	logCloser io.Closer
	remote    string

	state        atomic.Int32
	startedAt    time.Time
	lastActivity atomic.Int64 // UnixNano

	// sendMu serializa as escritas no socket: um frame nunca se
	// intercala com outro. O lado de leitura pertence só ao loop.
	sendMu sync.Mutex

	bytesIn  atomic.Int64
	bytesOut atomic.Int64

	mu       sync.Mutex
	userID   string
	upload   *uploadState
	download *downloadState

	// chunkBuf guarda o buffer do pool emprestado para a resposta de
	// download em trânsito; o loop devolve depois do encode.
	chunkBuf *[]byte
}

// NewSession cria uma sessão no estado AuthRequired.
func NewSession(conn net.Conn, writer io.Writer, logger *slog.Logger, logCloser io.Closer) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		conn:      conn,
		writer:    writer,
		logger:    logger,
		logCloser: logCloser,
		remote:    conn.RemoteAddr().String(),
		startedAt: time.Now(),
	}
	s.Touch()
	return s
}

// State retorna o estado atual da sessão.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
}

// UserID retorna o usuário autenticado, ou vazio antes do login.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// authenticate registra o usuário e move a sessão para Authenticated.
func (s *Session) authenticate(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
	s.setState(StateAuthenticated)
}

// Touch registra atividade agora. Chamado a cada pacote decodificado.
func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity retorna o instante do último pacote processado.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// IdleFor retorna há quanto tempo a sessão não processa um pacote.
func (s *Session) IdleFor() time.Duration {
	return time.Since(s.LastActivity())
}

func (s *Session) setUpload(u *uploadState) {
	s.mu.Lock()
	s.upload = u
	s.mu.Unlock()
}

// currentUpload retorna o ponteiro do upload em andamento. Só o loop da
// conexão muta os campos; leitores externos usam uploadSnapshot.
func (s *Session) currentUpload() *uploadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upload
}

// advanceUpload registra um chunk aceito e retorna o novo contador.
func (s *Session) advanceUpload(bytes int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upload.received++
	s.upload.bytesWritten += bytes
	return s.upload.received
}

// uploadSnapshot retorna uma cópia consistente do upload em andamento.
func (s *Session) uploadSnapshot() (uploadState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upload == nil {
		return uploadState{}, false
	}
	return *s.upload, true
}

func (s *Session) setDownload(d *downloadState) {
	s.mu.Lock()
	s.download = d
	s.mu.Unlock()
}

// currentDownload retorna o ponteiro do download em andamento. Só o loop
// da conexão muta os campos; leitores externos usam downloadSnapshot.
func (s *Session) currentDownload() *downloadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.download
}

// advanceDownload move o cursor de progresso do download. Re-leituras de
// um chunk anterior não retrocedem o cursor.
func (s *Session) advanceDownload(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index+1 > s.download.served {
		s.download.served = index + 1
	}
}

// downloadSnapshot retorna uma cópia consistente do download em andamento.
func (s *Session) downloadSnapshot() (downloadState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.download == nil {
		return downloadState{}, false
	}
	return *s.download, true
}

func (s *Session) holdChunkBuf(buf *[]byte) {
	s.mu.Lock()
	s.chunkBuf = buf
	s.mu.Unlock()
}

func (s *Session) takeChunkBuf() *[]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.chunkBuf
	s.chunkBuf = nil
	return buf
}

// Close fecha a conexão da sessão. Idempotente o suficiente para ser
// chamado pelo sweeper e pelo loop da conexão.
func (s *Session) Close() {
	s.conn.Close()
}
