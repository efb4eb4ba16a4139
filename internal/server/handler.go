// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/n-drive/internal/catalog"
	"github.com/nishisan-dev/n-drive/internal/config"
	"github.com/nishisan-dev/n-drive/internal/logging"
	"github.com/nishisan-dev/n-drive/internal/protocol"
	"github.com/nishisan-dev/n-drive/internal/server/observability"
	"github.com/nishisan-dev/n-drive/internal/storage"
	"github.com/nishisan-dev/n-drive/internal/users"
)

const (
	// statsInterval é a cadência do log "server stats".
	statsInterval = 15 * time.Second

	// writeErrorTimeout limita o write best-effort de um pacote Error
	// antes de fechar a conexão.
	writeErrorTimeout = 5 * time.Second

	// drainTimeout é quanto o servidor espera o client fechar a conexão
	// depois da resposta de logout.
	drainTimeout = 2 * time.Second
)

// commandHandler processa um request e devolve o pacote de resposta.
type commandHandler func(ctx context.Context, s *Session, req *protocol.Packet) *protocol.Packet

// Mirror replica arquivos completos para um armazenamento externo em
// background. Nenhum dos métodos bloqueia o loop da sessão; ambos
// retornam false quando a fila está cheia.
type Mirror interface {
	Enqueue(ownerID string, file catalog.FileMetadata) bool
	EnqueueDelete(ownerID string, file catalog.FileMetadata) bool
}

// Handler implementa o lado servidor do protocolo: admissão de conexões,
// ciclo de vida das sessões e despacho de comandos para os handlers de
// autenticação, catálogo, upload e download.
type Handler struct {
	cfg     *config.ServerConfig
	logger  *slog.Logger
	catalog *catalog.Service
	store   *storage.Local
	users   users.Store
	manager *Manager

	// Ligados pelo servidor quando os recursos correspondentes estão
	// habilitados na config; todos os usos são nil-safe.
	mirror    Mirror
	events    *observability.EventStore
	history   *observability.SessionHistoryStore
	collector *observability.Collector
	sysmon    *SystemMonitor

	commands map[int32]commandHandler

	// Contadores acumulados desde o start do processo. O stats reporter
	// e o collector Prometheus leem daqui; nunca são zerados.
	TrafficIn   atomic.Int64
	TrafficOut  atomic.Int64
	DiskRead    atomic.Int64
	DiskWrite   atomic.Int64
	ActiveConns atomic.Int32

	dscp      int
	startedAt time.Time
	chunkPool sync.Pool
}

// NewHandler valida a config de rede e monta a tabela de comandos.
func NewHandler(cfg *config.ServerConfig, logger *slog.Logger, cat *catalog.Service, store *storage.Local, accounts users.Store, manager *Manager) (*Handler, error) {
	dscp, err := ParseDSCP(cfg.Server.DSCP)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	h := &Handler{
		cfg:       cfg,
		logger:    logger,
		catalog:   cat,
		store:     store,
		users:     accounts,
		manager:   manager,
		dscp:      dscp,
		startedAt: time.Now(),
	}
	h.chunkPool.New = func() any {
		// O pool guarda *[]byte para não alocar a interface no Get/Put.
		buf := make([]byte, cfg.Server.ChunkSizeRaw)
		return &buf
	}
	h.commands = map[int32]commandHandler{
		protocol.CmdLoginRequest:             h.handleLogin,
		protocol.CmdLogoutRequest:            h.handleLogout,
		protocol.CmdCreateAccountRequest:     h.handleCreateAccount,
		protocol.CmdFileListRequest:          h.handleFileList,
		protocol.CmdUploadInitRequest:        h.handleUploadInit,
		protocol.CmdUploadChunkRequest:       h.handleUploadChunk,
		protocol.CmdUploadCompleteRequest:    h.handleUploadComplete,
		protocol.CmdDownloadInitRequest:      h.handleDownloadInit,
		protocol.CmdDownloadChunkRequest:     h.handleDownloadChunk,
		protocol.CmdDownloadCompleteRequest:  h.handleDownloadComplete,
		protocol.CmdFileDeleteRequest:        h.handleFileDelete,
		protocol.CmdDirectoryCreateRequest:   h.handleDirectoryCreate,
		protocol.CmdDirectoryListRequest:     h.handleDirectoryList,
		protocol.CmdDirectoryRenameRequest:   h.handleDirectoryRename,
		protocol.CmdDirectoryDeleteRequest:   h.handleDirectoryDelete,
		protocol.CmdFileMoveRequest:          h.handleFileMove,
		protocol.CmdDirectoryContentsRequest: h.handleDirectoryContents,
	}
	return h, nil
}

// HandleConnection executa o ciclo de vida completo de uma conexão:
// admissão, criação da sessão e o loop read→dispatch→write até a
// desconexão. Roda na goroutine dedicada da conexão.
func (h *Handler) HandleConnection(ctx context.Context, conn net.Conn) {
	h.ActiveConns.Add(1)
	defer h.ActiveConns.Add(-1)
	defer conn.Close()

	remote := conn.RemoteAddr().String()

	if !h.manager.Reserve() {
		h.logger.Warn("connection rejected: server at capacity",
			"remote", remote,
			"max_clients", h.cfg.Server.MaxClients)
		h.pushEvent("warn", "capacity_reject", "",
			fmt.Sprintf("connection from %s rejected: server at capacity", remote))
		h.rejectAtCapacity(conn)
		return
	}

	if err := ApplyDSCP(conn, h.dscp); err != nil {
		h.logger.Warn("applying DSCP mark", "remote", remote, "error", err)
	}

	bufSize := int(h.cfg.Server.NetworkBufferRaw)
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetReadBuffer(bufSize); err != nil {
			h.logger.Warn("setting socket read buffer", "remote", remote, "error", err)
		}
		if err := tc.SetWriteBuffer(bufSize); err != nil {
			h.logger.Warn("setting socket write buffer", "remote", remote, "error", err)
		}
	}

	var w io.Writer = conn
	if h.cfg.Server.BandwidthRaw > 0 {
		w = NewThrottledWriter(ctx, conn, h.cfg.Server.BandwidthRaw)
	}

	s := NewSession(conn, w, h.logger, nil)

	slogger, logCloser, logPath, err := logging.NewSessionLogger(h.logger, h.cfg.Logging.SessionDir, s.ID)
	if err != nil {
		h.logger.Warn("creating session log", "session", s.ID, "error", err)
		slogger, logCloser = h.logger, nil
	}
	s.logger = slogger.With("session", s.ID, "remote", remote)
	s.logCloser = logCloser
	if logPath != "" {
		s.logger.Debug("session log created", "path", logPath)
	}

	h.manager.Add(s)
	s.logger.Info("client connected")

	var (
		result   = "ok"
		commands int64
	)

	defer func() {
		h.manager.Remove(s)

		if up, ok := s.uploadSnapshot(); ok && up.received < up.totalChunks {
			s.logger.Warn("session closed with incomplete upload",
				"file_id", up.fileID,
				"file_name", up.fileName,
				"received_chunks", up.received,
				"total_chunks", up.totalChunks)
		}

		s.logger.Info("session closed",
			"user", s.UserID(),
			"result", result,
			"commands", commands,
			"bytes_in", s.bytesIn.Load(),
			"bytes_out", s.bytesOut.Load(),
			"duration", time.Since(s.startedAt).Round(time.Millisecond).String())

		if s.logCloser != nil {
			s.logCloser.Close()
		}
		// Sessões encerradas sem erro não precisam do log individual.
		if result == "ok" {
			logging.RemoveSessionLog(h.cfg.Logging.SessionDir, s.ID)
		}

		h.pushHistory(s, result, commands)
	}()

	reader := bufio.NewReaderSize(conn, bufSize)

	for {
		frame, err := protocol.ReadFrame(reader)
		if err != nil {
			switch {
			case s.State() == StateDisconnecting:
				// O sweeper fechou a conexão por inatividade.
				result = "timeout"
			case errors.Is(err, protocol.ErrConnectionClosed):
				s.logger.Info("client disconnected")
			default:
				s.logger.Error("reading frame", "error", err)
				h.writeError(s, 0, err.Error())
				result = "error"
			}
			return
		}

		h.TrafficIn.Add(int64(len(frame) + 4))
		s.bytesIn.Add(int64(len(frame) + 4))

		req, err := protocol.DecodePacket(frame)
		if err != nil {
			s.logger.Error("decoding packet", "error", err)
			h.writeError(s, 0, err.Error())
			result = "error"
			return
		}

		s.Touch()
		commands++

		start := time.Now()
		resp, panicked := h.dispatchSafe(ctx, s, req)
		if protocol.IsRequest(req.Command) {
			h.collector.ObserveDuration(protocol.CommandName(req.Command), time.Since(start).Seconds())
		}

		if err := h.writeResponse(s, resp); err != nil {
			s.logger.Error("writing response",
				"command", protocol.CommandName(resp.Command),
				"error", err)
			result = "error"
			return
		}

		if panicked {
			result = "error"
			return
		}

		if s.State() == StateDisconnecting {
			// Resposta de logout entregue; encerra o lado de escrita e
			// espera o client fechar.
			h.drainAndClose(s)
			return
		}
	}
}

// dispatch valida estado e identidade do request e roteia para o handler
// do comando.
func (h *Handler) dispatch(ctx context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	handle, ok := h.commands[req.Command]
	if !ok {
		s.logger.Warn("unknown command", "command", req.Command)
		return h.errorResponse(s, req.Command, fmt.Sprintf("unknown command %d", req.Command))
	}

	if s.State() != StateAuthenticated && !preAuthCommand(req.Command) {
		return h.failure(s, req, "not authenticated")
	}
	// Um request autenticado não pode falar em nome de outro usuário.
	if s.State() == StateAuthenticated && req.UserID != "" && req.UserID != s.UserID() {
		s.logger.Warn("user mismatch in request",
			"command", protocol.CommandName(req.Command),
			"packet_user", req.UserID)
		return h.failure(s, req, "user mismatch")
	}

	return handle(ctx, s, req)
}

// dispatchSafe intercepta panic de um handler e o converte em um pacote
// Error com o comando original; panicked sinaliza ao loop que a conexão
// deve ser encerrada depois de entregar a resposta.
func (h *Handler) dispatchSafe(ctx context.Context, s *Session, req *protocol.Packet) (resp *protocol.Packet, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic recovered",
				"command", protocol.CommandName(req.Command),
				"panic", r)
			resp = h.errorResponse(s, req.Command, "internal server error")
			panicked = true
		}
	}()
	return h.dispatch(ctx, s, req), false
}

// preAuthCommand reporta se o comando é aceito antes do login.
func preAuthCommand(cmd int32) bool {
	return cmd == protocol.CmdLoginRequest || cmd == protocol.CmdCreateAccountRequest
}

// respond monta a resposta de sucesso do request com o body JSON dado.
// Passar body nil deixa o payload vazio (o chamador preenche depois).
func (h *Handler) respond(s *Session, req *protocol.Packet, body any) *protocol.Packet {
	// dispatch só roteia requests conhecidos; a resposta é sempre R+1.
	resp := protocol.NewPacket(req.Command+1, s.UserID())
	if body != nil {
		payload, err := protocol.MarshalBody(body)
		if err != nil {
			s.logger.Error("encoding response body",
				"command", protocol.CommandName(req.Command),
				"error", err)
			return h.failure(s, req, "internal error")
		}
		resp.Payload = payload
	}
	h.collector.ObserveCommand(protocol.CommandName(req.Command), true)
	return resp
}

// failure monta a resposta de falha in-band: R+1 com Success=false e a
// mensagem. DownloadChunk é a exceção — a resposta de chunk carrega
// payload binário, então a falha vira um pacote Error com
// OriginalCommandCode.
func (h *Handler) failure(s *Session, req *protocol.Packet, msg string) *protocol.Packet {
	h.collector.ObserveCommand(protocol.CommandName(req.Command), false)

	if req.Command == protocol.CmdDownloadChunkRequest {
		return h.errorResponse(s, req.Command, msg)
	}

	resp := protocol.NewPacket(req.Command+1, s.UserID())
	if body, err := protocol.MarshalBody(protocol.StatusResponse{Success: false, Message: msg}); err == nil {
		resp.Payload = body
	}
	return resp
}

// errorResponse monta um pacote Error (301) apontando o comando original.
func (h *Handler) errorResponse(s *Session, originalCmd int32, msg string) *protocol.Packet {
	resp := protocol.NewPacket(protocol.CmdError, s.UserID())
	if originalCmd != 0 {
		resp.Metadata[protocol.MetaOriginalCommandCode] = strconv.FormatInt(int64(originalCmd), 10)
	}
	if body, err := protocol.MarshalBody(protocol.StatusResponse{Success: false, Message: msg}); err == nil {
		resp.Payload = body
	}
	return resp
}

// writeResponse codifica e escreve a resposta, contabilizando o tráfego.
func (h *Handler) writeResponse(s *Session, resp *protocol.Packet) error {
	frame, err := protocol.EncodePacket(resp)

	// O payload de download já foi copiado para o frame; devolve o
	// buffer emprestado ao pool.
	if buf := s.takeChunkBuf(); buf != nil {
		h.chunkPool.Put(buf)
	}
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	err = protocol.WriteFrame(s.writer, frame)
	s.sendMu.Unlock()
	if err != nil {
		return err
	}

	n := int64(len(frame) + 4)
	h.TrafficOut.Add(n)
	s.bytesOut.Add(n)
	return nil
}

// writeError envia um pacote Error best-effort antes de fechar a conexão.
func (h *Handler) writeError(s *Session, originalCmd int32, msg string) {
	resp := h.errorResponse(s, originalCmd, msg)
	s.conn.SetWriteDeadline(time.Now().Add(writeErrorTimeout))
	s.sendMu.Lock()
	err := protocol.WritePacket(s.writer, resp)
	s.sendMu.Unlock()
	if err != nil {
		s.logger.Debug("writing error packet", "error", err)
	}
}

// rejectAtCapacity responde Error para uma conexão que não ganhou vaga.
func (h *Handler) rejectAtCapacity(conn net.Conn) {
	resp := protocol.NewPacket(protocol.CmdError, "")
	if body, err := protocol.MarshalBody(protocol.StatusResponse{Success: false, Message: "server at capacity"}); err == nil {
		resp.Payload = body
	}
	conn.SetWriteDeadline(time.Now().Add(writeErrorTimeout))
	_ = protocol.WritePacket(conn, resp)
}

// drainAndClose fecha o lado de escrita e consome o que restar de
// leitura, dando ao client a chance de receber a resposta de logout
// antes do FIN.
func (h *Handler) drainAndClose(s *Session) {
	if tcp, ok := s.conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(drainTimeout))
	_, _ = io.Copy(io.Discard, s.conn)
}

// pushEvent registra um evento operacional sem sessão associada.
func (h *Handler) pushEvent(level, eventType, user, message string) {
	if h.events == nil {
		return
	}
	h.events.PushEvent(level, eventType, user, message)
}

// pushSessionEvent registra um evento operacional da sessão.
func (h *Handler) pushSessionEvent(s *Session, level, eventType, message string) {
	if h.events == nil {
		return
	}
	h.events.Push(observability.EventEntry{
		Level:   level,
		Type:    eventType,
		User:    s.UserID(),
		Session: s.ID,
		Message: message,
	})
}

// pushHistory registra a sessão encerrada no histórico.
func (h *Handler) pushHistory(s *Session, result string, commands int64) {
	if h.history == nil {
		return
	}
	now := time.Now()
	h.history.Push(observability.SessionHistoryEntry{
		SessionID:      s.ID,
		User:           s.UserID(),
		RemoteAddr:     s.remote,
		ConnectedAt:    s.startedAt.Format(time.RFC3339),
		DisconnectedAt: now.Format(time.RFC3339),
		Duration:       now.Sub(s.startedAt).Round(time.Millisecond).String(),
		BytesIn:        s.bytesIn.Load(),
		BytesOut:       s.bytesOut.Load(),
		Commands:       commands,
		Result:         result,
	})
}

// StartStatsReporter loga as métricas agregadas do servidor a cada 15
// segundos: conexões, sessões e as taxas de tráfego e disco do intervalo.
func (h *Handler) StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()

		// Os contadores são acumulados (o Prometheus exige contadores
		// monotônicos), então o reporter guarda a leitura anterior e
		// loga o delta do intervalo.
		var lastIn, lastOut, lastRead, lastWrite int64

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				in, out := h.TrafficIn.Load(), h.TrafficOut.Load()
				dr, dw := h.DiskRead.Load(), h.DiskWrite.Load()

				secs := statsInterval.Seconds()
				const mb = 1024 * 1024

				attrs := []any{
					"uptime", time.Since(h.startedAt).Round(time.Second).String(),
					"conns", h.ActiveConns.Load(),
					"sessions", h.manager.Count(),
					"traffic_in_MBps", fmt.Sprintf("%.2f", float64(in-lastIn)/secs/mb),
					"traffic_out_MBps", fmt.Sprintf("%.2f", float64(out-lastOut)/secs/mb),
					"disk_read_MBps", fmt.Sprintf("%.2f", float64(dr-lastRead)/secs/mb),
					"disk_write_MBps", fmt.Sprintf("%.2f", float64(dw-lastWrite)/secs/mb),
					"traffic_in_total_MB", fmt.Sprintf("%.1f", float64(in)/mb),
					"traffic_out_total_MB", fmt.Sprintf("%.1f", float64(out)/mb),
				}
				if h.sysmon != nil {
					sys := h.sysmon.Stats()
					attrs = append(attrs,
						"cpu_percent", fmt.Sprintf("%.1f", sys.CPUPercent),
						"storage_use_percent", fmt.Sprintf("%.1f", sys.StorageUsePercent),
					)
				}
				h.logger.Info("server stats", attrs...)

				lastIn, lastOut, lastRead, lastWrite = in, out, dr, dw
			}
		}
	}()
}
