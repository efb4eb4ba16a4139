// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package client implementa o client de referência do protocolo N-Drive:
// uma conexão TCP com um request em voo por vez. Cada chamada tipada envia
// o request, lê a resposta seguinte e valida a lei de correspondência
// (código de resposta = request + 1).
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/nishisan-dev/n-drive/internal/protocol"
)

const (
	// readBufferSize cobre um chunk de download inteiro na maioria das
	// configurações de servidor sem reallocar o buffer do reader.
	readBufferSize = 256 * 1024

	writeBufferSize = 64 * 1024
)

// ErrClosed é retornado por chamadas feitas depois do Close.
var ErrClosed = errors.New("client: connection closed")

// ServerError é uma falha reportada pelo servidor: um corpo com
// Success=false ou um pacote Error (301).
type ServerError struct {
	Command string // nome do request que falhou
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: server rejected %s", e.Command)
	}
	return fmt.Sprintf("client: %s failed: %s", e.Command, e.Message)
}

// Options ajusta a conexão do client.
type Options struct {
	// Timeout limita cada par request/response. Zero desliga o deadline —
	// útil em testes com servidor local.
	Timeout time.Duration
	// Logger recebe os logs do client; nil usa slog.Default().
	Logger *slog.Logger
}

// Client é uma conexão com o servidor N-Drive. Os métodos serializam no
// mutex interno: o protocolo é estritamente sequencial por conexão, então
// chamadas concorrentes esperam a vez em vez de intercalar frames.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	userID string
	closed bool
}

// Dial conecta ao servidor respeitando o contexto para cancelamento.
func Dial(ctx context.Context, address string, opts Options) (*Client, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", address, err)
	}
	return NewClient(conn, opts), nil
}

// NewClient monta um client sobre uma conexão já estabelecida. Útil em
// testes e para quem faz o dial por conta própria.
func NewClient(conn net.Conn, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conn:    conn,
		reader:  bufio.NewReaderSize(conn, readBufferSize),
		writer:  bufio.NewWriterSize(conn, writeBufferSize),
		logger:  logger,
		timeout: opts.Timeout,
	}
}

// Close encerra a conexão. Chamadas subsequentes retornam ErrClosed.
// Para encerrar avisando o servidor, use Logout.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// UserID retorna o id atribuído no login ("" antes de autenticar).
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) setUser(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

// newRequest monta um pacote de request carregando o usuário da sessão.
func (c *Client) newRequest(command int32) *protocol.Packet {
	return protocol.NewPacket(command, c.UserID())
}

// do monta e executa um request com corpo JSON opcional e metadata
// opcional, retornando o pacote de resposta já validado.
func (c *Client) do(command int32, body any, meta map[string]string) (*protocol.Packet, error) {
	req := c.newRequest(command)
	if body != nil {
		payload, err := protocol.MarshalBody(body)
		if err != nil {
			return nil, err
		}
		req.Payload = payload
	}
	for k, v := range meta {
		req.Metadata[k] = v
	}
	return c.roundTrip(req)
}

// roundTrip envia o request e lê a resposta correspondente. Um pacote
// Error vira *ServerError com a mensagem do servidor; qualquer outro
// código que não seja request+1 é violação de protocolo e derruba a
// chamada.
func (c *Client) roundTrip(req *protocol.Packet) (*protocol.Packet, error) {
	name := protocol.CommandName(req.Command)

	want, err := protocol.ResponseCommandCode(req.Command)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
		defer c.conn.SetDeadline(time.Time{})
	}

	if err := protocol.WritePacket(c.writer, req); err != nil {
		return nil, fmt.Errorf("sending %s: %w", name, err)
	}
	if err := c.writer.Flush(); err != nil {
		return nil, fmt.Errorf("flushing %s: %w", name, err)
	}

	resp, err := protocol.ReadPacket(c.reader)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", name, err)
	}

	switch resp.Command {
	case want:
		return resp, nil
	case protocol.CmdError:
		var body protocol.StatusResponse
		if err := protocol.UnmarshalBody(resp, &body); err != nil {
			body.Message = "unreadable error body"
		}
		return nil, &ServerError{Command: name, Message: body.Message}
	default:
		return nil, fmt.Errorf("client: protocol violation: %s answered with %s",
			name, protocol.CommandName(resp.Command))
	}
}

// doStatus executa um request cuja resposta é um StatusResponse puro.
func (c *Client) doStatus(command int32, body any, meta map[string]string) error {
	resp, err := c.do(command, body, meta)
	if err != nil {
		return err
	}
	var out protocol.StatusResponse
	if err := protocol.UnmarshalBody(resp, &out); err != nil {
		return err
	}
	if !out.Success {
		return &ServerError{Command: protocol.CommandName(command), Message: out.Message}
	}
	return nil
}
