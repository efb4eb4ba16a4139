// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package integration exercita o servidor completo pela borda externa:
// config YAML real, listener TCP real e o client de referência falando o
// protocolo binário de verdade.
package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nishisan-dev/n-drive/internal/client"
	"github.com/nishisan-dev/n-drive/internal/config"
	"github.com/nishisan-dev/n-drive/internal/protocol"
	"github.com/nishisan-dev/n-drive/internal/server"
)

const (
	mib         = 1024 * 1024
	dialTimeout = 30 * time.Second
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testServer é um ndrive-server completo rodando em porta efêmera sobre
// um diretório temporário.
type testServer struct {
	addr string
	root string
	stop func()
}

// startServer sobe o servidor a partir de um YAML real, como em produção.
// root vazio cria um diretório novo; passar o root de um servidor parado
// simula um restart sobre os mesmos dados.
func startServer(t *testing.T, root string) *testServer {
	t.Helper()

	if root == "" {
		root = t.TempDir()
	}
	cfgPath := filepath.Join(t.TempDir(), "server.yaml")
	cfgYAML := fmt.Sprintf(`
server:
  listen: "127.0.0.1:0"
  max_clients: 16
  session_timeout: 5m
  chunk_size: 1mb
storage:
  root: %q
logging:
  level: error
  format: text
`, root)
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := config.LoadServerConfig(cfgPath)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.RunWithListener(ctx, ln, cfg, discardLogger())
	}()

	srv := &testServer{
		addr: ln.Addr().String(),
		root: root,
	}
	var stopped bool
	srv.stop = func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("server exited with error: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down in time")
		}
	}
	t.Cleanup(srv.stop)
	return srv
}

func dialClient(t *testing.T, srv *testServer) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	c, err := client.Dial(ctx, srv.addr, client.Options{
		Timeout: dialTimeout,
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("dialing %s: %v", srv.addr, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// newAccount registra e loga um usuário novo, retornando o client pronto.
func newAccount(t *testing.T, srv *testServer, username string) *client.Client {
	t.Helper()
	c := dialClient(t, srv)
	if _, err := c.CreateAccount(username, "pw12345678", username+"@x"); err != nil {
		t.Fatalf("creating account %s: %v", username, err)
	}
	if _, err := c.Login(username, "pw12345678"); err != nil {
		t.Fatalf("logging in %s: %v", username, err)
	}
	return c
}

// pattern preenche n bytes com conteúdo determinístico não alinhado a 256.
func pattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	return buf
}

func TestEndToEndRegisterAndLogin(t *testing.T) {
	srv := startServer(t, "")
	c := dialClient(t, srv)

	created, err := c.CreateAccount("alice", "pw12345678", "a@x")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if created == "" {
		t.Fatal("CreateAccount returned empty user id")
	}

	login, err := c.Login("alice", "pw12345678")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.UserID != created {
		t.Errorf("login user id = %s, want %s", login.UserID, created)
	}

	// O id do login vale como identidade efetiva nos requests seguintes.
	files, err := c.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles after login: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("fresh account has %d files, want 0", len(files))
	}

	if err := c.Logout(); err != nil {
		t.Errorf("Logout: %v", err)
	}
}

func TestEndToEndWrongPasswordRejected(t *testing.T) {
	srv := startServer(t, "")
	c := dialClient(t, srv)

	if _, err := c.CreateAccount("alice", "pw12345678", "a@x"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	_, err := c.Login("alice", "errada123")
	var serr *client.ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("Login with wrong password = %v, want ServerError", err)
	}

	// A sessão sobrevive à falha: o login correto ainda funciona.
	if _, err := c.Login("alice", "pw12345678"); err != nil {
		t.Fatalf("Login after failed attempt: %v", err)
	}
}

func TestEndToEndDirectoryConflict(t *testing.T) {
	srv := startServer(t, "")
	c := newAccount(t, srv, "alice")

	d1, err := c.CreateDirectory("docs", "")
	if err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	if d1.DirectoryID == "" || d1.DirectoryName != "docs" {
		t.Fatalf("directory = %+v", d1)
	}

	_, err = c.CreateDirectory("docs", "")
	var serr *client.ServerError
	if !errors.As(err, &serr) || !strings.Contains(serr.Message, "conflict") {
		t.Errorf("duplicate CreateDirectory = %v, want conflict message", err)
	}
}

func TestEndToEndChunkedUploadDownload(t *testing.T) {
	srv := startServer(t, "")
	c := newAccount(t, srv, "alice")

	d1, err := c.CreateDirectory("docs", "")
	if err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}

	// 2 MiB com chunks de 1 MiB → exatamente 2 chunks.
	content := pattern(2 * mib)
	fileID, err := c.Upload("f.bin", int64(len(content)), "application/octet-stream",
		bytes.NewReader(content), d1.DirectoryID)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	contents, err := c.DirectoryContents(d1.DirectoryID)
	if err != nil {
		t.Fatalf("DirectoryContents: %v", err)
	}
	if len(contents.Files) != 1 {
		t.Fatalf("directory has %d files, want 1", len(contents.Files))
	}
	got := contents.Files[0]
	if got.FileID != fileID || got.FileSize != 2*mib || !got.IsComplete {
		t.Errorf("file = %+v, want complete f.bin with %d bytes", got, 2*mib)
	}

	var out bytes.Buffer
	info, err := c.Download(fileID, &out)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if info.TotalChunks != 2 || info.FileSize != 2*mib {
		t.Errorf("download init = %d chunks / %d bytes, want 2 / %d", info.TotalChunks, info.FileSize, 2*mib)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Error("downloaded bytes differ from uploaded content")
	}
}

// rawConn fala o protocolo sem o client, para cenários que o client de
// referência se recusa a produzir (chunks fora de ordem).
type rawConn struct {
	t    *testing.T
	conn net.Conn
	user string
}

func dialRaw(t *testing.T, srv *testServer) *rawConn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(dialTimeout))
	return &rawConn{t: t, conn: conn}
}

func (r *rawConn) roundTrip(req *protocol.Packet) *protocol.Packet {
	r.t.Helper()
	if err := protocol.WritePacket(r.conn, req); err != nil {
		r.t.Fatalf("writing %s: %v", protocol.CommandName(req.Command), err)
	}
	resp, err := protocol.ReadPacket(r.conn)
	if err != nil {
		r.t.Fatalf("reading %s response: %v", protocol.CommandName(req.Command), err)
	}
	return resp
}

func (r *rawConn) request(cmd int32, body any, meta map[string]string) *protocol.Packet {
	r.t.Helper()
	req := protocol.NewPacket(cmd, r.user)
	if body != nil {
		payload, err := protocol.MarshalBody(body)
		if err != nil {
			r.t.Fatalf("encoding body: %v", err)
		}
		req.Payload = payload
	}
	for k, v := range meta {
		req.Metadata[k] = v
	}
	return r.roundTrip(req)
}

func (r *rawConn) chunk(fileID string, index int, payload []byte) protocol.UploadChunkResponse {
	r.t.Helper()
	req := protocol.NewPacket(protocol.CmdUploadChunkRequest, r.user)
	req.Metadata[protocol.MetaFileID] = fileID
	req.Metadata[protocol.MetaChunkIndex] = strconv.Itoa(index)
	req.Payload = payload

	resp := r.roundTrip(req)
	var out protocol.UploadChunkResponse
	if err := protocol.UnmarshalBody(resp, &out); err != nil {
		r.t.Fatalf("decoding chunk ack: %v", err)
	}
	return out
}

func TestEndToEndOutOfOrderChunkRejected(t *testing.T) {
	srv := startServer(t, "")
	r := dialRaw(t, srv)

	resp := r.request(protocol.CmdCreateAccountRequest,
		protocol.CreateAccountRequest{Username: "alice", Password: "pw12345678"}, nil)
	var account protocol.CreateAccountResponse
	if err := protocol.UnmarshalBody(resp, &account); err != nil || !account.Success {
		t.Fatalf("create account = %+v err %v", account, err)
	}

	resp = r.request(protocol.CmdLoginRequest,
		protocol.LoginRequest{Username: "alice", Password: "pw12345678"}, nil)
	var login protocol.LoginResponse
	if err := protocol.UnmarshalBody(resp, &login); err != nil || !login.Success {
		t.Fatalf("login = %+v err %v", login, err)
	}
	r.user = login.UserID

	// Arquivo de 3 chunks: 2 cheios de 1 MiB e um resto de 512 bytes.
	content := pattern(2*mib + 512)
	resp = r.request(protocol.CmdUploadInitRequest, protocol.UploadInitRequest{
		FileName: "ordem.bin",
		FileSize: int64(len(content)),
	}, nil)
	var init protocol.UploadInitResponse
	if err := protocol.UnmarshalBody(resp, &init); err != nil || !init.Success {
		t.Fatalf("upload init = %+v err %v", init, err)
	}
	if init.TotalChunks != 3 {
		t.Fatalf("TotalChunks = %d, want 3", init.TotalChunks)
	}

	// Índice 1 antes do 0 é recusado sem avançar o contador.
	if ack := r.chunk(init.FileID, 1, content[mib:2*mib]); ack.Success {
		t.Fatal("out-of-order chunk was accepted")
	}

	// A sequência correta ainda completa o upload.
	for i, slice := range [][]byte{content[:mib], content[mib : 2*mib], content[2*mib:]} {
		ack := r.chunk(init.FileID, i, slice)
		if !ack.Success {
			t.Fatalf("chunk %d rejected: %s", i, ack.Message)
		}
		if ack.ReceivedChunks != i+1 {
			t.Errorf("chunk %d ack ReceivedChunks = %d, want %d", i, ack.ReceivedChunks, i+1)
		}
	}

	resp = r.request(protocol.CmdUploadCompleteRequest,
		protocol.UploadCompleteRequest{FileID: init.FileID}, nil)
	var done protocol.UploadCompleteResponse
	if err := protocol.UnmarshalBody(resp, &done); err != nil || !done.Success {
		t.Fatalf("upload complete = %+v err %v", done, err)
	}
}

func TestEndToEndRecursiveDelete(t *testing.T) {
	srv := startServer(t, "")
	c := newAccount(t, srv, "alice")

	d1, err := c.CreateDirectory("docs", "")
	if err != nil {
		t.Fatalf("CreateDirectory docs: %v", err)
	}
	d2, err := c.CreateDirectory("2025", d1.DirectoryID)
	if err != nil {
		t.Fatalf("CreateDirectory 2025: %v", err)
	}

	content := pattern(mib + 100)
	fileID, err := c.Upload("nota.bin", int64(len(content)), "",
		bytes.NewReader(content), d2.DirectoryID)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	// Sem recursive o delete é recusado e nada muda.
	if err := c.DeleteDirectory(d1.DirectoryID, false); err == nil {
		t.Fatal("non-recursive delete of a populated directory succeeded")
	}
	if _, err := c.DirectoryContents(d1.DirectoryID); err != nil {
		t.Fatalf("directory should still exist: %v", err)
	}

	if err := c.DeleteDirectory(d1.DirectoryID, true); err != nil {
		t.Fatalf("recursive delete: %v", err)
	}

	// A subárvore inteira sumiu: diretórios, arquivo e dados físicos.
	if _, err := c.DirectoryContents(d1.DirectoryID); err == nil {
		t.Error("contents of deleted directory should fail")
	}
	if dirs, err := c.ListDirectories(); err != nil || len(dirs) != 0 {
		t.Errorf("directories = %v err %v, want none", dirs, err)
	}
	if _, err := c.Download(fileID, io.Discard); err == nil {
		t.Error("download of deleted file should fail")
	}
}

func TestEndToEndCatalogSurvivesRestart(t *testing.T) {
	srv := startServer(t, "")

	content := pattern(mib + 33)
	var fileID, dirID string
	{
		c := newAccount(t, srv, "alice")
		d, err := c.CreateDirectory("docs", "")
		if err != nil {
			t.Fatalf("CreateDirectory: %v", err)
		}
		dirID = d.DirectoryID
		fileID, err = c.Upload("persistente.bin", int64(len(content)), "", bytes.NewReader(content), dirID)
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
		if err := c.Logout(); err != nil {
			t.Fatalf("Logout: %v", err)
		}
	}

	// Derruba o servidor e sobe outro sobre o mesmo root.
	srv.stop()
	restarted := startServer(t, srv.root)

	c := dialClient(t, restarted)
	if _, err := c.Login("alice", "pw12345678"); err != nil {
		t.Fatalf("login after restart: %v", err)
	}

	contents, err := c.DirectoryContents(dirID)
	if err != nil {
		t.Fatalf("DirectoryContents after restart: %v", err)
	}
	if len(contents.Files) != 1 || contents.Files[0].FileID != fileID || !contents.Files[0].IsComplete {
		t.Fatalf("files after restart = %+v, want the complete upload", contents.Files)
	}

	var out bytes.Buffer
	if _, err := c.Download(fileID, &out); err != nil {
		t.Fatalf("Download after restart: %v", err)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Error("bytes after restart differ from original upload")
	}
}

func TestEndToEndOwnersAreIsolated(t *testing.T) {
	srv := startServer(t, "")

	alice := newAccount(t, srv, "alice")
	bob := newAccount(t, srv, "bob")

	content := pattern(mib)
	fileID, err := alice.Upload("secreto.bin", int64(len(content)), "", bytes.NewReader(content), "")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if files, err := bob.ListFiles(); err != nil || len(files) != 0 {
		t.Errorf("bob sees %v err %v, want no files", files, err)
	}
	if _, err := bob.Download(fileID, io.Discard); err == nil {
		t.Error("bob downloaded alice's file")
	}
	if err := bob.DeleteFile(fileID); err == nil {
		t.Error("bob deleted alice's file")
	}

	// O arquivo continua intacto para a dona.
	var out bytes.Buffer
	if _, err := alice.Download(fileID, &out); err != nil {
		t.Fatalf("alice Download: %v", err)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Error("file content changed")
	}
}
