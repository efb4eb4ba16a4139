// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// pipeSession cria uma sessão sobre net.Pipe e retorna também a ponta do
// "client" para observar o fechamento.
func pipeSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	s := NewSession(server, server, testLogger(), nil)
	return s, client
}

func TestManagerReserveLimit(t *testing.T) {
	m := NewManager(2, time.Minute, testLogger())

	if !m.Reserve() || !m.Reserve() {
		t.Fatal("first two reservations should succeed")
	}
	if m.Reserve() {
		t.Fatal("third reservation should be rejected")
	}
	if m.Count() != 2 {
		t.Fatalf("Count = %d, want 2", m.Count())
	}

	m.Release()
	if !m.Reserve() {
		t.Fatal("reservation after release should succeed")
	}
}

func TestManagerRemoveReleasesSlotOnce(t *testing.T) {
	m := NewManager(1, time.Minute, testLogger())
	s, _ := pipeSession(t)

	if !m.Reserve() {
		t.Fatal("reserve failed")
	}
	m.Add(s)
	if got, ok := m.Get(s.ID); !ok || got != s {
		t.Fatal("Get did not return the registered session")
	}

	// Remove duplicado não pode devolver a vaga duas vezes.
	m.Remove(s)
	m.Remove(s)
	if m.Count() != 0 {
		t.Fatalf("Count after double remove = %d, want 0", m.Count())
	}
	if !m.Reserve() {
		t.Fatal("slot should be available again")
	}
	if m.Reserve() {
		t.Fatal("limit is one: second reservation should fail")
	}
}

func TestSweepClosesIdleSessions(t *testing.T) {
	m := NewManager(4, time.Minute, testLogger())

	idle, idlePeer := pipeSession(t)
	fresh, _ := pipeSession(t)
	m.Reserve()
	m.Add(idle)
	m.Reserve()
	m.Add(fresh)

	// Recua a última atividade para além do timeout.
	idle.lastActivity.Store(time.Now().Add(-2 * time.Minute).UnixNano())

	m.sweep()

	if idle.State() != StateDisconnecting {
		t.Errorf("idle session state = %s, want disconnecting", idle.State())
	}
	idlePeer.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := idlePeer.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("read from swept session = %v, want EOF", err)
	}

	if fresh.State() != StateAuthRequired {
		t.Errorf("fresh session state = %s, want auth_required", fresh.State())
	}
}

func TestCloseAll(t *testing.T) {
	m := NewManager(4, time.Minute, testLogger())

	var peers []net.Conn
	for i := 0; i < 3; i++ {
		s, peer := pipeSession(t)
		m.Reserve()
		m.Add(s)
		peers = append(peers, peer)
	}

	m.CloseAll()

	for i, peer := range peers {
		peer.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, err := peer.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
			t.Errorf("peer %d read after CloseAll = %v, want EOF", i, err)
		}
	}
}
