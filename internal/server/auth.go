// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/nishisan-dev/n-drive/internal/protocol"
	"github.com/nishisan-dev/n-drive/internal/users"
)

// handleLogin autentica a sessão e prepara a raiz de storage do usuário.
// Login numa sessão já autenticada é rejeitado.
func (h *Handler) handleLogin(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	if s.State() == StateAuthenticated {
		return h.failure(s, req, "already authenticated")
	}

	var body protocol.LoginRequest
	if err := protocol.UnmarshalBody(req, &body); err != nil {
		return h.failure(s, req, "malformed login request")
	}
	if body.Username == "" || body.Password == "" {
		return h.failure(s, req, "username and password are required")
	}

	u, err := h.users.Verify(body.Username, body.Password)
	if err != nil {
		s.logger.Warn("login failed", "user", body.Username)
		h.pushEvent("warn", "login_failed", body.Username,
			fmt.Sprintf("failed login attempt from %s", s.remote))
		return h.failure(s, req, "invalid credentials")
	}

	if err := h.catalog.EnsureUserRoot(u.ID); err != nil {
		s.logger.Error("preparing user storage", "user_id", u.ID, "error", err)
		return h.failure(s, req, "storage unavailable")
	}

	s.authenticate(u.ID)
	s.logger.Info("login successful", "user_id", u.ID, "username", u.Username)
	h.pushSessionEvent(s, "info", "login",
		fmt.Sprintf("user %s logged in from %s", u.Username, s.remote))

	return h.respond(s, req, protocol.LoginResponse{
		Success:  true,
		UserID:   u.ID,
		Username: u.Username,
	})
}

// handleLogout confirma o logout e move a sessão para Disconnecting; o
// loop da conexão entrega a resposta e encerra.
func (h *Handler) handleLogout(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	resp := h.respond(s, req, protocol.StatusResponse{Success: true, Message: "logged out"})
	s.logger.Info("logout requested", "user", s.UserID())
	s.setState(StateDisconnecting)
	return resp
}

// handleCreateAccount registra uma conta nova. A sessão continua em
// AuthRequired: o client faz login em seguida.
func (h *Handler) handleCreateAccount(_ context.Context, s *Session, req *protocol.Packet) *protocol.Packet {
	if s.State() == StateAuthenticated {
		return h.failure(s, req, "already authenticated")
	}

	var body protocol.CreateAccountRequest
	if err := protocol.UnmarshalBody(req, &body); err != nil {
		return h.failure(s, req, "malformed create account request")
	}

	u, err := h.users.Create(body.Username, body.Password, body.Email)
	if err != nil {
		s.logger.Warn("account creation failed", "user", body.Username, "error", err)
		switch {
		case errors.Is(err, users.ErrUserExists):
			return h.failure(s, req, "user already exists")
		case errors.Is(err, users.ErrInvalidUsername), errors.Is(err, users.ErrInvalidPassword):
			return h.failure(s, req, err.Error())
		default:
			return h.failure(s, req, "could not create account")
		}
	}

	h.pushEvent("info", "account_created", u.Username,
		fmt.Sprintf("account %s created from %s", u.Username, s.remote))

	return h.respond(s, req, protocol.CreateAccountResponse{
		Success: true,
		UserID:  u.ID,
	})
}
