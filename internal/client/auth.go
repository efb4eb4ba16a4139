// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package client

import (
	"github.com/nishisan-dev/n-drive/internal/protocol"
)

// CreateAccount registra uma conta nova e retorna o id atribuído pelo
// servidor. Não autentica: o fluxo normal chama Login em seguida.
func (c *Client) CreateAccount(username, password, email string) (string, error) {
	resp, err := c.do(protocol.CmdCreateAccountRequest, protocol.CreateAccountRequest{
		Username: username,
		Password: password,
		Email:    email,
	}, nil)
	if err != nil {
		return "", err
	}

	var out protocol.CreateAccountResponse
	if err := protocol.UnmarshalBody(resp, &out); err != nil {
		return "", err
	}
	if !out.Success {
		return "", &ServerError{Command: "CreateAccountRequest", Message: out.Message}
	}
	return out.UserID, nil
}

// Login autentica a conexão. O id retornado pelo servidor passa a viajar
// no campo UserID de todos os requests seguintes.
func (c *Client) Login(username, password string) (protocol.LoginResponse, error) {
	resp, err := c.do(protocol.CmdLoginRequest, protocol.LoginRequest{
		Username: username,
		Password: password,
	}, nil)
	if err != nil {
		return protocol.LoginResponse{}, err
	}

	var out protocol.LoginResponse
	if err := protocol.UnmarshalBody(resp, &out); err != nil {
		return protocol.LoginResponse{}, err
	}
	if !out.Success {
		return out, &ServerError{Command: "LoginRequest", Message: out.Message}
	}

	c.setUser(out.UserID)
	c.logger.Debug("logged in", "user_id", out.UserID, "username", out.Username)
	return out, nil
}

// Logout encerra a sessão de forma ordenada: espera a confirmação do
// servidor e fecha a conexão. O servidor fecha o lado de escrita dele
// logo após a resposta, então a conexão não serve para mais nada.
func (c *Client) Logout() error {
	if err := c.doStatus(protocol.CmdLogoutRequest, nil, nil); err != nil {
		c.Close()
		return err
	}
	c.setUser("")
	return c.Close()
}
